package shasnap

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"sculptor/internal/logging"

	"golang.org/x/sync/errgroup"
)

// TreeOptions controls Tree.
type TreeOptions struct {
	// IncludeHidden walks dot-files and dot-directories too.
	IncludeHidden bool
	// Concurrency bounds the number of files hashed at once. Zero means GOMAXPROCS.
	Concurrency int
}

// TreeSnapshot is the snapshot of every regular file under Root.
type TreeSnapshot struct {
	Root string
	// Files maps slash-separated relative paths to file snapshots.
	Files map[string]string
	// Digest covers the sorted (path, snapshot) pairs, so it does not depend on walk order.
	Digest string
}

// Tree walks root and snapshots every regular file in parallel.
func Tree(ctx context.Context, root string, opts TreeOptions) (*TreeSnapshot, error) {
	timer := logging.StartTimer(logging.CategorySnap, "tree "+root)
	defer timer.Stop()

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	files := make(map[string]string)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}
		if path != root && !opts.IncludeHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		g.Go(func() error {
			digest, _, err := SnapFile(path)
			if err != nil {
				return err
			}
			mu.Lock()
			files[rel] = digest
			mu.Unlock()
			return nil
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}

	snap := &TreeSnapshot{Root: root, Files: files, Digest: combine(files)}
	logging.Get(logging.CategorySnap).Debug("tree %s: %d files, digest %s", root, len(files), Short(snap.Digest))
	return snap, nil
}

func combine(files map[string]string) string {
	var b strings.Builder
	for _, p := range sortedKeys(files) {
		b.WriteString(p)
		b.WriteByte(0)
		b.WriteString(files[p])
		b.WriteByte('\n')
	}
	return SnapString(b.String())
}

// TreeDiff lists relative paths that differ between two tree snapshots.
type TreeDiff struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Empty reports whether the trees were identical.
func (d TreeDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Diff compares two tree snapshots. Either may be nil.
func Diff(before, after *TreeSnapshot) TreeDiff {
	var prev, next map[string]string
	if before != nil {
		prev = before.Files
	}
	if after != nil {
		next = after.Files
	}

	var d TreeDiff
	for _, p := range sortedKeys(next) {
		old, ok := prev[p]
		switch {
		case !ok:
			d.Added = append(d.Added, p)
		case old != next[p]:
			d.Modified = append(d.Modified, p)
		}
	}
	for _, p := range sortedKeys(prev) {
		if _, ok := next[p]; !ok {
			d.Removed = append(d.Removed, p)
		}
	}
	return d
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
