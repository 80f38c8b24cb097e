package fileio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"sculptor/internal/logging"
)

// Backups lists the backups of the file, oldest first.
func (f *File[T]) Backups() ([]string, error) {
	dir := filepath.Dir(f.Path)
	base := filepath.Base(f.Path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	type backup struct {
		name  string
		stamp int64
		seq   int
	}
	var found []backup
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stamp, seq, ok := parseBackupName(base, e.Name())
		if !ok {
			continue
		}
		found = append(found, backup{name: e.Name(), stamp: stamp, seq: seq})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].stamp != found[j].stamp {
			return found[i].stamp < found[j].stamp
		}
		return found[i].seq < found[j].seq
	})

	paths := make([]string, len(found))
	for i, b := range found {
		paths[i] = filepath.Join(dir, b.name)
	}
	return paths, nil
}

// parseBackupName matches "<base>.<stamp>.bak" and "<base>.<stamp>-<seq>.bak".
func parseBackupName(base, name string) (stamp int64, seq int, ok bool) {
	prefix := base + "."
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".bak") {
		return 0, 0, false
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".bak")
	stampPart, seqPart, hasSeq := strings.Cut(mid, "-")

	stamp, err := strconv.ParseInt(stampPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if hasSeq {
		seq, err = strconv.Atoi(seqPart)
		if err != nil {
			return 0, 0, false
		}
	}
	return stamp, seq, true
}

// PruneBackups deletes all but the newest keep backups and returns the removed paths.
func (f *File[T]) PruneBackups(keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must be >= 0, got %d", keep)
	}
	backups, err := f.Backups()
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	stale := backups[:len(backups)-keep]
	removed := make([]string, 0, len(stale))
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove backup %s: %w", p, err)
		}
		removed = append(removed, p)
	}
	logging.Get(logging.CategoryFileIO).Debug("pruned %d backups of %s", len(removed), f.Path)
	return removed, nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs it and
// renames it over path, so readers never observe a partially written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
