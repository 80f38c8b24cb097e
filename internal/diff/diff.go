// Package diff computes line-level diffs between two versions of a text file,
// such as a config and one of its backups, using the sergi/go-diff engine.
package diff

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"sculptor/internal/logging"
	"sculptor/internal/shasnap"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultContext is the number of unchanged lines kept around each change.
const DefaultContext = 3

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// NoNewline is the unified-diff marker following a line that ends its file
// without a trailing newline.
const NoNewline = `\ No newline at end of file`

// Line is one line of a hunk. OldNum and NewNum are 1-based; 0 means the
// line does not exist on that side.
type Line struct {
	OldNum  int
	NewNum  int
	Content string
	Type    LineType
	NoEOL   bool // last line of its side and not newline-terminated
}

// Hunk is a group of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff is the difference between two versions of a file.
type FileDiff struct {
	OldPath   string
	NewPath   string
	OldDigest string
	NewDigest string
	Hunks     []Hunk
	IsNew     bool
	IsDelete  bool
}

// Empty reports whether both versions are identical.
func (d *FileDiff) Empty() bool {
	return d.OldDigest == d.NewDigest
}

// Stats counts added and removed lines.
func (d *FileDiff) Stats() (added, removed int) {
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				added++
			case LineRemoved:
				removed++
			}
		}
	}
	return added, removed
}

// Unified renders the diff in unified format. An empty diff renders as "".
func (d *FileDiff) Unified() string {
	if len(d.Hunks) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", d.OldPath, d.NewPath)
	for _, h := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%s +%s @@\n", hunkRange(h.OldStart, h.OldCount), hunkRange(h.NewStart, h.NewCount))
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				sb.WriteByte('+')
			case LineRemoved:
				sb.WriteByte('-')
			default:
				sb.WriteByte(' ')
			}
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
			if l.NoEOL {
				sb.WriteString(NoNewline)
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}

func hunkRange(start, count int) string {
	if count == 1 {
		return fmt.Sprint(start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// Engine computes diffs and caches them by content snapshot.
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	context int
	cache   sync.Map // cacheKey -> *FileDiff
}

type cacheKey struct {
	oldDigest string
	newDigest string
}

// NewEngine creates an engine keeping contextLines of context; negative means DefaultContext.
func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = DefaultContext
	}
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // config files are small; prefer the minimal diff
	return &Engine{dmp: dmp, context: contextLines}
}

// DefaultEngine is shared by the package-level helpers.
var DefaultEngine = NewEngine(DefaultContext)

// Compute diffs oldContent against newContent.
func (e *Engine) Compute(oldPath, newPath, oldContent, newContent string) *FileDiff {
	key := cacheKey{shasnap.SnapString(oldContent), shasnap.SnapString(newContent)}
	if cached, ok := e.cache.Load(key); ok {
		result := *cached.(*FileDiff)
		result.OldPath = oldPath
		result.NewPath = newPath
		return &result
	}

	fd := &FileDiff{
		OldPath:   oldPath,
		NewPath:   newPath,
		OldDigest: key.oldDigest,
		NewDigest: key.newDigest,
		IsNew:     oldContent == "" && newContent != "",
		IsDelete:  newContent == "" && oldContent != "",
	}
	if key.oldDigest != key.newDigest {
		// Line-level reduction keeps hunks aligned to whole lines.
		a, b, lines := e.dmp.DiffLinesToChars(oldContent, newContent)
		diffs := e.dmp.DiffMain(a, b, false)
		diffs = e.dmp.DiffCharsToLines(diffs, lines)
		ops := toOps(diffs)
		markNoEOL(ops, oldContent, newContent)
		fd.Hunks = group(ops, e.context)
	}

	e.cache.Store(key, fd)
	added, removed := fd.Stats()
	logging.Get(logging.CategorySnap).Debug("diff %s -> %s: +%d -%d in %d hunks", oldPath, newPath, added, removed, len(fd.Hunks))
	return fd
}

// ClearCache drops all cached diffs.
func (e *Engine) ClearCache() {
	e.cache.Range(func(k, _ any) bool {
		e.cache.Delete(k)
		return true
	})
}

// Compute diffs two strings with the default engine.
func Compute(oldPath, newPath, oldContent, newContent string) *FileDiff {
	return DefaultEngine.Compute(oldPath, newPath, oldContent, newContent)
}

// Files diffs two files on disk. A missing file counts as empty, but not both.
func Files(oldPath, newPath string) (*FileDiff, error) {
	oldContent, oldErr := readOptional(oldPath)
	if oldErr != nil && !errors.Is(oldErr, fs.ErrNotExist) {
		return nil, oldErr
	}
	newContent, newErr := readOptional(newPath)
	if newErr != nil && !errors.Is(newErr, fs.ErrNotExist) {
		return nil, newErr
	}
	if oldErr != nil && newErr != nil {
		return nil, fmt.Errorf("neither %s nor %s exists: %w", oldPath, newPath, fs.ErrNotExist)
	}
	return DefaultEngine.Compute(oldPath, newPath, oldContent, newContent), nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// op is one line with the number of old and new lines preceding it.
type op struct {
	typ       LineType
	content   string
	oldBefore int
	newBefore int
	noEOL     bool
}

func toOps(diffs []diffmatchpatch.Diff) []op {
	var ops []op
	oldN, newN := 0, 0
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			o := op{content: line, oldBefore: oldN, newBefore: newN}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				o.typ = LineContext
				oldN++
				newN++
			case diffmatchpatch.DiffDelete:
				o.typ = LineRemoved
				oldN++
			case diffmatchpatch.DiffInsert:
				o.typ = LineAdded
				newN++
			}
			ops = append(ops, o)
		}
	}
	return ops
}

// markNoEOL flags the final line of a side whose content lacks a trailing
// newline, so "y" and "y\n" do not render as identical -/+ lines.
func markNoEOL(ops []op, oldContent, newContent string) {
	oldOpen := oldContent != "" && !strings.HasSuffix(oldContent, "\n")
	newOpen := newContent != "" && !strings.HasSuffix(newContent, "\n")
	if !oldOpen && !newOpen {
		return
	}
	oldTotal, newTotal := 0, 0
	for _, o := range ops {
		if o.typ != LineAdded {
			oldTotal++
		}
		if o.typ != LineRemoved {
			newTotal++
		}
	}
	for i := range ops {
		o := &ops[i]
		if oldOpen && o.typ != LineAdded && o.oldBefore+1 == oldTotal {
			o.noEOL = true
		}
		if newOpen && o.typ != LineRemoved && o.newBefore+1 == newTotal {
			o.noEOL = true
		}
	}
}

// group splits ops into hunks. Changes separated by at most 2*context
// unchanged lines share a hunk.
func group(ops []op, context int) []Hunk {
	var hunks []Hunk
	i := 0
	for i < len(ops) {
		for i < len(ops) && ops[i].typ == LineContext {
			i++
		}
		if i == len(ops) {
			break
		}

		start := max(0, i-context)
		end := i + 1
		for j := i + 1; j < len(ops); {
			if ops[j].typ != LineContext {
				j++
				end = j
				continue
			}
			k := j
			for k < len(ops) && ops[k].typ == LineContext {
				k++
			}
			if k == len(ops) || k-j > 2*context {
				break
			}
			j = k
		}
		stop := min(len(ops), end+context)
		hunks = append(hunks, newHunk(ops[start:stop]))
		i = stop
	}
	return hunks
}

func newHunk(ops []op) Hunk {
	h := Hunk{Lines: make([]Line, 0, len(ops))}
	for _, o := range ops {
		l := Line{Content: o.content, Type: o.typ, NoEOL: o.noEOL}
		if o.typ != LineAdded {
			l.OldNum = o.oldBefore + 1
			h.OldCount++
		}
		if o.typ != LineRemoved {
			l.NewNum = o.newBefore + 1
			h.NewCount++
		}
		h.Lines = append(h.Lines, l)
	}
	h.OldStart = ops[0].oldBefore + 1
	if h.OldCount == 0 {
		h.OldStart--
	}
	h.NewStart = ops[0].newBefore + 1
	if h.NewCount == 0 {
		h.NewStart--
	}
	return h
}
