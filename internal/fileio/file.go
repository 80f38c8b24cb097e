// Package fileio gives typed, format-aware access to a single configuration or
// data file: load, save, load-or-init, backup-and-save, edit in $EDITOR and diff.
package fileio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"sculptor/internal/diff"
	"sculptor/internal/logging"
	"sculptor/internal/shasnap"

	"github.com/google/go-cmp/cmp"
)

var (
	// ErrNoParent is returned when the path has no parent directory to create.
	ErrNoParent = errors.New("the path has no parent directory")
	// ErrInvalidData wraps encode and decode failures.
	ErrInvalidData = errors.New("invalid data")
	// ErrEditorNotSet is returned by Edit when $EDITOR is empty.
	ErrEditorNotSet = errors.New("$EDITOR envvar not set")
	// ErrEditorFailed is returned by Edit when the editor exits non-zero.
	ErrEditorFailed = errors.New("failed to edit file and exit gracefully")
)

// File is a typed handle on one file. T is the in-memory shape of its content.
type File[T any] struct {
	Path  string
	codec Codec

	// Overridable for tests.
	now    func() time.Time
	getenv func(string) string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// New returns a File at path using codec.
func New[T any](path string, codec Codec) *File[T] {
	return &File[T]{
		Path:   path,
		codec:  codec,
		now:    time.Now,
		getenv: os.Getenv,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// Open returns a File at path, picking the codec from its extension.
func Open[T any](path string) (*File[T], error) {
	codec, err := CodecFor(path)
	if err != nil {
		return nil, err
	}
	return New[T](path, codec), nil
}

// Codec returns the codec used for this file.
func (f *File[T]) Codec() Codec { return f.codec }

// Exists reports whether the file is present on disk.
func (f *File[T]) Exists() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

func (f *File[T]) ensureParent() error {
	clean := filepath.Clean(f.Path)
	parent := filepath.Dir(clean)
	if f.Path == "" || parent == clean {
		return fmt.Errorf("%w: %q", ErrNoParent, f.Path)
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", parent, err)
	}
	return nil
}

// Load reads and decodes the file. A missing file yields an error matching fs.ErrNotExist;
// undecodable content yields one matching ErrInvalidData.
func (f *File[T]) Load() (T, error) {
	var zero T
	if err := f.ensureParent(); err != nil {
		return zero, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return zero, fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	v, err := f.Decode(data)
	if err != nil {
		return zero, err
	}
	logging.Get(logging.CategoryFileIO).Debug("loaded %s (%d bytes, %s)", f.Path, len(data), f.codec.Name())
	return v, nil
}

// LoadInto decodes the file over *v, so fields absent from the file keep their
// current values. This is how defaults are layered under a config file.
func (f *File[T]) LoadInto(v *T) error {
	if err := f.ensureParent(); err != nil {
		return err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	if err := f.codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s as %s: %w: %w", f.Path, f.codec.Name(), ErrInvalidData, err)
	}
	return nil
}

// Decode parses data with the file's codec.
func (f *File[T]) Decode(data []byte) (T, error) {
	var v T
	if err := f.codec.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to parse %s as %s: %w: %w", f.Path, f.codec.Name(), ErrInvalidData, err)
	}
	return v, nil
}

// Encode serializes v with the file's codec.
func (f *File[T]) Encode(v T) ([]byte, error) {
	data, err := f.codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s as %s: %w: %w", f.Path, f.codec.Name(), ErrInvalidData, err)
	}
	return data, nil
}

// Save encodes v and atomically replaces the file.
func (f *File[T]) Save(v T) error {
	if err := f.ensureParent(); err != nil {
		return err
	}
	data, err := f.Encode(v)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(f.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Path, err)
	}
	logging.Get(logging.CategoryFileIO).Debug("saved %s (%d bytes)", f.Path, len(data))
	return nil
}

// LoadOrInit loads the file, or builds a value with init and saves it when loading fails.
// Content that exists but cannot be decoded is backed up before being replaced.
func (f *File[T]) LoadOrInit(init func() T) (T, error) {
	v, err := f.Load()
	if err == nil {
		return v, nil
	}

	log := logging.Get(logging.CategoryFileIO)
	fresh := init()
	if errors.Is(err, ErrInvalidData) {
		log.Warn("%s is unreadable, backing up and reinitializing: %v", f.Path, err)
		if _, err := f.BackupAndSave(fresh); err != nil {
			return fresh, err
		}
		return fresh, nil
	}

	log.Info("initializing %s: %v", f.Path, err)
	if err := f.Save(fresh); err != nil {
		return fresh, err
	}
	return fresh, nil
}

// BackupAndSave renames the current file to <name>.<unix-seconds>.bak, then saves v.
// It returns the backup path, or "" when there was nothing to back up.
func (f *File[T]) BackupAndSave(v T) (string, error) {
	if err := f.ensureParent(); err != nil {
		return "", err
	}

	var backup string
	if f.Exists() {
		backup = f.nextBackupPath()
		if err := os.Rename(f.Path, backup); err != nil {
			return "", fmt.Errorf("failed to back up %s: %w", f.Path, err)
		}
		logging.Get(logging.CategoryFileIO).Info("backed up %s to %s", f.Path, backup)
	}

	if err := f.Save(v); err != nil {
		return backup, err
	}
	return backup, nil
}

func (f *File[T]) nextBackupPath() string {
	stamp := f.now().Unix()
	candidate := fmt.Sprintf("%s.%d.bak", f.Path, stamp)
	for n := 1; ; n++ {
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d-%d.bak", f.Path, stamp, n)
	}
}

// Edit opens the file in $EDITOR and waits for it to exit.
// $EDITOR may carry arguments, e.g. "code --wait".
func (f *File[T]) Edit(ctx context.Context) error {
	args := strings.Fields(f.getenv("EDITOR"))
	if len(args) == 0 {
		return ErrEditorNotSet
	}
	if err := f.ensureParent(); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, args[0], append(args[1:], f.Path)...)
	cmd.Stdin = f.stdin
	cmd.Stdout = f.stdout
	cmd.Stderr = f.stderr

	logging.Get(logging.CategoryFileIO).Debug("editing %s with %s", f.Path, args[0])
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s exited with code %d", ErrEditorFailed, args[0], exitErr.ExitCode())
		}
		return fmt.Errorf("failed to run editor %s: %w", args[0], err)
	}
	return nil
}

// Diff loads the file and reports how v differs from it, in go-cmp's
// (-on disk +v) notation. An empty string means no difference.
func (f *File[T]) Diff(v T) (string, error) {
	current, err := f.Load()
	if err != nil {
		return "", err
	}
	return cmp.Diff(current, v), nil
}

// TextDiff reports line by line what saving v would change on disk.
// A missing file diffs as empty.
func (f *File[T]) TextDiff(v T) (*diff.FileDiff, error) {
	current, err := os.ReadFile(f.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	next, err := f.Encode(v)
	if err != nil {
		return nil, err
	}
	return diff.Compute(f.Path, f.Path, string(current), string(next)), nil
}

// Snapshot returns the SHA-512 snapshot of the file's bytes.
func (f *File[T]) Snapshot() (string, error) {
	digest, _, err := shasnap.SnapFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to snapshot %s: %w", f.Path, err)
	}
	return digest, nil
}

// Convert re-encodes src into dst, each file's format coming from its extension.
func Convert(src, dst string) error {
	in, err := Open[map[string]any](src)
	if err != nil {
		return err
	}
	out, err := Open[map[string]any](dst)
	if err != nil {
		return err
	}
	v, err := in.Load()
	if err != nil {
		return err
	}
	if err := out.Save(v); err != nil {
		return err
	}
	logging.Get(logging.CategoryFileIO).Info("converted %s (%s) to %s (%s)", src, in.codec.Name(), dst, out.codec.Name())
	return nil
}
