// Package app binds the directory, file and snapshot features together for
// one application: its typed config file, backups, snapshot history and hot reload.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"sculptor/internal/config"
	"sculptor/internal/fileio"
	"sculptor/internal/ledger"
	"sculptor/internal/logging"
	"sculptor/internal/projectdirs"
	"sculptor/internal/shasnap"
	"sculptor/internal/watch"
)

// DefaultFileName is the config file name used when WithFileName is not given.
const DefaultFileName = "config.toml"

// ErrLedgerDisabled is returned by history operations when the ledger is off.
var ErrLedgerDisabled = errors.New("snapshot ledger is disabled")

type options struct {
	fileName    string
	dirs        *projectdirs.ProjectDirs
	ledger      bool
	ledgerPath  string
	keepBackups int
	keepHistory int
	debounce    time.Duration
	defaults    any
}

// Option configures an App.
type Option func(*options)

// WithFileName sets the config file name inside the config dir. The extension picks the format.
func WithFileName(name string) Option {
	return func(o *options) { o.fileName = name }
}

// WithDirs uses dirs instead of resolving them from the author.
func WithDirs(dirs *projectdirs.ProjectDirs) Option {
	return func(o *options) { o.dirs = dirs }
}

// WithLedger turns snapshot history on or off.
func WithLedger(enabled bool) Option {
	return func(o *options) { o.ledger = enabled }
}

// WithLedgerPath overrides the ledger database location.
func WithLedgerPath(path string) Option {
	return func(o *options) { o.ledgerPath = path }
}

// WithKeepBackups limits how many backups Save keeps. 0 keeps all of them.
func WithKeepBackups(n int) Option {
	return func(o *options) { o.keepBackups = n }
}

// WithKeepHistory limits how many ledger entries are kept for the config file. 0 keeps all.
func WithKeepHistory(n int) Option {
	return func(o *options) { o.keepHistory = n }
}

// WithDebounce sets the settle time used by Watch.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithDefaults sets the function that builds the value written when no config exists.
func WithDefaults[T any](fn func() T) Option {
	return func(o *options) { o.defaults = fn }
}

// WithSettings applies sculptor's own settings: backup and history retention, debounce and ledger.
// The ledger file resolves against dataDir when relative.
func WithSettings(cfg *config.Config, dataDir string) Option {
	return func(o *options) {
		o.keepBackups = cfg.Backup.Keep
		o.keepHistory = cfg.Ledger.KeepHistory
		o.debounce = cfg.GetDebounce()
		o.ledger = cfg.Ledger.Enabled
		o.ledgerPath = cfg.LedgerPath(dataDir)
	}
}

// App manages the config file of one application.
type App[T any] struct {
	author   projectdirs.AppAuthor
	dirs     *projectdirs.ProjectDirs
	file     *fileio.File[T]
	defaults func() T
	opts     options

	mu      sync.Mutex
	ledger  *ledger.Ledger
	current T
	loaded  bool
}

// New builds an App for author. Directories are resolved from the platform
// unless WithDirs is given; nothing is created on disk until first use.
func New[T any](author projectdirs.AppAuthor, opts ...Option) (*App[T], error) {
	o := options{
		fileName: DefaultFileName,
		ledger:   true,
		debounce: watch.DefaultDebounce,
	}
	for _, opt := range opts {
		opt(&o)
	}

	defaults := func() T {
		var zero T
		return zero
	}
	if o.defaults != nil {
		fn, ok := o.defaults.(func() T)
		if !ok {
			return nil, fmt.Errorf("defaults func has type %T, want func() %T", o.defaults, *new(T))
		}
		defaults = fn
	}

	dirs := o.dirs
	if dirs == nil {
		var err error
		dirs, err = projectdirs.NewInfo(author).Dirs()
		if err != nil {
			return nil, err
		}
	}

	file, err := fileio.Open[T](filepath.Join(dirs.ConfigDir(), o.fileName))
	if err != nil {
		return nil, err
	}
	if o.ledgerPath == "" {
		o.ledgerPath = filepath.Join(dirs.DataDir(), ledger.DefaultFileName)
	}

	logging.Get(logging.CategoryApp).Debug("app %q: config=%s ledger=%v", author.AppName(), file.Path, o.ledger)
	return &App[T]{
		author:   author,
		dirs:     dirs,
		file:     file,
		defaults: defaults,
		opts:     o,
	}, nil
}

// ConfigPath returns the config file location.
func (a *App[T]) ConfigPath() string { return a.file.Path }

// Dirs returns the application's directories.
func (a *App[T]) Dirs() *projectdirs.ProjectDirs { return a.dirs }

// File exposes the underlying typed file.
func (a *App[T]) File() *fileio.File[T] { return a.file }

// Load loads the config, writing the defaults first if there is none.
func (a *App[T]) Load() (T, error) {
	v, err := a.file.LoadOrInit(a.defaults)
	if err != nil {
		return v, err
	}
	a.setCurrent(v)
	return v, nil
}

// Current returns the value from the last Load, Save, Edit or reload.
// It reports false if nothing has been loaded yet.
func (a *App[T]) Current() (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.loaded
}

func (a *App[T]) setCurrent(v T) {
	a.mu.Lock()
	a.current = v
	a.loaded = true
	a.mu.Unlock()
}

// Save backs up the current file, writes v and prunes old backups.
// It returns the backup path, or "" if there was no previous file.
func (a *App[T]) Save(v T) (string, error) {
	backup, err := a.file.BackupAndSave(v)
	if err != nil {
		return backup, err
	}
	a.setCurrent(v)

	if a.opts.keepBackups > 0 {
		if _, err := a.file.PruneBackups(a.opts.keepBackups); err != nil {
			logging.Get(logging.CategoryApp).Warn("failed to prune backups of %s: %v", a.file.Path, err)
		}
	}
	return backup, nil
}

// Edit opens the config in $EDITOR and reloads it once the editor exits.
func (a *App[T]) Edit(ctx context.Context) (T, error) {
	var zero T
	if !a.file.Exists() {
		if _, err := a.Load(); err != nil {
			return zero, err
		}
	}
	if err := a.file.Edit(ctx); err != nil {
		return zero, err
	}
	v, err := a.file.Load()
	if err != nil {
		return zero, fmt.Errorf("config no longer loads after edit: %w", err)
	}
	a.setCurrent(v)
	return v, nil
}

// Diff reports how v differs from the config on disk.
func (a *App[T]) Diff(v T) (string, error) {
	return a.file.Diff(v)
}

// Snapshot returns the SHA-512 snapshot of the config file.
func (a *App[T]) Snapshot() (string, error) {
	return a.file.Snapshot()
}

func (a *App[T]) openLedger() (*ledger.Ledger, error) {
	if !a.opts.ledger {
		return nil, ErrLedgerDisabled
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ledger != nil {
		return a.ledger, nil
	}
	l, err := ledger.Open(a.opts.ledgerPath)
	if err != nil {
		return nil, err
	}
	a.ledger = l
	return l, nil
}

// Check snapshots the config file and records it in the ledger. changed is
// true when the content differs from the last recorded snapshot. History beyond
// WithKeepHistory is pruned.
func (a *App[T]) Check(ctx context.Context) (ledger.Entry, bool, error) {
	l, err := a.openLedger()
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return l.Track(ctx, a.file.Path, a.opts.keepHistory)
}

// History returns recorded snapshots of the config file, newest first.
func (a *App[T]) History(ctx context.Context, limit int) ([]ledger.Entry, error) {
	l, err := a.openLedger()
	if err != nil {
		return nil, err
	}
	return l.History(ctx, a.file.Path, limit)
}

// Watch reloads the config whenever its content changes and passes the new
// value to fn. It blocks until ctx is cancelled. Content that fails to decode
// is logged and skipped; the previous value stays current.
func (a *App[T]) Watch(ctx context.Context, fn func(T, watch.Change)) error {
	log := logging.Get(logging.CategoryApp)

	w, err := watch.New(watch.Options{
		Debounce: a.opts.debounce,
		Handler: func(ctx context.Context, c watch.Change) {
			if c.Removed {
				log.Warn("%s was removed, keeping previous config", c.Path)
				return
			}
			v, err := a.file.Load()
			if err != nil {
				log.Error("reload of %s failed: %v", c.Path, err)
				return
			}
			a.setCurrent(v)
			if a.opts.ledger {
				if l, err := a.openLedger(); err == nil {
					if _, _, err := l.Track(ctx, c.Path, a.opts.keepHistory); err != nil {
						log.Warn("failed to record %s: %v", shasnap.Short(c.Current), err)
					}
				}
			}
			log.Info("reloaded %s (%s)", c.Path, shasnap.Short(c.Current))
			fn(v, c)
		},
	})
	if err != nil {
		return err
	}
	if err := w.Add(a.file.Path); err != nil {
		w.Stop()
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// Close releases the ledger, if it was opened.
func (a *App[T]) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ledger == nil {
		return nil
	}
	err := a.ledger.Close()
	a.ledger = nil
	return err
}
