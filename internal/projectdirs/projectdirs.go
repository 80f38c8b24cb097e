// Package projectdirs resolves the per-application configuration, data, cache
// and state directories following each platform's conventions.
//
// Base directories come from github.com/adrg/xdg, so XDG_* environment variables
// are honoured. The project path appended to them follows the usual layout:
//
//	linux:   $XDG_CONFIG_HOME/<app, lowercased, spaces removed>
//	darwin:  ~/Library/Application Support/<qualifier>.<author>.<app>
//	windows: %LOCALAPPDATA%\<author>\<app>\{config,data,cache}
//
// On Windows xdg puts config and data under the same %LOCALAPPDATA%, so each
// directory gets its own subdirectory to keep them apart.
package projectdirs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"sculptor/internal/logging"

	"github.com/adrg/xdg"
)

// ErrNoValidDirectory is returned when no project directory can be formulated,
// either because the app name is empty or the home directory is unknown.
var ErrNoValidDirectory = errors.New("no valid config directory formulated")

// AppAuthor identifies an application. Implement it to get an Info.
type AppAuthor interface {
	AppName() string
	Author() string
}

// Qualified is optionally implemented by an AppAuthor to supply the reverse-domain
// qualifier used on macOS (e.g. "org").
type Qualified interface {
	Qualifier() string
}

// ProjectDirs holds the resolved directories of one project.
type ProjectDirs struct {
	path     string
	config   string
	data     string
	cache    string
	state    string
	hasState bool
}

// New resolves the project directories for app.
func New(qualifier, author, app string) (*ProjectDirs, error) {
	return newForOS(runtime.GOOS, qualifier, author, app)
}

func newForOS(goos, qualifier, author, app string) (*ProjectDirs, error) {
	if strings.TrimSpace(app) == "" {
		return nil, fmt.Errorf("%w: empty application name", ErrNoValidDirectory)
	}
	if xdg.Home == "" {
		return nil, fmt.Errorf("%w: home directory unknown", ErrNoValidDirectory)
	}

	rel := projectPath(goos, qualifier, author, app)
	if rel == "" {
		return nil, fmt.Errorf("%w: application name %q has no usable characters", ErrNoValidDirectory, app)
	}

	pd := &ProjectDirs{
		path:   rel,
		config: filepath.Join(xdg.ConfigHome, rel),
		data:   filepath.Join(xdg.DataHome, rel),
		cache:  filepath.Join(xdg.CacheHome, rel),
	}
	if goos == "windows" {
		pd.config = filepath.Join(pd.config, "config")
		pd.data = filepath.Join(pd.data, "data")
		pd.cache = filepath.Join(pd.cache, "cache")
	}
	if goos != "darwin" && goos != "windows" {
		pd.state = filepath.Join(xdg.StateHome, rel)
		pd.hasState = true
	}

	logging.Get(logging.CategoryDirs).Debug("resolved project dirs for %q: config=%s data=%s cache=%s", app, pd.config, pd.data, pd.cache)
	return pd, nil
}

// FromAuthor resolves the directories of a.
func FromAuthor(a AppAuthor) (*ProjectDirs, error) {
	var qualifier string
	if q, ok := a.(Qualified); ok {
		qualifier = q.Qualifier()
	}
	return New(qualifier, a.Author(), a.AppName())
}

// FromRoot places every directory under root. Useful for portable installs and tests.
func FromRoot(root string) *ProjectDirs {
	return &ProjectDirs{
		path:     filepath.Base(root),
		config:   filepath.Join(root, "config"),
		data:     filepath.Join(root, "data"),
		cache:    filepath.Join(root, "cache"),
		state:    filepath.Join(root, "state"),
		hasState: true,
	}
}

func projectPath(goos, qualifier, author, app string) string {
	switch goos {
	case "darwin":
		var parts []string
		for _, p := range []string{qualifier, author, app} {
			p = strings.ReplaceAll(strings.TrimSpace(p), " ", "-")
			if p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, ".")
	case "windows":
		app = strings.TrimSpace(app)
		author = strings.TrimSpace(author)
		if author == "" {
			return app
		}
		return filepath.Join(author, app)
	default:
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(app)), " ", "")
	}
}

// ProjectPath is the platform-specific relative path appended to each base directory.
func (p *ProjectDirs) ProjectPath() string { return p.path }

// ConfigDir is where configuration files live.
func (p *ProjectDirs) ConfigDir() string { return p.config }

// DataDir is where persistent data lives.
func (p *ProjectDirs) DataDir() string { return p.data }

// CacheDir is where disposable cached data lives.
func (p *ProjectDirs) CacheDir() string { return p.cache }

// StateDir is where state that should survive restarts but is not user data lives.
// Only Linux and other XDG platforms have one.
func (p *ProjectDirs) StateDir() (string, bool) { return p.state, p.hasState }

// Ensure creates every directory.
func (p *ProjectDirs) Ensure() error {
	dirs := []string{p.config, p.data, p.cache}
	if p.hasState {
		dirs = append(dirs, p.state)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return nil
}

// Info lazily resolves and caches the directories of one application.
type Info struct {
	author  AppAuthor
	resolve func() (*ProjectDirs, error)
}

// NewInfo returns an Info for a. Nothing is resolved until first use.
func NewInfo(a AppAuthor) *Info {
	return &Info{
		author: a,
		resolve: sync.OnceValues(func() (*ProjectDirs, error) {
			return FromAuthor(a)
		}),
	}
}

// Author returns the application this Info describes.
func (i *Info) Author() AppAuthor { return i.author }

// Dirs returns the resolved directories, resolving them on first call.
func (i *Info) Dirs() (*ProjectDirs, error) { return i.resolve() }

// ConfigDir returns the resolved config directory.
func (i *Info) ConfigDir() (string, error) {
	pd, err := i.resolve()
	if err != nil {
		return "", err
	}
	return pd.ConfigDir(), nil
}

// DataDir returns the resolved data directory.
func (i *Info) DataDir() (string, error) {
	pd, err := i.resolve()
	if err != nil {
		return "", err
	}
	return pd.DataDir(), nil
}

// CacheDir returns the resolved cache directory.
func (i *Info) CacheDir() (string, error) {
	pd, err := i.resolve()
	if err != nil {
		return "", err
	}
	return pd.CacheDir(), nil
}

// StateDir returns ("", false, nil) on platforms without a state directory.
func (i *Info) StateDir() (string, bool, error) {
	pd, err := i.resolve()
	if err != nil {
		return "", false, err
	}
	dir, ok := pd.StateDir()
	return dir, ok, nil
}

// App is a ready-made AppAuthor.
type App struct {
	Name   string
	Org    string
	Domain string // macOS qualifier, e.g. "org"
}

func (a App) AppName() string   { return a.Name }
func (a App) Author() string    { return a.Org }
func (a App) Qualifier() string { return a.Domain }
