package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"sculptor/internal/app"
	"sculptor/internal/config"
	"sculptor/internal/fileio"
	"sculptor/internal/projectdirs"
	"sculptor/internal/shasnap"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTest resets the global flags and places every application's
// directories under a temp root.
func setupTest(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	logger = zap.NewNop()
	settings = config.DefaultConfig()
	verbose = false
	configPath = ""
	appName, appAuthor, appQualifier = "", "", ""
	configFile = app.DefaultFileName
	configSelf = false
	configText = false
	dirsCreate = false
	snapShort = false
	snapHidden = false
	historyLimit = 20
	backupsPrune = -1
	backupsDiff = false

	orig := resolveDirs
	resolveDirs = func(a projectdirs.AppAuthor) (*projectdirs.ProjectDirs, error) {
		return projectdirs.FromRoot(filepath.Join(root, a.AppName())), nil
	}
	t.Cleanup(func() { resolveDirs = orig })
	return root
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}

func TestShowVersion(t *testing.T) {
	setupTest(t)

	output := captureOutput(t, func() {
		require.NoError(t, showVersion(&cobra.Command{}, nil))
	})

	assert.Contains(t, output, "sculptor 0.0.8")
	for _, f := range config.Features {
		assert.Contains(t, output, f.Name)
	}
	assert.Contains(t, output, "github.com/adrg/xdg")
}

func TestShowDirs(t *testing.T) {
	root := setupTest(t)
	appName = "demo"
	dirsCreate = true

	output := captureOutput(t, func() {
		require.NoError(t, showDirs(&cobra.Command{}, nil))
	})

	configDir := filepath.Join(root, "demo", "config")
	assert.Contains(t, output, configDir)
	assert.Contains(t, output, filepath.Join(root, "demo", "state"))
	assert.DirExists(t, configDir)
	assert.DirExists(t, filepath.Join(root, "demo", "cache"))
}

func TestShowDirs_DefaultsToSelf(t *testing.T) {
	root := setupTest(t)

	output := captureOutput(t, func() {
		require.NoError(t, showDirs(&cobra.Command{}, nil))
	})
	assert.Contains(t, output, filepath.Join(root, "sculptor", "data"))
}

func TestRunSnap(t *testing.T) {
	root := setupTest(t)
	file := filepath.Join(root, "abc.txt")
	require.NoError(t, os.WriteFile(file, []byte("abc"), 0644))

	output := captureOutput(t, func() {
		require.NoError(t, runSnap(&cobra.Command{}, []string{file}))
	})
	assert.Contains(t, output, shasnap.SnapString("abc"))

	snapShort = true
	output = captureOutput(t, func() {
		require.NoError(t, runSnap(&cobra.Command{}, []string{file}))
	})
	assert.Contains(t, output, shasnap.Short(shasnap.SnapString("abc")))
	assert.NotContains(t, output, shasnap.SnapString("abc"))
}

func TestRunSnap_Tree(t *testing.T) {
	root := setupTest(t)
	dir := filepath.Join(root, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("h"), 0644))

	output := captureOutput(t, func() {
		require.NoError(t, runSnap(&cobra.Command{}, []string{dir}))
	})
	assert.Contains(t, output, "(2 files)")

	snapHidden = true
	output = captureOutput(t, func() {
		require.NoError(t, runSnap(&cobra.Command{}, []string{dir}))
	})
	assert.Contains(t, output, "(3 files)")
}

func TestRunSnap_Missing(t *testing.T) {
	root := setupTest(t)
	err := runSnap(&cobra.Command{}, []string{filepath.Join(root, "nope")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunConvert(t *testing.T) {
	root := setupTest(t)
	src := filepath.Join(root, "in.json")
	dst := filepath.Join(root, "out", "out.yaml")
	require.NoError(t, os.WriteFile(src, []byte(`{"name": "demo"}`), 0644))

	output := captureOutput(t, func() {
		require.NoError(t, runConvert(&cobra.Command{}, []string{src, dst}))
	})
	assert.Contains(t, output, "converted")

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: demo")
}

func TestConfig_InitShowValidate(t *testing.T) {
	root := setupTest(t)
	appName = "demo"
	path := filepath.Join(root, "demo", "config", "config.toml")

	output := captureOutput(t, func() {
		require.NoError(t, configPathRun(&cobra.Command{}, nil))
	})
	assert.Equal(t, path, strings.TrimSpace(output))

	output = captureOutput(t, func() {
		require.NoError(t, configInit(&cobra.Command{}, nil))
	})
	assert.Contains(t, output, "created")
	assert.FileExists(t, path)

	output = captureOutput(t, func() {
		require.NoError(t, configInit(&cobra.Command{}, nil))
	})
	assert.Contains(t, output, "exists")

	require.NoError(t, os.WriteFile(path, []byte("port = 8080\n"), 0644))
	output = captureOutput(t, func() {
		require.NoError(t, configShow(&cobra.Command{}, nil))
	})
	assert.Equal(t, "port = 8080\n", output)

	output = captureOutput(t, func() {
		require.NoError(t, configValidate(&cobra.Command{}, nil))
	})
	assert.Contains(t, output, "valid")

	require.NoError(t, os.WriteFile(path, []byte("port = [\n"), 0644))
	err := configValidate(&cobra.Command{}, nil)
	assert.ErrorIs(t, err, fileio.ErrInvalidData)
}

func TestConfig_ShowMissing(t *testing.T) {
	setupTest(t)
	appName = "demo"
	err := configShow(&cobra.Command{}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_Self(t *testing.T) {
	root := setupTest(t)
	configSelf = true
	configPath = filepath.Join(root, "settings", "sculptor.toml")

	output := captureOutput(t, func() {
		require.NoError(t, configInit(&cobra.Command{}, nil))
	})
	assert.Contains(t, output, "created")

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Backup, cfg.Backup)

	output = captureOutput(t, func() {
		require.NoError(t, configValidate(&cobra.Command{}, nil))
	})
	assert.Contains(t, output, "valid")

	cfg.Backup.Keep = -1
	require.NoError(t, cfg.Save(configPath))
	assert.Error(t, configValidate(&cobra.Command{}, nil))
}

func TestConfig_SelfDefaultPath(t *testing.T) {
	root := setupTest(t)
	t.Setenv("SCULPTOR_CONFIG", "")
	configSelf = true

	output := captureOutput(t, func() {
		require.NoError(t, configPathRun(&cobra.Command{}, nil))
	})
	assert.Equal(t, filepath.Join(root, "sculptor", "config", config.DefaultFileName), strings.TrimSpace(output))
}

func TestConfig_Diff(t *testing.T) {
	root := setupTest(t)
	appName = "demo"
	path := filepath.Join(root, "demo", "config", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("name = \"demo\"\nport = 1\n"), 0644))

	same := filepath.Join(root, "same.toml")
	require.NoError(t, os.WriteFile(same, []byte("port = 1\nname = \"demo\"\n"), 0644))
	output := captureOutput(t, func() {
		require.NoError(t, configDiff(&cobra.Command{}, []string{same}))
	})
	assert.Contains(t, output, "no differences")

	other := filepath.Join(root, "other.toml")
	require.NoError(t, os.WriteFile(other, []byte("name = \"renamed\"\nport = 1\n"), 0644))
	output = captureOutput(t, func() {
		require.NoError(t, configDiff(&cobra.Command{}, []string{other}))
	})
	assert.Contains(t, output, "renamed")
}

func TestConfig_DiffText(t *testing.T) {
	root := setupTest(t)
	appName = "demo"
	configText = true
	path := filepath.Join(root, "demo", "config", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("name = \"demo\"\nport = 1\n"), 0644))

	other := filepath.Join(root, "other.toml")
	require.NoError(t, os.WriteFile(other, []byte("name = \"demo\"\nport = 2\n"), 0644))

	output := captureOutput(t, func() {
		require.NoError(t, configDiff(&cobra.Command{}, []string{other}))
	})
	assert.Contains(t, output, "-port = 1")
	assert.Contains(t, output, "+port = 2")
	assert.Contains(t, output, "1 added, 1 removed")
}

func TestConfig_Edit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script editor")
	}
	root := setupTest(t)
	appName = "demo"

	script := filepath.Join(root, "fake-editor.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'name = \"edited\"' > \"$1\"\n"), 0755))
	t.Setenv("EDITOR", script)

	output := captureOutput(t, func() {
		require.NoError(t, configEdit(&cobra.Command{}, nil))
	})
	assert.Contains(t, output, "ok")

	path := filepath.Join(root, "demo", "config", "config.toml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "edited")

	l, err := openLedger()
	require.NoError(t, err)
	defer l.Close()
	history, err := l.History(context.Background(), path, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTrackAndHistory(t *testing.T) {
	root := setupTest(t)
	file := filepath.Join(root, "tracked.toml")
	require.NoError(t, os.WriteFile(file, []byte("a = 1\n"), 0644))

	output := captureOutput(t, func() {
		require.NoError(t, runTrack(&cobra.Command{}, []string{file}))
	})
	assert.Contains(t, output, "recorded")

	output = captureOutput(t, func() {
		require.NoError(t, runTrack(&cobra.Command{}, []string{file}))
	})
	assert.Contains(t, output, "unchanged")

	require.NoError(t, os.WriteFile(file, []byte("a = 2\n"), 0644))
	captureOutput(t, func() {
		require.NoError(t, runTrack(&cobra.Command{}, []string{file}))
	})

	output = captureOutput(t, func() {
		require.NoError(t, runHistory(&cobra.Command{}, []string{file}))
	})
	assert.Contains(t, output, shasnap.Short(shasnap.SnapString("a = 2\n")))
	assert.Contains(t, output, shasnap.Short(shasnap.SnapString("a = 1\n")))

	assert.FileExists(t, filepath.Join(root, "sculptor", "data", "snapshots.db"))
}

func TestTrack_KeepHistory(t *testing.T) {
	root := setupTest(t)
	settings.Ledger.KeepHistory = 2
	file := filepath.Join(root, "tracked.txt")

	for _, content := range []string{"1", "2", "3", "4"} {
		require.NoError(t, os.WriteFile(file, []byte(content), 0644))
		captureOutput(t, func() {
			require.NoError(t, runTrack(&cobra.Command{}, []string{file}))
		})
	}

	l, err := openLedger()
	require.NoError(t, err)
	defer l.Close()
	history, err := l.History(context.Background(), file, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHistory_Empty(t *testing.T) {
	root := setupTest(t)
	output := captureOutput(t, func() {
		require.NoError(t, runHistory(&cobra.Command{}, []string{filepath.Join(root, "never")}))
	})
	assert.Contains(t, output, "No snapshots recorded")
}

func TestTrack_LedgerDisabled(t *testing.T) {
	root := setupTest(t)
	settings.Ledger.Enabled = false
	err := runTrack(&cobra.Command{}, []string{filepath.Join(root, "x")})
	assert.ErrorIs(t, err, app.ErrLedgerDisabled)
}

func TestRunWatch_StopsOnCancel(t *testing.T) {
	root := setupTest(t)
	settings.Ledger.Enabled = false
	file := filepath.Join(root, "watched.toml")
	require.NoError(t, os.WriteFile(file, []byte("a = 1\n"), 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)

	output := captureOutput(t, func() {
		require.NoError(t, runWatch(cmd, []string{file}))
	})
	assert.Contains(t, output, "watching 1 files")
}

func TestRunBackups(t *testing.T) {
	root := setupTest(t)
	file := filepath.Join(root, "app.toml")
	require.NoError(t, os.WriteFile(file, []byte("x = 1\n"), 0644))
	for _, stamp := range []string{"100", "200", "300"} {
		require.NoError(t, os.WriteFile(file+"."+stamp+".bak", []byte("old\n"), 0644))
	}

	output := captureOutput(t, func() {
		require.NoError(t, runBackups(&cobra.Command{}, []string{file}))
	})
	assert.Contains(t, output, "app.toml.100.bak")
	assert.Contains(t, output, "app.toml.300.bak")

	backupsPrune = 1
	output = captureOutput(t, func() {
		require.NoError(t, runBackups(&cobra.Command{}, []string{file}))
	})
	assert.Equal(t, 2, strings.Count(output, "removed"))
	assert.NoFileExists(t, file+".100.bak")
	assert.NoFileExists(t, file+".200.bak")
	assert.FileExists(t, file+".300.bak")
}

func TestRunBackups_Diff(t *testing.T) {
	root := setupTest(t)
	file := filepath.Join(root, "app.toml")
	require.NoError(t, os.WriteFile(file, []byte("x = 2\n"), 0644))
	require.NoError(t, os.WriteFile(file+".100.bak", []byte("x = 0\n"), 0644))
	require.NoError(t, os.WriteFile(file+".200.bak", []byte("x = 1\n"), 0644))
	backupsDiff = true

	output := captureOutput(t, func() {
		require.NoError(t, runBackups(&cobra.Command{}, []string{file}))
	})
	assert.Contains(t, output, "-x = 1")
	assert.Contains(t, output, "+x = 2")
	assert.NotContains(t, output, "-x = 0")
}

func TestRunBackups_None(t *testing.T) {
	root := setupTest(t)
	output := captureOutput(t, func() {
		require.NoError(t, runBackups(&cobra.Command{}, []string{filepath.Join(root, "app.toml")}))
	})
	assert.Contains(t, output, "No backups")
}

func TestTargetApp(t *testing.T) {
	setupTest(t)
	assert.Equal(t, projectdirs.App{Name: "sculptor"}, targetApp())

	appName, appAuthor, appQualifier = "Demo", "Acme", "com"
	assert.Equal(t, projectdirs.App{Name: "Demo", Org: "Acme", Domain: "com"}, targetApp())
}

func TestTable_View(t *testing.T) {
	s := newStyles()
	empty := newTable("Empty", "A", "B")
	assert.Equal(t, "", empty.View(s))

	tbl := newTable("Title", "NAME", "VALUE")
	tbl.AddRow("alpha", "1")
	tbl.AddRow("beta", "22")
	out := tbl.View(s)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "22")
}

func TestDetectTheme(t *testing.T) {
	t.Setenv("SCULPTOR_DARK_MODE", "")

	t.Setenv("COLORFGBG", "15;0")
	assert.True(t, detectTheme().IsDark)

	t.Setenv("COLORFGBG", "0;15")
	assert.False(t, detectTheme().IsDark)

	t.Setenv("COLORFGBG", "")
	t.Setenv("SCULPTOR_DARK_MODE", "1")
	assert.True(t, detectTheme().IsDark)
}
