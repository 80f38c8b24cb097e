package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"sculptor/internal/app"
	"sculptor/internal/config"
	"sculptor/internal/diff"
	"sculptor/internal/fileio"
	"sculptor/internal/projectdirs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	configSelf bool
	configText bool
)

// resolveDirs is replaced in tests.
var resolveDirs = projectdirs.FromAuthor

// configCmd groups the config file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit an application's config file",
	Long: `Works on <config dir>/<file> of the application named by --app, or on
sculptor's own settings file with --self.

Examples:
  sculptor config init --app demo
  sculptor config edit --app demo --file settings.yaml
  sculptor config validate --self`,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE:  configPathRun,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the config file",
	Args:  cobra.NoArgs,
	RunE:  configShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the config file if it does not exist",
	Args:  cobra.NoArgs,
	RunE:  configInit,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the config file in $EDITOR and check it still loads",
	Args:  cobra.NoArgs,
	RunE:  configEdit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the config file decodes",
	Args:  cobra.NoArgs,
	RunE:  configValidate,
}

var configDiffCmd = &cobra.Command{
	Use:   "diff [other]",
	Short: "Show how another file differs from the config file",
	Long: `Decodes both files and prints a structural diff: lines starting with - are
only in the config file, lines starting with + only in other. The formats may differ.

With --text the raw lines are compared instead and a unified diff is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: configDiff,
}

func init() {
	configCmd.PersistentFlags().StringVarP(&configFile, "file", "f", app.DefaultFileName, "Config file name inside the config directory")
	configCmd.PersistentFlags().BoolVar(&configSelf, "self", false, "Use sculptor's own settings file")
	configDiffCmd.Flags().BoolVar(&configText, "text", false, "Compare lines instead of decoded values")

	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configDiffCmd)
}

// selfConfigPath is the settings file in use: --config, $SCULPTOR_CONFIG or the default.
func selfConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	dirs, err := selfDirs()
	if err != nil {
		return "", err
	}
	return config.DefaultPath(dirs), nil
}

// newTargetApp builds the App for --app with sculptor's settings applied.
func newTargetApp() (*app.App[map[string]any], error) {
	target := targetApp()
	dirs, err := resolveDirs(target)
	if err != nil {
		return nil, err
	}
	self, err := selfDirs()
	if err != nil {
		return nil, err
	}
	return app.New[map[string]any](target,
		app.WithDirs(dirs),
		app.WithFileName(configFile),
		app.WithSettings(currentSettings(), self.DataDir()),
		app.WithDefaults(func() map[string]any { return map[string]any{} }),
	)
}

func configTargetPath() (string, error) {
	if configSelf {
		return selfConfigPath()
	}
	a, err := newTargetApp()
	if err != nil {
		return "", err
	}
	defer a.Close()
	return a.ConfigPath(), nil
}

func configPathRun(cmd *cobra.Command, args []string) error {
	path, err := configTargetPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func configShow(cmd *cobra.Command, args []string) error {
	path, err := configTargetPath()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no config at %s (run `sculptor config init`): %w", path, err)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func configInit(cmd *cobra.Command, args []string) error {
	styles := newStyles()
	out := cmd.OutOrStdout()

	if configSelf {
		path, err := selfConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintln(out, styles.Muted.Render("exists")+" "+path)
			return nil
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		logger.Info("Wrote default settings", zap.String("path", path))
		fmt.Fprintln(out, styles.Success.Render("created")+" "+path)
		return nil
	}

	a, err := newTargetApp()
	if err != nil {
		return err
	}
	defer a.Close()

	existed := a.File().Exists()
	if _, err := a.Load(); err != nil {
		return err
	}
	if existed {
		fmt.Fprintln(out, styles.Muted.Render("exists")+" "+a.ConfigPath())
		return nil
	}
	logger.Info("Initialized config", zap.String("path", a.ConfigPath()))
	fmt.Fprintln(out, styles.Success.Render("created")+" "+a.ConfigPath())
	return nil
}

func configEdit(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	styles := newStyles()

	if configSelf {
		path, err := selfConfigPath()
		if err != nil {
			return err
		}
		f, err := fileio.Open[config.Config](path)
		if err != nil {
			return err
		}
		if !f.Exists() {
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
		}
		if err := f.Edit(ctx); err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("settings are invalid after edit: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("ok")+" "+path)
		return nil
	}

	a, err := newTargetApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.Edit(ctx); err != nil {
		return err
	}
	if entry, changed, err := a.Check(ctx); err == nil && changed {
		logger.Debug("Recorded edited config", zap.String("id", entry.ID))
	}
	fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("ok")+" "+a.ConfigPath())
	return nil
}

func configValidate(cmd *cobra.Command, args []string) error {
	styles := newStyles()

	if configSelf {
		path, err := selfConfigPath()
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("valid")+" "+path)
		return nil
	}

	a, err := newTargetApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.File().Load(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("valid")+" "+a.ConfigPath())
	return nil
}

func configDiff(cmd *cobra.Command, args []string) error {
	path, err := configTargetPath()
	if err != nil {
		return err
	}
	if configText {
		fd, err := diff.Files(path, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderDiff(newStyles(), fd))
		return nil
	}

	current, err := fileio.Open[map[string]any](path)
	if err != nil {
		return err
	}
	other, err := fileio.Open[map[string]any](args[0])
	if err != nil {
		return err
	}
	v, err := other.Load()
	if err != nil {
		return err
	}
	delta, err := current.Diff(v)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if delta == "" {
		fmt.Fprintln(out, newStyles().Muted.Render("no differences"))
		return nil
	}
	fmt.Fprint(out, delta)
	return nil
}
