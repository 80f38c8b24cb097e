package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sculptor/internal/config"
	"sculptor/internal/logging"
	"sculptor/internal/projectdirs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose      bool
	appName      string
	appAuthor    string
	appQualifier string
	configPath   string

	// Logger
	logger *zap.Logger

	// sculptor's own settings, loaded before every command
	settings *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sculptor",
	Short: "sculptor - project directories, typed config files and content snapshots",
	Long: `sculptor resolves per-application directories, reads and writes config
files in TOML, YAML or JSON, and tracks their content with SHA-512 snapshots.

Without --app, commands act on sculptor's own directories.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		path := configPath
		if path == "" {
			dirs, err := selfDirs()
			if err != nil {
				return err
			}
			path = config.DefaultPath(dirs)
		}
		settings, err = config.Load(path)
		if err != nil {
			return err
		}
		if verbose {
			settings.Logging.DebugMode = true
			settings.Logging.Level = "debug"
		}
		if err := logging.Initialize(settings.Logging.Options()); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logger.Debug("settings loaded", zap.String("path", path))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// versionCmd prints the version and the compiled-in features
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sculptor version and features",
	Args:  cobra.NoArgs,
	RunE:  showVersion,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&appName, "app", "", "Application name (default: sculptor itself)")
	rootCmd.PersistentFlags().StringVar(&appAuthor, "author", "", "Application author or organization")
	rootCmd.PersistentFlags().StringVar(&appQualifier, "qualifier", "", "Reverse-domain qualifier, e.g. com")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "sculptor settings file (or set SCULPTOR_CONFIG)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(dirsCmd)
	rootCmd.AddCommand(snapCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(backupsCmd)
}

func main() {
	ctx, cancel := signalContext()
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// selfDirs resolves sculptor's own directories.
func selfDirs() (*projectdirs.ProjectDirs, error) {
	return resolveDirs(projectdirs.App{Name: config.Name})
}

// targetApp is the application named by --app, or sculptor itself.
func targetApp() projectdirs.App {
	if appName == "" {
		return projectdirs.App{Name: config.Name}
	}
	return projectdirs.App{Name: appName, Org: appAuthor, Domain: appQualifier}
}

// currentSettings returns the loaded settings, or defaults when PersistentPreRunE did not run.
func currentSettings() *config.Config {
	if settings == nil {
		settings = config.DefaultConfig()
	}
	return settings
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if logger != nil {
				logger.Info("Received shutdown signal")
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func showVersion(cmd *cobra.Command, args []string) error {
	styles := newStyles()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, styles.Title.Render(config.Name+" "+config.Version))

	table := newTable("Features", "FEATURE", "PACKAGE", "DEPENDENCIES")
	for _, f := range config.Features {
		table.AddRow(f.Name, f.Package, strings.Join(f.Deps, ", "))
	}
	fmt.Fprint(out, table.View(styles))
	return nil
}
