package main

import (
	"fmt"

	"sculptor/internal/projectdirs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dirsCreate bool

// dirsCmd shows the platform directories of an application
var dirsCmd = &cobra.Command{
	Use:   "dirs",
	Short: "Show the config, data, cache and state directories of an application",
	Long: `Resolves the per-user directories for the application named by --app,
--author and --qualifier, following the platform's conventions (XDG on Linux,
~/Library on macOS, %APPDATA% on Windows).

Example:
  sculptor dirs --app "My Tool" --author Acme --qualifier com --create`,
	Args: cobra.NoArgs,
	RunE: showDirs,
}

func init() {
	dirsCmd.Flags().BoolVar(&dirsCreate, "create", false, "Create the directories")
}

func showDirs(cmd *cobra.Command, args []string) error {
	target := targetApp()
	dirs, err := resolveDirs(target)
	if err != nil {
		return err
	}
	return printDirs(cmd, target, dirs)
}

func printDirs(cmd *cobra.Command, target projectdirs.App, dirs *projectdirs.ProjectDirs) error {
	if dirsCreate {
		if err := dirs.Ensure(); err != nil {
			return err
		}
		logger.Info("Created project directories", zap.String("app", target.Name))
	}

	styles := newStyles()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, styles.Title.Render(target.Name)+" "+styles.Muted.Render(dirs.ProjectPath()))
	fmt.Fprintln(out, styles.Label.Render("config")+dirs.ConfigDir())
	fmt.Fprintln(out, styles.Label.Render("data")+dirs.DataDir())
	fmt.Fprintln(out, styles.Label.Render("cache")+dirs.CacheDir())
	if state, ok := dirs.StateDir(); ok {
		fmt.Fprintln(out, styles.Label.Render("state")+state)
	} else {
		fmt.Fprintln(out, styles.Label.Render("state")+styles.Muted.Render("(none on this platform)"))
	}
	return nil
}
