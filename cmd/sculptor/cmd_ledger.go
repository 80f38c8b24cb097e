package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"sculptor/internal/app"
	"sculptor/internal/diff"
	"sculptor/internal/fileio"
	"sculptor/internal/ledger"
	"sculptor/internal/shasnap"
	"sculptor/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	historyLimit int
	backupsPrune int
	backupsDiff  bool
)

// trackCmd records file snapshots in the ledger
var trackCmd = &cobra.Command{
	Use:   "track [file...]",
	Short: "Record the current snapshot of files in the history ledger",
	Long: `Snapshots each file and stores the digest in sculptor's SQLite ledger when it
differs from the last recorded one.

Example:
  sculptor track ~/.config/demo/config.toml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrack,
}

// historyCmd lists recorded snapshots
var historyCmd = &cobra.Command{
	Use:   "history [file]",
	Short: "List recorded snapshots of a file, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

// watchCmd follows files and reports content changes
var watchCmd = &cobra.Command{
	Use:   "watch [file...]",
	Short: "Watch files and report content changes until interrupted",
	Long: `Watches each file's directory, so editor rename-saves are seen. Writes that
leave the content unchanged are not reported. Changes are recorded in the ledger
when it is enabled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

// backupsCmd lists and prunes backups
var backupsCmd = &cobra.Command{
	Use:   "backups [file]",
	Short: "List the backups of a file, oldest first",
	Long: `Lists <file>.<unix>.bak backups written when a config is replaced.

Example:
  sculptor backups config.toml --prune 3
  sculptor backups config.toml --diff`,
	Args: cobra.ExactArgs(1),
	RunE: runBackups,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show (0 = all)")
	backupsCmd.Flags().IntVar(&backupsPrune, "prune", -1, "Keep only the newest N backups")
	backupsCmd.Flags().BoolVar(&backupsDiff, "diff", false, "Show what changed since the newest backup")
}

// openLedger opens the ledger configured in sculptor's settings.
func openLedger() (*ledger.Ledger, error) {
	cfg := currentSettings()
	if !cfg.Ledger.Enabled {
		return nil, app.ErrLedgerDisabled
	}
	dirs, err := selfDirs()
	if err != nil {
		return nil, err
	}
	return ledger.Open(cfg.LedgerPath(dirs.DataDir()))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runTrack(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	styles := newStyles()
	out := cmd.OutOrStdout()
	keep := currentSettings().Ledger.KeepHistory

	for _, path := range args {
		entry, changed, err := l.Track(ctx, path, keep)
		if err != nil {
			return err
		}
		status := styles.Muted.Render("unchanged")
		if changed {
			status = styles.Success.Render("recorded ")
		}
		fmt.Fprintf(out, "%s %s  %s\n", status, styles.Digest.Render(shasnap.Short(entry.Digest)), path)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.History(ctx, args[0], historyLimit)
	if err != nil {
		return err
	}

	styles := newStyles()
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, styles.Muted.Render("No snapshots recorded for "+args[0]))
		return nil
	}

	table := newTable(entries[0].Path, "RECORDED", "DIGEST", "SIZE", "ID")
	for _, e := range entries {
		table.AddRow(
			e.RecordedAt.Local().Format(time.DateTime),
			shasnap.Short(e.Digest),
			strconv.FormatInt(e.Size, 10),
			e.ID,
		)
	}
	fmt.Fprint(out, table.View(styles))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	var l *ledger.Ledger
	if currentSettings().Ledger.Enabled {
		var err error
		if l, err = openLedger(); err != nil {
			return err
		}
		defer l.Close()
	}

	styles := newStyles()
	out := cmd.OutOrStdout()
	keep := currentSettings().Ledger.KeepHistory

	w, err := watch.New(watch.Options{
		Debounce: currentSettings().GetDebounce(),
		Handler: func(ctx context.Context, c watch.Change) {
			stamp := styles.Muted.Render(c.At.Format(time.TimeOnly))
			if c.Removed {
				fmt.Fprintf(out, "%s %s %s\n", stamp, styles.Warning.Render("removed"), c.Path)
				return
			}
			fmt.Fprintf(out, "%s %s %s -> %s\n", stamp, c.Path,
				styles.Muted.Render(shasnap.Short(c.Previous)), styles.Digest.Render(shasnap.Short(c.Current)))
			if l != nil {
				if _, _, err := l.Track(ctx, c.Path, keep); err != nil {
					logger.Warn("Failed to record change", zap.String("path", c.Path), zap.Error(err))
				}
			}
		},
	})
	if err != nil {
		return err
	}
	if err := w.Add(args...); err != nil {
		w.Stop()
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	logger.Info("Watching files", zap.Strings("files", w.Files()))
	fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("watching %d files, Ctrl-C to stop", len(w.Files()))))

	<-ctx.Done()
	w.Stop()

	stats := w.Stats()
	logger.Info("Watcher stopped",
		zap.Int("events", stats.Events),
		zap.Int("changes", stats.Changes),
		zap.Int("suppressed", stats.Suppressed),
		zap.Int("errors", stats.Errors))
	return nil
}

func runBackups(cmd *cobra.Command, args []string) error {
	// Backups only look at file names, so any codec will do.
	f := fileio.New[map[string]any](args[0], fileio.JSON)
	styles := newStyles()
	out := cmd.OutOrStdout()

	if backupsPrune >= 0 {
		removed, err := f.PruneBackups(backupsPrune)
		if err != nil {
			return err
		}
		for _, p := range removed {
			fmt.Fprintln(out, styles.Warning.Render("removed")+" "+p)
		}
	}

	backups, err := f.Backups()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Fprintln(out, styles.Muted.Render("No backups of "+args[0]))
		return nil
	}

	table := newTable("Backups of "+args[0], "BACKUP", "MODIFIED", "SIZE")
	for _, p := range backups {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		table.AddRow(p, info.ModTime().Format(time.DateTime), strconv.FormatInt(info.Size(), 10))
	}
	fmt.Fprint(out, table.View(styles))

	if backupsDiff {
		fd, err := diff.Files(backups[len(backups)-1], args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(out, renderDiff(styles, fd))
	}
	return nil
}
