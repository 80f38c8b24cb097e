package main

import (
	"fmt"
	"os"

	"sculptor/internal/fileio"
	"sculptor/internal/shasnap"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	snapShort  bool
	snapHidden bool
)

// snapCmd prints SHA-512 snapshots
var snapCmd = &cobra.Command{
	Use:   "snap [path...]",
	Short: "Print the SHA-512 snapshot of files or directory trees",
	Long: `Prints the hex SHA-512 digest of each file. A directory is snapshotted as a
tree: every file is hashed and the sorted (path, digest) list is hashed again,
so the result does not depend on walk order.

Example:
  sculptor snap config.toml
  sculptor snap --short ./configs`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSnap,
}

// convertCmd re-encodes a file into another format
var convertCmd = &cobra.Command{
	Use:   "convert [src] [dst]",
	Short: "Convert a file between TOML, YAML and JSON",
	Long: `Decodes src and encodes it as dst. Both formats come from the file extensions.

Example:
  sculptor convert settings.json settings.toml`,
	Args: cobra.ExactArgs(2),
	RunE: runConvert,
}

func init() {
	snapCmd.Flags().BoolVar(&snapShort, "short", false, "Print abbreviated digests")
	snapCmd.Flags().BoolVar(&snapHidden, "hidden", false, "Include dot files when snapshotting directories")
}

func runSnap(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	styles := newStyles()
	out := cmd.OutOrStdout()

	format := func(digest string) string {
		if snapShort {
			digest = shasnap.Short(digest)
		}
		return styles.Digest.Render(digest)
	}

	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if info.IsDir() {
			tree, err := shasnap.Tree(ctx, path, shasnap.TreeOptions{IncludeHidden: snapHidden})
			if err != nil {
				return err
			}
			logger.Debug("Snapshotted tree", zap.String("root", path), zap.Int("files", len(tree.Files)))
			fmt.Fprintf(out, "%s  %s/ %s\n", format(tree.Digest), path, styles.Muted.Render(fmt.Sprintf("(%d files)", len(tree.Files))))
			continue
		}

		digest, _, err := shasnap.SnapFile(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %s\n", format(digest), path)
	}
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	if err := fileio.Convert(args[0], args[1]); err != nil {
		return err
	}
	logger.Info("Converted file", zap.String("src", args[0]), zap.String("dst", args[1]))
	fmt.Fprintln(cmd.OutOrStdout(), newStyles().Success.Render("converted")+" "+args[0]+" -> "+args[1])
	return nil
}
