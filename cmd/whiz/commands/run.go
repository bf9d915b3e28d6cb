package commands

import (
	"github.com/spf13/cobra"
	"github.com/whizrun/whiz/internal/app"
)

func (c *CLI) addRunFlags(cmd *cobra.Command) {
	cmd.Args = cobra.ArbitraryArgs
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		runTargets, _ := cmd.Flags().GetStringArray("run")
		targets := append(append([]string{}, runTargets...), args...)
		if len(targets) == 0 {
			return cmd.Help()
		}

		file, _ := cmd.Flags().GetString("file")
		listJobs, _ := cmd.Flags().GetBool("list-jobs")
		timestamp, _ := cmd.Flags().GetBool("timestamp")
		verbose, _ := cmd.Flags().GetBool("verbose")
		watch, _ := cmd.Flags().GetBool("watch")
		exitAfter, _ := cmd.Flags().GetBool("exit-after")

		outputMode := "auto"
		if exitAfter {
			outputMode = "linear"
		}

		return c.app.Run(cmd.Context(), targets, app.RunOptions{
			ConfigFile: file,
			ExitAfter:  exitAfter,
			Watch:      watch && !exitAfter,
			ListJobs:   listJobs,
			Timestamp:  timestamp,
			Verbose:    verbose,
			OutputMode: outputMode,
		})
	}

	cmd.Flags().StringP("file", "f", "", "config file path (default: search whiz.yaml upward from cwd)")
	cmd.Flags().Bool("list-jobs", false, "print selected task names in topological order and exit")
	cmd.Flags().StringArrayP("run", "r", nil, "restrict to the transitive closure of this task (repeatable)")
	cmd.Flags().BoolP("timestamp", "t", false, "prefix each output line with its elapsed time")
	cmd.Flags().BoolP("verbose", "v", false, "emit scheduler-internal diagnostics")
	cmd.Flags().Bool("watch", true, "watch the filesystem and restart affected tasks")
	cmd.Flags().Bool("exit-after", false, "CI mode: disable watching, exit once every task is terminal")
}
