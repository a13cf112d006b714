// Command taskctl manages task record files in a taskd store directory. It
// never talks to the daemon: the daemon's change watcher picks up whatever
// taskctl writes or removes.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "taskctl",
		Short: "Manage taskd task records",
		Long: `taskctl creates, edits, lists, and removes task record files in a
taskd store directory. Records are one JSON file per task; a running daemon
notices changes through its directory watcher, so no restart or signal is
needed.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("dir", "d", "./tasks", "task store directory")

	root.AddCommand(
		buildCreateCmd(),
		buildEditCmd(),
		buildRmCmd(),
		buildLsCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
