package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotsJSON bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Copy notes.json to a timestamped snapshot",
	Long:  `Snapshot copies the data file aside and prunes old snapshots down to the retention count.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer closeApp(app)

		path, err := app.Storage.Snapshot(context.Background())
		if err != nil {
			closeApp(app)
			fatal("Error creating snapshot", err)
		}
		fmt.Printf("Snapshot created: %s\n", path)
	},
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List retained snapshots, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer closeApp(app)

		infos, err := app.Storage.Snapshots()
		if err != nil {
			closeApp(app)
			fatal("Error listing snapshots", err)
		}
		if snapshotsJSON {
			printJSON(infos)
			return
		}
		for _, info := range infos {
			fmt.Printf("%s\t%s\t%d bytes\n", info.Name, info.ModTime.Local().Format("2006-01-02 15:04:05"), info.Size)
		}
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [snapshot]",
	Short: "Replace the notes with a snapshot",
	Long: `Restore loads a snapshot by file name (see 'stickies snapshots') and saves it
as the current notes. The replaced notes remain in notes.backup.json.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer closeApp(app)

		if err := app.Service.Restore(context.Background(), args[0]); err != nil {
			closeApp(app)
			fatal("Error restoring snapshot", err)
		}
		fmt.Printf("Restored %d notes from %s\n", len(app.Service.GetAll()), args[0])
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd, snapshotsCmd, restoreCmd)
	snapshotsCmd.Flags().BoolVar(&snapshotsJSON, "json", false, "Output in JSON format")
}
