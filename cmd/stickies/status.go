package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/lifecycle"
	"github.com/spf13/cobra"

	stickieslifecycle "github.com/aretw0/stickies/pkg/adapters/lifecycle"
)

var pathsJSON bool

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Print where notes are stored",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer closeApp(app)

		p := app.Storage.Paths()
		if pathsJSON {
			printJSON(p)
			return
		}
		fmt.Printf("data dir:    %s\n", p.DataDir)
		fmt.Printf("data file:   %s\n", p.DataFile)
		fmt.Printf("backup file: %s\n", p.BackupFile)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the service and its stores as JSON",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp()
		defer closeApp(app)
		printJSON(app.Status())
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay running: autosave, periodic snapshots, reload on external edits",
	Long: `Watch keeps the notes open the way a desktop client would. It arms the
periodic flush and snapshot timers and reloads the collection whenever another
program (a sync client, an editor) rewrites notes.json. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app := openApp()
		defer closeApp(app)
		app.Start()

		events, err := app.Watch(ctx)
		if err != nil {
			closeApp(app)
			fatal("Error watching notes", err)
		}

		router := lifecycle.NewRouter()
		router.AddSource(stickieslifecycle.NewSource(events, stickieslifecycle.WithNoteCount(func() int {
			return len(app.Service.GetAll())
		})))
		router.HandleFunc(stickieslifecycle.TopicAll, func(ctx context.Context, e lifecycle.Event) error {
			change, ok := e.(stickieslifecycle.Change)
			if !ok {
				return lifecycle.ErrNotHandled
			}
			fmt.Printf("%s %s (%d notes)\n", change.Timestamp.Local().Format("15:04:05"), change.Event, change.Notes)
			return nil
		})

		fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)\n", app.Storage.Paths().DataFile)
		if err := router.Start(ctx); err != nil {
			closeApp(app)
			fatal("Error watching notes", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(pathsCmd, statusCmd, watchCmd)
	pathsCmd.Flags().BoolVar(&pathsJSON, "json", false, "Output in JSON format")
}
