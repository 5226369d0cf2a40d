package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/stickies"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/storage"
)

var (
	verbose   bool
	dataDir   string
	backend   string
	mirrorDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stickies",
	Short: "Local-first sticky notes with backups that heal themselves",
	Long: `Stickies keeps your notes in a single JSON file with a rotating backup,
timestamped snapshots and a local mirror it can rebuild the file from.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)

		if err := stickies.LoadDotEnv(); err != nil {
			logger.Warn("failed to load .env", "error", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory holding notes.json (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Storage backend: auto, file or kv")
	rootCmd.PersistentFlags().StringVar(&mirrorDir, "mirror-dir", "", "Directory of the local mirror (default: user cache dir)")
}

// openApp wires the app from the global flags. Callers must Close it.
func openApp() *stickies.App {
	opts := []stickies.Option{
		stickies.WithLogger(slog.Default()),
		stickies.WithNotifier(core.NotifierFunc(func(n core.Notification) {
			switch n.Kind {
			case core.NotifySaved:
				slog.Debug(n.Message)
			case core.NotifyImported:
				slog.Info(n.Message)
			default:
				slog.Error(n.Message, "error", n.Err)
			}
		})),
	}
	if backend != "" {
		c, err := storage.ParseCapability(backend)
		if err != nil {
			fatal("Invalid --backend", err)
		}
		if c != "" {
			opts = append(opts, stickies.WithBackend(c))
		}
	}
	if mirrorDir != "" {
		opts = append(opts, stickies.WithMirrorDir(mirrorDir))
	}

	app, err := stickies.New(dataDir, opts...)
	if err != nil {
		fatal("Error initializing stickies", err)
	}
	return app
}

func closeApp(app *stickies.App) {
	if err := app.Close(context.Background()); err != nil {
		fatal("Error closing stickies", err)
	}
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fatal("Error encoding JSON", err)
	}
}
