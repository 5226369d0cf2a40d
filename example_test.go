package stickies_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/aretw0/stickies"
	"github.com/aretw0/stickies/pkg/core"
)

// Example_basic creates a note, edits it and reads it back after a restart.
func Example_basic() {
	tmpDir, err := os.MkdirTemp("", "stickies-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	app, err := stickies.New(tmpDir, stickies.WithLogger(logger), stickies.WithInMemoryMirror(true))
	if err != nil {
		log.Fatal(err)
	}

	note := app.Service.Create(ctx)
	text := "buy milk"
	app.Service.Update(note.ID, core.NoteFields{Content: &text})

	// Close flushes the pending autosave.
	if err := app.Close(ctx); err != nil {
		log.Fatal(err)
	}

	app, err = stickies.New(tmpDir, stickies.WithLogger(logger), stickies.WithInMemoryMirror(true))
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close(ctx)

	for _, n := range app.Service.Search("MILK") {
		fmt.Printf("%d %s: %s\n", n.ID, n.Title, n.Content)
	}
	// Output:
	// 1 Note 1: buy milk
}

// ExampleApp_snapshot takes a snapshot, adds a note, then restores the snapshot.
func ExampleApp_snapshot() {
	tmpDir, err := os.MkdirTemp("", "stickies-snapshot-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := stickies.New(tmpDir, stickies.WithLogger(logger), stickies.WithInMemoryMirror(true))
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close(ctx)

	app.Service.Create(ctx)
	if _, err := app.Storage.Snapshot(ctx); err != nil {
		log.Fatal(err)
	}
	app.Service.Create(ctx)

	infos, err := app.Storage.Snapshots()
	if err != nil {
		log.Fatal(err)
	}
	if err := app.Service.Restore(ctx, infos[0].Name); err != nil {
		log.Fatal(err)
	}
	fmt.Println(len(app.Service.GetAll()))
	// Output:
	// 1
}
