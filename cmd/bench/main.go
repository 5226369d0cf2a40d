package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aretw0/stickies"
	"github.com/aretw0/stickies/pkg/core"
)

func main() {
	count := flag.Int("count", 1000, "Number of notes to generate")
	size := flag.Int("size", 512, "Content bytes per note")
	keep := flag.Bool("keep", false, "Keep the benchmark data dir after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "stickies_bench_")
	if err != nil {
		panic(err)
	}
	mirrorDir, err := os.MkdirTemp("", "stickies_bench_mirror_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
			os.RemoveAll(mirrorDir)
		} else {
			fmt.Printf("Keeping bench dirs: %s %s\n", benchDir, mirrorDir)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	app, err := stickies.New(benchDir, stickies.WithLogger(logger), stickies.WithMirrorDir(mirrorDir))
	if err != nil {
		panic(err)
	}

	// Bypass Create so generation does not pay one save per note.
	fmt.Printf("Generating %d notes of %d bytes...\n", *count, *size)
	now := time.Now().UTC()
	doc := core.Document{NextID: *count + 1, LastModified: now}
	body := strings.Repeat("x", *size)
	for i := 1; i <= *count; i++ {
		doc.Notes = append(doc.Notes, core.Note{ID: i, Title: core.DefaultTitle(i), Content: body, CreatedAt: now, UpdatedAt: now})
	}

	startSave := time.Now()
	if err := app.Storage.Save(ctx, doc); err != nil {
		panic(err)
	}
	saveDur := time.Since(startSave)

	startSnap := time.Now()
	if _, err := app.Storage.Snapshot(ctx); err != nil {
		panic(err)
	}
	snapDur := time.Since(startSnap)

	if err := app.Close(ctx); err != nil {
		panic(err)
	}

	// Cold start: what a CLI invocation pays.
	startLoad := time.Now()
	app2, err := stickies.New(benchDir, stickies.WithLogger(logger), stickies.WithMirrorDir(mirrorDir))
	if err != nil {
		panic(err)
	}
	loadDur := time.Since(startLoad)
	loaded := len(app2.Service.GetAll())

	startSearch := time.Now()
	hits := len(app2.Service.Search("Note 9"))
	searchDur := time.Since(startSearch)

	// Self-heal: wipe the data file and start again from the mirror.
	if err := app2.Close(ctx); err != nil {
		panic(err)
	}
	if err := os.Remove(app2.Storage.Paths().DataFile); err != nil {
		panic(err)
	}
	if err := os.Remove(app2.Storage.Paths().BackupFile); err != nil && !os.IsNotExist(err) {
		panic(err)
	}
	startHeal := time.Now()
	app3, err := stickies.New(benchDir, stickies.WithLogger(logger), stickies.WithMirrorDir(mirrorDir))
	if err != nil {
		panic(err)
	}
	healDur := time.Since(startHeal)
	healed := len(app3.Service.GetAll())
	_ = app3.Close(ctx)

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d notes):\n", *count)
	fmt.Printf("  Save (file + mirror): %v\n", saveDur)
	fmt.Printf("  Snapshot:             %v\n", snapDur)
	fmt.Printf("  Cold load:            %v (Items: %d)\n", loadDur, loaded)
	fmt.Printf("  Search:               %v (Hits: %d)\n", searchDur, hits)
	fmt.Printf("  Self-heal load:       %v (Items: %d)\n", healDur, healed)
	fmt.Printf("--------------------------------------------------\n")
}
