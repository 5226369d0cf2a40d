// Package stickies is the composition root for a local-first sticky-notes core.
//
// It connects the note collection (pkg/core) with its persistence: a JSON data
// file with a rotating backup and timestamped snapshots (pkg/adapters/fs), a
// BadgerDB mirror used for disaster recovery (pkg/adapters/kv), and the
// coordinator that selects between them and schedules saves (pkg/storage).
//
// Features:
//
//   - **Backup Before Overwrite**: the previous data file is copied aside before every write.
//   - **Self-Healing Load**: a wiped data directory is rebuilt from the mirror on start.
//   - **Debounced Autosave**: rapid edits collapse into one write; a periodic flush is the safety net.
//   - **Snapshots**: timestamped copies, pruned to the newest N.
//   - **External Edits**: a watcher reloads the collection when a sync client rewrites the file.
//
// Usage:
//
//	app, err := stickies.New("", stickies.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer app.Close(ctx)
//	app.Start()
//
//	note := app.Service.Create(ctx)
//	app.Service.Update(note.ID, core.NoteFields{Content: &text})
package stickies
