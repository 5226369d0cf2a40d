package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/scheduler"
)

// watchDebounce coalesces the burst of events a single save produces
// (temp file create, rename, chmod).
const watchDebounce = 50 * time.Millisecond

type watchWorker struct {
	repo      *Repository
	events    chan core.Event
	watcher   *fsnotify.Watcher
	debouncer *scheduler.Scheduler
}

// Watch reports changes to the data file made by other processes (a sync
// client, a text editor). Writes made through this repository are not
// reported. The channel is closed when ctx is done.
func (r *Repository) Watch(ctx context.Context) (<-chan core.Event, error) {
	if err := os.MkdirAll(r.paths.DataDir, 0755); err != nil {
		return nil, core.NewStorageError(core.KindIO, "mkdir", r.paths.DataDir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(r.paths.DataDir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", r.paths.DataDir, err)
	}

	w := &watchWorker{
		repo:      r,
		events:    make(chan core.Event, 8),
		watcher:   watcher,
		debouncer: scheduler.New(r.clock, r.logger),
	}
	r.setWatcherActive(true)

	lifecycle.Go(ctx, w.run, lifecycle.WithErrorHandler(func(err error) {
		r.logger.Error("watcher failed", "error", err)
	}))
	return w.events, nil
}

// run is the main event loop for the watcher worker.
func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			panicErr := fmt.Errorf("watcher panic: %v", recovered)
			if w.repo.logger.Enabled(ctx, slog.LevelDebug) {
				w.repo.logger.Error("watcher panic", "error", panicErr, "stack", string(debug.Stack()))
			} else {
				w.repo.logger.Error("watcher panic", "error", panicErr)
			}
			err = panicErr
		}
	}()
	defer close(w.events)
	defer w.repo.setWatcherActive(false)
	defer w.watcher.Close()
	// Runs first: no debounced emit may race the channel close.
	defer w.debouncer.Stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dataName := filepath.Base(w.repo.paths.DataFile)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher events channel closed")
			}
			if filepath.Base(event.Name) != dataName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			w.repo.logger.Debug("event received", "name", event.Name, "op", event.Op.String())
			w.debouncer.ScheduleOnce("data-file", watchDebounce, func() { w.emit(ctx) })

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher errors channel closed")
			}
			w.repo.logger.Error("fsnotify error", "error", wErr)
		}
	}
}

// emit inspects the settled data file and sends an event unless the content
// is what this process wrote last.
func (w *watchWorker) emit(ctx context.Context) {
	path := w.repo.paths.DataFile
	event := core.Event{Type: core.EventModify, Path: path, Timestamp: w.repo.clock.Now()}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		event.Type = core.EventDelete
	case err != nil:
		w.repo.logger.Debug("cannot read changed data file", "path", path, "error", err)
		return
	case w.repo.isOwnWrite(data):
		return
	}

	select {
	case w.events <- event:
	case <-ctx.Done():
	}
}
