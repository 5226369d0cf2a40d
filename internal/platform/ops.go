package platform

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/stickies/pkg/adapters/kv"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/storage"
)

// DefaultMirrorGCInterval is how often the mirror's value log is collected.
const DefaultMirrorGCInterval = 10 * time.Minute

const keyMirrorGC = "mirror-gc"

// Start arms the periodic flush, the periodic snapshots and the mirror's
// garbage collection.
func (a *App) Start() {
	a.Storage.StartPeriodicFlush()
	a.Storage.SnapshotPeriodically()
	if a.Mirror != nil {
		a.sched.ScheduleRepeating(keyMirrorGC, DefaultMirrorGCInterval, func() {
			if _, err := a.Mirror.CollectGarbage(kv.DefaultGCDiscardRatio); err != nil {
				a.logger.Warn("mirror garbage collection failed", "error", err)
			}
		})
	}
}

// Watch reloads the collection whenever another process rewrites the data
// file, and forwards each handled event. The channel closes when ctx is done.
func (a *App) Watch(ctx context.Context) (<-chan core.Event, error) {
	if a.Storage.Capability() != storage.CapabilityFile {
		return nil, core.NewStorageError(core.KindUnavailable, "watch", a.DataDir, errors.New("no primary store"))
	}

	events, err := a.Files.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 8)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(out)
		for event := range events {
			if event.Type == core.EventModify {
				if err := a.Service.Reload(ctx); err != nil {
					a.logger.Warn("reload after external change failed", "error", err)
					continue
				}
				a.logger.Info("notes reloaded after external change", "notes", len(a.Service.GetAll()))
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		a.logger.Error("reload worker failed", "error", err)
	}))
	return out, nil
}

// Close flushes outstanding saves, stops every timer and releases the stores.
func (a *App) Close(ctx context.Context) error {
	err := a.Storage.Close(ctx)
	a.sched.Stop()
	if a.Mirror != nil {
		err = errors.Join(err, a.Mirror.Close())
	}
	return err
}

// Status is a point-in-time view of the whole app.
type Status struct {
	DataDir string `json:"data_dir"`
	Service any    `json:"service"`
	Storage any    `json:"storage"`
	Mirror  any    `json:"mirror,omitempty"`
}

// Status gathers the introspection state of each component.
func (a *App) Status() Status {
	status := Status{
		DataDir: a.DataDir,
		Service: a.Service.State(),
		Storage: a.Storage.State(),
	}
	if a.Mirror != nil {
		status.Mirror = a.Mirror.State()
	}
	return status
}
