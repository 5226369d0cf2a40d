package platform

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/storage"
)

// options holds the internal configuration for the stickies app.
type options struct {
	logger    *slog.Logger
	clock     clockwork.Clock
	notifier  core.Notifier
	backend   storage.Capability
	mirrorDir string
	config    map[string]interface{}
}

// Option defines a functional option for configuring the app.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		logger: nil,
		clock:  nil,
		config: make(map[string]interface{}),
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the time source of the service and every timer.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithNotifier receives user-facing notifications (imported, saved, ...).
func WithNotifier(n core.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithBackend skips the writability probe and fixes the backend.
func WithBackend(c storage.Capability) Option {
	return func(o *options) {
		o.backend = c
	}
}

// WithMirrorDir sets where the secondary store keeps its files.
// Defaults to the user cache directory, outside the data directory, so a
// wiped data directory can be rebuilt from it.
func WithMirrorDir(dir string) Option {
	return func(o *options) {
		o.mirrorDir = dir
	}
}

// WithInMemoryMirror keeps the secondary store in RAM (tests, ephemeral runs).
func WithInMemoryMirror(enabled bool) Option {
	return func(o *options) {
		o.config["mirror_in_memory"] = enabled
	}
}

// WithMaxBackups sets how many timestamped snapshots are retained.
// Zero means default (5).
func WithMaxBackups(n int) Option {
	return func(o *options) {
		o.config["max_backups"] = n
	}
}

// WithIntervals overrides the debounce, periodic flush and snapshot intervals.
// Zero values keep the defaults (1s, 30s, 30m).
func WithIntervals(debounce, flush, snapshot time.Duration) Option {
	return func(o *options) {
		o.config["debounce_interval"] = debounce
		o.config["flush_interval"] = flush
		o.config["snapshot_interval"] = snapshot
	}
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithDevSafety controls the sandbox used when running via `go run` or `go test`.
// By default (true) the data directory is re-rooted under the system temp dir.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}

// WithConfigFile loads settings from a YAML file instead of
// <data dir>/config.yaml. Explicit options still win.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.config["config_file"] = path
	}
}

// WithSyncWrites makes the secondary store fsync every write.
func WithSyncWrites(enabled bool) Option {
	return func(o *options) {
		o.config["sync_writes"] = enabled
	}
}
