package stickies

import (
	_ "embed"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aretw0/stickies/internal/platform"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/storage"
)

//go:embed VERSION
var rawVersion string

// Version exposes the version of the library.
var Version = strings.TrimSpace(rawVersion)

// --- Types ---

// App is a wired instance: service, coordinator and both stores.
type App = platform.App

// Status is a point-in-time view of an App.
type Status = platform.Status

// Settings is the config.yaml / environment configuration.
type Settings = platform.Settings

// Backends.
const (
	BackendFile   = storage.CapabilityFile
	BackendKVOnly = storage.CapabilityKVOnly
)

// --- Configuration ---

// Option defines a functional option for configuring the app.
type Option = platform.Option

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithClock overrides the time source (tests use a fake clock).
func WithClock(clock clockwork.Clock) Option {
	return platform.WithClock(clock)
}

// WithNotifier receives user-facing notifications.
func WithNotifier(n core.Notifier) Option {
	return platform.WithNotifier(n)
}

// WithBackend fixes the backend instead of probing the data directory.
func WithBackend(c storage.Capability) Option {
	return platform.WithBackend(c)
}

// WithMirrorDir sets where the secondary store keeps its files.
func WithMirrorDir(dir string) Option {
	return platform.WithMirrorDir(dir)
}

// WithInMemoryMirror keeps the secondary store in RAM.
func WithInMemoryMirror(enabled bool) Option {
	return platform.WithInMemoryMirror(enabled)
}

// WithMaxBackups sets how many timestamped snapshots are retained.
func WithMaxBackups(n int) Option {
	return platform.WithMaxBackups(n)
}

// WithIntervals overrides the debounce, flush and snapshot intervals.
func WithIntervals(debounce, flush, snapshot time.Duration) Option {
	return platform.WithIntervals(debounce, flush, snapshot)
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the `go run` / `go test` sandbox. Default true.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithConfigFile loads settings from the given YAML file.
func WithConfigFile(path string) Option {
	return platform.WithConfigFile(path)
}

// WithSyncWrites makes the secondary store fsync every write.
func WithSyncWrites(enabled bool) Option {
	return platform.WithSyncWrites(enabled)
}

// --- Factory ---

// New wires and initializes an App rooted at dataDir.
func New(dataDir string, opts ...Option) (*App, error) {
	return platform.New(dataDir, opts...)
}

// --- Safety & Utils ---

// ResolveDataDir determines the actual data directory based on safety rules.
func ResolveDataDir(userPath string, forceTemp bool) string {
	return platform.ResolveDataDir(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// DefaultDataDir is the per-user directory holding notes.json.
func DefaultDataDir() string {
	return platform.DefaultDataDir()
}

// LoadDotEnv loads .env files without overriding the environment.
func LoadDotEnv(files ...string) error {
	return platform.LoadDotEnv(files...)
}
