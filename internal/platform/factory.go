package platform

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aretw0/stickies/pkg/adapters/fs"
	"github.com/aretw0/stickies/pkg/adapters/kv"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/scheduler"
	"github.com/aretw0/stickies/pkg/storage"
)

// App is one wired instance: the note service and the storage it owns.
type App struct {
	Service  *core.Service
	Storage  *storage.Coordinator
	Files    *fs.Repository
	Mirror   *kv.Store // nil when the secondary store could not be opened.
	Settings Settings
	DataDir  string

	logger *slog.Logger
	sched  *scheduler.Scheduler
}

// app, err := stickies.New("", stickies.WithLogger(logger))
// An empty dataDir means STICKIES_DATA_DIR, then the per-user config dir.
func New(dataDir string, opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}

	settings, resolvedDir, useTemp, err := resolveSettings(dataDir, o)
	if err != nil {
		return nil, err
	}

	capability := o.backend
	if capability == "" {
		capability, err = storage.ParseCapability(settings.Backend)
		if err != nil {
			return nil, err
		}
	}
	if capability == "" {
		capability = storage.ResolveCapability(resolvedDir)
		o.logger.Debug("resolved storage capability", "capability", capability, "path", resolvedDir)
	}

	mirror := openMirror(settings, useTemp, capability, o)
	if capability == storage.CapabilityKVOnly && mirror == nil {
		return nil, fmt.Errorf("data directory %s is not writable and no secondary store is available", resolvedDir)
	}

	files := fs.NewRepository(fs.Config{
		Path:       resolvedDir,
		MaxBackups: settings.MaxBackups,
		Logger:     o.logger,
		Clock:      o.clock,
	})

	sched := scheduler.New(o.clock, o.logger)

	cfg := storage.Config{
		Capability:       capability,
		Primary:          files,
		Scheduler:        sched,
		Logger:           o.logger,
		DebounceInterval: settings.Debounce,
		FlushInterval:    settings.Flush,
		SnapshotInterval: settings.Snapshot,
	}
	if mirror != nil {
		cfg.Secondary = mirror
	}
	coord, err := storage.New(cfg)
	if err != nil {
		sched.Stop()
		if mirror != nil {
			_ = mirror.Close()
		}
		return nil, err
	}

	svcOpts := []core.ServiceOption{core.WithLogger(o.logger), core.WithClock(o.clock)}
	if o.notifier != nil {
		svcOpts = append(svcOpts, core.WithNotifier(o.notifier))
	}
	service := core.NewService(coord, svcOpts...)

	app := &App{
		Service:  service,
		Storage:  coord,
		Files:    files,
		Mirror:   mirror,
		Settings: settings,
		DataDir:  resolvedDir,
		logger:   o.logger,
		sched:    sched,
	}

	if err := service.Initialize(context.Background()); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

// resolveSettings layers defaults, config.yaml, STICKIES_* variables and
// explicit options, and applies the dev sandbox to the data directory.
func resolveSettings(dataDir string, o *options) (Settings, string, bool, error) {
	configFile, _ := o.config["config_file"].(string)
	tempDir, _ := o.config["temp_dir"].(bool)
	devSafety := true
	if val, ok := o.config["dev_safety"].(bool); ok {
		devSafety = val
	}
	useTemp := tempDir || (IsDevRun() && devSafety)

	var settings Settings
	var err error
	if configFile != "" {
		if settings, err = LoadSettings(configFile); err != nil {
			return settings, "", useTemp, err
		}
	}
	if err := settings.ApplyEnv(); err != nil {
		return settings, "", useTemp, err
	}

	if dataDir == "" {
		dataDir = settings.DataDir
	}
	resolvedDir := ResolveDataDir(dataDir, useTemp)

	if IsDevRun() {
		if devSafety {
			o.logger.Debug("running in SAFE mode (dev sandbox enabled)", "path", resolvedDir)
		} else {
			o.logger.Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", resolvedDir)
		}
	}
	if useTemp && dataDir != resolvedDir {
		o.logger.Warn("running in SAFE MODE (Dev/Test)", "original_path", dataDir, "resolved_path", resolvedDir)
	}

	if configFile == "" {
		if settings, err = LoadSettings(filepath.Join(resolvedDir, ConfigFileName)); err != nil {
			return settings, "", useTemp, err
		}
		if err := settings.ApplyEnv(); err != nil {
			return settings, "", useTemp, err
		}
	}
	settings.DataDir = resolvedDir

	if n, ok := o.config["max_backups"].(int); ok && n > 0 {
		settings.MaxBackups = n
	}
	if b, ok := o.config["sync_writes"].(bool); ok {
		settings.SyncWrites = b
	}
	if d, ok := o.config["debounce_interval"].(time.Duration); ok && d > 0 {
		settings.Debounce = d
	}
	if d, ok := o.config["flush_interval"].(time.Duration); ok && d > 0 {
		settings.Flush = d
	}
	if d, ok := o.config["snapshot_interval"].(time.Duration); ok && d > 0 {
		settings.Snapshot = d
	}
	if o.mirrorDir != "" {
		settings.MirrorDir = o.mirrorDir
	}

	return settings, resolvedDir, useTemp, nil
}

// openMirror opens the secondary store. Failure is not fatal with a usable
// primary; in kv-only mode it falls back to an in-memory store.
func openMirror(settings Settings, useTemp bool, capability storage.Capability, o *options) *kv.Store {
	inMemory, _ := o.config["mirror_in_memory"].(bool)
	cfg := kv.Config{InMemory: inMemory, SyncWrites: settings.SyncWrites, Logger: o.logger}
	if !inMemory {
		dir := settings.MirrorDir
		if dir == "" {
			dir = DefaultMirrorDir()
		}
		cfg.Path = ResolveDataDir(dir, useTemp)
	}

	store, err := kv.Open(cfg)
	if err == nil {
		return store
	}
	o.logger.Warn("secondary store unavailable", "path", cfg.Path, "error", err)

	if capability != storage.CapabilityKVOnly || inMemory {
		return nil
	}
	store, err = kv.Open(kv.Config{InMemory: true, Logger: o.logger})
	if err != nil {
		o.logger.Error("in-memory secondary store failed", "error", err)
		return nil
	}
	o.logger.Warn("notes will only live for this session")
	return store
}
