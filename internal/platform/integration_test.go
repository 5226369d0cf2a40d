package platform_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stickies/internal/platform"
	"github.com/aretw0/stickies/pkg/adapters/kv"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// isolateEnv keeps the developer's STICKIES_* variables out of the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		platform.EnvDataDir, platform.EnvMirrorDir, platform.EnvBackend,
		platform.EnvMaxBackups, platform.EnvSyncWrites,
	} {
		t.Setenv(key, "")
	}
}

type recorder struct {
	mu    sync.Mutex
	kinds []core.NotificationKind
}

func (r *recorder) Notify(n core.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, n.Kind)
}

func (r *recorder) has(kind core.NotificationKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func setupApp(t *testing.T, dataDir string, opts ...platform.Option) *platform.App {
	t.Helper()
	base := []platform.Option{platform.WithLogger(quiet)}
	app, err := platform.New(dataDir, append(base, opts...)...)
	require.NoError(t, err)
	return app
}

func TestNew_CreatePersistsAndMirrors(t *testing.T) {
	isolateEnv(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "stickies")

	app := setupApp(t, dir, platform.WithMirrorDir(t.TempDir()))
	defer app.Close(ctx)

	assert.Equal(t, storage.CapabilityFile, app.Storage.Capability())
	note := app.Service.Create(ctx)
	assert.Equal(t, 1, note.ID)

	_, err := os.Stat(filepath.Join(dir, "notes.json"))
	require.NoError(t, err)

	require.NotNil(t, app.Mirror)
	mirrored, err := app.Mirror.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, mirrored.Notes, 1)
}

func TestNew_RecoversWipedDataDir(t *testing.T) {
	isolateEnv(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "stickies")
	mirrorDir := t.TempDir()

	first := setupApp(t, dir, platform.WithMirrorDir(mirrorDir))
	first.Service.Create(ctx)
	first.Service.Create(ctx)
	require.NoError(t, first.Close(ctx))

	require.NoError(t, os.RemoveAll(dir))

	rec := &recorder{}
	second := setupApp(t, dir, platform.WithMirrorDir(mirrorDir), platform.WithNotifier(rec))
	defer second.Close(ctx)

	assert.True(t, rec.has(core.NotifyImported))
	assert.Len(t, second.Service.GetAll(), 2)
	assert.Equal(t, 3, second.Service.NextID())

	doc, source, err := second.Files.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SourcePrimary, source)
	assert.Len(t, doc.Notes, 2)
}

func TestNew_CloseFlushesDebouncedEdit(t *testing.T) {
	isolateEnv(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "stickies")

	app := setupApp(t, dir, platform.WithInMemoryMirror(true))
	note := app.Service.Create(ctx)
	content := "typed just before quitting"
	require.True(t, app.Service.Update(note.ID, core.NoteFields{Content: &content}))
	require.NoError(t, app.Close(ctx))

	reopened := setupApp(t, dir, platform.WithInMemoryMirror(true))
	defer reopened.Close(ctx)

	got, ok := reopened.Service.GetByID(note.ID)
	require.True(t, ok)
	assert.Equal(t, content, got.Content)
}

func TestNew_KVOnly(t *testing.T) {
	isolateEnv(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "stickies")

	app := setupApp(t, dir,
		platform.WithBackend(storage.CapabilityKVOnly),
		platform.WithInMemoryMirror(true),
	)
	defer app.Close(ctx)

	app.Service.Create(ctx)

	_, err := os.Stat(filepath.Join(dir, "notes.json"))
	assert.True(t, os.IsNotExist(err))

	mirrored, err := app.Mirror.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, mirrored.Notes, 1)

	_, err = app.Watch(ctx)
	assert.True(t, core.IsKind(err, core.KindUnavailable))
}

func TestNew_Settings(t *testing.T) {
	isolateEnv(t)
	ctx := context.Background()

	t.Run("Config File Then Env Then Options", func(t *testing.T) {
		dir := t.TempDir()
		yaml := "max_backups: 2\ndebounce_interval: 250ms\nflush_interval: 10s\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, platform.ConfigFileName), []byte(yaml), 0644))

		app := setupApp(t, dir, platform.WithInMemoryMirror(true))
		assert.Equal(t, 2, app.Settings.MaxBackups)
		assert.Equal(t, 250*time.Millisecond, app.Settings.Debounce)
		assert.Equal(t, 10*time.Second, app.Settings.Flush)
		require.NoError(t, app.Close(ctx))

		t.Setenv(platform.EnvMaxBackups, "3")
		app = setupApp(t, dir, platform.WithInMemoryMirror(true))
		assert.Equal(t, 3, app.Settings.MaxBackups)
		assert.Equal(t, 3, app.Files.MaxBackups())
		require.NoError(t, app.Close(ctx))

		app = setupApp(t, dir, platform.WithInMemoryMirror(true), platform.WithMaxBackups(4))
		assert.Equal(t, 4, app.Settings.MaxBackups)
		require.NoError(t, app.Close(ctx))
	})

	t.Run("Invalid Env", func(t *testing.T) {
		t.Setenv(platform.EnvMaxBackups, "lots")
		_, err := platform.New(t.TempDir(), platform.WithLogger(quiet), platform.WithInMemoryMirror(true))
		assert.Error(t, err)
	})

	t.Run("Backend From Env", func(t *testing.T) {
		t.Setenv(platform.EnvBackend, "kv")
		app := setupApp(t, t.TempDir(), platform.WithInMemoryMirror(true))
		defer app.Close(ctx)
		assert.Equal(t, storage.CapabilityKVOnly, app.Storage.Capability())
	})
}

func TestApp_WatchReloadsExternalEdit(t *testing.T) {
	isolateEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := filepath.Join(t.TempDir(), "stickies")

	app := setupApp(t, dir, platform.WithInMemoryMirror(true))
	defer app.Close(context.Background())
	app.Service.Create(ctx)

	events, err := app.Watch(ctx)
	require.NoError(t, err)

	raw := `{"notes":[{"id":7,"title":"from sync","content":"edited elsewhere"}],"nextId":8}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte(raw), 0644))

	select {
	case event := <-events:
		assert.Equal(t, core.EventModify, event.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload event")
	}

	notes := app.Service.GetAll()
	require.Len(t, notes, 1)
	assert.Equal(t, "from sync", notes[0].Title)
	assert.Equal(t, 8, app.Service.NextID())
}

func TestApp_ReloadDropsUnsavedLocalEdit(t *testing.T) {
	isolateEnv(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "stickies")
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	app := setupApp(t, dir, platform.WithInMemoryMirror(true), platform.WithClock(clock))
	defer app.Close(ctx)

	note := app.Service.Create(ctx)
	typing := "local typing"
	require.True(t, app.Service.Update(note.ID, core.NoteFields{Content: &typing}))

	raw := `{"notes":[{"id":7,"title":"from sync","content":"edited elsewhere"}],"nextId":8}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte(raw), 0644))
	require.NoError(t, app.Service.Reload(ctx))

	clock.Advance(2 * time.Second)
	require.NoError(t, app.Storage.Flush(ctx))

	onDisk := func() string {
		doc, _, err := app.Files.Read(ctx)
		if err != nil || len(doc.Notes) != 1 {
			return ""
		}
		return doc.Notes[0].Title
	}
	assert.Never(t, func() bool { return onDisk() != "from sync" }, 200*time.Millisecond, 10*time.Millisecond)

	got, ok := app.Service.GetByID(7)
	require.True(t, ok)
	assert.Equal(t, "from sync", got.Title)
	_, ok = app.Service.GetByID(note.ID)
	assert.False(t, ok)
}

func TestApp_Status(t *testing.T) {
	isolateEnv(t)
	ctx := context.Background()
	app := setupApp(t, t.TempDir(), platform.WithInMemoryMirror(true))
	defer app.Close(ctx)
	app.Start()

	status := app.Status()
	st, ok := status.Storage.(storage.CoordinatorState)
	require.True(t, ok)
	assert.True(t, st.PeriodicFlush)
	assert.True(t, st.PeriodicSnap)
	assert.NotNil(t, st.Secondary)
}

func TestApp_StartCollectsMirrorGarbage(t *testing.T) {
	isolateEnv(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	app := setupApp(t, t.TempDir(), platform.WithMirrorDir(t.TempDir()), platform.WithClock(clock))
	defer app.Close(ctx)
	app.Service.Create(ctx)
	app.Start()

	gcRuns := func() int64 {
		st, ok := app.Status().Mirror.(kv.StoreState)
		if !ok {
			return -1
		}
		return st.GCRuns
	}
	assert.Equal(t, int64(0), gcRuns())

	clock.Advance(platform.DefaultMirrorGCInterval)
	require.Eventually(t, func() bool { return gcRuns() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
