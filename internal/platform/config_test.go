package platform_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stickies/internal/platform"
)

func TestLoadSettings(t *testing.T) {
	t.Run("Missing File Is Zero", func(t *testing.T) {
		s, err := platform.LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, platform.Settings{}, s)
	})

	t.Run("Parses Durations", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), platform.ConfigFileName)
		yaml := `
backend: file
mirror_dir: /var/cache/stickies
max_backups: 9
sync_writes: true
debounce_interval: 2s
flush_interval: 1m
snapshot_interval: 1h
`
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

		s, err := platform.LoadSettings(path)
		require.NoError(t, err)
		assert.Equal(t, "file", s.Backend)
		assert.Equal(t, "/var/cache/stickies", s.MirrorDir)
		assert.Equal(t, 9, s.MaxBackups)
		assert.True(t, s.SyncWrites)
		assert.Equal(t, 2*time.Second, s.Debounce)
		assert.Equal(t, time.Minute, s.Flush)
		assert.Equal(t, time.Hour, s.Snapshot)
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), platform.ConfigFileName)
		require.NoError(t, os.WriteFile(path, []byte("max_backups: [1, 2"), 0644))

		_, err := platform.LoadSettings(path)
		assert.Error(t, err)
	})
}

func TestSettings_ApplyEnv(t *testing.T) {
	isolateEnv(t)

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv(platform.EnvDataDir, "/data")
		t.Setenv(platform.EnvBackend, "kv")
		t.Setenv(platform.EnvMaxBackups, "7")
		t.Setenv(platform.EnvSyncWrites, "true")

		s := platform.Settings{DataDir: "/from/yaml", MaxBackups: 2}
		require.NoError(t, s.ApplyEnv())
		assert.Equal(t, "/data", s.DataDir)
		assert.Equal(t, "kv", s.Backend)
		assert.Equal(t, 7, s.MaxBackups)
		assert.True(t, s.SyncWrites)
	})

	t.Run("Rejects Bad Values", func(t *testing.T) {
		t.Setenv(platform.EnvMaxBackups, "0")
		s := platform.Settings{}
		assert.Error(t, s.ApplyEnv())

		t.Setenv(platform.EnvMaxBackups, "")
		t.Setenv(platform.EnvSyncWrites, "sometimes")
		assert.Error(t, s.ApplyEnv())
	})
}

func TestLoadDotEnv(t *testing.T) {
	const key = "STICKIES_TEST_DOTENV"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-dotenv\n"), 0644))

	require.NoError(t, platform.LoadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv(key))

	require.NoError(t, platform.LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
