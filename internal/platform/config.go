package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up in the data directory.
const ConfigFileName = "config.yaml"

// Environment variables, applied over config.yaml.
const (
	EnvDataDir    = "STICKIES_DATA_DIR"
	EnvMirrorDir  = "STICKIES_MIRROR_DIR"
	EnvBackend    = "STICKIES_BACKEND"
	EnvMaxBackups = "STICKIES_MAX_BACKUPS"
	EnvSyncWrites = "STICKIES_SYNC_WRITES"
)

// Settings is the persisted configuration. Zero values mean "default".
type Settings struct {
	DataDir    string        `yaml:"data_dir,omitempty"`
	MirrorDir  string        `yaml:"mirror_dir,omitempty"`
	Backend    string        `yaml:"backend,omitempty"`
	MaxBackups int           `yaml:"max_backups,omitempty"`
	SyncWrites bool          `yaml:"sync_writes,omitempty"`
	Debounce   time.Duration `yaml:"debounce_interval,omitempty"`
	Flush      time.Duration `yaml:"flush_interval,omitempty"`
	Snapshot   time.Duration `yaml:"snapshot_interval,omitempty"`
}

// LoadSettings reads a YAML settings file. A missing file is not an error.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return s, nil
}

// ApplyEnv overlays the STICKIES_* environment variables on s.
func (s *Settings) ApplyEnv() error {
	if v := os.Getenv(EnvDataDir); v != "" {
		s.DataDir = v
	}
	if v := os.Getenv(EnvMirrorDir); v != "" {
		s.MirrorDir = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		s.Backend = v
	}
	if v := os.Getenv(EnvMaxBackups); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvMaxBackups, v)
		}
		s.MaxBackups = n
	}
	if v := os.Getenv(EnvSyncWrites); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s must be a boolean, got %q", EnvSyncWrites, v)
		}
		s.SyncWrites = b
	}
	return nil
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// DefaultDataDir is the per-user config directory for notes.json.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "stickies"
	}
	return filepath.Join(dir, "stickies")
}

// DefaultMirrorDir is where the secondary store lives unless configured.
func DefaultMirrorDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "stickies-mirror")
	}
	return filepath.Join(dir, "stickies", "mirror")
}
