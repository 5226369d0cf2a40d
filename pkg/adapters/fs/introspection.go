package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	DataDir       string     `json:"data_dir"`
	DataFile      string     `json:"data_file"`
	BackupFile    string     `json:"backup_file"`
	MaxBackups    int        `json:"max_backups"`
	Snapshots     int        `json:"snapshots"`
	WatcherActive bool       `json:"watcher_active"`
	LastWrite     *time.Time `json:"last_write,omitempty"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	snapshots, _ := r.Snapshots()

	r.mu.RLock()
	defer r.mu.RUnlock()

	return RepositoryState{
		DataDir:       r.paths.DataDir,
		DataFile:      r.paths.DataFile,
		BackupFile:    r.paths.BackupFile,
		MaxBackups:    r.config.MaxBackups,
		Snapshots:     len(snapshots),
		WatcherActive: r.watcherActive,
		LastWrite:     r.lastWrite,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "file-repository"
}

var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)

func (r *Repository) setWatcherActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watcherActive = active
}
