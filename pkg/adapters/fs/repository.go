// Package fs is the primary, file-backed store: one JSON data file, a
// single-slot rotating backup, and retention-pruned timestamped snapshots.
package fs

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jonboulle/clockwork"

	"github.com/aretw0/stickies/pkg/core"
)

const (
	// DefaultName is the base name of the data file (notes.json).
	DefaultName = "notes"
	// DefaultMaxBackups is how many timestamped snapshots are retained.
	DefaultMaxBackups = 5
)

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path       string // Directory holding the data file.
	Name       string // Base name, e.g. "notes" -> notes.json, notes.backup.json.
	MaxBackups int    // Timestamped snapshots to keep. Zero means DefaultMaxBackups.
	Logger     *slog.Logger
	Clock      clockwork.Clock
}

// Paths lists the files the repository manages.
type Paths struct {
	DataDir    string `json:"dataDir"`
	DataFile   string `json:"dataFile"`
	BackupFile string `json:"backupFile"`
}

// SnapshotInfo describes one retained snapshot.
type SnapshotInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"modTime"`
	Size    int64     `json:"size"`
}

// Repository implements the primary note store on the filesystem.
type Repository struct {
	config     Config
	paths      Paths
	serializer core.Serializer
	logger     *slog.Logger
	clock      clockwork.Clock

	// writeMu orders the backup copy strictly before the overwrite and keeps
	// snapshots from copying a file that is being replaced.
	writeMu sync.Mutex

	mu            sync.RWMutex
	lastDigest    [sha256.Size]byte
	lastWrite     *time.Time
	watcherActive bool
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.Name == "" {
		config.Name = DefaultName
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = DefaultMaxBackups
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	return &Repository{
		config: config,
		paths: Paths{
			DataDir:    config.Path,
			DataFile:   filepath.Join(config.Path, config.Name+".json"),
			BackupFile: filepath.Join(config.Path, config.Name+".backup.json"),
		},
		serializer: core.NewJSONSerializer("  "),
		logger:     config.Logger,
		clock:      config.Clock,
	}
}

// Paths returns the managed file locations. It does no I/O.
func (r *Repository) Paths() Paths {
	return r.paths
}

// MaxBackups returns the snapshot retention count.
func (r *Repository) MaxBackups() int {
	return r.config.MaxBackups
}

// Read returns the persisted document, trying the data file first and the
// rotating backup second.
//
// Read never fails: the document it returns is always usable and is the
// empty document when nothing could be read. A non-nil error describes why
// the data file itself was not used (core.KindNotFound on a fresh install,
// core.KindCorrupt for an unparsable file, core.KindIO otherwise).
func (r *Repository) Read(ctx context.Context) (core.Document, core.Source, error) {
	if err := ctx.Err(); err != nil {
		return core.EmptyDocument(), core.SourceEmpty, core.NewStorageError(core.KindIO, "read", r.paths.DataFile, err)
	}

	doc, err := r.readFile(r.paths.DataFile)
	if err == nil {
		return doc, core.SourcePrimary, nil
	}
	if !core.IsKind(err, core.KindNotFound) {
		r.logger.Warn("data file unusable, trying backup", "path", r.paths.DataFile, "error", err)
	}

	backup, berr := r.readFile(r.paths.BackupFile)
	if berr == nil {
		r.logger.Warn("recovered notes from rotating backup", "path", r.paths.BackupFile)
		return backup, core.SourceBackup, err
	}
	if !core.IsKind(berr, core.KindNotFound) {
		r.logger.Warn("backup file unusable", "path", r.paths.BackupFile, "error", berr)
	}

	return core.EmptyDocument(), core.SourceEmpty, err
}

func (r *Repository) readFile(path string) (core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.Document{}, core.NewStorageError(core.KindNotFound, "read", path, err)
		}
		return core.Document{}, core.NewStorageError(core.KindIO, "read", path, err)
	}

	doc, err := r.serializer.Decode(data)
	if err != nil {
		return core.Document{}, core.NewStorageError(core.KindCorrupt, "parse", path, err)
	}
	return doc, nil
}

// Write persists doc as the new data file.
//
// Workflow:
//  1. Create the data directory if missing.
//  2. Copy the current data file (if any) over the rotating backup, so the
//     backup always lags the data file by exactly one write.
//  3. Write the pretty-printed document atomically (temp file + rename).
//
// If the backup copy fails the data file is left untouched.
func (r *Repository) Write(ctx context.Context, doc core.Document) error {
	if err := ctx.Err(); err != nil {
		return core.NewStorageError(core.KindIO, "write", r.paths.DataFile, err)
	}

	data, err := r.serializer.Encode(doc)
	if err != nil {
		return core.NewStorageError(core.KindCorrupt, "encode", r.paths.DataFile, err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := os.MkdirAll(r.paths.DataDir, 0755); err != nil {
		return core.NewStorageError(core.KindIO, "mkdir", r.paths.DataDir, err)
	}

	if _, err := os.Stat(r.paths.DataFile); err == nil {
		if err := copyFileAtomic(r.paths.DataFile, r.paths.BackupFile, time.Time{}); err != nil {
			return core.NewStorageError(core.KindIO, "backup", r.paths.BackupFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return core.NewStorageError(core.KindIO, "stat", r.paths.DataFile, err)
	}

	if err := writeFileAtomic(r.paths.DataFile, data, 0644); err != nil {
		return core.NewStorageError(core.KindIO, "write", r.paths.DataFile, err)
	}

	now := r.clock.Now()
	r.mu.Lock()
	r.lastDigest = sha256.Sum256(data)
	r.lastWrite = &now
	r.mu.Unlock()

	r.logger.Debug("notes written", "path", r.paths.DataFile, "notes", len(doc.Notes), "bytes", len(data))
	return nil
}

// SnapshotName returns the file name of a snapshot taken at t: the ISO-8601
// UTC timestamp with ':' and '.' replaced by '-'.
func SnapshotName(name string, t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return name + ".backup." + ts + ".json"
}

func (r *Repository) snapshotPattern() string {
	return r.config.Name + ".backup.*.json"
}

// Snapshot copies the current data file to a new timestamped snapshot and
// prunes old snapshots down to the retention count. It returns the path of
// the new snapshot. The data file is never modified.
func (r *Repository) Snapshot(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", core.NewStorageError(core.KindIO, "snapshot", r.paths.DataFile, err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, err := os.Stat(r.paths.DataFile); err != nil {
		kind := core.KindIO
		if errors.Is(err, os.ErrNotExist) {
			kind = core.KindNotFound
		}
		return "", core.NewStorageError(kind, "snapshot", r.paths.DataFile, err)
	}

	now := r.clock.Now()
	target, err := r.reserveSnapshot(now)
	if err != nil {
		return "", core.NewStorageError(core.KindIO, "snapshot", r.paths.DataDir, err)
	}
	if err := copyFileAtomic(r.paths.DataFile, target, now); err != nil {
		_ = os.Remove(target)
		return "", core.NewStorageError(core.KindIO, "snapshot", target, err)
	}
	r.logger.Info("snapshot created", "path", target)

	if err := r.pruneSnapshots(); err != nil {
		r.logger.Warn("snapshot retention failed", "error", err)
	}
	return target, nil
}

// reserveSnapshot claims a snapshot file name for t by creating it
// exclusively. Snapshots taken within the same millisecond get a numeric
// suffix instead of replacing each other, also across processes.
func (r *Repository) reserveSnapshot(t time.Time) (string, error) {
	base := SnapshotName(r.config.Name, t)
	stem := strings.TrimSuffix(base, ".json")
	for i := 0; i < maxSnapshotSuffix; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d.json", stem, i)
		}
		path := filepath.Join(r.paths.DataDir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return path, f.Close()
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free snapshot name for %s", base)
}

const maxSnapshotSuffix = 100

// Snapshots lists retained snapshots, most recently modified first.
func (r *Repository) Snapshots() ([]SnapshotInfo, error) {
	names, err := doublestar.Glob(os.DirFS(r.paths.DataDir), r.snapshotPattern())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, core.NewStorageError(core.KindIO, "list snapshots", r.paths.DataDir, err)
	}

	infos := make([]SnapshotInfo, 0, len(names))
	for _, name := range names {
		path := filepath.Join(r.paths.DataDir, name)
		st, err := os.Stat(path)
		if err != nil || st.IsDir() {
			continue
		}
		infos = append(infos, SnapshotInfo{Name: name, Path: path, ModTime: st.ModTime(), Size: st.Size()})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ModTime.Equal(infos[j].ModTime) {
			// Same instant: a suffixed name was taken later.
			if len(infos[i].Name) != len(infos[j].Name) {
				return len(infos[i].Name) > len(infos[j].Name)
			}
			return infos[i].Name > infos[j].Name
		}
		return infos[i].ModTime.After(infos[j].ModTime)
	})
	return infos, nil
}

// pruneSnapshots must be called with writeMu held.
func (r *Repository) pruneSnapshots() error {
	infos, err := r.Snapshots()
	if err != nil {
		return err
	}
	if len(infos) <= r.config.MaxBackups {
		return nil
	}

	var errs []error
	for _, info := range infos[r.config.MaxBackups:] {
		if err := os.Remove(info.Path); err != nil {
			errs = append(errs, core.NewStorageError(core.KindIO, "prune", info.Path, err))
			continue
		}
		r.logger.Debug("deleted old snapshot", "path", info.Path)
	}
	return errors.Join(errs...)
}

// ReadSnapshot decodes a retained snapshot by file name.
func (r *Repository) ReadSnapshot(ctx context.Context, name string) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, core.NewStorageError(core.KindIO, "read snapshot", name, err)
	}
	if filepath.Base(name) != name {
		return core.Document{}, core.NewStorageError(core.KindNotFound, "read snapshot", name, fmt.Errorf("not a snapshot name"))
	}
	if ok, _ := doublestar.Match(r.snapshotPattern(), name); !ok {
		return core.Document{}, core.NewStorageError(core.KindNotFound, "read snapshot", name, fmt.Errorf("not a snapshot name"))
	}
	return r.readFile(filepath.Join(r.paths.DataDir, name))
}

func (r *Repository) isOwnWrite(data []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastWrite != nil && sha256.Sum256(data) == r.lastDigest
}
