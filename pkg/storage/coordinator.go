// Package storage coordinates the primary and secondary stores: backend
// selection, mirroring, self-healing loads, debounced and periodic saves, and
// periodic snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/introspection"

	"github.com/aretw0/stickies/pkg/adapters/fs"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/scheduler"
)

const (
	DefaultDebounceInterval = time.Second
	DefaultFlushInterval    = 30 * time.Second
	DefaultSnapshotInterval = 30 * time.Minute
)

// Scheduler keys.
const (
	keyDebounce = "debounce"
	keyFlush    = "flush"
	keySnapshot = "snapshot"
)

// Primary is the durable, file-backed store.
type Primary interface {
	Read(ctx context.Context) (core.Document, core.Source, error)
	Write(ctx context.Context, doc core.Document) error
	Snapshot(ctx context.Context) (string, error)
	Snapshots() ([]fs.SnapshotInfo, error)
	ReadSnapshot(ctx context.Context, name string) (core.Document, error)
	Paths() fs.Paths
}

// Secondary is the last-write-wins mirror.
type Secondary interface {
	Read(ctx context.Context) (core.Document, error)
	Write(ctx context.Context, doc core.Document) error
}

// Config holds the coordinator's collaborators and intervals.
type Config struct {
	Capability Capability
	Primary    Primary
	Secondary  Secondary // Optional when Capability is CapabilityFile.
	Scheduler  *scheduler.Scheduler
	Logger     *slog.Logger

	DebounceInterval time.Duration
	FlushInterval    time.Duration
	SnapshotInterval time.Duration
}

// request is a document stamped with the order in which it was handed to
// the coordinator.
type request struct {
	doc core.Document
	seq uint64
}

// Coordinator implements core.Persister and core.Restorer.
type Coordinator struct {
	config        Config
	logger        *slog.Logger
	sched         *scheduler.Scheduler
	ownsScheduler bool

	seq atomic.Uint64

	// writeMu serializes writes. lastSeq is the newest request written so far.
	writeMu sync.Mutex
	lastSeq uint64

	mu        sync.Mutex
	debounced *request
	pending   *request
	closed    bool
	stats     stats
}

type stats struct {
	saves          int
	staleDropped   int
	mirrorFailures int
	lastSave       *time.Time
	lastError      string
	lastSource     core.Source
	imported       bool
}

// New creates a coordinator. The capability is fixed for its lifetime.
func New(config Config) (*Coordinator, error) {
	switch config.Capability {
	case CapabilityFile:
		if config.Primary == nil {
			return nil, errors.New("storage: file capability requires a primary store")
		}
	case CapabilityKVOnly:
		if config.Secondary == nil {
			return nil, errors.New("storage: kv-only capability requires a secondary store")
		}
	default:
		return nil, fmt.Errorf("storage: unknown capability %q", config.Capability)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultDebounceInterval
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.SnapshotInterval <= 0 {
		config.SnapshotInterval = DefaultSnapshotInterval
	}

	c := &Coordinator{
		config: config,
		logger: config.Logger,
		sched:  config.Scheduler,
	}
	if c.sched == nil {
		c.sched = scheduler.New(nil, config.Logger)
		c.ownsScheduler = true
	}
	return c, nil
}

// Capability returns the backend selection made at construction.
func (c *Coordinator) Capability() Capability {
	return c.config.Capability
}

func (c *Coordinator) stamp(doc core.Document) request {
	return request{doc: doc.Clone(), seq: c.seq.Add(1)}
}

// Load returns the best document available.
//
// With a usable primary it reads the primary; when that yields no notes the
// secondary is consulted, and a non-empty mirror is adopted and written back
// to the primary. In kv-only mode the secondary is used exclusively.
// Backend failures degrade to the empty document; the only error is ctx's.
func (c *Coordinator) Load(ctx context.Context) (core.LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return core.LoadResult{Document: core.EmptyDocument(), Source: core.SourceEmpty}, err
	}

	result := c.load(ctx)

	c.mu.Lock()
	c.stats.lastSource = result.Source
	c.stats.imported = result.Imported
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Coordinator) load(ctx context.Context) core.LoadResult {
	if c.config.Capability == CapabilityKVOnly {
		doc, err := c.config.Secondary.Read(ctx)
		if err != nil {
			if !core.IsKind(err, core.KindNotFound) {
				c.logger.Warn("secondary store unreadable", "error", err)
			}
			return core.LoadResult{Document: core.EmptyDocument(), Source: core.SourceEmpty}
		}
		return core.LoadResult{Document: doc, Source: core.SourceSecondary}
	}

	doc, source, err := c.config.Primary.Read(ctx)
	if err != nil && !core.IsKind(err, core.KindNotFound) {
		c.logger.Warn("primary store degraded", "source", source, "error", err)
	}
	if !doc.IsEmpty() || c.config.Secondary == nil {
		return core.LoadResult{Document: doc, Source: source}
	}

	mirror, err := c.config.Secondary.Read(ctx)
	if err != nil || mirror.IsEmpty() {
		if err != nil && !core.IsKind(err, core.KindNotFound) {
			c.logger.Warn("secondary store unreadable", "error", err)
		}
		return core.LoadResult{Document: doc, Source: source}
	}

	c.writeMu.Lock()
	if err := c.config.Primary.Write(ctx, mirror); err != nil {
		c.logger.Error("failed to restore primary store from mirror", "error", err)
	} else {
		c.logger.Info("primary store restored from mirror", "notes", len(mirror.Notes))
	}
	c.writeMu.Unlock()

	return core.LoadResult{Document: mirror, Source: core.SourceSecondary, Imported: true}
}

// Save writes doc now. With a usable primary the document is mirrored into
// the secondary whatever the primary's outcome; the returned error reports
// the primary. In kv-only mode it reports the secondary.
func (c *Coordinator) Save(ctx context.Context, doc core.Document) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return core.NewStorageError(core.KindUnavailable, "save", "", core.ErrClosed)
	}
	return c.write(ctx, c.stamp(doc))
}

// write executes req unless a newer request was already written.
func (c *Coordinator) write(ctx context.Context, req request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if req.seq < c.lastSeq {
		c.logger.Debug("dropping stale write", "seq", req.seq, "last", c.lastSeq)
		c.mu.Lock()
		c.stats.staleDropped++
		c.mu.Unlock()
		return nil
	}
	c.lastSeq = req.seq

	var err, mirrorErr error
	switch c.config.Capability {
	case CapabilityKVOnly:
		err = c.config.Secondary.Write(ctx, req.doc)
	default:
		err = c.config.Primary.Write(ctx, req.doc)
		if c.config.Secondary != nil {
			mirrorErr = c.config.Secondary.Write(ctx, req.doc)
		}
	}

	if err != nil {
		c.logger.Error("save failed", "capability", c.config.Capability, "error", err)
	}
	if mirrorErr != nil {
		c.logger.Warn("mirror write failed", "error", mirrorErr)
	}

	now := c.sched.Clock().Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if mirrorErr != nil {
		c.stats.mirrorFailures++
	}
	if err != nil {
		c.stats.lastError = err.Error()
		return err
	}
	c.stats.saves++
	c.stats.lastSave = &now
	c.stats.lastError = ""

	// Anything requested before this write is now superseded.
	if c.pending != nil && c.pending.seq <= req.seq {
		c.pending = nil
	}
	if c.debounced != nil && c.debounced.seq <= req.seq {
		c.debounced = nil
		c.sched.Cancel(keyDebounce)
	}
	return nil
}

// ScheduleDebouncedSave writes doc after the debounce interval passes with
// no newer call. Each call replaces the previous one.
func (c *Coordinator) ScheduleDebouncedSave(doc core.Document) {
	req := c.stamp(doc)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.logger.Warn("debounced save after close ignored")
		return
	}
	c.debounced = &req
	c.sched.ScheduleOnce(keyDebounce, c.config.DebounceInterval, func() {
		c.mu.Lock()
		if c.debounced == nil || c.debounced.seq != req.seq {
			c.mu.Unlock()
			return
		}
		c.debounced = nil
		c.mu.Unlock()

		_ = c.write(context.Background(), req)
	})
}

// SetPendingDocument records doc for the periodic flush.
func (c *Coordinator) SetPendingDocument(doc core.Document) {
	req := c.stamp(doc)
	c.mu.Lock()
	c.pending = &req
	c.mu.Unlock()
}

// ClearPendingDocument drops the recorded document.
func (c *Coordinator) ClearPendingDocument() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

// DiscardUnsaved drops the pending and debounced documents and fences off
// every request stamped so far, so none of them reaches the stores. Requests
// made afterwards are written as usual.
func (c *Coordinator) DiscardUnsaved() {
	fence := c.seq.Add(1)

	c.writeMu.Lock()
	if fence > c.lastSeq {
		c.lastSeq = fence
	}
	c.writeMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	if c.debounced != nil {
		c.debounced = nil
		c.sched.Cancel(keyDebounce)
	}
}

// StartPeriodicFlush writes the pending document, if any, every flush interval.
func (c *Coordinator) StartPeriodicFlush() {
	c.sched.ScheduleRepeating(keyFlush, c.config.FlushInterval, func() {
		c.mu.Lock()
		pending := c.pending
		c.mu.Unlock()
		if pending == nil {
			return
		}
		c.logger.Debug("periodic flush", "seq", pending.seq)
		_ = c.write(context.Background(), *pending)
	})
}

// StopPeriodicFlush stops future periodic flushes. A running one completes.
func (c *Coordinator) StopPeriodicFlush() {
	c.sched.Cancel(keyFlush)
}

// SnapshotPeriodically snapshots the primary every snapshot interval.
// It does nothing in kv-only mode.
func (c *Coordinator) SnapshotPeriodically() {
	if c.config.Capability != CapabilityFile {
		c.logger.Debug("periodic snapshots disabled without a primary store")
		return
	}
	c.sched.ScheduleRepeating(keySnapshot, c.config.SnapshotInterval, func() {
		if _, err := c.Snapshot(context.Background()); err != nil {
			c.logger.Warn("periodic snapshot failed", "error", err)
		}
	})
}

// StopSnapshots stops future periodic snapshots.
func (c *Coordinator) StopSnapshots() {
	c.sched.Cancel(keySnapshot)
}

// Flush writes the armed debounced document, or else the pending one, now.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	req := c.debounced
	if req != nil {
		c.debounced = nil
		c.sched.Cancel(keyDebounce)
	} else {
		req = c.pending
	}
	c.mu.Unlock()

	if req == nil {
		return nil
	}
	return c.write(ctx, *req)
}

// Close stops every timer, flushes outstanding work and refuses further saves.
// It must not be called from a scheduled job.
func (c *Coordinator) Close(ctx context.Context) error {
	c.StopPeriodicFlush()
	c.StopSnapshots()
	err := c.Flush(ctx)

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if c.ownsScheduler {
		c.sched.Stop()
	}
	return err
}

// Snapshot takes a timestamped snapshot of the primary.
func (c *Coordinator) Snapshot(ctx context.Context) (string, error) {
	if c.config.Capability != CapabilityFile {
		return "", core.NewStorageError(core.KindUnavailable, "snapshot", "", errors.New("no primary store"))
	}
	return c.config.Primary.Snapshot(ctx)
}

// Snapshots lists retained snapshots, newest first. Empty in kv-only mode.
func (c *Coordinator) Snapshots() ([]fs.SnapshotInfo, error) {
	if c.config.Capability != CapabilityFile {
		return nil, nil
	}
	return c.config.Primary.Snapshots()
}

// ReadSnapshot implements core.Restorer.
func (c *Coordinator) ReadSnapshot(ctx context.Context, name string) (core.Document, error) {
	if c.config.Capability != CapabilityFile {
		return core.Document{}, core.NewStorageError(core.KindUnavailable, "read snapshot", name, errors.New("no primary store"))
	}
	return c.config.Primary.ReadSnapshot(ctx, name)
}

// Paths returns the primary's file locations. It does no I/O.
func (c *Coordinator) Paths() fs.Paths {
	if c.config.Primary == nil {
		return fs.Paths{}
	}
	return c.config.Primary.Paths()
}

var (
	_ core.Persister = (*Coordinator)(nil)
	_ core.Restorer  = (*Coordinator)(nil)
)

// CoordinatorState exposes internal state for observability.
type CoordinatorState struct {
	Capability      Capability  `json:"capability"`
	DebounceArmed   bool        `json:"debounce_armed"`
	PendingDocument bool        `json:"pending_document"`
	PeriodicFlush   bool        `json:"periodic_flush"`
	PeriodicSnap    bool        `json:"periodic_snapshots"`
	Closed          bool        `json:"closed"`
	Saves           int         `json:"saves"`
	StaleDropped    int         `json:"stale_dropped"`
	MirrorFailures  int         `json:"mirror_failures"`
	LastSave        *time.Time  `json:"last_save,omitempty"`
	LastError       string      `json:"last_error,omitempty"`
	LoadedFrom      core.Source `json:"loaded_from,omitempty"`
	Imported        bool        `json:"imported"`
	Primary         any         `json:"primary,omitempty"`
	Secondary       any         `json:"secondary,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Coordinator) State() any {
	c.mu.Lock()
	state := CoordinatorState{
		Capability:      c.config.Capability,
		DebounceArmed:   c.debounced != nil,
		PendingDocument: c.pending != nil,
		Closed:          c.closed,
		Saves:           c.stats.saves,
		StaleDropped:    c.stats.staleDropped,
		MirrorFailures:  c.stats.mirrorFailures,
		LastSave:        c.stats.lastSave,
		LastError:       c.stats.lastError,
		LoadedFrom:      c.stats.lastSource,
		Imported:        c.stats.imported,
	}
	c.mu.Unlock()

	state.PeriodicFlush = c.sched.Pending(keyFlush)
	state.PeriodicSnap = c.sched.Pending(keySnapshot)
	if intro, ok := c.config.Primary.(introspection.Introspectable); ok && c.config.Capability == CapabilityFile {
		state.Primary = intro.State()
	}
	if intro, ok := c.config.Secondary.(introspection.Introspectable); ok {
		state.Secondary = intro.State()
	}
	return state
}

// ComponentType implements introspection.Component.
func (c *Coordinator) ComponentType() string {
	return "storage-coordinator"
}

var _ introspection.Introspectable = (*Coordinator)(nil)
var _ introspection.Component = (*Coordinator)(nil)
