package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Service owns the in-memory note collection: identity assignment, legacy
// migration, search, and turning mutations into persistence requests.
type Service struct {
	persister Persister
	notifier  Notifier
	clock     clockwork.Clock
	logger    *slog.Logger

	mu          sync.RWMutex
	notes       []Note
	nextID      int
	initialized bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier sets where user-facing notifications go.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides the time source (tests use a fake clock).
func WithClock(c clockwork.Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger for the service.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a new Service backed by p.
func NewService(p Persister, opts ...ServiceOption) *Service {
	s := &Service{
		persister: p,
		notifier:  nopNotifier{},
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		notes:     []Note{},
		nextID:    1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// Initialize loads the persisted collection and migrates legacy records.
// An empty collection is a valid outcome.
func (s *Service) Initialize(ctx context.Context) error {
	res, err := s.persister.Load(ctx)
	if err != nil {
		s.notifier.Notify(Notification{Kind: NotifyInitFailed, Message: "Failed to load notes", Err: err})
		return fmt.Errorf("failed to load notes: %w", err)
	}

	migrated := s.replace(res.Document)

	if res.Imported {
		s.notifier.Notify(Notification{Kind: NotifyImported, Message: "Notes imported from local backup"})
	}
	if migrated > 0 {
		s.logger.Info("migrated legacy notes", "count", migrated)
		doc := s.Document()
		s.persister.SetPendingDocument(doc)
		s.persister.ScheduleDebouncedSave(doc)
	}

	s.logger.Debug("notes initialized", "count", len(res.Document.Notes), "source", res.Source)
	return nil
}

// Reload re-reads the collection, discarding in-memory state. Used when the
// data file was changed by someone else.
// Unsaved local edits are dropped so they cannot overwrite the new file.
func (s *Service) Reload(ctx context.Context) error {
	s.persister.DiscardUnsaved()
	res, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload notes: %w", err)
	}
	// Edits queued while loading belong to the old collection too.
	s.persister.DiscardUnsaved()
	s.replace(res.Document)
	return nil
}

// Restore replaces the collection with a retained snapshot and persists it.
func (s *Service) Restore(ctx context.Context, snapshot string) error {
	r, ok := s.persister.(Restorer)
	if !ok {
		return errors.New("persister does not support snapshots")
	}
	doc, err := r.ReadSnapshot(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("failed to read snapshot %s: %w", snapshot, err)
	}
	s.replace(doc)
	return s.saveNow(ctx, "Snapshot restored")
}

// replace swaps in doc, migrating timestamps. It returns how many notes
// needed migration.
func (s *Service) replace(doc Document) int {
	doc = doc.Clone()
	doc.Normalize()

	now := s.now()
	migrated := 0
	for i := range doc.Notes {
		if migrateTimestamps(&doc.Notes[i], now) {
			migrated++
		}
	}

	s.mu.Lock()
	s.notes = doc.Notes
	s.nextID = doc.NextID
	s.initialized = true
	s.mu.Unlock()
	return migrated
}

// migrateTimestamps fills missing timestamps and keeps UpdatedAt >= CreatedAt.
func migrateTimestamps(n *Note, now time.Time) bool {
	switch {
	case n.CreatedAt.IsZero() && n.UpdatedAt.IsZero():
		n.CreatedAt, n.UpdatedAt = now, now
	case n.CreatedAt.IsZero():
		n.CreatedAt = n.UpdatedAt
	case n.UpdatedAt.IsZero():
		n.UpdatedAt = n.CreatedAt
	case n.UpdatedAt.Before(n.CreatedAt):
		n.UpdatedAt = n.CreatedAt
	default:
		return false
	}
	return true
}

// Create appends a new empty note and saves immediately.
func (s *Service) Create(ctx context.Context) Note {
	now := s.now()

	s.mu.Lock()
	note := Note{
		ID:        s.nextID,
		Title:     DefaultTitle(len(s.notes) + 1),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.nextID++
	s.notes = append(s.notes, note)
	s.mu.Unlock()

	_ = s.saveNow(ctx, "Note created")
	return note
}

// Update merges fields into the note and schedules a debounced save.
// This is the autosave path: nothing is shown to the user.
func (s *Service) Update(id int, fields NoteFields) bool {
	if !s.merge(id, fields) {
		return false
	}
	doc := s.Document()
	s.persister.SetPendingDocument(doc)
	s.persister.ScheduleDebouncedSave(doc)
	return true
}

// SaveManually merges fields into the note and saves immediately.
func (s *Service) SaveManually(ctx context.Context, id int, fields NoteFields) bool {
	if !s.merge(id, fields) {
		return false
	}
	_ = s.saveNow(ctx, "Note saved")
	return true
}

// Delete removes the note and saves immediately.
func (s *Service) Delete(ctx context.Context, id int) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.notes = slices.Delete(s.notes, idx, idx+1)
	s.mu.Unlock()

	_ = s.saveNow(ctx, "Note deleted")
	return true
}

func (s *Service) merge(id int, fields NoteFields) bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	n := &s.notes[idx]
	fields.apply(n)
	if now.After(n.CreatedAt) {
		n.UpdatedAt = now
	} else {
		n.UpdatedAt = n.CreatedAt
	}
	return true
}

// indexOf must be called with s.mu held.
func (s *Service) indexOf(id int) int {
	return slices.IndexFunc(s.notes, func(n Note) bool { return n.ID == id })
}

func (s *Service) saveNow(ctx context.Context, okMsg string) error {
	if err := s.persister.Save(ctx, s.Document()); err != nil {
		s.logger.Error("save failed", "error", err)
		s.notifier.Notify(Notification{Kind: NotifySaveFailed, Message: "Failed to save notes", Err: err})
		return err
	}
	s.notifier.Notify(Notification{Kind: NotifySaved, Message: okMsg})
	return nil
}

// Search returns notes whose title or content contains term, ignoring case.
// A blank term returns the whole collection. Order is preserved.
func (s *Service) Search(term string) []Note {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.GetAll()
	}
	needle := strings.ToLower(term)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Note{}
	for _, n := range s.notes {
		if strings.Contains(strings.ToLower(n.Title), needle) ||
			strings.Contains(strings.ToLower(n.Content), needle) {
			out = append(out, n)
		}
	}
	return out
}

// GetAll returns a copy of the collection in display order.
func (s *Service) GetAll() []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.notes)
	if out == nil {
		out = []Note{}
	}
	return out
}

// GetByID returns the note with the given id.
func (s *Service) GetByID(id int) (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexOf(id); idx >= 0 {
		return s.notes[idx], true
	}
	return Note{}, false
}

// NextID returns the identifier the next created note will get.
func (s *Service) NextID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}

// Document snapshots the collection for persistence.
func (s *Service) Document() Document {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := Document{
		Notes:        slices.Clone(s.notes),
		NextID:       s.nextID,
		LastModified: now,
	}
	if doc.Notes == nil {
		doc.Notes = []Note{}
	}
	return doc
}
