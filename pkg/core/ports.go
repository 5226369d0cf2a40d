package core

import (
	"context"
	"time"
)

// Source tells where a loaded document came from.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceBackup    Source = "backup"
	SourceSecondary Source = "secondary"
	SourceEmpty     Source = "empty"
)

// LoadResult is what a Persister hands back on startup.
type LoadResult struct {
	Document Document
	Source   Source
	// Imported is set when the document was recovered from the secondary
	// store and written back to the primary one.
	Imported bool
}

// Persister defines the contract the Service uses to make the collection durable.
// Implementations own backend selection and the backup lifecycle.
type Persister interface {
	// Load returns the best document available. It only fails if ctx is done.
	Load(ctx context.Context) (LoadResult, error)

	// Save writes doc immediately.
	Save(ctx context.Context, doc Document) error

	// ScheduleDebouncedSave writes doc once no newer request arrived for the
	// debounce interval. Each call supersedes the previous one.
	ScheduleDebouncedSave(doc Document)

	// SetPendingDocument records doc for the periodic flush.
	SetPendingDocument(doc Document)

	// ClearPendingDocument drops the recorded document.
	ClearPendingDocument()

	// DiscardUnsaved drops every save requested so far that has not reached
	// the stores yet, debounced ones included.
	DiscardUnsaved()
}

// Restorer is implemented by persisters that can read back a retained snapshot.
type Restorer interface {
	ReadSnapshot(ctx context.Context, name string) (Document, error)
}

// NotificationKind enumerates the user-facing notifications.
type NotificationKind string

const (
	NotifyImported   NotificationKind = "imported"
	NotifySaved      NotificationKind = "saved"
	NotifySaveFailed NotificationKind = "save_failed"
	NotifyInitFailed NotificationKind = "init_failed"
)

// Notification is a message meant for the user, not for the log.
type Notification struct {
	Kind    NotificationKind
	Message string
	Err     error
}

// Notifier delivers notifications to whatever UI hosts the service.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

// EventType represents the type of change observed on disk.
type EventType string

const (
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event reports a change to the data file made outside this process.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// String implements fmt.Stringer.
func (e Event) String() string {
	return string(e.Type) + " " + e.Path
}
