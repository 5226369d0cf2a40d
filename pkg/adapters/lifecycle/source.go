// Package lifecycle turns data file changes into routable lifecycle events,
// so a lifecycle.Router can dispatch them by topic next to its other sources.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"

	"github.com/aretw0/stickies/pkg/core"
)

// Topics used as the routing key of each Change.
const (
	TopicModify = "notes/modify"
	TopicDelete = "notes/delete"
	TopicAll    = "notes/*"
)

// Topic returns the routing topic for an event type.
func Topic(t core.EventType) string {
	return "notes/" + strings.ToLower(string(t))
}

// Change is a data file event as seen by a router. Notes is the size of the
// collection once the change was handled, or -1 without a counter.
type Change struct {
	core.Event
	Notes int
}

// String is the routing topic, e.g. "notes/modify".
func (c Change) String() string {
	return Topic(c.Type)
}

// Option configures a Source.
type Option func(*Source)

// WithNoteCount annotates every Change with the value of count at the time
// it is emitted.
func WithNoteCount(count func() int) Option {
	return func(s *Source) {
		s.count = count
	}
}

// Source adapts the channel returned by App.Watch (or fs.Repository.Watch).
type Source struct {
	events  <-chan core.Event
	out     chan lifecycle.Event
	count   func() int
	started atomic.Bool
	emitted atomic.Int64
	running atomic.Bool
}

var _ lifecycle.Source = (*Source)(nil)

// NewSource wraps events. Start must be called once to begin forwarding.
func NewSource(events <-chan core.Event, opts ...Option) *Source {
	s := &Source{
		events: events,
		out:    make(chan lifecycle.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Events() <-chan lifecycle.Event {
	return s.out
}

// Start forwards events until ctx is done or the input closes, then closes
// the output. It does not block.
func (s *Source) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("change source already started")
	}
	s.running.Store(true)

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer s.running.Store(false)
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				change := Change{Event: e, Notes: -1}
				if s.count != nil {
					change.Notes = s.count()
				}
				select {
				case s.out <- change:
					s.emitted.Add(1)
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}

// SourceState exposes the forwarding state for observability.
type SourceState struct {
	Running bool  `json:"running"`
	Emitted int64 `json:"emitted"`
}

// State implements introspection.Introspectable.
func (s *Source) State() any {
	return SourceState{
		Running: s.running.Load(),
		Emitted: s.emitted.Load(),
	}
}

// ComponentType implements introspection.Component.
func (s *Source) ComponentType() string {
	return "change-source"
}

var _ introspection.Introspectable = (*Source)(nil)
var _ introspection.Component = (*Source)(nil)
