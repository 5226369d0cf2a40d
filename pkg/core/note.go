// Package core holds the note domain: the persisted document shape, the
// collection manager and the ports it talks to.
package core

import (
	"fmt"
	"slices"
	"time"
)

// Note is a single user-authored sticky note.
type Note struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// NoteFields carries a partial update. Nil fields are left untouched.
type NoteFields struct {
	Title   *string
	Content *string
}

// apply merges the set fields into n.
func (f NoteFields) apply(n *Note) {
	if f.Title != nil {
		n.Title = *f.Title
	}
	if f.Content != nil {
		n.Content = *f.Content
	}
}

// Document is the unit of persistence: the whole note collection.
// Notes keep insertion order, which is also display order.
type Document struct {
	Notes        []Note    `json:"notes"`
	NextID       int       `json:"nextId"`
	LastModified time.Time `json:"lastModified,omitzero"`
}

// EmptyDocument returns the state every failed read degrades to.
func EmptyDocument() Document {
	return Document{Notes: []Note{}, NextID: 1}
}

// IsEmpty reports whether the document holds no notes.
func (d Document) IsEmpty() bool {
	return len(d.Notes) == 0
}

// MaxID returns the highest note id, or 0 for an empty document.
func (d Document) MaxID() int {
	maxID := 0
	for _, n := range d.Notes {
		if n.ID > maxID {
			maxID = n.ID
		}
	}
	return maxID
}

// Clone returns a copy that shares no slice storage with d.
func (d Document) Clone() Document {
	out := d
	out.Notes = slices.Clone(d.Notes)
	if out.Notes == nil {
		out.Notes = []Note{}
	}
	return out
}

// Normalize repairs a decoded document so that Notes is never nil and
// NextID is strictly greater than every id present.
func (d *Document) Normalize() {
	if d.Notes == nil {
		d.Notes = []Note{}
	}
	if floor := d.MaxID() + 1; d.NextID < floor {
		d.NextID = floor
	}
}

// Equal compares two documents semantically. Timestamps are compared as
// instants, so location and monotonic readings do not matter.
func (d Document) Equal(other Document) bool {
	if d.NextID != other.NextID || !d.LastModified.Equal(other.LastModified) {
		return false
	}
	return slices.EqualFunc(d.Notes, other.Notes, func(a, b Note) bool {
		return a.ID == b.ID &&
			a.Title == b.Title &&
			a.Content == b.Content &&
			a.CreatedAt.Equal(b.CreatedAt) &&
			a.UpdatedAt.Equal(b.UpdatedAt)
	})
}

// DefaultTitle is the label given to the n-th note when none is provided.
func DefaultTitle(n int) string {
	return fmt.Sprintf("Note %d", n)
}
