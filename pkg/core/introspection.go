package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	Initialized   bool   `json:"initialized"`
	NoteCount     int    `json:"note_count"`
	NextID        int    `json:"next_id"`
	PersisterType string `json:"persister_type"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	persisterType := "unknown"
	if s.persister != nil {
		persisterType = "persister"
		if comp, ok := s.persister.(introspection.Component); ok {
			persisterType = comp.ComponentType()
		}
	}

	return ServiceState{
		Initialized:   s.initialized,
		NoteCount:     len(s.notes),
		NextID:        s.nextID,
		PersisterType: persisterType,
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "service"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
