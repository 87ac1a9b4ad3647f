package app

import (
	"sync"

	"github.com/rubiojr/pinmap/pkg/geo"
	"github.com/rubiojr/pinmap/pkg/locstore"
)

// PendingEdit is what the open edit form will do on submit: either
// PendingCreate or PendingUpdate.
type PendingEdit interface {
	pendingEdit()
}

// PendingCreate holds the clicked position of a location not yet saved.
type PendingCreate struct {
	Geo locstore.Geo
}

// PendingUpdate holds the record being edited as it was when the form opened.
type PendingUpdate struct {
	Loc locstore.Location
}

func (PendingCreate) pendingEdit() {}
func (PendingUpdate) pendingEdit() {}

// Session is the controller's mutable state that is not in the store or
// the URL.
type Session struct {
	mu      sync.RWMutex
	userPos *geo.Coords
	pending PendingEdit
	locs    []locstore.Location
}

// UserPosition returns the captured device position, or nil.
func (s *Session) UserPosition() *geo.Coords {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userPos == nil {
		return nil
	}
	c := *s.userPos
	return &c
}

func (s *Session) SetUserPosition(c geo.Coords) {
	s.mu.Lock()
	s.userPos = &c
	s.mu.Unlock()
}

// Pending returns the open form's pending edit, or nil.
func (s *Session) Pending() PendingEdit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

func (s *Session) SetPending(p PendingEdit) {
	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
}

// Locations returns the last rendered list.
func (s *Session) Locations() []locstore.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]locstore.Location(nil), s.locs...)
}

func (s *Session) setLocations(locs []locstore.Location) {
	s.mu.Lock()
	s.locs = append([]locstore.Location(nil), locs...)
	s.mu.Unlock()
}
