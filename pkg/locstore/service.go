package locstore

import (
	"context"
	"sync"
)

// Service wraps a Store with the session's current filter and sort.
type Service struct {
	store Store

	mu     sync.RWMutex
	filter Filter
	sort   Sort
}

// NewService returns a Service with an empty filter and default order.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Store exposes the underlying backend.
func (s *Service) Store() Store {
	return s.store
}

// SetFilter normalizes and stores f, returning the value actually held.
func (s *Service) SetFilter(f Filter) Filter {
	f = f.Normalize()
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	return f
}

func (s *Service) Filter() Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

func (s *Service) SetSort(srt Sort) {
	s.mu.Lock()
	s.sort = srt
	s.mu.Unlock()
}

func (s *Service) Sort() Sort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sort
}

// List queries the store with the current filter and sort.
func (s *Service) List(ctx context.Context) ([]Location, error) {
	s.mu.RLock()
	f, srt := s.filter, s.sort
	s.mu.RUnlock()
	return s.store.Query(ctx, f, srt)
}

// Save creates loc when it has no id, otherwise updates it.
func (s *Service) Save(ctx context.Context, loc Location) (Location, error) {
	if loc.ID == "" {
		return s.store.Create(ctx, loc)
	}
	return s.store.Update(ctx, loc)
}

func (s *Service) GetByID(ctx context.Context, id string) (Location, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) Remove(ctx context.Context, id string) error {
	return s.store.Remove(ctx, id)
}

func (s *Service) CountByRating(ctx context.Context) (Tally, error) {
	return s.store.CountByRating(ctx)
}

func (s *Service) CountByRecency(ctx context.Context) (Tally, error) {
	return s.store.CountByRecency(ctx)
}
