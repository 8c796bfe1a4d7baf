package items

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"laterai/internal/pipeline"
	"laterai/internal/storage"
)

// Registry holds one Store per owner and feeds them orchestrator events.
type Registry struct {
	repo   storage.ItemRepository
	limit  int
	logger logrus.FieldLogger

	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry(repo storage.ItemRepository, limit int, logger logrus.FieldLogger) *Registry {
	return &Registry{
		repo:   repo,
		limit:  limit,
		logger: logger,
		stores: make(map[string]*Store),
	}
}

// For returns the owner's store, loading it on first use.
func (r *Registry) For(ctx context.Context, owner string) (*Store, error) {
	r.mu.Lock()
	s, ok := r.stores[owner]
	r.mu.Unlock()
	if ok {
		return s, nil
	}

	s = NewStore(owner, r.repo, r.limit, r.logger)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.stores[owner]; ok {
		return existing, nil
	}
	r.stores[owner] = s
	return s, nil
}

// Lookup returns the owner's store if it was loaded.
func (r *Registry) Lookup(owner string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[owner]
	return s, ok
}

// HandleEvent routes ev to its owner's store. Events for owners
// without a loaded store are dropped.
func (r *Registry) HandleEvent(ev pipeline.Event) {
	if s, ok := r.Lookup(ev.Item.OwnerID); ok {
		s.HandleEvent(ev)
	}
}
