// Package items keeps the UI-facing cache of an owner's saved items.
package items

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"laterai/internal/domain"
	"laterai/internal/pipeline"
	"laterai/internal/storage"
)

// Store caches one owner's items, newest first. The cache may be stale;
// Refresh replaces it with the store's authoritative list.
type Store struct {
	owner string
	repo  storage.ItemRepository
	limit int
	log   logrus.FieldLogger

	mu        sync.RWMutex
	items     []domain.SavedItem
	listeners map[int]func()
	nextID    int
}

func NewStore(owner string, repo storage.ItemRepository, limit int, logger logrus.FieldLogger) *Store {
	return &Store{
		owner:     owner,
		repo:      repo,
		limit:     limit,
		log:       logger.WithFields(logrus.Fields{"component": "items", "owner_id": owner}),
		listeners: make(map[int]func()),
	}
}

// Owner returns the owner this cache belongs to.
func (s *Store) Owner() string { return s.owner }

// Load fills the cache from the store.
func (s *Store) Load(ctx context.Context) error {
	return s.Refresh(ctx)
}

// Refresh replaces the cache with the store's current list.
func (s *Store) Refresh(ctx context.Context) error {
	fresh, err := s.repo.QueryByOwner(ctx, s.owner, s.limit)
	if err != nil {
		return fmt.Errorf("refresh items: %w", err)
	}
	s.mu.Lock()
	s.items = fresh
	s.mu.Unlock()
	s.notify()
	return nil
}

// Items returns a copy of the cached items.
func (s *Store) Items() []domain.SavedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SavedItem, len(s.items))
	for i, item := range s.items {
		out[i] = item.Clone()
	}
	return out
}

func (s *Store) Get(id string) (domain.SavedItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return domain.SavedItem{}, false
}

// Add prepends item, replacing a cached item with the same id. The
// cache keeps at most limit items when limit is positive.
func (s *Store) Add(item domain.SavedItem) {
	s.mu.Lock()
	if i := s.index(item.ID); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	s.items = append([]domain.SavedItem{item.Clone()}, s.items...)
	if s.limit > 0 && len(s.items) > s.limit {
		s.items = s.items[:s.limit]
	}
	s.mu.Unlock()
	s.notify()
}

// UpdateByID merges patch into the cached item. It reports false and
// does nothing when the item is not cached.
func (s *Store) UpdateByID(id string, patch domain.ItemPatch) bool {
	s.mu.Lock()
	i := s.index(id)
	if i >= 0 {
		patch.Apply(&s.items[i])
	}
	s.mu.Unlock()
	if i < 0 {
		return false
	}
	s.notify()
	return true
}

// ToggleStar flips the star immediately and confirms it with the store.
// If confirmation fails the previous value is restored. Items outside the
// cached window are toggled in the store directly.
func (s *Store) ToggleStar(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	i := s.index(id)
	if i < 0 {
		s.mu.Unlock()
		return s.toggleUncached(ctx, id)
	}
	prior := s.items[i].IsStarred
	s.items[i].IsStarred = !prior
	s.mu.Unlock()
	s.notify()

	if _, err := s.repo.UpdateByID(ctx, id, s.owner, domain.StarPatch(!prior)); err != nil {
		s.log.WithError(err).WithField("item_id", id).Warn("Star not confirmed, reverting")
		s.UpdateByID(id, domain.StarPatch(prior))
		return prior, err
	}
	return !prior, nil
}

func (s *Store) toggleUncached(ctx context.Context, id string) (bool, error) {
	all, err := s.repo.QueryByOwner(ctx, s.owner, 0)
	if err != nil {
		return false, fmt.Errorf("toggle star: %w", err)
	}
	for _, item := range all {
		if item.ID != id {
			continue
		}
		if _, err := s.repo.UpdateByID(ctx, id, s.owner, domain.StarPatch(!item.IsStarred)); err != nil {
			return item.IsStarred, err
		}
		return !item.IsStarred, nil
	}
	return false, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
}

// Remove drops the item immediately and deletes it from the store.
// If the delete fails the cache is reloaded from the store.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if i := s.index(id); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	s.mu.Unlock()
	s.notify()

	if err := s.repo.DeleteByID(ctx, id, s.owner); err != nil {
		s.log.WithError(err).WithField("item_id", id).Warn("Delete not confirmed, reloading")
		if rerr := s.Refresh(context.WithoutCancel(ctx)); rerr != nil {
			s.log.WithError(rerr).Error("Failed to reload items")
		}
		return err
	}
	return nil
}

// HandleEvent applies a capture lifecycle event for this owner.
func (s *Store) HandleEvent(ev pipeline.Event) {
	if ev.Item.OwnerID != s.owner {
		return
	}
	switch ev.Type {
	case pipeline.EventItemCreated:
		s.Add(ev.Item)
	case pipeline.EventItemClassified:
		if !s.UpdateByID(ev.Item.ID, ev.Patch) {
			s.log.WithField("item_id", ev.Item.ID).Debug("Classified item not cached")
		}
	}
}

// OnChange registers fn to run after every cache change and returns a
// function removing it.
func (s *Store) OnChange(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) index(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
