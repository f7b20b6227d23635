package itemstore

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/models"
)

// MemoryStore keeps items in a flat slice addressed by index maps. Every
// item crossing the boundary is deep-copied so callers never share state.
type MemoryStore struct {
	mu         sync.RWMutex
	items      []*models.Item
	byKey      map[models.ItemKey]int
	byCategory map[string][]int
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:      map[models.ItemKey]int{},
		byCategory: map[string][]int{},
		now:        time.Now,
	}
}

func (s *MemoryStore) Load(ctx context.Context, key models.ItemKey) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byKey[key]
	if !ok {
		return nil, apperrors.NewItemNotFoundError(key.String())
	}
	return s.items[idx].Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, item *models.Item) error {
	if err := item.Key.Validate(); err != nil {
		return err
	}
	cp := item.Clone()
	now := s.now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byKey[cp.Key]; ok {
		s.items[idx] = cp
		return nil
	}
	idx := len(s.items)
	s.items = append(s.items, cp)
	s.byKey[cp.Key] = idx
	s.byCategory[cp.Key.Category] = append(s.byCategory[cp.Key.Category], idx)
	return nil
}

// ListByCategory returns the category's items ordered by letter, then name.
func (s *MemoryStore) ListByCategory(ctx context.Context, category string) ([]*models.Item, error) {
	s.mu.RLock()
	out := make([]*models.Item, 0, len(s.byCategory[category]))
	for _, idx := range s.byCategory[category] {
		out = append(out, s.items[idx].Clone())
	}
	s.mu.RUnlock()

	sortItems(out)
	return out, nil
}

func sortItems(items []*models.Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Key.Letter != items[j].Key.Letter {
			return items[i].Key.Letter < items[j].Key.Letter
		}
		return items[i].Key.Name < items[j].Key.Name
	})
}
