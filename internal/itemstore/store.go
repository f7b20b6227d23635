// Package itemstore persists vocabulary items and serialises collection runs
// per item.
package itemstore

import (
	"context"
	"time"

	"image-collector/internal/models"
)

// Store is the item read-modify-write collaborator. Load and ListByCategory
// return copies; mutations become visible only through Save.
type Store interface {
	Load(ctx context.Context, key models.ItemKey) (*models.Item, error)
	Save(ctx context.Context, item *models.Item) error
	ListByCategory(ctx context.Context, category string) ([]*models.Item, error)
}

// Release gives up a lock obtained from a Locker.
type Release func(ctx context.Context) error

// Locker grants exclusive collection rights to one item. Acquire fails with
// an ItemBusy error while another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key models.ItemKey, ttl time.Duration) (Release, error)
}
