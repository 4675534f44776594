package repository

import (
	"context"
	"time"

	"feedcache/internal/domain/entity"
)

// FeedStore holds at most one cached feed snapshot.
type FeedStore interface {
	// Retrieve returns nil when the store is empty.
	Retrieve(ctx context.Context) (*entity.CachedFeed, error)
	Insert(ctx context.Context, feed []entity.FeedImage, timestamp time.Time) error
	Delete(ctx context.Context) error
}
