package repository

import (
	"context"

	"feedcache/internal/domain/entity"
)

type FeedRepository interface {
	Fetch(ctx context.Context, url string) ([]entity.FeedImage, error)
}
