package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"feedcache/internal/domain/entity"
	"feedcache/internal/domain/repository"

	"github.com/google/uuid"
)

// FeedCacheService fills a FeedStore from remote feeds and serves the cached
// feed while it is younger than maxAge.
type FeedCacheService struct {
	feedRepo repository.FeedRepository
	store    repository.FeedStore
	maxAge   time.Duration
	now      func() time.Time
}

// NewFeedCacheService creates a FeedCacheService. A nil now uses time.Now.
func NewFeedCacheService(
	feedRepo repository.FeedRepository,
	store repository.FeedStore,
	maxAge time.Duration,
	now func() time.Time,
) *FeedCacheService {
	if now == nil {
		now = time.Now
	}
	return &FeedCacheService{
		feedRepo: feedRepo,
		store:    store,
		maxAge:   maxAge,
		now:      now,
	}
}

// Refresh replaces the cached feed with the images of every feed URL, in URL
// order. The cache is left untouched when no URL could be fetched.
func (s *FeedCacheService) Refresh(ctx context.Context, rssURLs []string) ([]entity.FeedImage, error) {
	var (
		feed    []entity.FeedImage
		fetched int
		errs    []error
	)
	seen := make(map[uuid.UUID]bool)

	for _, url := range rssURLs {
		images, err := s.feedRepo.Fetch(ctx, url)
		if err != nil {
			log.Printf("Failed to fetch feed [%s]: %v", url, err)
			errs = append(errs, fmt.Errorf("failed to fetch feed [%s]: %w", url, err))
			continue
		}
		fetched++

		for _, image := range images {
			if seen[image.ID] {
				continue
			}
			seen[image.ID] = true
			feed = append(feed, image)
		}
	}

	if fetched == 0 && len(rssURLs) > 0 {
		return nil, fmt.Errorf("no feed could be fetched: %w", errors.Join(errs...))
	}

	if err := s.store.Insert(ctx, feed, s.now()); err != nil {
		return nil, fmt.Errorf("failed to cache feed: %w", err)
	}

	log.Printf("Cached %d images from %d feeds", len(feed), fetched)

	return feed, nil
}

// Load returns the cached feed, or an empty feed when nothing is cached or
// the cache is expired.
func (s *FeedCacheService) Load(ctx context.Context) ([]entity.FeedImage, error) {
	cache, err := s.store.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached feed: %w", err)
	}
	if cache == nil || cache.IsExpired(s.now(), s.maxAge) {
		return []entity.FeedImage{}, nil
	}
	return cache.Feed, nil
}

// ValidateCache deletes the cached feed when it is expired or unreadable.
func (s *FeedCacheService) ValidateCache(ctx context.Context) error {
	cache, err := s.store.Retrieve(ctx)
	switch {
	case err != nil:
		log.Printf("Cached feed unreadable, deleting: %v", err)
	case cache != nil && cache.IsExpired(s.now(), s.maxAge):
		log.Printf("Cached feed from %s expired, deleting", cache.Timestamp.Format(time.RFC3339))
	default:
		return nil
	}

	if err := s.store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete cached feed: %w", err)
	}
	return nil
}
