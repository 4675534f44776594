package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedcache/internal/domain/entity"
	"feedcache/internal/domain/repository"

	"github.com/google/go-cmp/cmp"
)

type mockFeedRepository struct {
	feeds map[string][]entity.FeedImage
	errs  map[string]error
}

func (m *mockFeedRepository) Fetch(ctx context.Context, url string) ([]entity.FeedImage, error) {
	if err := m.errs[url]; err != nil {
		return nil, err
	}
	return m.feeds[url], nil
}

type mockFeedStore struct {
	cache       *entity.CachedFeed
	retrieveErr error
	insertErr   error
	deleteErr   error
	inserted    int
	deleted     int
}

var _ repository.FeedStore = (*mockFeedStore)(nil)

func (m *mockFeedStore) Retrieve(ctx context.Context) (*entity.CachedFeed, error) {
	return m.cache, m.retrieveErr
}

func (m *mockFeedStore) Insert(ctx context.Context, feed []entity.FeedImage, timestamp time.Time) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted++
	m.cache = &entity.CachedFeed{Feed: feed, Timestamp: timestamp}
	return nil
}

func (m *mockFeedStore) Delete(ctx context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted++
	m.cache = nil
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

const maxCacheAge = 7 * 24 * time.Hour

func TestFeedCacheService_Refresh_ConcatenatesInURLOrder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	a := uniqueImage(t, "https://example.tld/a.png")
	b := uniqueImage(t, "https://example.tld/b.png")
	c := uniqueImage(t, "https://example.tld/c.png")

	feedRepo := &mockFeedRepository{feeds: map[string][]entity.FeedImage{
		"https://example.tld/rss1": {a, b},
		"https://example.tld/rss2": {c, a},
	}}
	store := &mockFeedStore{}

	service := NewFeedCacheService(feedRepo, store, maxCacheAge, fixedClock(now))

	feed, err := service.Refresh(ctx, []string{"https://example.tld/rss1", "https://example.tld/rss2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []entity.FeedImage{a, b, c}
	if !cmp.Equal(want, feed) {
		t.Error(cmp.Diff(want, feed))
	}
	if store.cache == nil || !store.cache.Timestamp.Equal(now) {
		t.Errorf("expected cache stamped %v, got %+v", now, store.cache)
	}
	if !cmp.Equal(want, store.cache.Feed) {
		t.Error(cmp.Diff(want, store.cache.Feed))
	}
}

func TestFeedCacheService_Refresh_SkipsFailedFeeds(t *testing.T) {
	ctx := context.Background()
	a := uniqueImage(t, "https://example.tld/a.png")

	feedRepo := &mockFeedRepository{
		feeds: map[string][]entity.FeedImage{"https://example.tld/ok": {a}},
		errs:  map[string]error{"https://example.tld/down": errors.New("fetch error")},
	}
	store := &mockFeedStore{}

	service := NewFeedCacheService(feedRepo, store, maxCacheAge, nil)

	feed, err := service.Refresh(ctx, []string{"https://example.tld/down", "https://example.tld/ok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(feed) != 1 || feed[0].ID != a.ID {
		t.Errorf("expected only the reachable feed, got %v", feed)
	}
	if store.inserted != 1 {
		t.Errorf("expected 1 insert, got %d", store.inserted)
	}
}

func TestFeedCacheService_Refresh_AllFeedsFailKeepsCache(t *testing.T) {
	ctx := context.Background()
	previous := &entity.CachedFeed{Feed: []entity.FeedImage{uniqueImage(t, "https://example.tld/old.png")}, Timestamp: time.Now()}

	feedRepo := &mockFeedRepository{errs: map[string]error{"https://example.tld/down": errors.New("fetch error")}}
	store := &mockFeedStore{cache: previous}

	service := NewFeedCacheService(feedRepo, store, maxCacheAge, nil)

	if _, err := service.Refresh(ctx, []string{"https://example.tld/down"}); err == nil {
		t.Fatal("expected error, got nil")
	}
	if store.inserted != 0 {
		t.Errorf("expected no insert, got %d", store.inserted)
	}
	if store.cache != previous {
		t.Error("expected previous cache to be kept")
	}
}

func TestFeedCacheService_Refresh_InsertError(t *testing.T) {
	feedRepo := &mockFeedRepository{feeds: map[string][]entity.FeedImage{
		"https://example.tld/rss": {uniqueImage(t, "https://example.tld/a.png")},
	}}
	store := &mockFeedStore{insertErr: repository.ErrCommitFailure}

	service := NewFeedCacheService(feedRepo, store, maxCacheAge, nil)

	_, err := service.Refresh(context.Background(), []string{"https://example.tld/rss"})
	if !errors.Is(err, repository.ErrCommitFailure) {
		t.Errorf("expected ErrCommitFailure, got %v", err)
	}
}

func TestFeedCacheService_Load(t *testing.T) {
	now := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	feed := []entity.FeedImage{uniqueImage(t, "https://example.tld/a.png")}

	tests := []struct {
		name     string
		cache    *entity.CachedFeed
		expected []entity.FeedImage
	}{
		{"empty cache", nil, []entity.FeedImage{}},
		{"fresh cache", &entity.CachedFeed{Feed: feed, Timestamp: now.Add(-maxCacheAge + time.Second)}, feed},
		{"cache at max age", &entity.CachedFeed{Feed: feed, Timestamp: now.Add(-maxCacheAge)}, []entity.FeedImage{}},
		{"expired cache", &entity.CachedFeed{Feed: feed, Timestamp: now.Add(-maxCacheAge - time.Second)}, []entity.FeedImage{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockFeedStore{cache: tt.cache}
			service := NewFeedCacheService(&mockFeedRepository{}, store, maxCacheAge, fixedClock(now))

			got, err := service.Load(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cmp.Equal(tt.expected, got) {
				t.Error(cmp.Diff(tt.expected, got))
			}
			if store.deleted != 0 {
				t.Errorf("expected Load to have no side effects, got %d deletes", store.deleted)
			}
		})
	}
}

func TestFeedCacheService_Load_RetrieveError(t *testing.T) {
	store := &mockFeedStore{retrieveErr: repository.ErrReadFailure}
	service := NewFeedCacheService(&mockFeedRepository{}, store, maxCacheAge, nil)

	if _, err := service.Load(context.Background()); !errors.Is(err, repository.ErrReadFailure) {
		t.Errorf("expected ErrReadFailure, got %v", err)
	}
}

func TestFeedCacheService_ValidateCache(t *testing.T) {
	now := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	feed := []entity.FeedImage{uniqueImage(t, "https://example.tld/a.png")}

	tests := []struct {
		name          string
		cache         *entity.CachedFeed
		retrieveErr   error
		expectDeleted int
	}{
		{"empty cache", nil, nil, 0},
		{"fresh cache", &entity.CachedFeed{Feed: feed, Timestamp: now.Add(-time.Hour)}, nil, 0},
		{"expired cache", &entity.CachedFeed{Feed: feed, Timestamp: now.Add(-maxCacheAge)}, nil, 1},
		{"unreadable cache", nil, repository.ErrReadFailure, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockFeedStore{cache: tt.cache, retrieveErr: tt.retrieveErr}
			service := NewFeedCacheService(&mockFeedRepository{}, store, maxCacheAge, fixedClock(now))

			if err := service.ValidateCache(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store.deleted != tt.expectDeleted {
				t.Errorf("expected %d deletes, got %d", tt.expectDeleted, store.deleted)
			}
		})
	}
}

func TestFeedCacheService_ValidateCache_DeleteError(t *testing.T) {
	store := &mockFeedStore{retrieveErr: repository.ErrReadFailure, deleteErr: repository.ErrCommitFailure}
	service := NewFeedCacheService(&mockFeedRepository{}, store, maxCacheAge, nil)

	if err := service.ValidateCache(context.Background()); !errors.Is(err, repository.ErrCommitFailure) {
		t.Errorf("expected ErrCommitFailure, got %v", err)
	}
}
