// Package storetest holds the behavior every SnapshotStorage must show when
// driven through an application.FeedStore.
package storetest

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"feedcache/internal/application"
	"feedcache/internal/domain/entity"
	"feedcache/internal/domain/repository"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// StorageFactory returns a fresh, empty storage. The suite closes it.
type StorageFactory func(t *testing.T) repository.SnapshotStorage

// Run runs the full suite against storages built by newStorage.
func Run(t *testing.T, newStorage StorageFactory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, sut *application.FeedStore)
	}{
		{"retrieve delivers empty on empty cache", testRetrieveDeliversEmptyOnEmptyCache},
		{"retrieve has no side effects on empty cache", testRetrieveHasNoSideEffectsOnEmptyCache},
		{"retrieve delivers found values on non-empty cache", testRetrieveDeliversFoundValuesOnNonEmptyCache},
		{"retrieve has no side effects on non-empty cache", testRetrieveHasNoSideEffectsOnNonEmptyCache},
		{"retrieve delivers timestamps of any range", testRetrieveDeliversTimestampsOfAnyRange},
		{"insert delivers no error on empty cache", testInsertDeliversNoErrorOnEmptyCache},
		{"insert delivers no error on non-empty cache", testInsertDeliversNoErrorOnNonEmptyCache},
		{"insert overrides previously inserted cache values", testInsertOverridesPreviouslyInsertedCacheValues},
		{"insert preserves order of large feeds", testInsertPreservesOrderOfLargeFeeds},
		{"insert keeps duplicate looking images", testInsertKeepsDuplicateLookingImages},
		{"delete delivers no error on empty cache", testDeleteDeliversNoErrorOnEmptyCache},
		{"delete has no side effects on empty cache", testDeleteHasNoSideEffectsOnEmptyCache},
		{"delete delivers no error on non-empty cache", testDeleteDeliversNoErrorOnNonEmptyCache},
		{"delete empties previously inserted cache", testDeleteEmptiesPreviouslyInsertedCache},
		{"side effects run serially", testSideEffectsRunSerially},
		{"concurrent callers see a consistent state", testConcurrentCallersSeeConsistentState},
		{"insert retrieve delete scenario", testInsertRetrieveDeleteScenario},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sut := application.NewFeedStore(newStorage(t))
			t.Cleanup(func() {
				if err := sut.Close(); err != nil {
					t.Errorf("failed to close store: %v", err)
				}
			})
			tt.fn(t, sut)
		})
	}
}

// UniqueImage returns an image with a fresh id.
func UniqueImage(raw string) entity.FeedImage {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	description := "a description"
	location := "a location"
	return entity.NewFeedImage(uuid.New(), &description, &location, u)
}

// UniqueImageFeed returns two distinct images.
func UniqueImageFeed() []entity.FeedImage {
	return []entity.FeedImage{
		UniqueImage("https://any-url.tld/1.png"),
		UniqueImage("https://any-url.tld/2.png"),
	}
}

func insert(t *testing.T, sut *application.FeedStore, feed []entity.FeedImage, timestamp time.Time) error {
	t.Helper()
	return sut.Insert(context.Background(), feed, timestamp)
}

func deleteCache(t *testing.T, sut *application.FeedStore) error {
	t.Helper()
	return sut.Delete(context.Background())
}

func expectRetrieve(t *testing.T, sut *application.FeedStore, want *entity.CachedFeed) {
	t.Helper()
	got, err := sut.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("unexpected retrieve error: %v", err)
	}
	if want == nil {
		if got != nil {
			t.Fatalf("expected empty cache, got %d images at %v", len(got.Feed), got.Timestamp)
		}
		return
	}
	if got == nil {
		t.Fatalf("expected %d cached images, got empty cache", len(want.Feed))
	}
	if !cmp.Equal(want, got) {
		t.Fatal(cmp.Diff(want, got))
	}
}

func expectRetrieveTwice(t *testing.T, sut *application.FeedStore, want *entity.CachedFeed) {
	t.Helper()
	expectRetrieve(t, sut, want)
	expectRetrieve(t, sut, want)
}

func timestamp() time.Time {
	return time.Date(2024, 5, 17, 9, 30, 15, 123456789, time.UTC)
}

func testRetrieveDeliversEmptyOnEmptyCache(t *testing.T, sut *application.FeedStore) {
	expectRetrieve(t, sut, nil)
}

func testRetrieveHasNoSideEffectsOnEmptyCache(t *testing.T, sut *application.FeedStore) {
	expectRetrieveTwice(t, sut, nil)
}

func testRetrieveDeliversFoundValuesOnNonEmptyCache(t *testing.T, sut *application.FeedStore) {
	feed := UniqueImageFeed()
	ts := timestamp()

	if err := insert(t, sut, feed, ts); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	expectRetrieve(t, sut, &entity.CachedFeed{Feed: feed, Timestamp: ts})
}

func testRetrieveHasNoSideEffectsOnNonEmptyCache(t *testing.T, sut *application.FeedStore) {
	feed := UniqueImageFeed()
	ts := timestamp()

	if err := insert(t, sut, feed, ts); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	expectRetrieveTwice(t, sut, &entity.CachedFeed{Feed: feed, Timestamp: ts})
}

func testRetrieveDeliversTimestampsOfAnyRange(t *testing.T, sut *application.FeedStore) {
	for _, ts := range []time.Time{
		{},
		time.Date(1600, 1, 1, 0, 0, 0, 1, time.UTC),
		time.Date(2300, 1, 1, 23, 59, 59, 999999999, time.UTC),
	} {
		feed := UniqueImageFeed()
		if err := insert(t, sut, feed, ts); err != nil {
			t.Fatalf("unexpected insert error at %v: %v", ts, err)
		}

		expectRetrieve(t, sut, &entity.CachedFeed{Feed: feed, Timestamp: ts})
	}
}

func testInsertDeliversNoErrorOnEmptyCache(t *testing.T, sut *application.FeedStore) {
	if err := insert(t, sut, UniqueImageFeed(), timestamp()); err != nil {
		t.Fatalf("expected no error on empty cache, got %v", err)
	}
}

func testInsertDeliversNoErrorOnNonEmptyCache(t *testing.T, sut *application.FeedStore) {
	if err := insert(t, sut, UniqueImageFeed(), timestamp()); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := insert(t, sut, UniqueImageFeed(), timestamp().Add(time.Minute)); err != nil {
		t.Fatalf("expected no error on non-empty cache, got %v", err)
	}
}

func testInsertOverridesPreviouslyInsertedCacheValues(t *testing.T, sut *application.FeedStore) {
	if err := insert(t, sut, UniqueImageFeed(), timestamp()); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	latestFeed := []entity.FeedImage{UniqueImage("https://any-url.tld/latest.png")}
	latestTimestamp := timestamp().Add(-time.Hour)
	if err := insert(t, sut, latestFeed, latestTimestamp); err != nil {
		t.Fatalf("second insert failed: %v", err)
	}

	expectRetrieve(t, sut, &entity.CachedFeed{Feed: latestFeed, Timestamp: latestTimestamp})
}

func testInsertPreservesOrderOfLargeFeeds(t *testing.T, sut *application.FeedStore) {
	feed := make([]entity.FeedImage, 0, 64)
	for i := 0; i < 64; i++ {
		feed = append(feed, UniqueImage(fmt.Sprintf("https://any-url.tld/%d.png", i)))
	}
	ts := timestamp()

	if err := insert(t, sut, feed, ts); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	expectRetrieve(t, sut, &entity.CachedFeed{Feed: feed, Timestamp: ts})
}

func testInsertKeepsDuplicateLookingImages(t *testing.T, sut *application.FeedStore) {
	first := UniqueImage("https://any-url.tld/same.png")
	second := UniqueImage("https://any-url.tld/same.png")
	feed := []entity.FeedImage{first, second, UniqueImage("https://any-url.tld/other.png")}
	ts := timestamp()

	if err := insert(t, sut, feed, ts); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	expectRetrieve(t, sut, &entity.CachedFeed{Feed: feed, Timestamp: ts})
}

func testDeleteDeliversNoErrorOnEmptyCache(t *testing.T, sut *application.FeedStore) {
	if err := deleteCache(t, sut); err != nil {
		t.Fatalf("expected no error on empty cache, got %v", err)
	}
}

func testDeleteHasNoSideEffectsOnEmptyCache(t *testing.T, sut *application.FeedStore) {
	if err := deleteCache(t, sut); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	expectRetrieve(t, sut, nil)
}

func testDeleteDeliversNoErrorOnNonEmptyCache(t *testing.T, sut *application.FeedStore) {
	if err := insert(t, sut, UniqueImageFeed(), timestamp()); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if err := deleteCache(t, sut); err != nil {
		t.Fatalf("expected no error on non-empty cache, got %v", err)
	}
}

func testDeleteEmptiesPreviouslyInsertedCache(t *testing.T, sut *application.FeedStore) {
	if err := insert(t, sut, UniqueImageFeed(), timestamp()); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if err := deleteCache(t, sut); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	expectRetrieve(t, sut, nil)
}

// testSideEffectsRunSerially issues insert, delete, insert without waiting in
// between. Once the last result arrives the earlier ones must already be
// there, and the store must hold the last inserted feed.
func testSideEffectsRunSerially(t *testing.T, sut *application.FeedStore) {
	lastFeed := UniqueImageFeed()
	ts := timestamp()

	op1 := sut.InsertAsync(UniqueImageFeed(), ts)
	op2 := sut.DeleteAsync()
	op3 := sut.InsertAsync(lastFeed, ts)

	if err := <-op3; err != nil {
		t.Fatalf("last insert failed: %v", err)
	}
	for name, op := range map[string]<-chan error{"first insert": op1, "delete": op2} {
		select {
		case err := <-op:
			if err != nil {
				t.Errorf("%s failed: %v", name, err)
			}
		default:
			t.Errorf("%s had not completed when the last insert did", name)
		}
	}

	expectRetrieve(t, sut, &entity.CachedFeed{Feed: lastFeed, Timestamp: ts})
}

func testConcurrentCallersSeeConsistentState(t *testing.T, sut *application.FeedStore) {
	const callers = 8
	const opsPerCaller = 10

	feeds := make(map[uuid.UUID][]entity.FeedImage)
	var feedsMu sync.Mutex

	var wg sync.WaitGroup
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < opsPerCaller; i++ {
				switch i % 3 {
				case 0:
					feed := []entity.FeedImage{
						UniqueImage(fmt.Sprintf("https://any-url.tld/%d/%d/a.png", c, i)),
						UniqueImage(fmt.Sprintf("https://any-url.tld/%d/%d/b.png", c, i)),
						UniqueImage(fmt.Sprintf("https://any-url.tld/%d/%d/c.png", c, i)),
					}
					feedsMu.Lock()
					feeds[feed[0].ID] = feed
					feedsMu.Unlock()
					if err := sut.Insert(context.Background(), feed, timestamp()); err != nil {
						t.Errorf("insert failed: %v", err)
					}
				case 1:
					if err := sut.Delete(context.Background()); err != nil {
						t.Errorf("delete failed: %v", err)
					}
				default:
					got, err := sut.Retrieve(context.Background())
					if err != nil {
						t.Errorf("retrieve failed: %v", err)
						continue
					}
					if got == nil {
						continue
					}
					if len(got.Feed) == 0 {
						t.Errorf("found cache with no images")
						continue
					}
					feedsMu.Lock()
					want := feeds[got.Feed[0].ID]
					feedsMu.Unlock()
					if !cmp.Equal(want, got.Feed) {
						t.Errorf("torn snapshot: %s", cmp.Diff(want, got.Feed))
					}
				}
			}
		}(c)
	}
	wg.Wait()
}

func testInsertRetrieveDeleteScenario(t *testing.T, sut *application.FeedStore) {
	t1 := timestamp()
	t2 := t1.Add(time.Hour)

	a := UniqueImage("https://any-url.tld/u1")
	if err := insert(t, sut, []entity.FeedImage{a}, t1); err != nil {
		t.Fatalf("insert A failed: %v", err)
	}
	expectRetrieve(t, sut, &entity.CachedFeed{Feed: []entity.FeedImage{a}, Timestamp: t1})

	b := UniqueImage("https://any-url.tld/u2")
	c := UniqueImage("https://any-url.tld/u3")
	if err := insert(t, sut, []entity.FeedImage{b, c}, t2); err != nil {
		t.Fatalf("insert B, C failed: %v", err)
	}
	expectRetrieve(t, sut, &entity.CachedFeed{Feed: []entity.FeedImage{b, c}, Timestamp: t2})

	if err := deleteCache(t, sut); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	expectRetrieve(t, sut, nil)
}
