package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"feedcache/internal/domain/entity"
	"feedcache/internal/domain/repository"
)

// RetrieveResult is delivered once a retrieve has run. A nil Cache with a
// nil Err means the store is empty.
type RetrieveResult struct {
	Cache *entity.CachedFeed
	Err   error
}

// FeedStore keeps a single feed snapshot in a SnapshotStorage. Every
// operation is queued and run one at a time, in issue order, by a single
// worker goroutine that exclusively owns the storage handle.
type FeedStore struct {
	storage repository.SnapshotStorage

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func(ctx context.Context)
	closed bool
	done   chan struct{}
}

var _ repository.FeedStore = (*FeedStore)(nil)

// NewFeedStore starts the worker goroutine for storage. Call Close to stop it.
func NewFeedStore(storage repository.SnapshotStorage) *FeedStore {
	s := &FeedStore{
		storage: storage,
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	go s.run()

	return s
}

func (s *FeedStore) run() {
	defer close(s.done)

	ctx := context.Background()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		op := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		op(ctx)
	}
}

func (s *FeedStore) enqueue(op func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.queue = append(s.queue, op)
	s.cond.Signal()
	return true
}

// Close stops accepting operations, waits for queued ones to finish and
// closes the underlying storage.
func (s *FeedStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done
	return s.storage.Close()
}

// RetrieveAsync queues a retrieve and returns the channel its result arrives on.
func (s *FeedStore) RetrieveAsync() <-chan RetrieveResult {
	result := make(chan RetrieveResult, 1)
	if !s.enqueue(func(ctx context.Context) {
		cache, err := s.retrieve(ctx)
		result <- RetrieveResult{Cache: cache, Err: err}
	}) {
		result <- RetrieveResult{Err: repository.ErrStoreClosed}
	}
	return result
}

// InsertAsync queues a replace of the cached feed with feed stamped at timestamp.
func (s *FeedStore) InsertAsync(feed []entity.FeedImage, timestamp time.Time) <-chan error {
	// Callers may reuse their slice once the call returns.
	feed = append([]entity.FeedImage(nil), feed...)

	result := make(chan error, 1)
	if !s.enqueue(func(ctx context.Context) {
		result <- s.insert(ctx, feed, timestamp)
	}) {
		result <- repository.ErrStoreClosed
	}
	return result
}

// DeleteAsync queues removal of the cached feed.
func (s *FeedStore) DeleteAsync() <-chan error {
	result := make(chan error, 1)
	if !s.enqueue(func(ctx context.Context) {
		result <- s.delete(ctx)
	}) {
		result <- repository.ErrStoreClosed
	}
	return result
}

// Retrieve waits for a queued retrieve. If ctx ends first only the wait is
// abandoned.
func (s *FeedStore) Retrieve(ctx context.Context) (*entity.CachedFeed, error) {
	select {
	case res := <-s.RetrieveAsync():
		return res.Cache, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Insert waits for a queued insert. If ctx ends first only the wait is abandoned.
func (s *FeedStore) Insert(ctx context.Context, feed []entity.FeedImage, timestamp time.Time) error {
	return wait(ctx, s.InsertAsync(feed, timestamp))
}

// Delete waits for a queued delete. If ctx ends first only the wait is abandoned.
func (s *FeedStore) Delete(ctx context.Context) error {
	return wait(ctx, s.DeleteAsync())
}

func wait(ctx context.Context, result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *FeedStore) retrieve(ctx context.Context) (*entity.CachedFeed, error) {
	tx, err := s.storage.Begin(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read: %w: %w", repository.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	record, err := tx.FindCurrentSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrReadFailure, err)
	}
	if record == nil || len(record.Images) == 0 {
		return nil, nil
	}

	images := append([]entity.FeedImageRecord(nil), record.Images...)
	sort.Slice(images, func(i, j int) bool {
		return images[i].Position < images[j].Position
	})

	feed := make([]entity.FeedImage, 0, len(images))
	for _, image := range images {
		fi, err := image.ToFeedImage()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", repository.ErrReadFailure, err)
		}
		feed = append(feed, fi)
	}

	return &entity.CachedFeed{Feed: feed, Timestamp: record.Timestamp}, nil
}

func (s *FeedStore) insert(ctx context.Context, feed []entity.FeedImage, timestamp time.Time) error {
	records := make([]entity.FeedImageRecord, 0, len(feed))
	for i, image := range feed {
		if !image.IsValid() {
			return fmt.Errorf("%w at position %d", repository.ErrInvalidFeedImage, i)
		}
		records = append(records, entity.NewFeedImageRecord(image, i))
	}

	return s.update(ctx, func(tx repository.SnapshotTx) error {
		if err := deleteCurrent(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.CreateSnapshot(ctx, timestamp, records); err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		return nil
	})
}

func (s *FeedStore) delete(ctx context.Context) error {
	return s.update(ctx, func(tx repository.SnapshotTx) error {
		return deleteCurrent(ctx, tx)
	})
}

// update runs fn in one write transaction. Anything fn or Commit fails on
// is rolled back and reported as a commit failure.
func (s *FeedStore) update(ctx context.Context, fn func(tx repository.SnapshotTx) error) error {
	tx, err := s.storage.Begin(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to begin write: %w: %w", repository.ErrStorageUnavailable, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %w", repository.ErrCommitFailure, err)
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %w", repository.ErrCommitFailure, err)
	}

	return nil
}

func deleteCurrent(ctx context.Context, tx repository.SnapshotTx) error {
	current, err := tx.FindCurrentSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to find current snapshot: %w", err)
	}
	if current == nil {
		return nil
	}
	if err := tx.DeleteSnapshot(ctx, current.Ref); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
