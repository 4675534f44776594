package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"feedcache/internal/domain/entity"
	"feedcache/internal/domain/repository"
)

var errTxDone = errors.New("transaction already committed or rolled back")

type memorySnapshot struct {
	timestamp time.Time
	// keyed by position; map iteration gives no order
	images map[int]entity.FeedImageRecord
}

type memoryStorage struct {
	mu        sync.RWMutex
	snapshots map[entity.SnapshotRef]memorySnapshot
	nextRef   entity.SnapshotRef
}

// NewMemoryStorage returns a process-local storage, mainly for tests.
func NewMemoryStorage() repository.SnapshotStorage {
	return &memoryStorage{
		snapshots: make(map[entity.SnapshotRef]memorySnapshot),
	}
}

func (m *memoryStorage) Begin(ctx context.Context, writable bool) (repository.SnapshotTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if writable {
		m.mu.Lock()
	} else {
		m.mu.RLock()
	}

	working := make(map[entity.SnapshotRef]memorySnapshot, len(m.snapshots))
	for ref, snapshot := range m.snapshots {
		working[ref] = snapshot
	}

	return &memoryTx{
		storage:   m,
		writable:  writable,
		snapshots: working,
		nextRef:   m.nextRef,
	}, nil
}

func (m *memoryStorage) Close() error {
	return nil
}

type memoryTx struct {
	storage   *memoryStorage
	writable  bool
	done      bool
	snapshots map[entity.SnapshotRef]memorySnapshot
	nextRef   entity.SnapshotRef
}

func (tx *memoryTx) FindCurrentSnapshot(ctx context.Context) (*entity.SnapshotRecord, error) {
	if tx.done {
		return nil, errTxDone
	}

	for ref, snapshot := range tx.snapshots {
		record := &entity.SnapshotRecord{
			Ref:       ref,
			Timestamp: snapshot.timestamp,
			Images:    make([]entity.FeedImageRecord, 0, len(snapshot.images)),
		}
		for _, image := range snapshot.images {
			record.Images = append(record.Images, image)
		}
		return record, nil
	}

	return nil, nil
}

func (tx *memoryTx) DeleteSnapshot(ctx context.Context, ref entity.SnapshotRef) error {
	if tx.done {
		return errTxDone
	}
	if !tx.writable {
		return errors.New("delete in read-only transaction")
	}

	delete(tx.snapshots, ref)
	return nil
}

func (tx *memoryTx) CreateSnapshot(ctx context.Context, timestamp time.Time, images []entity.FeedImageRecord) (entity.SnapshotRef, error) {
	if tx.done {
		return 0, errTxDone
	}
	if !tx.writable {
		return 0, errors.New("create in read-only transaction")
	}

	tx.nextRef++
	snapshot := memorySnapshot{
		timestamp: timestamp,
		images:    make(map[int]entity.FeedImageRecord, len(images)),
	}
	for _, image := range images {
		snapshot.images[image.Position] = image
	}
	tx.snapshots[tx.nextRef] = snapshot

	return tx.nextRef, nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return errTxDone
	}
	if tx.writable {
		tx.storage.snapshots = tx.snapshots
		tx.storage.nextRef = tx.nextRef
	}
	tx.release()
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.release()
	return nil
}

func (tx *memoryTx) release() {
	tx.done = true
	if tx.writable {
		tx.storage.mu.Unlock()
	} else {
		tx.storage.mu.RUnlock()
	}
}
