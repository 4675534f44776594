package repository

import (
	"context"
	"time"

	"feedcache/internal/domain/entity"
)

// SnapshotStorage is a transactional backend for feed snapshots.
type SnapshotStorage interface {
	Begin(ctx context.Context, writable bool) (SnapshotTx, error)
	Close() error
}

// SnapshotTx is one atomic unit of work against a SnapshotStorage. Nothing
// written through it is visible to other transactions until Commit.
// Rollback after Commit is a no-op.
type SnapshotTx interface {
	// FindCurrentSnapshot returns nil when no snapshot is stored.
	FindCurrentSnapshot(ctx context.Context) (*entity.SnapshotRecord, error)
	DeleteSnapshot(ctx context.Context, ref entity.SnapshotRef) error
	CreateSnapshot(ctx context.Context, timestamp time.Time, images []entity.FeedImageRecord) (entity.SnapshotRef, error)
	Commit() error
	Rollback() error
}
