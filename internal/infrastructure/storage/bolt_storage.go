package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"feedcache/internal/domain/entity"
	"feedcache/internal/domain/repository"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// Layout: feed_cache/{ref} holds a "meta" key and an "images" bucket keyed
// by position.
var (
	cacheBucket  = []byte("feed_cache")
	imagesBucket = []byte("images")
	metaKey      = []byte("meta")
)

type boltMeta struct {
	CachedAt time.Time `json:"cached_at"`
}

type boltImage struct {
	ID          uuid.UUID `json:"id"`
	Description *string   `json:"description,omitempty"`
	Location    *string   `json:"location,omitempty"`
	URL         string    `json:"url"`
	Position    int       `json:"position"`
}

type boltStorage struct {
	db *bbolt.DB
}

// NewBoltStorage opens or creates a BoltDB file at path.
func NewBoltStorage(path string) (repository.SnapshotStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: bolt database path is required", repository.ErrStorageUnavailable)
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bolt database: %w", repository.ErrStorageUnavailable, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to create feed cache bucket: %w", repository.ErrStorageUnavailable, err)
	}

	return &boltStorage{db: db}, nil
}

func (s *boltStorage) Begin(ctx context.Context, writable bool) (repository.SnapshotTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := s.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &boltTx{tx: tx}, nil
}

func (s *boltStorage) Close() error {
	return s.db.Close()
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) cache() (*bbolt.Bucket, error) {
	bucket := t.tx.Bucket(cacheBucket)
	if bucket == nil {
		return nil, errors.New("feed cache bucket is missing")
	}
	return bucket, nil
}

func (t *boltTx) FindCurrentSnapshot(ctx context.Context) (*entity.SnapshotRecord, error) {
	bucket, err := t.cache()
	if err != nil {
		return nil, err
	}

	key, _ := bucket.Cursor().First()
	if key == nil {
		return nil, nil
	}

	snapshot := bucket.Bucket(key)
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot %x is not a bucket", key)
	}

	var meta boltMeta
	if err := json.Unmarshal(snapshot.Get(metaKey), &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot meta: %w", err)
	}

	record := &entity.SnapshotRecord{
		Ref:       entity.SnapshotRef(binary.BigEndian.Uint64(key)),
		Timestamp: meta.CachedAt,
	}

	images := snapshot.Bucket(imagesBucket)
	if images == nil {
		return record, nil
	}
	err = images.ForEach(func(_, payload []byte) error {
		var image boltImage
		if err := json.Unmarshal(payload, &image); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot image: %w", err)
		}
		record.Images = append(record.Images, entity.FeedImageRecord{
			ID:          image.ID,
			Description: image.Description,
			Location:    image.Location,
			URL:         image.URL,
			Position:    image.Position,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (t *boltTx) DeleteSnapshot(ctx context.Context, ref entity.SnapshotRef) error {
	bucket, err := t.cache()
	if err != nil {
		return err
	}
	err = bucket.DeleteBucket(refKey(ref))
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return nil
	}
	return err
}

func (t *boltTx) CreateSnapshot(ctx context.Context, timestamp time.Time, images []entity.FeedImageRecord) (entity.SnapshotRef, error) {
	bucket, err := t.cache()
	if err != nil {
		return 0, err
	}

	seq, err := bucket.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate snapshot ref: %w", err)
	}
	ref := entity.SnapshotRef(seq)

	snapshot, err := bucket.CreateBucket(refKey(ref))
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot bucket: %w", err)
	}

	meta, err := json.Marshal(boltMeta{CachedAt: timestamp})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot meta: %w", err)
	}
	if err := snapshot.Put(metaKey, meta); err != nil {
		return 0, fmt.Errorf("failed to put snapshot meta: %w", err)
	}

	imageBucket, err := snapshot.CreateBucket(imagesBucket)
	if err != nil {
		return 0, fmt.Errorf("failed to create images bucket: %w", err)
	}
	for _, image := range images {
		payload, err := json.Marshal(boltImage{
			ID:          image.ID,
			Description: image.Description,
			Location:    image.Location,
			URL:         image.URL,
			Position:    image.Position,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to marshal image: %w", err)
		}
		if err := imageBucket.Put(positionKey(image.Position), payload); err != nil {
			return 0, fmt.Errorf("failed to put image at position %d: %w", image.Position, err)
		}
	}

	return ref, nil
}

func (t *boltTx) Commit() error {
	if !t.tx.Writable() {
		return t.tx.Rollback()
	}
	return t.tx.Commit()
}

func (t *boltTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, bbolt.ErrTxClosed) {
		return nil
	}
	return err
}

func refKey(ref entity.SnapshotRef) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(ref))
	return key
}

func positionKey(position int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(position))
	return key
}
