package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feedcache/internal/application"
	"feedcache/internal/application/storetest"
	"feedcache/internal/domain/entity"
	"feedcache/internal/domain/repository"
)

func newSQLiteStorage(t *testing.T) repository.SnapshotStorage {
	t.Helper()
	storage, err := NewSQLStorage(BackendSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}

func TestSQLiteStorage_FeedStoreSpecs(t *testing.T) {
	storetest.Run(t, newSQLiteStorage)
}

func TestSQLiteStorage_RollbackDiscardsWrites(t *testing.T) {
	expectRollbackDiscardsWrites(t, newSQLiteStorage(t))
}

func TestSQLiteStorage_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	feed := storetest.UniqueImageFeed()
	timestamp := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)

	storage1, err := NewSQLStorage(BackendSQLite, dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	store1 := application.NewFeedStore(storage1)
	if err := store1.Insert(ctx, feed, timestamp); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	storage2, err := NewSQLStorage(BackendSQLite, dbPath)
	if err != nil {
		t.Fatalf("failed to reopen storage: %v", err)
	}
	store2 := application.NewFeedStore(storage2)
	defer store2.Close()

	cache, err := store2.Retrieve(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache == nil {
		t.Fatal("expected cached feed after reopen, got empty")
	}
	if !cache.Timestamp.Equal(timestamp) {
		t.Errorf("expected timestamp %v, got %v", timestamp, cache.Timestamp)
	}
	if len(cache.Feed) != len(feed) {
		t.Fatalf("expected %d images, got %d", len(feed), len(cache.Feed))
	}
	for i := range feed {
		if cache.Feed[i].ID != feed[i].ID {
			t.Errorf("image[%d]: expected id %v, got %v", i, feed[i].ID, cache.Feed[i].ID)
		}
	}
}

func TestSQLiteStorage_AtMostOneSnapshotRow(t *testing.T) {
	storage := newSQLiteStorage(t)
	sqlStore := storage.(*sqlStorage)
	store := application.NewFeedStore(storage)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.Insert(ctx, storetest.UniqueImageFeed(), time.Now()); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	var snapshots, images int
	if err := sqlStore.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_cache").Scan(&snapshots); err != nil {
		t.Fatalf("failed to count snapshots: %v", err)
	}
	if err := sqlStore.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_cache_images").Scan(&images); err != nil {
		t.Fatalf("failed to count images: %v", err)
	}
	if snapshots != 1 {
		t.Errorf("expected 1 snapshot row, got %d", snapshots)
	}
	if images != 2 {
		t.Errorf("expected 2 image rows, got %d", images)
	}

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := sqlStore.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feed_cache_images").Scan(&images); err != nil {
		t.Fatalf("failed to count images: %v", err)
	}
	if images != 0 {
		t.Errorf("expected image rows to be deleted with their snapshot, got %d", images)
	}
}

func TestSQLiteStorage_ReadsBackUnorderedRows(t *testing.T) {
	storage := newSQLiteStorage(t)
	ctx := context.Background()

	tx, err := storage.Begin(ctx, true)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	feed := storetest.UniqueImageFeed()
	records := []entity.FeedImageRecord{
		entity.NewFeedImageRecord(feed[1], 1),
		entity.NewFeedImageRecord(feed[0], 0),
	}
	if _, err := tx.CreateSnapshot(ctx, time.Now(), records); err != nil {
		t.Fatalf("failed to create snapshot: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	store := application.NewFeedStore(storage)
	defer store.Close()

	cache, err := store.Retrieve(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache == nil || len(cache.Feed) != 2 {
		t.Fatalf("expected 2 cached images, got %+v", cache)
	}
	if cache.Feed[0].ID != feed[0].ID || cache.Feed[1].ID != feed[1].ID {
		t.Errorf("expected images in position order")
	}
}

func TestSQLiteStorage_InvalidPath(t *testing.T) {
	_, err := NewSQLStorage(BackendSQLite, "/nonexistent/path/test.db")
	if err == nil {
		t.Fatal("expected error for invalid path, got nil")
	}
	if !errors.Is(err, repository.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestSQLiteStorage_EmptyPath(t *testing.T) {
	if _, err := NewSQLStorage(BackendSQLite, ""); !errors.Is(err, repository.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestSQLiteStorage_FileCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "test.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	storage, err := NewSQLStorage(BackendSQLite, dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer storage.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestMySQLStorage_InvalidDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
	}{
		{"malformed", "not a dsn"},
		{"no database", "root:secret@tcp(127.0.0.1:3306)/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSQLStorage(BackendMySQL, tt.dsn)
			if !errors.Is(err, repository.ErrStorageUnavailable) {
				t.Errorf("expected ErrStorageUnavailable, got %v", err)
			}
		})
	}
}

func TestSQLTx_Rebind(t *testing.T) {
	tests := []struct {
		name     string
		backend  Backend
		query    string
		expected string
	}{
		{"sqlite unchanged", BackendSQLite, "DELETE FROM t WHERE a = ? AND b = ?", "DELETE FROM t WHERE a = ? AND b = ?"},
		{"mysql unchanged", BackendMySQL, "DELETE FROM t WHERE a = ?", "DELETE FROM t WHERE a = ?"},
		{"postgresql numbered", BackendPostgreSQL, "DELETE FROM t WHERE a = ? AND b = ?", "DELETE FROM t WHERE a = $1 AND b = $2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &sqlTx{backend: tt.backend}
			if got := tx.rebind(tt.query); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
