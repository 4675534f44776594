package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"feedcache/internal/domain/entity"
	"feedcache/internal/domain/repository"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type sqlStorage struct {
	db      *sql.DB
	backend Backend
}

// NewSQLStorage opens a SQL-backed storage and creates its tables if needed.
// For sqlite dsn is a file path, for postgresql a pgx connection string and
// for mysql a go-sql-driver DSN (user:password@tcp(host:port)/dbname).
func NewSQLStorage(backend Backend, dsn string) (repository.SnapshotStorage, error) {
	db, err := openDB(backend, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrStorageUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to connect to %s database: %w", repository.ErrStorageUnavailable, backend, err)
	}

	s := &sqlStorage{db: db, backend: backend}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %w", repository.ErrStorageUnavailable, err)
	}

	return s, nil
}

func openDB(backend Backend, dsn string) (*sql.DB, error) {
	switch backend {
	case BackendSQLite:
		if dsn == "" {
			return nil, errors.New("sqlite database path is required")
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// A single connection keeps sqlite from reporting "database is locked".
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(time.Hour)
		return db, nil

	case BackendPostgreSQL:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgresql database: %w", err)
		}
		return db, nil

	case BackendMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w. Check format: user:password@tcp(host:port)/dbname", err)
		}
		if cfg.DBName == "" {
			return nil, errors.New("mysql dsn must name a database")
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create mysql connector: %w", err)
		}
		return sql.OpenDB(connector), nil

	default:
		return nil, fmt.Errorf("unsupported sql backend: %s", backend)
	}
}

func (s *sqlStorage) initSchema(ctx context.Context) error {
	for _, query := range schemaQueries(s.backend) {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

func schemaQueries(backend Backend) []string {
	switch backend {
	case BackendPostgreSQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS feed_cache (
				id BIGSERIAL PRIMARY KEY,
				cached_at BIGINT NOT NULL,
				cached_at_nanos INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS feed_cache_images (
				cache_id BIGINT NOT NULL REFERENCES feed_cache(id) ON DELETE CASCADE,
				image_position INTEGER NOT NULL,
				image_id TEXT NOT NULL,
				description TEXT,
				location TEXT,
				url TEXT NOT NULL,
				PRIMARY KEY (cache_id, image_position)
			)`,
		}

	case BackendMySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS feed_cache (
				id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
				cached_at BIGINT NOT NULL,
				cached_at_nanos INT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS feed_cache_images (
				cache_id BIGINT NOT NULL,
				image_position INT NOT NULL,
				image_id CHAR(36) NOT NULL,
				description TEXT NULL,
				location TEXT NULL,
				url TEXT NOT NULL,
				PRIMARY KEY (cache_id, image_position),
				FOREIGN KEY (cache_id) REFERENCES feed_cache(id) ON DELETE CASCADE
			)`,
		}

	default: // SQLite
		return []string{
			`CREATE TABLE IF NOT EXISTS feed_cache (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				cached_at INTEGER NOT NULL,
				cached_at_nanos INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS feed_cache_images (
				cache_id INTEGER NOT NULL REFERENCES feed_cache(id) ON DELETE CASCADE,
				image_position INTEGER NOT NULL,
				image_id TEXT NOT NULL,
				description TEXT,
				location TEXT,
				url TEXT NOT NULL,
				PRIMARY KEY (cache_id, image_position)
			)`,
		}
	}
}

func (s *sqlStorage) Begin(ctx context.Context, writable bool) (repository.SnapshotTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTx{tx: tx, backend: s.backend}, nil
}

func (s *sqlStorage) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	tx      *sql.Tx
	backend Backend
}

// rebind rewrites ? placeholders to $n for postgresql.
func (t *sqlTx) rebind(query string) string {
	if t.backend != BackendPostgreSQL {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (t *sqlTx) FindCurrentSnapshot(ctx context.Context) (*entity.SnapshotRecord, error) {
	var (
		ref      int64
		cachedAt int64
		nanos    int64
	)
	err := t.tx.QueryRowContext(ctx,
		"SELECT id, cached_at, cached_at_nanos FROM feed_cache ORDER BY id LIMIT 1",
	).Scan(&ref, &cachedAt, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current snapshot: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, t.rebind(
		`SELECT image_id, description, location, url, image_position
		FROM feed_cache_images WHERE cache_id = ?`),
		ref,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot images: %w", err)
	}
	defer rows.Close()

	record := &entity.SnapshotRecord{
		Ref:       entity.SnapshotRef(ref),
		Timestamp: time.Unix(cachedAt, nanos).UTC(),
	}
	for rows.Next() {
		var (
			imageID     string
			description sql.NullString
			location    sql.NullString
			image       entity.FeedImageRecord
		)
		if err := rows.Scan(&imageID, &description, &location, &image.URL, &image.Position); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot image: %w", err)
		}
		id, err := uuid.Parse(imageID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse image id %q: %w", imageID, err)
		}
		image.ID = id
		image.Description = fromNullString(description)
		image.Location = fromNullString(location)
		record.Images = append(record.Images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot images: %w", err)
	}

	return record, nil
}

func (t *sqlTx) DeleteSnapshot(ctx context.Context, ref entity.SnapshotRef) error {
	// Children first; sqlite only cascades with foreign_keys enabled.
	if _, err := t.tx.ExecContext(ctx, t.rebind("DELETE FROM feed_cache_images WHERE cache_id = ?"), int64(ref)); err != nil {
		return fmt.Errorf("failed to delete snapshot images: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, t.rebind("DELETE FROM feed_cache WHERE id = ?"), int64(ref)); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (t *sqlTx) CreateSnapshot(ctx context.Context, timestamp time.Time, images []entity.FeedImageRecord) (entity.SnapshotRef, error) {
	ref, err := t.insertSnapshotRow(ctx, timestamp)
	if err != nil {
		return 0, err
	}

	stmt, err := t.tx.PrepareContext(ctx, t.rebind(
		`INSERT INTO feed_cache_images (cache_id, image_position, image_id, description, location, url)
		VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare image insert: %w", err)
	}
	defer stmt.Close()

	for _, image := range images {
		if _, err := stmt.ExecContext(ctx,
			ref,
			image.Position,
			image.ID.String(),
			toNullString(image.Description),
			toNullString(image.Location),
			image.URL,
		); err != nil {
			return 0, fmt.Errorf("failed to insert image at position %d: %w", image.Position, err)
		}
	}

	return entity.SnapshotRef(ref), nil
}

// insertSnapshotRow stores the timestamp as Unix seconds plus nanoseconds,
// which covers every time.Time value, unlike UnixNano.
func (t *sqlTx) insertSnapshotRow(ctx context.Context, timestamp time.Time) (int64, error) {
	seconds, nanos := timestamp.Unix(), int64(timestamp.Nanosecond())

	if t.backend == BackendPostgreSQL {
		// pgx does not support LastInsertId.
		var ref int64
		if err := t.tx.QueryRowContext(ctx,
			"INSERT INTO feed_cache (cached_at, cached_at_nanos) VALUES ($1, $2) RETURNING id",
			seconds, nanos,
		).Scan(&ref); err != nil {
			return 0, fmt.Errorf("failed to insert snapshot: %w", err)
		}
		return ref, nil
	}

	result, err := t.tx.ExecContext(ctx,
		"INSERT INTO feed_cache (cached_at, cached_at_nanos) VALUES (?, ?)",
		seconds, nanos,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	ref, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get snapshot id: %w", err)
	}
	return ref, nil
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
