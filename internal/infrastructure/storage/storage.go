package storage

import (
	"fmt"
	"strings"

	"feedcache/internal/domain/repository"
)

// Backend names a SnapshotStorage implementation.
type Backend string

const (
	BackendMemory     Backend = "memory"
	BackendSQLite     Backend = "sqlite"
	BackendPostgreSQL Backend = "postgresql"
	BackendMySQL      Backend = "mysql"
	BackendBolt       Backend = "bolt"
)

// ParseBackend accepts a backend name case-insensitively.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case BackendMemory, BackendSQLite, BackendPostgreSQL, BackendMySQL, BackendBolt:
		return b, nil
	case "postgres":
		return BackendPostgreSQL, nil
	default:
		return "", fmt.Errorf("unsupported storage backend: %s. Must be memory, sqlite, postgresql, mysql, or bolt", name)
	}
}

// Open opens the storage for backend. dsn is a file path for sqlite and bolt,
// a connection string for postgresql and mysql, and ignored for memory.
func Open(backend Backend, dsn string) (repository.SnapshotStorage, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendSQLite, BackendPostgreSQL, BackendMySQL:
		return NewSQLStorage(backend, dsn)
	case BackendBolt:
		return NewBoltStorage(dsn)
	default:
		return nil, fmt.Errorf("%w: unsupported backend %q", repository.ErrStorageUnavailable, backend)
	}
}
