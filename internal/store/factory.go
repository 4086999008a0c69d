package store

import (
	"fmt"

	"github.com/pysugar/oura-twin-sync/internal/db"
)

const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Open builds the backend selected by kind. The returned close func releases any
// underlying connection and is never nil.
func Open(kind, dataDir, dbPath string) (Backend, func() error, error) {
	noop := func() error { return nil }

	switch kind {
	case KindFile, "":
		b, err := NewFileBackend(dataDir)
		if err != nil {
			return nil, noop, err
		}
		return b, noop, nil
	case KindSQLite:
		gdb, err := db.InitDB(dbPath)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite %s: %w", dbPath, err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, noop, err
		}
		return NewSQLBackend(gdb), sqlDB.Close, nil
	case KindMemory:
		return NewMemoryBackend(), noop, nil
	}
	return nil, noop, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
}
