package registry

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/migadu/ezlist/consts"
	"github.com/migadu/ezlist/helpers"
	"github.com/migadu/ezlist/logger"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed registry for single-node deployments.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (and if necessary creates) the registry database at path.
// The schema is created idempotently on every open.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite registry path cannot be empty")
	}
	path = filepath.Clean(path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry DB: %w", err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		// WAL is an optimization, not a requirement.
		logger.Warn("Registry: failed to set PRAGMA journal_mode = WAL", "error", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS subscribers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create registry schema: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping failed: %v", consts.ErrStorageUnavailable, err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Contains(ctx context.Context, address string) (bool, error) {
	address = helpers.NormalizeAddress(address)
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM subscribers WHERE email = ?`, address).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query subscriber %s: %w", address, err)
	}
	return true, nil
}

func (s *SQLiteStore) Add(ctx context.Context, address string) (AddResult, error) {
	address = helpers.NormalizeAddress(address)
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO subscribers (email) VALUES (?)`, address)
	if err != nil {
		return AlreadyPresent, fmt.Errorf("failed to add subscriber %s: %w", address, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return AlreadyPresent, fmt.Errorf("failed to add subscriber %s: %w", address, err)
	}
	if n == 0 {
		return AlreadyPresent, nil
	}
	return Added, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, address string) (RemoveResult, error) {
	address = helpers.NormalizeAddress(address)
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE email = ?`, address)
	if err != nil {
		return NotPresent, fmt.Errorf("failed to remove subscriber %s: %w", address, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return NotPresent, fmt.Errorf("failed to remove subscriber %s: %w", address, err)
	}
	if n == 0 {
		return NotPresent, nil
	}
	return Removed, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email FROM subscribers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var subscribers []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber row: %w", err)
		}
		subscribers = append(subscribers, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %w", err)
	}
	return subscribers, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return count, nil
}

// Close closes the registry database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
