package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/migadu/ezlist/config"
	"github.com/migadu/ezlist/consts"
	"github.com/migadu/ezlist/helpers"
	"github.com/migadu/ezlist/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is a pgx-backed registry for deployments where the
// subscriber set is shared between hosts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the configured database and applies any pending
// schema migrations before returning the store.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	sslMode := "disable"
	if cfg.TLSMode {
		sslMode = "require"
	}

	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, sslMode)

	if err := migrateUp(connString); err != nil {
		return nil, fmt.Errorf("failed to migrate registry schema: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to connect to the database: %v", consts.ErrStorageUnavailable, err)
	}

	logger.Info("Registry: connected to postgres", "host", cfg.Host, "database", cfg.Name)
	return &PostgresStore{pool: pool}, nil
}

// migrateUp applies pending migrations through database/sql; the pgx stdlib
// adapter is used only for this, the store itself runs on pgxpool.
func migrateUp(connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := pgxv5.WithInstance(db, &pgxv5.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *PostgresStore) Contains(ctx context.Context, address string) (bool, error) {
	address = helpers.NormalizeAddress(address)
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM subscribers WHERE email = $1)`, address).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query subscriber %s: %w", address, err)
	}
	return exists, nil
}

func (s *PostgresStore) Add(ctx context.Context, address string) (AddResult, error) {
	address = helpers.NormalizeAddress(address)
	tag, err := s.pool.Exec(ctx, `INSERT INTO subscribers (email) VALUES ($1) ON CONFLICT (email) DO NOTHING`, address)
	if err != nil {
		return AlreadyPresent, fmt.Errorf("failed to add subscriber %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadyPresent, nil
	}
	return Added, nil
}

func (s *PostgresStore) Remove(ctx context.Context, address string) (RemoveResult, error) {
	address = helpers.NormalizeAddress(address)
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscribers WHERE email = $1`, address)
	if err != nil {
		return NotPresent, fmt.Errorf("failed to remove subscriber %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return NotPresent, nil
	}
	return Removed, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT email FROM subscribers ORDER BY id`)
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

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return count, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
