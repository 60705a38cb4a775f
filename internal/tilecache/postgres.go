package tilecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS overlay_tile_cache (
		tile_key      TEXT PRIMARY KEY,
		bytes         BYTEA NOT NULL,
		last_accessed TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS overlay_tile_cache_last_accessed_idx
		ON overlay_tile_cache (last_accessed, tile_key)`,
}

// PostgresStore keeps tiles in the overlay_tile_cache table.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// OpenPostgres connects through the pgx stdlib driver and pings.
func OpenPostgres(dsn string, maxConns int, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return db, nil
}

// NewPostgresStore creates the table if needed.
func NewPostgresStore(ctx context.Context, db *sqlx.DB, logger *zap.Logger) (*PostgresStore, error) {
	for _, stmt := range postgresSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create tile cache table: %w", err)
		}
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

type tileRow struct {
	Bytes        []byte    `db:"bytes"`
	LastAccessed time.Time `db:"last_accessed"`
}

func (p *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	var row tileRow
	err := p.db.GetContext(ctx, &row,
		`SELECT bytes, last_accessed FROM overlay_tile_cache WHERE tile_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		p.logger.Error("Failed to get tile from cache", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("cache get error: %w", err)
	}
	return &Entry{Bytes: row.Bytes, LastAccessed: row.LastAccessed}, nil
}

func (p *PostgresStore) Put(ctx context.Context, key string, e Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO overlay_tile_cache (tile_key, bytes, last_accessed)
		VALUES ($1, $2, $3)
		ON CONFLICT (tile_key) DO UPDATE
		SET bytes = EXCLUDED.bytes, last_accessed = EXCLUDED.last_accessed`,
		key, e.Bytes, e.LastAccessed)
	if err != nil {
		p.logger.Error("Failed to set tile cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (p *PostgresStore) Touch(ctx context.Context, key string, at time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE overlay_tile_cache SET last_accessed = $2 WHERE tile_key = $1`, key, at)
	if err != nil {
		return false, fmt.Errorf("cache touch error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cache touch error: %w", err)
	}
	return n > 0, nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM overlay_tile_cache WHERE tile_key = $1`, key); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM overlay_tile_cache`); err != nil {
		return 0, fmt.Errorf("cache count error: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) Oldest(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var keys []string
	err := p.db.SelectContext(ctx, &keys, `
		SELECT tile_key FROM overlay_tile_cache
		ORDER BY last_accessed ASC, tile_key ASC
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("cache oldest error: %w", err)
	}
	return keys, nil
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM overlay_tile_cache`); err != nil {
		return fmt.Errorf("cache clear error: %w", err)
	}
	return nil
}
