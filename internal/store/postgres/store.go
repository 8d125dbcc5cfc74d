// Package postgres provides the Postgres-backed website record store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasdir/site-crawler/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists website records in Postgres. Expected schema:
//
//	CREATE TABLE websites (
//	    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    domain TEXT NOT NULL UNIQUE,
//	    technologies TEXT[] NOT NULL DEFAULT '{}',
//	    metadata JSONB NOT NULL DEFAULT '{}',
//	    last_crawled_at TIMESTAMPTZ,
//	    last_crawl_status TEXT NOT NULL DEFAULT '',
//	    last_crawl_error TEXT NOT NULL DEFAULT ''
//	);
type Store struct {
	pool dbPool
}

// New connects a pool and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const findByDomainSQL = `
SELECT id, domain, technologies, metadata, COALESCE(last_crawled_at, 'epoch'::timestamptz), last_crawl_status, last_crawl_error
FROM websites
WHERE domain = $1`

// FindByDomain looks a record up by its domain key.
func (s *Store) FindByDomain(ctx context.Context, domain string) (crawler.WebsiteRecord, error) {
	var (
		record   crawler.WebsiteRecord
		metaJSON []byte
		status   string
	)
	row := s.pool.QueryRow(ctx, findByDomainSQL, domain)
	err := row.Scan(&record.ID, &record.Domain, &record.Technologies, &metaJSON, &record.LastCrawledAt, &status, &record.LastCrawlError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.WebsiteRecord{}, crawler.ErrRecordNotFound
		}
		return crawler.WebsiteRecord{}, fmt.Errorf("query website by domain: %w", err)
	}
	record.LastCrawlStatus = crawler.CrawlStatus(status)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &record.Metadata); err != nil {
			return crawler.WebsiteRecord{}, fmt.Errorf("decode website metadata: %w", err)
		}
	}
	return record, nil
}

const saveSQL = `
INSERT INTO websites (domain, technologies, metadata, last_crawl_status, last_crawl_error)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (domain) DO UPDATE SET
    technologies = EXCLUDED.technologies,
    metadata = EXCLUDED.metadata
RETURNING id`

// Save upserts a record keyed by domain and returns its ID.
func (s *Store) Save(ctx context.Context, record crawler.WebsiteRecord) (string, error) {
	metaJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return "", fmt.Errorf("encode website metadata: %w", err)
	}
	technologies := record.Technologies
	if technologies == nil {
		technologies = []string{}
	}
	var id string
	row := s.pool.QueryRow(ctx, saveSQL,
		record.Domain,
		technologies,
		metaJSON,
		string(record.LastCrawlStatus),
		record.LastCrawlError,
	)
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("upsert website: %w", err)
	}
	return id, nil
}

const updateCrawlStatusSQL = `
UPDATE websites
SET technologies = ARRAY(SELECT DISTINCT t FROM unnest(technologies || $2::text[]) AS t),
    metadata = COALESCE($3::jsonb, metadata),
    last_crawled_at = $4,
    last_crawl_status = $5,
    last_crawl_error = $6
WHERE id = $1`

// UpdateCrawlStatus reconciles a crawl outcome into the stored record.
// The technology array is union-merged in SQL so concurrent crawls of the
// same domain cannot retract each other's detections.
func (s *Store) UpdateCrawlStatus(ctx context.Context, id string, status crawler.CrawlStatus, update crawler.CrawlStatusUpdate) error {
	var metaJSON []byte
	if update.Metadata != nil {
		encoded, err := json.Marshal(update.Metadata)
		if err != nil {
			return fmt.Errorf("encode website metadata: %w", err)
		}
		metaJSON = encoded
	}
	technologies := update.Technologies
	if technologies == nil {
		technologies = []string{}
	}

	tag, err := s.pool.Exec(ctx, updateCrawlStatusSQL,
		id,
		technologies,
		metaJSON,
		update.CrawledAt,
		string(status),
		update.ErrorText,
	)
	if err != nil {
		return fmt.Errorf("update crawl status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrRecordNotFound
	}
	return nil
}
