// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "run_summaries"

// Config controls the Postgres connection pool used for run summaries.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// SummaryStore upserts run summaries into Postgres.
type SummaryStore struct {
	pool  execCloser
	table string
}

// NewSummaryStore connects a pool using cfg.
func NewSummaryStore(ctx context.Context, cfg Config) (*SummaryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: output.postgres.dsn", lead.ErrConfigurationMissing)
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SummaryStore{pool: pool, table: table}, nil
}

// NewSummaryStoreWithPool constructs a store from an existing pool.
func NewSummaryStoreWithPool(pool execCloser, table string) (*SummaryStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &SummaryStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *SummaryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping reports whether the database answers.
func (s *SummaryStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("summary store is not configured")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// SaveSummary upserts one row keyed by run id.
func (s *SummaryStore) SaveSummary(ctx context.Context, summary lead.RunSummary) error {
	if s == nil || s.pool == nil {
		return errors.New("summary store is not configured")
	}
	if summary.RunID == "" {
		return errors.New("run id is required")
	}
	errorsJSON, err := json.Marshal(nonNilErrors(summary.Errors))
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	coverageJSON, err := json.Marshal(nonNilCoverage(summary.SourceCoverage))
	if err != nil {
		return fmt.Errorf("marshal source coverage: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	started_at,
	finished_at,
	found,
	deduped,
	filtered,
	enriched,
	scored,
	generated,
	errors,
	source_coverage,
	elapsed_ms,
	fatal
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (run_id) DO UPDATE SET
	finished_at = EXCLUDED.finished_at,
	found = EXCLUDED.found,
	deduped = EXCLUDED.deduped,
	filtered = EXCLUDED.filtered,
	enriched = EXCLUDED.enriched,
	scored = EXCLUDED.scored,
	generated = EXCLUDED.generated,
	errors = EXCLUDED.errors,
	source_coverage = EXCLUDED.source_coverage,
	elapsed_ms = EXCLUDED.elapsed_ms,
	fatal = EXCLUDED.fatal`, s.table)

	args := []any{
		summary.RunID,
		summary.StartedAt,
		summary.FinishedAt,
		summary.Found,
		summary.Deduped,
		summary.Filtered,
		summary.Enriched,
		summary.Scored,
		summary.Generated,
		errorsJSON,
		coverageJSON,
		summary.ElapsedMs,
		summary.Fatal,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert run summary: %w", err)
	}
	return nil
}

func nonNilErrors(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}

func nonNilCoverage(coverage map[string]int) map[string]int {
	if coverage == nil {
		return map[string]int{}
	}
	return coverage
}
