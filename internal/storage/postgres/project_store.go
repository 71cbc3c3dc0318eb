// Package postgres provides the Postgres-backed project store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ProjectStore implements harvest.Store on a single Postgres table.
type ProjectStore struct {
	pool  querier
	table string
}

// New connects a pool and ensures the table exists.
func New(ctx context.Context, cfg Config) (*ProjectStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.dsn is required")
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
	store, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier, table string) (*ProjectStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "projects"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ProjectStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the table when missing.
func (s *ProjectStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq          BIGSERIAL,
			url          TEXT PRIMARY KEY,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL,
			domains      JSONB NOT NULL DEFAULT '[]'::jsonb,
			team_members JSONB NOT NULL DEFAULT '[]'::jsonb,
			built_with   JSONB NOT NULL DEFAULT '[]'::jsonb,
			hackathon    TEXT NOT NULL DEFAULT '',
			scraped_at   TIMESTAMPTZ NOT NULL
		)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Upsert inserts or replaces rec by URL. Stored domains survive an empty update.
func (s *ProjectStore) Upsert(ctx context.Context, rec harvest.ProjectRecord) error {
	if rec.URL == "" {
		return fmt.Errorf("%w: empty url", harvest.ErrStoreWrite)
	}
	cols, err := encodeColumns(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", harvest.ErrStoreWrite, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (url, title, description, domains, team_members, built_with, hackathon, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			team_members = EXCLUDED.team_members,
			built_with = EXCLUDED.built_with,
			hackathon = EXCLUDED.hackathon,
			scraped_at = EXCLUDED.scraped_at,
			domains = CASE
				WHEN jsonb_array_length(EXCLUDED.domains) = 0 THEN %[1]s.domains
				ELSE EXCLUDED.domains
			END`, s.table)
	_, err = s.pool.Exec(ctx, query,
		rec.URL, rec.Title, rec.Description,
		cols.domains, cols.team, cols.builtWith,
		rec.HackathonURL, rec.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %w", harvest.ErrStoreWrite, rec.URL, err)
	}
	return nil
}

// ExistingURLs returns the subset of urls already stored in one round trip.
func (s *ProjectStore) ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(urls) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT url FROM %s WHERE url = ANY($1)`, s.table)
	rows, err := s.pool.Query(ctx, query, urls)
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		out[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return out, nil
}

// FindUnclassified returns records with an empty domains array.
func (s *ProjectStore) FindUnclassified(ctx context.Context) ([]harvest.ProjectRecord, error) {
	return s.List(ctx, harvest.ListFilter{UnclassifiedOnly: true})
}

// SetDomains overwrites labels for an existing record.
func (s *ProjectStore) SetDomains(ctx context.Context, url string, domains []string) error {
	payload, err := json.Marshal(nonNil(domains))
	if err != nil {
		return fmt.Errorf("%w: encode domains: %w", harvest.ErrStoreWrite, err)
	}
	query := fmt.Sprintf(`UPDATE %s SET domains = $1 WHERE url = $2`, s.table)
	tag, err := s.pool.Exec(ctx, query, payload, url)
	if err != nil {
		return fmt.Errorf("%w: set domains %s: %w", harvest.ErrStoreWrite, url, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set domains %s: %w", url, harvest.ErrNotFound)
	}
	return nil
}

const selectColumns = `url, title, description, domains, team_members, built_with, hackathon, scraped_at`

// Get returns one record by URL.
func (s *ProjectStore) Get(ctx context.Context, url string) (harvest.ProjectRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE url = $1`, selectColumns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return harvest.ProjectRecord{}, fmt.Errorf("get %s: %w", url, harvest.ErrNotFound)
	}
	if err != nil {
		return harvest.ProjectRecord{}, fmt.Errorf("get %s: %w", url, err)
	}
	return rec, nil
}

// List returns records in insertion order.
func (s *ProjectStore) List(ctx context.Context, filter harvest.ListFilter) ([]harvest.ProjectRecord, error) {
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT %s FROM %s", selectColumns, s.table)
	if filter.UnclassifiedOnly {
		b.WriteString(" WHERE jsonb_array_length(domains) = 0")
	}
	b.WriteString(" ORDER BY seq")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []harvest.ProjectRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *ProjectStore) Count(ctx context.Context) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return n, nil
}

// Close releases the pool.
func (s *ProjectStore) Close() error {
	s.pool.Close()
	return nil
}

type encoded struct {
	domains   []byte
	team      []byte
	builtWith []byte
}

func encodeColumns(rec harvest.ProjectRecord) (encoded, error) {
	var (
		out encoded
		err error
	)
	if out.domains, err = json.Marshal(nonNil(rec.Domains)); err != nil {
		return out, fmt.Errorf("encode domains: %w", err)
	}
	team := rec.TeamMembers
	if team == nil {
		team = []harvest.TeamMember{}
	}
	if out.team, err = json.Marshal(team); err != nil {
		return out, fmt.Errorf("encode team: %w", err)
	}
	if out.builtWith, err = json.Marshal(nonNil(rec.BuiltWith)); err != nil {
		return out, fmt.Errorf("encode built_with: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (harvest.ProjectRecord, error) {
	var (
		rec                     harvest.ProjectRecord
		domains, team, builtArr []byte
	)
	err := row.Scan(&rec.URL, &rec.Title, &rec.Description, &domains, &team, &builtArr, &rec.HackathonURL, &rec.ScrapedAt)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(domains, &rec.Domains); err != nil {
		return rec, fmt.Errorf("decode domains: %w", err)
	}
	if err := json.Unmarshal(team, &rec.TeamMembers); err != nil {
		return rec, fmt.Errorf("decode team: %w", err)
	}
	if err := json.Unmarshal(builtArr, &rec.BuiltWith); err != nil {
		return rec, fmt.Errorf("decode built_with: %w", err)
	}
	rec.ScrapedAt = rec.ScrapedAt.UTC()
	return rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
