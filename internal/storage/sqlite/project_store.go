// Package sqlite provides a single-file project store on the pure-Go SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maxParams keeps IN lists under SQLite's bound-parameter limit.
const maxParams = 500

// Config selects the database file and table.
type Config struct {
	DSN   string
	Table string
}

// ProjectStore implements harvest.Store on SQLite.
type ProjectStore struct {
	db    *sql.DB
	table string
}

// Open opens the database and ensures the table exists.
func Open(ctx context.Context, cfg Config) (*ProjectStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "projects"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under the worker pool.
	db.SetMaxOpenConns(1)
	s := &ProjectStore{db: db, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ProjectStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			url          TEXT NOT NULL UNIQUE,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL,
			domains      TEXT NOT NULL DEFAULT '[]',
			team_members TEXT NOT NULL DEFAULT '[]',
			built_with   TEXT NOT NULL DEFAULT '[]',
			hackathon    TEXT NOT NULL DEFAULT '',
			scraped_at   TEXT NOT NULL
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Upsert inserts or replaces rec by URL. Stored domains survive an empty update.
func (s *ProjectStore) Upsert(ctx context.Context, rec harvest.ProjectRecord) error {
	if rec.URL == "" {
		return fmt.Errorf("%w: empty url", harvest.ErrStoreWrite)
	}
	domains, team, built, err := encodeColumns(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", harvest.ErrStoreWrite, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (url, title, description, domains, team_members, built_with, hackathon, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			team_members = excluded.team_members,
			built_with = excluded.built_with,
			hackathon = excluded.hackathon,
			scraped_at = excluded.scraped_at,
			domains = CASE WHEN excluded.domains = '[]' THEN %[1]s.domains ELSE excluded.domains END`, s.table)
	_, err = s.db.ExecContext(ctx, query,
		rec.URL, rec.Title, rec.Description, domains, team, built,
		rec.HackathonURL, rec.ScrapedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %w", harvest.ErrStoreWrite, rec.URL, err)
	}
	return nil
}

// ExistingURLs returns the subset of urls already stored, querying in chunks.
func (s *ProjectStore) ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for start := 0; start < len(urls); start += maxParams {
		chunk := urls[start:min(start+maxParams, len(urls))]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, u := range chunk {
			args[i] = u
		}
		query := fmt.Sprintf(`SELECT url FROM %s WHERE url IN (%s)`, s.table, placeholders)
		if err := s.collectURLs(ctx, query, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *ProjectStore) collectURLs(ctx context.Context, query string, args []any, out map[string]struct{}) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query existing urls: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return fmt.Errorf("scan url: %w", err)
		}
		out[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate urls: %w", err)
	}
	return nil
}

// FindUnclassified returns records with an empty domains array.
func (s *ProjectStore) FindUnclassified(ctx context.Context) ([]harvest.ProjectRecord, error) {
	return s.List(ctx, harvest.ListFilter{UnclassifiedOnly: true})
}

// SetDomains overwrites labels for an existing record.
func (s *ProjectStore) SetDomains(ctx context.Context, url string, domains []string) error {
	if domains == nil {
		domains = []string{}
	}
	payload, err := json.Marshal(domains)
	if err != nil {
		return fmt.Errorf("%w: encode domains: %w", harvest.ErrStoreWrite, err)
	}
	query := fmt.Sprintf(`UPDATE %s SET domains = ? WHERE url = ?`, s.table)
	res, err := s.db.ExecContext(ctx, query, string(payload), url)
	if err != nil {
		return fmt.Errorf("%w: set domains %s: %w", harvest.ErrStoreWrite, url, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", harvest.ErrStoreWrite, err)
	}
	if n == 0 {
		return fmt.Errorf("set domains %s: %w", url, harvest.ErrNotFound)
	}
	return nil
}

const selectColumns = `url, title, description, domains, team_members, built_with, hackathon, scraped_at`

// Get returns one record by URL.
func (s *ProjectStore) Get(ctx context.Context, url string) (harvest.ProjectRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE url = ?`, selectColumns, s.table)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
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
		b.WriteString(" WHERE domains = '[]'")
	}
	b.WriteString(" ORDER BY seq")
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
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
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *ProjectStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (harvest.ProjectRecord, error) {
	var (
		rec                        harvest.ProjectRecord
		domains, team, built, when string
	)
	if err := row.Scan(&rec.URL, &rec.Title, &rec.Description, &domains, &team, &built, &rec.HackathonURL, &when); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(domains), &rec.Domains); err != nil {
		return rec, fmt.Errorf("decode domains: %w", err)
	}
	if err := json.Unmarshal([]byte(team), &rec.TeamMembers); err != nil {
		return rec, fmt.Errorf("decode team: %w", err)
	}
	if err := json.Unmarshal([]byte(built), &rec.BuiltWith); err != nil {
		return rec, fmt.Errorf("decode built_with: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, when)
	if err != nil {
		return rec, fmt.Errorf("decode scraped_at: %w", err)
	}
	rec.ScrapedAt = ts
	return rec, nil
}

func encodeColumns(rec harvest.ProjectRecord) (domains, team, built string, err error) {
	d := rec.Domains
	if d == nil {
		d = []string{}
	}
	tm := rec.TeamMembers
	if tm == nil {
		tm = []harvest.TeamMember{}
	}
	bw := rec.BuiltWith
	if bw == nil {
		bw = []string{}
	}
	var raw []byte
	if raw, err = json.Marshal(d); err != nil {
		return "", "", "", fmt.Errorf("encode domains: %w", err)
	}
	domains = string(raw)
	if raw, err = json.Marshal(tm); err != nil {
		return "", "", "", fmt.Errorf("encode team: %w", err)
	}
	team = string(raw)
	if raw, err = json.Marshal(bw); err != nil {
		return "", "", "", fmt.Errorf("encode built_with: %w", err)
	}
	built = string(raw)
	return domains, team, built, nil
}
