package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotFound is returned by Find when no source has the given ID.
var ErrNotFound = errors.New("source: not found")

// Store is the read interface the orchestrator depends on. The concrete
// SQLStore below is the production implementation; tests substitute
// in-memory fakes.
type Store interface {
	ListActive(ctx context.Context) ([]*Profile, error)
	Find(ctx context.Context, id string) (*Profile, error)
}

// Schema is the sources table applied at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    category      TEXT NOT NULL DEFAULT 'alternative',
    is_active     INTEGER NOT NULL DEFAULT 1,
    config_json   TEXT NOT NULL DEFAULT '{}',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_active ON sources(is_active);
`

// SQLStore persists source profiles in SQLite. Profiles are validated on
// the way out so a malformed row can never reach a scraper.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore applies the schema and returns a store bound to db.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("source: apply schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// ListActive returns all active, valid profiles. Rows whose configuration
// fails validation are skipped; they are an operator problem, not a reason
// to fail every search.
func (s *SQLStore) ListActive(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, is_active, config_json
		FROM sources WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("source: list active: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			slog.Warn("source: skipping invalid profile", "id", p.ID, "error", err)
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Find returns the profile with the given ID, active or not.
func (s *SQLStore) Find(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, category, is_active, config_json
		FROM sources WHERE id = ?`, id)

	p, err := scanProfileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

// Upsert inserts or replaces a profile. The profile must validate.
func (s *SQLStore) Upsert(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	cfg, err := json.Marshal(p.Configuration)
	if err != nil {
		return fmt.Errorf("source: marshal configuration: %w", err)
	}

	now := time.Now().UnixMilli()
	active := 0
	if p.IsActive {
		active = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sources (id, name, category, is_active, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, category=excluded.category,
			is_active=excluded.is_active, config_json=excluded.config_json,
			updated_at=excluded.updated_at`,
		p.ID, p.Name, string(p.Category), active, string(cfg), now, now)
	if err != nil {
		return fmt.Errorf("source: upsert %s: %w", p.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(rows *sql.Rows) (*Profile, error) { return scanProfileRow(rows) }

func scanProfileRow(row rowScanner) (*Profile, error) {
	var p Profile
	var category, cfg string
	var active int
	if err := row.Scan(&p.ID, &p.Name, &category, &active, &cfg); err != nil {
		return nil, err
	}
	p.Category = Category(category)
	p.IsActive = active == 1
	if err := json.Unmarshal([]byte(cfg), &p.Configuration); err != nil {
		return nil, fmt.Errorf("source: config for %s: %w", p.ID, err)
	}
	return &p, nil
}
