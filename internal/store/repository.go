// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package store owns repository metadata persistence (a SQLite table
// keyed by repoId, migrated idempotently with golang-migrate) plus the
// query-result cache in front of internal/manager's query path.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/northbound/wikify/internal/wikierr"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Status mirrors a repository's indexing lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusIndexing  Status = "indexing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Visibility controls who may see a repository in list().
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityInternal Visibility = "internal"
	VisibilityPrivate  Visibility = "private"
)

// Stats holds the post-indexing counters persisted as stats_json.
type Stats struct {
	FileCount    int           `json:"file_count"`
	ChunkCount   int           `json:"chunk_count"`
	BytesTotal   int64         `json:"bytes_total"`
	Duration     time.Duration `json:"duration_ns"`
	LastError    string        `json:"last_error,omitempty"`
}

// Repository is one row of the repositories table, the aggregate record
// RepositoryManager owns.
type Repository struct {
	ID            string
	Name          string
	RepoPath      string // the normalized source reference, e.g. a clone URL
	RepoType      string // github|gitlab|local|...
	Status        Status
	Visibility    Visibility
	Owner         string
	CreatedAt     time.Time
	LastIndexedAt *time.Time
	Stats         Stats
}

// Store persists Repository records in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies every
// pending migration. Migrations are idempotent: re-running Open against an
// already-migrated database is a no-op.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new repository record. It fails with a unique
// constraint violation if (owner, repo_path) already exists;
// internal/manager looks the pair up with FindByOwnerAndPath before
// calling Create, so the index is a backstop rather than the
// idempotence mechanism.
func (s *Store) Create(ctx context.Context, r Repository) error {
	statsJSON, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repositories (id, name, repo_path, repo_type, status, visibility, owner, created_at, last_indexed_at, stats_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.RepoPath, r.RepoType, string(r.Status), string(r.Visibility), r.Owner,
		r.CreatedAt, r.LastIndexedAt, string(statsJSON))
	if err != nil {
		return err
	}
	return nil
}

// FindByOwnerAndPath looks up an existing repository by its idempotence
// key. ok is false if none exists.
func (s *Store) FindByOwnerAndPath(ctx context.Context, owner, repoPath string) (Repository, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, repo_path, repo_type, status, visibility, owner, created_at, last_indexed_at, stats_json
		FROM repositories WHERE owner = ? AND repo_path = ?`, owner, repoPath)
	repo, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return Repository{}, false, nil
	}
	if err != nil {
		return Repository{}, false, err
	}
	return repo, true, nil
}

// Get returns the repository with id, or a wikierr.NotFound error.
func (s *Store) Get(ctx context.Context, id string) (Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, repo_path, repo_type, status, visibility, owner, created_at, last_indexed_at, stats_json
		FROM repositories WHERE id = ?`, id)
	repo, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return Repository{}, wikierr.NotFound("repository %s not found", id)
	}
	if err != nil {
		return Repository{}, err
	}
	return repo, nil
}

// List returns every repository record. Callers filter by visibility
// against the caller's identity; the store itself applies no
// authorization.
func (s *Store) List(ctx context.Context) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, repo_path, repo_type, status, visibility, owner, created_at, last_indexed_at, stats_json
		FROM repositories ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a repository's status. The caller is
// responsible for only requesting legal lifecycle edges.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE repositories SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return requireRowAffected(res, id)
}

// UpdateStats persists final indexing stats and marks last_indexed_at,
// called once on a successful indexing run.
func (s *Store) UpdateStats(ctx context.Context, id string, stats Stats, indexedAt time.Time) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE repositories SET stats_json = ?, last_indexed_at = ? WHERE id = ?`,
		string(statsJSON), indexedAt, id)
	if err != nil {
		return err
	}
	return requireRowAffected(res, id)
}

// UpdateLastError records a failure message in stats_json without
// touching last_indexed_at, so a failed run is explainable from the
// record while the last successful index timestamp stays intact.
func (s *Store) UpdateLastError(ctx context.Context, id, msg string) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	r.Stats.LastError = msg
	statsJSON, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE repositories SET stats_json = ? WHERE id = ?`, string(statsJSON), id)
	if err != nil {
		return err
	}
	return requireRowAffected(res, id)
}

// Delete removes a repository record. Idempotent: deleting an absent id
// is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id)
	return err
}

func requireRowAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return wikierr.NotFound("repository %s not found", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRepository(row scanner) (Repository, error) {
	var (
		r             Repository
		status        string
		visibility    string
		lastIndexedAt sql.NullTime
		statsJSON     string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.RepoPath, &r.RepoType, &status, &visibility,
		&r.Owner, &r.CreatedAt, &lastIndexedAt, &statsJSON); err != nil {
		return Repository{}, err
	}
	r.Status = Status(status)
	r.Visibility = Visibility(visibility)
	if lastIndexedAt.Valid {
		t := lastIndexedAt.Time
		r.LastIndexedAt = &t
	}
	if statsJSON != "" {
		if err := json.Unmarshal([]byte(statsJSON), &r.Stats); err != nil {
			return Repository{}, fmt.Errorf("unmarshal stats for %s: %w", r.ID, err)
		}
	}
	return r, nil
}
