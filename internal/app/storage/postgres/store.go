// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/app/storage"
)

// Store persists execution records in PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.ExecutionStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the executions table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scratch_executions (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			success     BOOLEAN NOT NULL,
			output      TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			diagnostics JSONB,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (s *Store) SaveExecution(ctx context.Context, rec execution.Record) (execution.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	diagnosticsJSON, err := json.Marshal(rec.Diagnostics)
	if err != nil {
		return execution.Record{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scratch_executions (id, source, success, output, error, diagnostics, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.Source, rec.Success, rec.Output, rec.Error, diagnosticsJSON, rec.Duration.Milliseconds(), rec.CreatedAt)
	if err != nil {
		return execution.Record{}, err
	}
	return rec, nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (execution.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, success, output, error, diagnostics, duration_ms, created_at
		FROM scratch_executions
		WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return execution.Record{}, storage.ErrNotFound
	}
	return rec, err
}

func (s *Store) ListExecutions(ctx context.Context, limit int) ([]execution.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, success, output, error, diagnostics, duration_ms, created_at
		FROM scratch_executions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []execution.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (execution.Record, error) {
	var (
		rec             execution.Record
		diagnosticsJSON []byte
		durationMS      int64
	)
	err := row.Scan(&rec.ID, &rec.Source, &rec.Success, &rec.Output, &rec.Error, &diagnosticsJSON, &durationMS, &rec.CreatedAt)
	if err != nil {
		return execution.Record{}, err
	}
	if len(diagnosticsJSON) > 0 {
		if err := json.Unmarshal(diagnosticsJSON, &rec.Diagnostics); err != nil {
			return execution.Record{}, err
		}
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}
