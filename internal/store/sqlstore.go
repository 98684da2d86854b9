package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/re-cinq/plango/internal/plan"

	_ "modernc.org/sqlite"
)

// SQLStore persists plans to a SQLite file, grounded on the teacher's
// alekspetrov-pilot sibling's StateStore migrate/upsert idiom: a
// CREATE TABLE IF NOT EXISTS migration plus INSERT ... ON CONFLICT
// upserts, with the full plan round-tripped through JSON so the DAG's
// nested Node/NodeState/WorkSpec structures don't need their own
// relational schema.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (creating if needed) a SQLite database at path and
// runs its migration. Use ":memory:" for an ephemeral in-process
// database backed by the same code path as the durable one.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening plan store %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("setting plan store pragmas: %w", err)
	}
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("plan store migration: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			state_version INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// SavePlan upserts p, keyed by its id.
func (s *SQLStore) SavePlan(ctx context.Context, p *plan.Plan) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, name, status, state_version, data, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			state_version = excluded.state_version,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, p.ID.String(), p.Spec.Name, string(p.Status), p.StateVersion, string(data))
	return err
}

// GetPlan returns the plan with the given id, or ErrNotFound.
func (s *SQLStore) GetPlan(ctx context.Context, id uuid.UUID) (*plan.Plan, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM plans WHERE id = ?`, id.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p plan.Plan
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans returns every persisted plan, most recently updated first.
func (s *SQLStore) ListPlans(ctx context.Context) ([]*plan.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM plans ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*plan.Plan
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p plan.Plan
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeletePlan removes the plan with the given id.
func (s *SQLStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
