// Package pgsink provides a PostgreSQL implementation of audit.Sink.
package pgsink

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daviddao/mailtriage/internal/audit"
	"github.com/daviddao/mailtriage/internal/types"
)

//go:embed schema.sql
var schema string

// Sink persists audit records in PostgreSQL.
type Sink struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies the schema, and returns a ready Sink.
func New(ctx context.Context, databaseURL string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Sink{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}

// Append inserts one audit record.
func (s *Sink) Append(ctx context.Context, rec audit.Record) error {
	var decision []byte
	if rec.Decision != nil {
		b, err := json.Marshal(rec.Decision)
		if err != nil {
			return fmt.Errorf("marshal decision: %w", err)
		}
		decision = b
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO triage_audit
			(run_id, ts, email_id, thread_id, from_addr, subject, decision, mode, model, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.RunID, rec.Timestamp, rec.EmailID, rec.ThreadID, rec.From, rec.Subject,
		decision, rec.Mode, rec.Model, rec.Status, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ByRun returns the records of one run in insertion order.
func (s *Sink) ByRun(ctx context.Context, runID string) ([]audit.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, ts, email_id, thread_id, from_addr, subject, decision, mode, model, status, error
		FROM triage_audit
		WHERE run_id = $1
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Record, error) {
		var rec audit.Record
		var decision []byte
		if err := row.Scan(
			&rec.RunID, &rec.Timestamp, &rec.EmailID, &rec.ThreadID, &rec.From, &rec.Subject,
			&decision, &rec.Mode, &rec.Model, &rec.Status, &rec.Error,
		); err != nil {
			return rec, err
		}
		if decision != nil {
			rec.Decision = &types.Decision{}
			if err := json.Unmarshal(decision, rec.Decision); err != nil {
				return rec, fmt.Errorf("unmarshal decision: %w", err)
			}
		}
		return rec, nil
	})
}
