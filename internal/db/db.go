// Package db provides SQLite storage for the mailtriage audit trail.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/daviddao/mailtriage/internal/audit"
	"github.com/daviddao/mailtriage/internal/types"
)

// DefaultPath is the audit database location relative to the project root.
const DefaultPath = ".mailtriage/audit.db"

// DB wraps a SQLite connection holding audit records.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) an audit database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Append inserts one audit record. It implements audit.Sink.
func (d *DB) Append(ctx context.Context, rec audit.Record) error {
	var dec types.Decision
	if rec.Decision != nil {
		dec = *rec.Decision
	}
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO audit_records
			(run_id, ts, email_id, thread_id, from_addr, subject, mode, model, status, error,
			 category, priority, action, label, star, archive, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.EmailID,
		nullStr(rec.ThreadID), nullStr(rec.From), nullStr(rec.Subject),
		rec.Mode, rec.Model, rec.Status, nullStr(rec.Error),
		nullStr(string(dec.Category)), nullStr(string(dec.Priority)), nullStr(string(dec.Action)),
		nullStr(dec.Label), dec.Star, dec.Archive, nullStr(dec.Reason),
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListFilter narrows ListRecords.
type ListFilter struct {
	RunID    string
	EmailID  string
	Category string
	Status   string
	Limit    int
}

// ListRecords returns audit records, newest first.
func (d *DB) ListRecords(ctx context.Context, f ListFilter) ([]audit.Record, error) {
	query := `
		SELECT run_id, ts, email_id, thread_id, from_addr, subject, mode, model, status, error,
		       category, priority, action, label, star, archive, reason
		FROM audit_records`

	var conditions []string
	var args []any
	if f.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.EmailID != "" {
		conditions = append(conditions, "email_id = ?")
		args = append(args, f.EmailID)
	}
	if f.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, f.Category)
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, f.Status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var result []audit.Record
	for rows.Next() {
		var rec audit.Record
		var ts string
		var threadID, from, subject, errText, category, priority, action, label, reason sql.NullString
		var star, archive bool
		if err := rows.Scan(
			&rec.RunID, &ts, &rec.EmailID, &threadID, &from, &subject,
			&rec.Mode, &rec.Model, &rec.Status, &errText,
			&category, &priority, &action, &label, &star, &archive, &reason,
		); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		rec.ThreadID = threadID.String
		rec.From = from.String
		rec.Subject = subject.String
		rec.Error = errText.String
		if category.Valid {
			rec.Decision = &types.Decision{
				Category: types.Category(category.String),
				Priority: types.Priority(priority.String),
				Action:   types.Action(action.String),
				Label:    label.String,
				Star:     star,
				Archive:  archive,
				Reason:   reason.String,
			}
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// CountByCategory returns successful decision counts grouped by category.
func (d *DB) CountByCategory(ctx context.Context) (map[string]int, error) {
	return d.countBy(ctx, "category", "WHERE status = 'ok'")
}

// CountByStatus returns record counts grouped by status.
func (d *DB) CountByStatus(ctx context.Context) (map[string]int, error) {
	return d.countBy(ctx, "status", "")
}

func (d *DB) countBy(ctx context.Context, column, where string) (map[string]int, error) {
	rows, err := d.conn.QueryContext(ctx,
		fmt.Sprintf("SELECT %[1]s, COUNT(*) FROM audit_records %[2]s GROUP BY %[1]s", column, where))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var key sql.NullString
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key.String] += count
	}
	return counts, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
