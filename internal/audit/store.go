package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/relaymud/relaymud/common/trace"
	"github.com/relaymud/relaymud/internal/pstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists audit records to db/audit.sqlite (SPEC_FULL.md §3:
// "Persisted to db/audit.sqlite and optionally echoed to admin clients").
// Grounded on the teacher's store.WriteAudit/GetAuditLog, rebuilt on top of
// internal/pstore's shared SQLite opener and migration runner instead of
// the teacher's app-wide *store.Store.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) the SQLite file at dbPath and
// applies pending migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := pstore.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	if err := pstore.RunMigrations(db, migrationsFS, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record is a persisted audit row.
type Record struct {
	ID        int64
	Timestamp time.Time
	TraceID   string
	Actor     string
	Kind      Kind
	Target    sql.NullString
	Message   string
}

// Write inserts evt as a new audit record, defaulting Timestamp to now and
// TraceID to the one carried on ctx when both are unset on evt.
func (s *Store) Write(ctx context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	tid := evt.TraceID
	if tid == "" {
		tid = trace.FromContext(ctx)
	}

	var target sql.NullString
	if evt.Target != "" {
		target = sql.NullString{String: evt.Target, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, actor, kind, target, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`, evt.Timestamp, tid, evt.Actor, string(evt.Kind), target, evt.Message)
	if err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	return nil
}

// Recent returns the most recent limit audit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, actor, kind, target, message
		FROM audit_log
		ORDER BY ts DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		var kind string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.TraceID, &r.Actor, &kind, &r.Target, &r.Message); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		r.Kind = Kind(kind)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent rows: %w", err)
	}
	return records, nil
}

// ByTrace returns every audit record sharing traceID, oldest first.
func (s *Store) ByTrace(ctx context.Context, traceID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, actor, kind, target, message
		FROM audit_log
		WHERE trace_id = ?
		ORDER BY ts ASC
	`, traceID)
	if err != nil {
		return nil, fmt.Errorf("audit: by trace: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		var kind string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.TraceID, &r.Actor, &kind, &r.Target, &r.Message); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		r.Kind = Kind(kind)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: by trace rows: %w", err)
	}
	return records, nil
}
