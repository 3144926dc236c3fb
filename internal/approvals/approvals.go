// Package approvals implements the confirmation gate spec.md §9 requires
// for risky proxy commands ("shutdown/restart/ban should require a second
// confirmation from an admin before taking effect"): a sensitive command is
// held as a pending Approval instead of running immediately, and an admin
// resolves it with a follow-up `#bp.core.proxy.approve <id>` or
// `#bp.core.proxy.deny <id>`.
//
// Grounded directly on the teacher's internal/ruriko/approvals package
// (Status/Approval/DefaultTTL shape, crypto/rand short-ID generation,
// GatedActions/IsGated), retargeted from Matrix-room approver identity to
// a ClientSession UUID and from "agents.delete/secrets.rotate" actions to
// RelayMUD's own gated set.
package approvals

import (
	"context"
	"crypto/rand"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/relaymud/relaymud/internal/pstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Status is an approval's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// DefaultTTL is how long a pending approval stays actionable.
const DefaultTTL = 2 * time.Minute

// GatedActions are the dotted command names that must be held for approval
// instead of running immediately (spec.md §9).
var GatedActions = map[string]bool{
	"core.proxy.shutdown": true,
	"core.proxy.restart":  true,
	"core.clients.ban":    true,
}

// IsGated reports whether action requires approval before running.
func IsGated(action string) bool { return GatedActions[action] }

// Approval is one pending or resolved gated-command request.
type Approval struct {
	ID            string
	Action        string
	Target        string
	RawArgs       string
	RequestorUUID string
	Status        Status
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ResolvedAt    time.Time
	ResolvedBy    string
}

// IsExpired reports whether a still-pending approval has passed its deadline.
func (a *Approval) IsExpired(now time.Time) bool {
	return a.Status == StatusPending && now.After(a.ExpiresAt)
}

// Store persists Approval records in the ban-table-adjacent SQLite database
// (spec.md §6 data layout: one sqlite file per concern under data/db).
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) the approvals database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := pstore.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	if err := pstore.RunMigrations(db, migrationsFS, "migrations"); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

const maxIDRetries = 3

func generateID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("approvals: generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create persists a new pending approval for a gated action.
func (s *Store) Create(ctx context.Context, action, target, rawArgs, requestorUUID string) (*Approval, error) {
	now := time.Now().UTC()
	expires := now.Add(DefaultTTL)

	var lastErr error
	for attempt := 0; attempt < maxIDRetries; attempt++ {
		id, err := generateID()
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO approvals (id, action, target, raw_args, requestor_uuid, status, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`,
			id, action, target, rawArgs, requestorUUID, now, expires)
		if err != nil {
			lastErr = err
			continue
		}
		return &Approval{
			ID: id, Action: action, Target: target, RawArgs: rawArgs,
			RequestorUUID: requestorUUID, Status: StatusPending,
			CreatedAt: now, ExpiresAt: expires,
		}, nil
	}
	return nil, fmt.Errorf("approvals: create after %d attempts: %w", maxIDRetries, lastErr)
}

// Get returns the approval with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Approval, error) {
	a := &Approval{ID: id}
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT action, target, raw_args, requestor_uuid, status, created_at, expires_at, resolved_at, resolved_by
		FROM approvals WHERE id = ?`, id)
	err := row.Scan(&a.Action, &a.Target, &a.RawArgs, &a.RequestorUUID, &a.Status,
		&a.CreatedAt, &a.ExpiresAt, &resolvedAt, &resolvedBy)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		a.ResolvedAt = resolvedAt.Time
	}
	if resolvedBy.Valid {
		a.ResolvedBy = resolvedBy.String
	}
	return a, nil
}

// Resolve transitions a pending approval to approved/denied/cancelled.
func (s *Store) Resolve(ctx context.Context, id string, status Status, resolvedByUUID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE approvals SET status = ?, resolved_at = ?, resolved_by = ?
		WHERE id = ? AND status = 'pending'`, status, now, resolvedByUUID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("approvals: %q is not pending", id)
	}
	return nil
}

// ExpireStale marks every pending approval past its deadline as expired,
// returning the count (spec.md §9: a stale shutdown/ban confirmation must
// not fire unexpectedly long after the admin typed the original command).
func (s *Store) ExpireStale(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE approvals SET status = 'expired', resolved_at = ?
		WHERE status = 'pending' AND expires_at < ?`, now, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
