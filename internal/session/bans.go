package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"sync"
	"time"

	"github.com/relaymud/relaymud/internal/pstore"
	"github.com/relaymud/relaymud/internal/timers"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ban is one banned remote IP (spec.md §3 Ban, §4.8: permanent bans persist
// across restarts, timed bans are lifted by a timer).
type Ban struct {
	IP        string
	Reason    string
	CreatedAt time.Time
	Permanent bool
	ExpiresAt time.Time // zero for permanent bans
}

// BanTable tracks banned IPs in memory, backed by a SQLite table for
// permanent bans (spec.md §4.8: "permanent bans... survive a proxy
// restart"; timed bans do not and are re-armed only for the process
// lifetime they were created in, grounded on the original's in-memory
// antispam ban list with no persistence for temporary entries).
type BanTable struct {
	db        *sql.DB
	scheduler *timers.Scheduler

	mu    sync.RWMutex
	byIP  map[string]*Ban
}

// OpenBanTable opens (creating if absent) the ban table database at dbPath
// and loads any persisted permanent bans into memory.
func OpenBanTable(dbPath string, scheduler *timers.Scheduler) (*BanTable, error) {
	db, err := pstore.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	if err := pstore.RunMigrations(db, migrationsFS, "migrations"); err != nil {
		db.Close()
		return nil, err
	}

	bt := &BanTable{db: db, scheduler: scheduler, byIP: make(map[string]*Ban)}
	if err := bt.loadPersisted(); err != nil {
		db.Close()
		return nil, err
	}
	return bt, nil
}

func (bt *BanTable) loadPersisted() error {
	rows, err := bt.db.Query(`SELECT ip, reason, created_at FROM permanent_bans`)
	if err != nil {
		return err
	}
	defer rows.Close()

	bt.mu.Lock()
	defer bt.mu.Unlock()
	for rows.Next() {
		var ip, reason string
		var createdAt time.Time
		if err := rows.Scan(&ip, &reason, &createdAt); err != nil {
			return err
		}
		bt.byIP[ip] = &Ban{IP: ip, Reason: reason, CreatedAt: createdAt, Permanent: true}
	}
	return rows.Err()
}

// Close releases the underlying database handle.
func (bt *BanTable) Close() error {
	return bt.db.Close()
}

// IsBanned reports whether ip currently carries an active ban.
func (bt *BanTable) IsBanned(ip string) bool {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	_, ok := bt.byIP[ip]
	return ok
}

// Get returns the ban record for ip, if any.
func (bt *BanTable) Get(ip string) (*Ban, bool) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	b, ok := bt.byIP[ip]
	return b, ok
}

// BanPermanent adds a ban for ip that survives a restart (spec.md §6:
// "#bp.core.clients.ban <ip> -1" for a permanent ban).
func (bt *BanTable) BanPermanent(ctx context.Context, ip, reason string) error {
	now := time.Now().UTC()

	_, err := bt.db.ExecContext(ctx,
		`INSERT INTO permanent_bans (ip, reason, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(ip) DO UPDATE SET reason = excluded.reason, created_at = excluded.created_at`,
		ip, reason, now)
	if err != nil {
		return err
	}

	bt.mu.Lock()
	bt.byIP[ip] = &Ban{IP: ip, Reason: reason, CreatedAt: now, Permanent: true}
	bt.mu.Unlock()
	return nil
}

// BanTimed adds a ban for ip lifted automatically after seconds elapse
// (spec.md §6: "#bp.core.clients.ban <ip> <seconds>" for seconds >= 0).
func (bt *BanTable) BanTimed(ip, reason string, seconds int) {
	now := time.Now().UTC()
	expires := now.Add(time.Duration(seconds) * time.Second)

	bt.mu.Lock()
	bt.byIP[ip] = &Ban{IP: ip, Reason: reason, CreatedAt: now, ExpiresAt: expires}
	bt.mu.Unlock()

	bt.scheduler.Add(&timers.Timer{
		Name:    "core.clients.unban." + ip,
		OwnerID: "core.clients",
		OneShot: true,
		Period:  time.Duration(seconds) * time.Second,
		Fn: func() error {
			bt.Unban(context.Background(), ip)
			return nil
		},
	}, now)
}

// Unban lifts any active ban on ip, persisted or not.
func (bt *BanTable) Unban(ctx context.Context, ip string) error {
	bt.mu.Lock()
	b, existed := bt.byIP[ip]
	delete(bt.byIP, ip)
	bt.mu.Unlock()

	if !existed {
		return nil
	}
	if !b.Permanent {
		return nil
	}
	_, err := bt.db.ExecContext(ctx, `DELETE FROM permanent_bans WHERE ip = ?`, ip)
	return err
}

// List returns every currently active ban.
func (bt *BanTable) List() []*Ban {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	out := make([]*Ban, 0, len(bt.byIP))
	for _, b := range bt.byIP {
		out = append(out, b)
	}
	return out
}

// ErrInvalidDuration is returned by BanTimed callers that pass a
// negative second count other than -1.
var ErrInvalidDuration = errors.New("session: ban duration must be -1 (permanent) or >= 0 seconds")
