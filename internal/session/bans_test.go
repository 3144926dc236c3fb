package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/relaymud/relaymud/internal/timers"
)

func TestBanTable_PermanentBanPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.sqlite")

	bt, err := OpenBanTable(path, timers.New())
	if err != nil {
		t.Fatalf("OpenBanTable: %v", err)
	}
	if err := bt.BanPermanent(t.Context(), "198.51.100.1", "spam"); err != nil {
		t.Fatalf("BanPermanent: %v", err)
	}
	bt.Close()

	reopened, err := OpenBanTable(path, timers.New())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if !reopened.IsBanned("198.51.100.1") {
		t.Fatalf("expected permanent ban to survive reopen")
	}
}

func TestBanTable_UnbanLiftsPermanentBan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.sqlite")
	bt, err := OpenBanTable(path, timers.New())
	if err != nil {
		t.Fatalf("OpenBanTable: %v", err)
	}
	defer bt.Close()

	bt.BanPermanent(t.Context(), "198.51.100.2", "spam")
	if err := bt.Unban(t.Context(), "198.51.100.2"); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	if bt.IsBanned("198.51.100.2") {
		t.Fatalf("expected ban lifted")
	}
}

func TestBanTable_TimedBanExpiresViaScheduler(t *testing.T) {
	sched := timers.New()
	bt, err := OpenBanTable(filepath.Join(t.TempDir(), "bans.sqlite"), sched)
	if err != nil {
		t.Fatalf("OpenBanTable: %v", err)
	}
	defer bt.Close()

	bt.BanTimed("198.51.100.3", "flood", 1)
	if !bt.IsBanned("198.51.100.3") {
		t.Fatalf("expected ban to be active immediately")
	}

	// Advance past the 1-second expiry and run a check pass.
	sched.Check(time.Now().Add(2 * time.Second))

	if bt.IsBanned("198.51.100.3") {
		t.Fatalf("expected timed ban to expire")
	}
}

func TestBanTable_TimedBanDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.sqlite")
	bt, err := OpenBanTable(path, timers.New())
	if err != nil {
		t.Fatalf("OpenBanTable: %v", err)
	}
	bt.BanTimed("198.51.100.4", "flood", 600)
	bt.Close()

	reopened, err := OpenBanTable(path, timers.New())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.IsBanned("198.51.100.4") {
		t.Fatalf("timed bans must not survive a restart")
	}
}
