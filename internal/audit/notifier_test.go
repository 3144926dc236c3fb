package audit_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/relaymud/relaymud/internal/audit"
)

// fakeBroadcaster records echoed lines for assertion.
type fakeBroadcaster struct {
	lines []string
	err   error
}

func (f *fakeBroadcaster) BroadcastToAdmins(line string) error {
	if f.err != nil {
		return f.err
	}
	f.lines = append(f.lines, line)
	return nil
}

func TestAdminNotifier_EchoesToAdmins(t *testing.T) {
	b := &fakeBroadcaster{}
	n := audit.NewAdminNotifier(b)

	n.Notify(context.Background(), audit.Event{
		Kind:    audit.KindClientBanned,
		Actor:   "c_abc123",
		Target:  "203.0.113.7",
		Message: "banned for repeated auth failures",
		TraceID: "t_def456",
	})

	if len(b.lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(b.lines))
	}
	line := b.lines[0]
	for _, want := range []string{"203.0.113.7", "banned for repeated auth failures", "t_def456", "c_abc123"} {
		if !containsStr(line, want) {
			t.Errorf("line missing %q: %q", want, line)
		}
	}
}

func TestAdminNotifier_NoopWithoutBroadcaster(t *testing.T) {
	n := audit.NewAdminNotifier(nil)
	// Must not panic.
	n.Notify(context.Background(), audit.Event{Kind: audit.KindError, Message: "boom"})
}

func TestAdminNotifier_LogsButDoesNotPanicOnBroadcastError(t *testing.T) {
	b := &fakeBroadcaster{err: errors.New("no admin clients connected")}
	n := audit.NewAdminNotifier(b)
	n.Notify(context.Background(), audit.Event{Kind: audit.KindProxyRestart, Message: "restarting"})
}

func TestNoop(t *testing.T) {
	audit.Noop{}.Notify(context.Background(), audit.Event{Kind: audit.KindError, Message: "boom"})
}

func TestStore_WriteAndRecent(t *testing.T) {
	store, err := audit.OpenStore(filepath.Join(t.TempDir(), "audit.sqlite"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Write(ctx, audit.Event{Kind: audit.KindClientConnected, Actor: "c_1", Message: "connected"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write(ctx, audit.Event{Kind: audit.KindClientBanned, Actor: "c_1", Target: "203.0.113.7", Message: "banned", TraceID: "t_xyz"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].Kind != audit.KindClientBanned {
		t.Fatalf("expected most recent record first, got %v", recent[0].Kind)
	}

	byTrace, err := store.ByTrace(ctx, "t_xyz")
	if err != nil {
		t.Fatalf("ByTrace: %v", err)
	}
	if len(byTrace) != 1 || byTrace[0].Message != "banned" {
		t.Fatalf("unexpected ByTrace result: %+v", byTrace)
	}
}

func containsStr(s, sub string) bool {
	if sub == "" {
		return true
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
