package logplugin

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/relaymud/relaymud/internal/audit"
	"github.com/relaymud/relaymud/internal/capi"
	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/plugin"
	"github.com/relaymud/relaymud/internal/timers"
	"github.com/relaymud/relaymud/internal/triggers"
)

func newTestDeps(t *testing.T) plugin.Deps {
	t.Helper()
	store, err := audit.OpenStore(filepath.Join(t.TempDir(), "audit.sqlite"))
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bus := events.New()
	return plugin.Deps{
		API:        capi.New(),
		Bus:        bus,
		Dispatcher: commands.New(commands.Config{Prefix: "#bp"}),
		Triggers:   triggers.New(bus),
		Timers:     timers.New(),
		Audit:      store,
	}
}

func TestLogPlugin_RecordsWatchedEventAndSurfacesInRecent(t *testing.T) {
	deps := newTestDeps(t)
	lp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := lp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	deps.Bus.Raise("ev_plugins.core.clients_client_connected", map[string]any{"uuid": "abc-123", "ip": "10.0.0.1"})

	ok, lines, err := lp.cmdRecent(&commands.ParsedArgs{})
	if err != nil || !ok {
		t.Fatalf("recent: ok=%v err=%v", ok, err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected exactly one recorded event, got %v", lines)
	}
	if !strings.Contains(lines[0], "actor=abc-123") {
		t.Fatalf("expected actor abc-123 recorded, got %q", lines[0])
	}
}

func TestLogPlugin_RecentHonorsCountArgument(t *testing.T) {
	deps := newTestDeps(t)
	lp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := lp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	for i := 0; i < 5; i++ {
		deps.Bus.Raise("ev_plugins.core.clients_client_connected", map[string]any{"uuid": "abc-123", "ip": "10.0.0.1"})
	}

	ok, lines, err := lp.cmdRecent(&commands.ParsedArgs{Positional: []string{"2"}})
	if err != nil || !ok {
		t.Fatalf("recent: ok=%v err=%v", ok, err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected count argument to limit to 2 records, got %d: %v", len(lines), lines)
	}
}

func TestLogPlugin_IgnoresUnwatchedEvent(t *testing.T) {
	deps := newTestDeps(t)
	lp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := lp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	deps.Bus.Raise("ev_something_else", nil)

	ok, lines, err := lp.cmdRecent(&commands.ParsedArgs{})
	if err != nil || !ok {
		t.Fatalf("recent: ok=%v err=%v", ok, err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no recorded events, got %v", lines)
	}
}
