package commandsplugin

import (
	"strings"
	"testing"

	"github.com/relaymud/relaymud/internal/capi"
	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/plugin"
	"github.com/relaymud/relaymud/internal/timers"
	"github.com/relaymud/relaymud/internal/triggers"
)

func newTestDeps(t *testing.T) plugin.Deps {
	t.Helper()
	bus := events.New()
	h := commands.NewHistory("", 10)
	h.Add("look")
	h.Add("north")
	return plugin.Deps{
		API:        capi.New(),
		Bus:        bus,
		Dispatcher: commands.New(commands.Config{Prefix: "#bp", History: h}),
		Triggers:   triggers.New(bus),
		Timers:     timers.New(),
	}
}

func TestCommandsPlugin_HistoryListsEntries(t *testing.T) {
	deps := newTestDeps(t)
	cp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := cp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ok, lines, err := cp.cmdHistory(&commands.ParsedArgs{})
	if err != nil || !ok {
		t.Fatalf("history: ok=%v err=%v", ok, err)
	}
	if len(lines) != 2 || !strings.Contains(lines[0], "look") || !strings.Contains(lines[1], "north") {
		t.Fatalf("unexpected history output: %v", lines)
	}
}

func TestCommandsPlugin_ReplayResendsHistoryEntry(t *testing.T) {
	deps := newTestDeps(t)
	cp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := cp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ok, lines, err := cp.cmdReplay(&commands.ParsedArgs{Positional: []string{"1"}})
	if err != nil || !ok {
		t.Fatalf("replay: ok=%v err=%v", ok, err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "look") {
		t.Fatalf("expected replay of entry 1 (look), got %v", lines)
	}
}

func TestCommandsPlugin_ReplayRejectsOutOfRange(t *testing.T) {
	deps := newTestDeps(t)
	cp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := cp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, _, err := cp.cmdReplay(&commands.ParsedArgs{Positional: []string{"99"}}); err == nil {
		t.Fatal("expected an error replaying an out-of-range history entry")
	}
}
