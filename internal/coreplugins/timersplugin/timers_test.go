package timersplugin

import (
	"strings"
	"testing"
	"time"

	"github.com/relaymud/relaymud/internal/capi"
	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/plugin"
	"github.com/relaymud/relaymud/internal/timers"
	"github.com/relaymud/relaymud/internal/triggers"
)

func newTestDeps() plugin.Deps {
	bus := events.New()
	sched := timers.New()
	sched.Add(&timers.Timer{
		Name: "core.demo.tick", OwnerID: "core.demo",
		Period: time.Minute, Fn: func() error { return nil },
	}, time.Now().UTC())
	return plugin.Deps{
		API:        capi.New(),
		Bus:        bus,
		Dispatcher: commands.New(commands.Config{Prefix: "#bp"}),
		Triggers:   triggers.New(bus),
		Timers:     sched,
	}
}

func TestTimersPlugin_ListAndDetail(t *testing.T) {
	deps := newTestDeps()
	tp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := tp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ok, lines, err := tp.cmdList(&commands.ParsedArgs{})
	if err != nil || !ok {
		t.Fatalf("list: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(strings.Join(lines, "\n"), "core.demo.tick") {
		t.Fatalf("expected timer in list output, got %v", lines)
	}

	ok, lines, err = tp.cmdDetail(&commands.ParsedArgs{Positional: []string{"core.demo.tick"}})
	if err != nil || !ok {
		t.Fatalf("detail: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(strings.Join(lines, "\n"), "core.demo") {
		t.Fatalf("expected owner in detail output, got %v", lines)
	}
}

func TestTimersPlugin_EnableDisableRemove(t *testing.T) {
	deps := newTestDeps()
	tp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := tp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, _, err := tp.cmdDisable(&commands.ParsedArgs{Positional: []string{"core.demo.tick"}}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	timer, ok := deps.Timers.Get("core.demo.tick")
	if !ok || timer.Enabled {
		t.Fatalf("expected timer disabled, got %+v ok=%v", timer, ok)
	}

	if _, _, err := tp.cmdEnable(&commands.ParsedArgs{Positional: []string{"core.demo.tick"}}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	timer, ok = deps.Timers.Get("core.demo.tick")
	if !ok || !timer.Enabled {
		t.Fatalf("expected timer enabled, got %+v ok=%v", timer, ok)
	}

	if _, _, err := tp.cmdRemove(&commands.ParsedArgs{Positional: []string{"core.demo.tick"}}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := deps.Timers.Get("core.demo.tick"); ok {
		t.Fatal("expected timer to be removed")
	}
}

func TestTimersPlugin_DetailUnknownErrors(t *testing.T) {
	deps := newTestDeps()
	tp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := tp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, _, err := tp.cmdDetail(&commands.ParsedArgs{Positional: []string{"nope"}}); err == nil {
		t.Fatal("expected an error for an unknown timer")
	}
}
