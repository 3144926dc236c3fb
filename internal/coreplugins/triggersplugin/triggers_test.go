package triggersplugin

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

func newTestDeps() plugin.Deps {
	bus := events.New()
	return plugin.Deps{
		API:        capi.New(),
		Bus:        bus,
		Dispatcher: commands.New(commands.Config{Prefix: "#bp"}),
		Triggers:   triggers.New(bus),
		Timers:     timers.New(),
	}
}

func TestTriggersPlugin_ListAndDetail(t *testing.T) {
	deps := newTestDeps()
	if _, err := deps.Triggers.Add("alarm", `bells ring`, "core.demo", triggers.AddOptions{Enabled: true}); err != nil {
		t.Fatalf("add trigger: %v", err)
	}

	tp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := tp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ok, lines, err := tp.cmdList(&commands.ParsedArgs{})
	if err != nil || !ok {
		t.Fatalf("list: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(strings.Join(lines, "\n"), "alarm") {
		t.Fatalf("expected alarm in list output, got %v", lines)
	}

	ok, lines, err = tp.cmdDetail(&commands.ParsedArgs{Positional: []string{"core.demo", "alarm"}})
	if err != nil || !ok {
		t.Fatalf("detail: ok=%v err=%v", ok, err)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "bells ring") {
		t.Fatalf("expected regex in detail output, got %v", lines)
	}
}

func TestTriggersPlugin_EnableDisableRemove(t *testing.T) {
	deps := newTestDeps()
	if _, err := deps.Triggers.Add("alarm", `bells ring`, "core.demo", triggers.AddOptions{Enabled: true}); err != nil {
		t.Fatalf("add trigger: %v", err)
	}

	tp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := tp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, _, err := tp.cmdDisable(&commands.ParsedArgs{Positional: []string{"core.demo", "alarm"}}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	trig, ok := deps.Triggers.Get("alarm", "core.demo")
	if !ok || trig.Enabled {
		t.Fatalf("expected trigger disabled, got %+v ok=%v", trig, ok)
	}

	if _, _, err := tp.cmdEnable(&commands.ParsedArgs{Positional: []string{"core.demo", "alarm"}}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	trig, ok = deps.Triggers.Get("alarm", "core.demo")
	if !ok || !trig.Enabled {
		t.Fatalf("expected trigger enabled, got %+v ok=%v", trig, ok)
	}

	if _, _, err := tp.cmdRemove(&commands.ParsedArgs{Positional: []string{"core.demo", "alarm"}}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := deps.Triggers.Get("alarm", "core.demo"); ok {
		t.Fatal("expected trigger to be removed")
	}
}

func TestTriggersPlugin_DetailUnknownErrors(t *testing.T) {
	deps := newTestDeps()
	tp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := tp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, _, err := tp.cmdDetail(&commands.ParsedArgs{Positional: []string{"core.demo", "nope"}}); err == nil {
		t.Fatal("expected an error for an unknown trigger")
	}
}
