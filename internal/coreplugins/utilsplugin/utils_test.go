package utilsplugin

import (
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
	return plugin.Deps{
		API:        capi.New(),
		Bus:        bus,
		Dispatcher: commands.New(commands.Config{Prefix: "#bp"}),
		Triggers:   triggers.New(bus),
		Timers:     timers.New(),
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "01m:30s"},
		{26 * time.Hour, "01d:02h:00m:00s"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.in); got != c.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestVerifyValue(t *testing.T) {
	if v, err := VerifyValue("bool", "true"); err != nil || v != true {
		t.Fatalf("bool: v=%v err=%v", v, err)
	}
	if v, err := VerifyValue("int", "42"); err != nil || v != 42 {
		t.Fatalf("int: v=%v err=%v", v, err)
	}
	if _, err := VerifyValue("int", "nope"); err == nil {
		t.Fatal("expected error for non-integer int value")
	}
	if _, err := VerifyValue("bogus", "x"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestUtilsPlugin_CommandsAndCapabilities(t *testing.T) {
	deps := newTestDeps()
	up := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := up.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ok, lines, err := up.cmdTimelength(&commands.ParsedArgs{Positional: []string{"1h30m"}})
	if err != nil || !ok {
		t.Fatalf("timelength: ok=%v err=%v", ok, err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one line of output, got %v", lines)
	}

	item, err := deps.API.Get("utils:verify.value")
	if err != nil {
		t.Fatalf("utils:verify.value not registered: %v", err)
	}
	result, err := item.Fn("int", "7")
	if err != nil || result != 7 {
		t.Fatalf("verify.value capability: result=%v err=%v", result, err)
	}
}
