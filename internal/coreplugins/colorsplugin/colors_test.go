package colorsplugin

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

func TestToANSI_LetterAndXtermCodes(t *testing.T) {
	if got := ToANSI("@rHi@w"); !strings.Contains(got, "\x1b[0;31m") || !strings.Contains(got, "\x1b[0;37m") {
		t.Fatalf("expected red/white SGR codes, got %q", got)
	}
	if got := ToANSI("@x200text"); !strings.Contains(got, "\x1b[38;5;200m") {
		t.Fatalf("expected xterm-256 foreground code, got %q", got)
	}
}

func TestToANSI_UppercaseIsBold(t *testing.T) {
	if got := ToANSI("@R"); !strings.Contains(got, "\x1b[1;31m") {
		t.Fatalf("expected bold red, got %q", got)
	}
}

func TestStrip_RemovesMarkupKeepsLiteralAt(t *testing.T) {
	if got := Strip("@rRed@w @@ literal"); got != "Red @ literal" {
		t.Fatalf("unexpected strip result: %q", got)
	}
}

func TestColorsPlugin_RegistersCapabilities(t *testing.T) {
	deps := newTestDeps()
	cp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := cp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	item, err := deps.API.Get("colors:strip")
	if err != nil {
		t.Fatalf("colors:strip not registered: %v", err)
	}
	result, err := item.Fn("@ggreen")
	if err != nil {
		t.Fatalf("calling colors:strip: %v", err)
	}
	if result.(string) != "green" {
		t.Fatalf("unexpected strip capability result: %v", result)
	}
}

func TestColorsPlugin_TestCommand(t *testing.T) {
	deps := newTestDeps()
	cp := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := cp.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	ok, lines, err := cp.cmdTest(&commands.ParsedArgs{Positional: []string{"@rHi"}})
	if err != nil || !ok {
		t.Fatalf("test: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(strings.Join(lines, "\n"), "stripped: Hi") {
		t.Fatalf("expected stripped output, got %v", lines)
	}
}
