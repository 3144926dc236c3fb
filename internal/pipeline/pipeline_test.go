package pipeline

import (
	"context"
	"testing"

	"golang.org/x/time/rate"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/triggers"
)

type fakeSender struct {
	toMud     []string
	toClients []string
}

func (f *fakeSender) SendToMud(line string)                        { f.toMud = append(f.toMud, line) }
func (f *fakeSender) SendToClients(line string, excludeClientID string) { f.toClients = append(f.toClients, line) }

func newTestPipeline(t *testing.T) (*Pipeline, *fakeSender, *events.Bus) {
	t.Helper()
	bus := events.New()
	d := commands.New(commands.Config{Prefix: "#bp"})
	d.RegisterPlugin("core.proxy", "core", "proxy")
	d.AddCommand("core.proxy", &commands.Command{
		Name: "info",
		Fn: func(args *commands.ParsedArgs) (bool, []string, error) {
			return true, []string{"uptime: 1h"}, nil
		},
	})
	engine := triggers.New(bus)
	sender := &fakeSender{}
	p := New(bus, d, engine, sender, rate.Limit(1000), 1000)
	return p, sender, bus
}

func TestPipeline_CommandLineNeverReachesMud(t *testing.T) {
	p, sender, _ := newTestPipeline(t)
	p.IngestClientLine(context.Background(), "c1", "#bp.core.proxy.info")

	if len(sender.toMud) != 0 {
		t.Fatalf("expected no mud traffic for a command line, got %v", sender.toMud)
	}
	if len(sender.toClients) == 0 {
		t.Fatal("expected command output sent to client")
	}
}

func TestPipeline_PlainLineReachesMud(t *testing.T) {
	p, sender, _ := newTestPipeline(t)
	p.IngestClientLine(context.Background(), "c1", "north")

	if len(sender.toMud) != 1 || sender.toMud[0] != "north" {
		t.Fatalf("expected plain line forwarded to mud, got %v", sender.toMud)
	}
}

func TestPipeline_MudLineRunsTriggersAndBroadcasts(t *testing.T) {
	p, sender, bus := newTestPipeline(t)

	tr, err := p.engine.Add("greet", `^hello$`, "plugin.a", triggers.AddOptions{Enabled: true})
	if err != nil {
		t.Fatalf("add trigger: %v", err)
	}
	var fired bool
	bus.RegisterToEvent(tr.EventName, "plugin.a", 50, func(r *events.Record) (*events.Record, error) {
		fired = true
		return r, nil
	})

	p.IngestMudLine("hello", "hello")

	if !fired {
		t.Fatal("expected trigger to fire for matching mud line")
	}
	if len(sender.toClients) != 1 || sender.toClients[0] != "hello" {
		t.Fatalf("expected mud line broadcast to clients, got %v", sender.toClients)
	}
}

func TestPipeline_MudLineBroadcastsColorNotStrippedText(t *testing.T) {
	p, sender, _ := newTestPipeline(t)

	p.IngestMudLine("a goblin arrives.", "\x1b[0;31ma goblin arrives.\x1b[0m")

	if len(sender.toClients) != 1 || sender.toClients[0] != "\x1b[0;31ma goblin arrives.\x1b[0m" {
		t.Fatalf("expected the ANSI-colored line broadcast to clients, got %v", sender.toClients)
	}
}

func TestPipeline_InternalLineBypassesTriggers(t *testing.T) {
	p, sender, bus := newTestPipeline(t)

	var triggerFired bool
	tr, _ := p.engine.Add("any", `.*`, "plugin.a", triggers.AddOptions{Enabled: true})
	bus.RegisterToEvent(tr.EventName, "plugin.a", 50, func(r *events.Record) (*events.Record, error) {
		triggerFired = true
		return r, nil
	})

	p.SendDataDirectlyToClient("log: something happened")

	if triggerFired {
		t.Fatal("expected SendDataDirectlyToClient to bypass the event pipeline and triggers entirely")
	}
	if len(sender.toClients) != 1 {
		t.Fatalf("expected one direct client send, got %v", sender.toClients)
	}
}

func TestPipeline_RateLimiterDropsExcessIngress(t *testing.T) {
	bus := events.New()
	d := commands.New(commands.Config{Prefix: "#bp"})
	engine := triggers.New(bus)
	sender := &fakeSender{}
	p := New(bus, d, engine, sender, rate.Limit(0.0001), 1)

	p.IngestClientLine(context.Background(), "c1", "one")
	p.IngestClientLine(context.Background(), "c1", "two")

	if len(sender.toMud) != 1 {
		t.Fatalf("expected only the first line to pass the ingress limiter, got %v", sender.toMud)
	}
}
