// Package pipeline wires the command dispatcher and trigger engine onto the
// two data-modify events that every line of traffic passes through
// (spec.md §4.6): ev_to_mud_data_modify for client→mud lines and
// ev_to_client_data_modify for mud→client lines.
//
// The teacher has no direct analogue to a mutable pre-send event pipeline;
// the single-goroutine, no-internal-suspend shape follows
// internal/ruriko/runtime/reconciler.go's Run/Reconcile split, and the
// ingress limiter is grounded on the teacher's unused (transitive-only)
// golang.org/x/time/rate dependency, promoted here to direct and exercised.
package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/triggers"
)

const (
	toMudEvent    = "ev_to_mud_data_modify"
	toClientEvent = "ev_to_client_data_modify"
)

// ClientLine is one line of client input flowing toward the mud (spec.md
// §4.6: "{line, client_id, sendtomud=true, showinhistory=true,
// internal=false}").
type ClientLine struct {
	Line          string
	ClientID      string
	SendToMud     bool
	ShowInHistory bool
	Internal      bool
}

// Sender delivers a finished line to its destination. SendToMud queues a
// line outbound to the mud connection; SendToClients broadcasts a line to
// connected clients (optionally excluding one, for echo suppression).
type Sender interface {
	SendToMud(line string)
	SendToClients(line string, excludeClientID string)
}

// Pipeline owns the ingress rate limiter and wires the dispatcher/engine
// into the bus's data-modify events.
type Pipeline struct {
	log *slog.Logger
	bus *events.Bus

	dispatcher *commands.Dispatcher
	engine     *triggers.Engine
	sender     Sender

	limiter *rate.Limiter
}

// New creates a Pipeline and subscribes its handlers to bus. ingressRate
// and ingressBurst bound how many client lines per second are accepted
// before being silently rate-limited (spec.md §9 ambient hardening: the
// proxy must not let one client's input flood the mud connection).
func New(bus *events.Bus, dispatcher *commands.Dispatcher, engine *triggers.Engine, sender Sender, ingressRate rate.Limit, ingressBurst int) *Pipeline {
	p := &Pipeline{
		log:        slog.With("component", "pipeline"),
		bus:        bus,
		dispatcher: dispatcher,
		engine:     engine,
		sender:     sender,
		limiter:    rate.NewLimiter(ingressRate, ingressBurst),
	}

	bus.RegisterToEvent(toMudEvent, "core.pipeline", 10, p.handleToMud)
	bus.RegisterToEvent(toClientEvent, "core.pipeline", 90, p.handleToClient)

	return p
}

// IngestClientLine is the entry point for a line read from a client socket
// (spec.md §4.6 "Ingress from a client"). It applies the token-bucket
// ingress limiter before the line ever reaches the event bus.
func (p *Pipeline) IngestClientLine(ctx context.Context, clientID, line string) {
	if !p.limiter.Allow() {
		p.log.Warn("client ingress rate limited", "client", clientID)
		return
	}

	cl := &ClientLine{Line: line, ClientID: clientID, SendToMud: true, ShowInHistory: true}
	rec := events.NewRecord(toMudEvent, map[string]any{"ClientLine": cl})
	p.bus.RaiseRecord(toMudEvent, rec)
}

// handleToMud runs the command dispatcher against a client line at low
// priority so later, lower-priority subscribers (plugins wanting a look at
// the raw line) still see it if the dispatcher passes it through
// unmodified (spec.md §4.6: "The commands plugin subscribes and, if the
// line starts with the prefix, invokes §4.5 and sets sendtomud=false").
func (p *Pipeline) handleToMud(rec *events.Record) (*events.Record, error) {
	cl, ok := rec.Get("ClientLine")
	if !ok {
		return rec, nil
	}
	line, ok := cl.(*ClientLine)
	if !ok {
		return rec, nil
	}

	if p.dispatcher.IsCommand(line.Line) {
		for _, chunk := range p.dispatcher.SplitLines(line.Line) {
			out := p.dispatcher.Dispatch(chunk)
			if len(out) > 0 {
				p.sender.SendToClients(joinLines(out), "")
			}
		}
		line.SendToMud = false
		return rec, nil
	}

	result := p.dispatcher.PassThrough(line.Line)
	line.Line = result.Line
	line.SendToMud = result.SendToMud

	if line.SendToMud {
		p.sender.SendToMud(line.Line)
	}
	return rec, nil
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\r\n"
		}
		out += l
	}
	return out
}

// handleToClient runs the trigger engine against a mud line before it is
// broadcast (spec.md §4.6 "Ingress from the mud"; §4.4).
func (p *Pipeline) handleToClient(rec *events.Record) (*events.Record, error) {
	tc, ok := rec.Get("ToClientRecord")
	if !ok {
		return rec, nil
	}
	tcr, ok := tc.(*triggers.ToClientRecord)
	if !ok {
		return rec, nil
	}

	if !tcr.Internal {
		p.engine.Check(rec)
	}

	if tcr.SendToClient {
		p.sender.SendToClients(tcr.ColorLine, "")
	}
	return rec, nil
}

// IngestMudLine is the entry point for a line read from the mud connection.
// line is the markup-stripped text triggers match against by default;
// colorLine carries the ANSI-translated text actually sent to clients
// (spec.md §4.4: triggers match the stripped line unless matchcolor=true).
func (p *Pipeline) IngestMudLine(line, colorLine string) {
	tcr := &triggers.ToClientRecord{Line: line, ColorLine: colorLine, SendToClient: true}
	rec := events.NewRecord(toClientEvent, map[string]any{"ToClientRecord": tcr})
	p.bus.RaiseRecord(toClientEvent, rec)
}

// SendDataDirectlyToClient bypasses the event pipeline for logger output:
// it hands line straight to Sender.SendToClients, so no record is built, no
// event is raised and triggers never see the line.
func (p *Pipeline) SendDataDirectlyToClient(line string) {
	p.sender.SendToClients(line, "")
}
