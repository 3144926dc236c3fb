// Package audit records control-plane actions — bans, disconnects, antispam
// actions, plugin loads — and echoes the ones an operator would want to see
// live to every admin client (spec.md §7: "Bans, disconnects, and antispam
// actions are echoed to admin clients").
//
// Retargeted from the teacher's audit/notifier.go, which posts the same
// shape of event to a Matrix room; RelayMUD has no chat room, so Notify
// instead writes to every admin-flagged ClientSession via a Broadcaster.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaymud/relaymud/common/trace"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindClientConnected    Kind = "client.connected"
	KindClientDisconnected Kind = "client.disconnected"
	KindClientBanned       Kind = "client.banned"
	KindClientUnbanned     Kind = "client.unbanned"
	KindAntispamTriggered  Kind = "antispam.triggered"
	KindPluginLoaded       Kind = "plugin.loaded"
	KindPluginUnloaded     Kind = "plugin.unloaded"
	KindPluginReloaded     Kind = "plugin.reloaded"
	KindProxyShutdown      Kind = "proxy.shutdown"
	KindProxyRestart       Kind = "proxy.restart"
	KindError              Kind = "error"
)

// Event carries the data that a Notifier formats and delivers.
type Event struct {
	// Kind identifies the type of event.
	Kind Kind
	// Actor is the client UUID that triggered the event, or "system" for
	// proxy-initiated actions.
	Actor string
	// Target is the primary resource affected (an IP address, a plugin id).
	Target string
	// Message is a human-friendly description of what happened.
	Message string
	// TraceID ties the notification back to the persisted audit record.
	// When empty the value is taken from the context.
	TraceID string
	// Timestamp defaults to time.Now() when zero.
	Timestamp time.Time
}

// Notifier delivers audit events to their live destination.
type Notifier interface {
	// Notify announces evt. Implementations MUST NOT block the caller for
	// longer than a short timeout; delivery failures should be logged, not
	// propagated.
	Notify(ctx context.Context, evt Event)
}

// Broadcaster is the subset of the client session table needed by
// AdminNotifier: every currently connected client flagged as an admin.
type Broadcaster interface {
	BroadcastToAdmins(line string) error
}

// AdminNotifier echoes formatted audit lines to every connected admin
// client (spec.md §7), the RelayMUD equivalent of the teacher's Matrix
// audit room.
type AdminNotifier struct {
	broadcaster Broadcaster
}

// NewAdminNotifier creates an AdminNotifier that echoes through broadcaster.
func NewAdminNotifier(broadcaster Broadcaster) *AdminNotifier {
	return &AdminNotifier{broadcaster: broadcaster}
}

// Notify formats evt as a human-readable line and echoes it to admin
// clients. Errors are logged at WARN level; the caller is never blocked.
func (n *AdminNotifier) Notify(ctx context.Context, evt Event) {
	if n.broadcaster == nil {
		return
	}

	tid := evt.TraceID
	if tid == "" {
		tid = trace.FromContext(ctx)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	icon := kindIcon(evt.Kind)
	line := fmt.Sprintf("%s [%s] %s", icon, evt.Kind, evt.Message)
	if evt.Target != "" {
		line = fmt.Sprintf("%s %s → %s", icon, evt.Target, evt.Message)
	}
	if evt.Actor != "" {
		line = fmt.Sprintf("%s (actor: %s)", line, evt.Actor)
	}
	if tid != "" {
		line = fmt.Sprintf("%s [trace %s]", line, tid)
	}

	if err := n.broadcaster.BroadcastToAdmins(line); err != nil {
		slog.Warn("audit notifier: failed to echo to admin clients", "kind", evt.Kind, "err", err)
	} else {
		slog.Debug("audit notifier: echoed to admin clients", "kind", evt.Kind)
	}
}

// Noop is a no-op Notifier used before any client has connected.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(_ context.Context, _ Event) {}

// kindIcon returns a short ASCII tag for the event kind, matching the
// plain-telnet terminal RelayMUD targets (no emoji rendering guarantee
// over a raw telnet client, unlike the teacher's Matrix clients).
func kindIcon(k Kind) string {
	switch k {
	case KindClientConnected:
		return "+"
	case KindClientDisconnected:
		return "-"
	case KindClientBanned:
		return "X"
	case KindClientUnbanned:
		return "O"
	case KindAntispamTriggered:
		return "!"
	case KindPluginLoaded:
		return ">"
	case KindPluginUnloaded:
		return "<"
	case KindPluginReloaded:
		return "~"
	case KindProxyShutdown, KindProxyRestart:
		return "*"
	case KindError:
		return "!!"
	default:
		return "."
	}
}
