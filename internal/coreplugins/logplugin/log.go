// Package logplugin bridges proxy lifecycle events onto the audit trail
// (spec.md §7: "Bans, disconnects, and antispam actions are echoed to
// admin clients"), subscribing to the client connect/disconnect and plugin
// loaded/unloaded events and recording + notifying through internal/audit.
//
// Grounded on internal/ruriko/audit/notifier.go's event-driven notify
// pattern, generalized from a fixed set of Matrix-relevant event names to
// RelayMUD's own lifecycle events.
package logplugin

import (
	"context"
	"fmt"
	"strconv"

	"github.com/relaymud/relaymud/internal/audit"
	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.log"

// Manifest is read by loader.Discover via static AST parsing. core.log is
// pinned first among startup plugins (loader.LoadStartupPlugins) so every
// other core plugin's lifecycle events reach the audit trail from the
// moment they load.
var Manifest = plugin.Manifest{
	Name:    "Log",
	Author:  "core",
	Purpose: "audit trail for proxy lifecycle events",
	Version: "1.0",
	Package: "core",
	Short:   "log",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.log plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.log plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// watchedEvents maps an event name to the audit.Kind it should be recorded
// as: client connect/disconnect and plugin loaded/unloaded.
var watchedEvents = map[string]audit.Kind{
	"ev_plugins.core.clients_client_connected":    audit.KindClientConnected,
	"ev_plugins.core.clients_client_disconnected": audit.KindClientDisconnected,
	"ev_plugin_loaded":                            audit.KindPluginLoaded,
	"ev_plugin_unloaded":                          audit.KindPluginUnloaded,
}

// Initialize subscribes to every watched event and registers the
// #bp.core.log.recent introspection command.
func (p *Plugin) Initialize() error {
	for name, kind := range watchedEvents {
		kind := kind
		p.Subscribe(name, 50, func(rec *events.Record) (*events.Record, error) {
			p.record(kind, rec)
			return rec, nil
		})
	}

	return p.AddCommand(&commands.Command{
		Name:   "recent",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "count", Positional: true}),
		Fn:     p.cmdRecent,
	})
}

// Uninitialize has nothing beyond what RemoveOwnedData already undoes.
func (p *Plugin) Uninitialize() error { return nil }

func (p *Plugin) record(kind audit.Kind, rec *events.Record) {
	actor, _ := rec.Get("uuid")
	target, _ := rec.Get("ip")
	plugID, _ := rec.Get("plugin_id")
	if plugID != nil && target == nil {
		target = plugID
	}

	evt := audit.Event{Kind: kind, Message: string(kind)}
	if s, ok := actor.(string); ok {
		evt.Actor = s
	}
	if s, ok := target.(string); ok {
		evt.Target = s
	}

	deps := p.Deps()
	if deps.Audit != nil {
		if err := deps.Audit.Write(context.Background(), evt); err != nil {
			deps.Bus.Raise("ev_error", map[string]any{"err": err.Error(), "source": ID})
		}
	}
	if deps.Notifier != nil {
		deps.Notifier.Notify(context.Background(), evt)
	}
}

func (p *Plugin) cmdRecent(args *commands.ParsedArgs) (bool, []string, error) {
	limit := 20
	if len(args.Positional) > 0 {
		if n, err := strconv.Atoi(args.Positional[0]); err == nil && n > 0 {
			limit = n
		}
	}
	deps := p.Deps()
	if deps.Audit == nil {
		return false, nil, fmt.Errorf("audit store not configured")
	}

	records, err := deps.Audit.Recent(context.Background(), limit)
	if err != nil {
		return false, nil, err
	}

	out := make([]string, 0, len(records))
	for _, r := range records {
		line := fmt.Sprintf("[%s] %s %s", r.Timestamp.Format("15:04:05"), r.Kind, r.Message)
		if r.Actor != "" {
			line += " actor=" + r.Actor
		}
		out = append(out, line)
	}
	return true, out, nil
}
