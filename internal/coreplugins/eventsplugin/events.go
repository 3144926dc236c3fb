// Package eventsplugin exposes the event bus's declared events and their
// subscribers over the command language (spec.md §4.2's event registry),
// for operator introspection ("what listens to ev_net.mud_connected").
//
// Grounded on the original's plugins/core/events/plugin/_events.py:
// list/detail on its own event registry, raise on _command_raise (raising a
// no-argument event for ad hoc subscriber testing), and owner on
// _command_owner (every event a given owner id has a subscriber on).
package eventsplugin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relaymud/relaymud/common/redact"
	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.events"

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:    "Events",
	Author:  "core",
	Purpose: "event bus introspection",
	Version: "1.0",
	Package: "core",
	Short:   "events",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.events plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.events plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// Initialize registers list/detail/raise/owner/history.
func (p *Plugin) Initialize() error {
	if err := p.AddCommand(&commands.Command{Name: "list", Fn: p.cmdList}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{
		Name:   "detail",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "name", Positional: true, Required: true}),
		Fn:     p.cmdDetail,
	}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{
		Name:   "raise",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "name", Positional: true, Required: true}),
		Fn:     p.cmdRaise,
	}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{
		Name:   "owner",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "owner", Positional: true, Required: true}),
		Fn:     p.cmdOwner,
	}); err != nil {
		return err
	}
	return p.AddCommand(&commands.Command{Name: "history", Fn: p.cmdHistory})
}

// Uninitialize has nothing to reverse beyond RemoveOwnedData.
func (p *Plugin) Uninitialize() error { return nil }

func (p *Plugin) cmdList(_ *commands.ParsedArgs) (bool, []string, error) {
	names := p.Deps().Bus.Names()
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, fmt.Sprintf("%s (raised %d times)", n, p.Deps().Bus.RaisedCount(n)))
	}
	return true, p.redactLines(out), nil
}

// redactLines scrubs the proxy's admin/view passwords out of output headed
// for an admin console, since raise accepts arbitrary data an admin could
// paste a live password into while testing a login-adjacent event.
func (p *Plugin) redactLines(lines []string) []string {
	values := p.Deps().SensitiveValues
	if len(values) == 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = redact.String(l, values...)
	}
	return out
}

func (p *Plugin) cmdDetail(args *commands.ParsedArgs) (bool, []string, error) {
	name := args.Positional[0]
	d, ok := p.Deps().Bus.Detail(name)
	if !ok {
		return false, nil, fmt.Errorf("no such event %q", name)
	}

	out := []string{
		fmt.Sprintf("%s owner=%s", d.Name, d.OwnerID),
	}
	if d.Description != "" {
		out = append(out, "  "+d.Description)
	}

	var prios []int
	for prio := range d.Subscribers {
		prios = append(prios, prio)
	}
	sort.Ints(prios)
	for _, prio := range prios {
		for _, owner := range d.Subscribers[prio] {
			out = append(out, fmt.Sprintf("  [%d] %s", prio, owner))
		}
	}
	return true, out, nil
}

func (p *Plugin) cmdHistory(_ *commands.ParsedArgs) (bool, []string, error) {
	return true, p.Deps().Bus.History(), nil
}

// cmdRaise raises a declared event for ad hoc testing of subscribers from
// the command line. Only events that already exist (have been declared or
// subscribed to) can be raised this way. Extra positional arguments of the
// form key=value become the event's data map, letting an admin exercise a
// subscriber that reads specific fields (spec.md §4.2's event data
// contract) — the confirmation line echoes that data back redacted, since
// nothing stops an admin from pasting a live password into one of those
// fields while testing a login-adjacent event.
func (p *Plugin) cmdRaise(args *commands.ParsedArgs) (bool, []string, error) {
	name := args.Positional[0]
	if _, ok := p.Deps().Bus.Detail(name); !ok {
		return true, []string{fmt.Sprintf("event does not exist: %s", name)}, nil
	}

	var data map[string]any
	if len(args.Positional) > 1 {
		data = make(map[string]any, len(args.Positional)-1)
		for _, kv := range args.Positional[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			data[k] = v
		}
	}

	p.Deps().Bus.Raise(name, data)

	msg := fmt.Sprintf("raised event: %s", name)
	if len(data) > 0 {
		msg = fmt.Sprintf("%s data=%v", msg, data)
	}
	return true, p.redactLines([]string{msg}), nil
}

// cmdOwner lists every event owner has a registered subscriber on, grouped
// by event name.
func (p *Plugin) cmdOwner(args *commands.ParsedArgs) (bool, []string, error) {
	owner := args.Positional[0]

	bus := p.Deps().Bus
	names := bus.Names()
	sort.Strings(names)

	out := []string{fmt.Sprintf("Registrations for owner: %s", owner)}
	found := false
	for _, name := range names {
		d, ok := bus.Detail(name)
		if !ok {
			continue
		}
		var prios []int
		for prio := range d.Subscribers {
			prios = append(prios, prio)
		}
		sort.Ints(prios)
		for _, prio := range prios {
			for _, o := range d.Subscribers[prio] {
				if o != owner {
					continue
				}
				found = true
				out = append(out, fmt.Sprintf("  [%d] %s", prio, name))
			}
		}
	}
	if !found {
		return true, []string{fmt.Sprintf("no events found for owner: %s", owner)}, nil
	}
	return true, out, nil
}
