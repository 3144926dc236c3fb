// Package timersplugin exposes the timer scheduler's registered timers over
// the command language (spec.md §4.3's Timer entity: "fires a callback on a
// period or at an HHMM anchor").
//
// list/detail are grounded on the original's
// plugins/core/timers/plugin/_timers.py _command_list/_command_detail pair;
// enable/disable/remove wrap internal/timers.Scheduler's own Get/Remove,
// which that file's command set covers through a generic toggle-log-flag
// command rather than enable/disable — this plugin exposes the control
// SPEC_FULL.md's timer module itself calls for instead.
package timersplugin

import (
	"fmt"
	"strings"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.timers"

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:    "Timers",
	Author:  "core",
	Purpose: "timer scheduler introspection and control",
	Version: "1.0",
	Package: "core",
	Short:   "timers",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.timers plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.timers plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// Initialize registers list/detail/enable/disable/remove.
func (p *Plugin) Initialize() error {
	if err := p.AddCommand(&commands.Command{
		Name:   "list",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "match", Positional: true}),
		Fn:     p.cmdList,
	}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{
		Name:   "detail",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "name", Positional: true, Required: true}),
		Fn:     p.cmdDetail,
	}); err != nil {
		return err
	}
	toggle := commands.NewArgParser(commands.ArgSpec{Name: "name", Positional: true, Required: true})
	if err := p.AddCommand(&commands.Command{Name: "enable", Parser: toggle, Fn: p.cmdEnable}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{Name: "disable", Parser: toggle, Fn: p.cmdDisable}); err != nil {
		return err
	}
	return p.AddCommand(&commands.Command{Name: "remove", Parser: toggle, Fn: p.cmdRemove})
}

// Uninitialize has nothing to reverse beyond RemoveOwnedData.
func (p *Plugin) Uninitialize() error { return nil }

func (p *Plugin) cmdList(args *commands.ParsedArgs) (bool, []string, error) {
	match := ""
	if len(args.Positional) > 0 {
		match = args.Positional[0]
	}

	out := []string{fmt.Sprintf("%-20s %-14s %-9s %s", "Name", "Defined in", "Enabled", "Next fire")}
	for _, name := range p.Deps().Timers.Names() {
		if match != "" && !strings.Contains(name, match) {
			continue
		}
		t, ok := p.Deps().Timers.Get(name)
		if !ok {
			continue
		}
		out = append(out, fmt.Sprintf("%-20s %-14s %-9v %s", t.Name, t.OwnerID, t.Enabled, t.NextFireAt.Format("2006-01-02 15:04:05 UTC")))
	}
	return true, out, nil
}

func (p *Plugin) cmdDetail(args *commands.ParsedArgs) (bool, []string, error) {
	name := args.Positional[0]
	t, ok := p.Deps().Timers.Get(name)
	if !ok {
		return false, nil, fmt.Errorf("timer %s does not exist", name)
	}
	out := []string{
		fmt.Sprintf("Name      : %s", t.Name),
		fmt.Sprintf("Owner     : %s", t.OwnerID),
		fmt.Sprintf("Enabled   : %v", t.Enabled),
		fmt.Sprintf("One-shot  : %v", t.OneShot),
		fmt.Sprintf("Period    : %s", t.Period),
		fmt.Sprintf("Log fire  : %v", t.LogFire),
	}
	if !t.LastFired.IsZero() {
		out = append(out, fmt.Sprintf("Last fire : %s", t.LastFired.Format("2006-01-02 15:04:05 UTC")))
	}
	out = append(out, fmt.Sprintf("Next fire : %s", t.NextFireAt.Format("2006-01-02 15:04:05 UTC")))
	return true, out, nil
}

func (p *Plugin) cmdEnable(args *commands.ParsedArgs) (bool, []string, error) {
	name := args.Positional[0]
	t, ok := p.Deps().Timers.Get(name)
	if !ok {
		return false, nil, fmt.Errorf("timer %s does not exist", name)
	}
	t.Enabled = true
	return true, []string{fmt.Sprintf("enabled %s", name)}, nil
}

func (p *Plugin) cmdDisable(args *commands.ParsedArgs) (bool, []string, error) {
	name := args.Positional[0]
	t, ok := p.Deps().Timers.Get(name)
	if !ok {
		return false, nil, fmt.Errorf("timer %s does not exist", name)
	}
	t.Enabled = false
	return true, []string{fmt.Sprintf("disabled %s", name)}, nil
}

func (p *Plugin) cmdRemove(args *commands.ParsedArgs) (bool, []string, error) {
	name := args.Positional[0]
	if _, ok := p.Deps().Timers.Get(name); !ok {
		return false, nil, fmt.Errorf("timer %s does not exist", name)
	}
	p.Deps().Timers.Remove(name)
	return true, []string{fmt.Sprintf("removed %s", name)}, nil
}
