// Package triggersplugin exposes the trigger engine's registered triggers
// over the command language (spec.md §4.4's Trigger entity: "fires a
// callback, wrapped as an event, when mud output matches a regex").
//
// list/detail are grounded on the original's
// plugins/core/triggers/plugin/_triggers.py _command_list/_command_detail
// pair; enable/disable/remove wrap internal/triggers.Engine's own
// SetEnabled/Remove, which that file's command set has no standalone
// equivalent for (there enable/disable flow through the generic
// plugins.core.events:has.event-style data API rather than a command).
package triggersplugin

import (
	"fmt"
	"strings"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.triggers"

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:    "Triggers",
	Author:  "core",
	Purpose: "trigger engine introspection and control",
	Version: "1.0",
	Package: "core",
	Short:   "triggers",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.triggers plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.triggers plugin.
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
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "owner", Positional: true, Required: true}, commands.ArgSpec{Name: "name", Positional: true, Required: true}),
		Fn:     p.cmdDetail,
	}); err != nil {
		return err
	}
	toggle := commands.NewArgParser(
		commands.ArgSpec{Name: "owner", Positional: true, Required: true},
		commands.ArgSpec{Name: "name", Positional: true, Required: true},
	)
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

	out := []string{fmt.Sprintf("%-25s %-14s %-9s %s", "Name", "Defined in", "Enabled", "Hits")}
	for _, t := range p.Deps().Triggers.All() {
		if match != "" && !strings.Contains(t.ID, match) && t.OwnerID != match {
			continue
		}
		out = append(out, fmt.Sprintf("%-25s %-14s %-9v %d", t.Name, t.OwnerID, t.Enabled, t.Hits))
	}
	return true, out, nil
}

func (p *Plugin) cmdDetail(args *commands.ParsedArgs) (bool, []string, error) {
	owner, name := args.Positional[0], args.Positional[1]
	t, ok := p.Deps().Triggers.Get(name, owner)
	if !ok {
		return false, nil, fmt.Errorf("trigger %s.%s does not exist", owner, name)
	}
	return true, []string{
		fmt.Sprintf("Name              : %s", t.Name),
		fmt.Sprintf("Defined in        : %s", t.OwnerID),
		fmt.Sprintf("Enabled           : %v", t.Enabled),
		fmt.Sprintf("Regex             : %s", t.OriginalRegex),
		fmt.Sprintf("Regex (flattened) : %s", t.FlattenedRegex),
		fmt.Sprintf("Regex slot        : %s", t.RegexSlotID),
		fmt.Sprintf("Match color       : %v", t.MatchColor),
		fmt.Sprintf("Group             : %s", t.Group),
		fmt.Sprintf("Priority          : %d", t.Priority),
		fmt.Sprintf("Omit              : %v", t.Omit),
		fmt.Sprintf("Hits              : %d", t.Hits),
		fmt.Sprintf("Stop evaluating   : %v", t.StopEvaluating),
	}, nil
}

func (p *Plugin) cmdEnable(args *commands.ParsedArgs) (bool, []string, error) {
	owner, name := args.Positional[0], args.Positional[1]
	if err := p.Deps().Triggers.SetEnabled(name, owner, true); err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf("enabled %s.%s", owner, name)}, nil
}

func (p *Plugin) cmdDisable(args *commands.ParsedArgs) (bool, []string, error) {
	owner, name := args.Positional[0], args.Positional[1]
	if err := p.Deps().Triggers.SetEnabled(name, owner, false); err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf("disabled %s.%s", owner, name)}, nil
}

func (p *Plugin) cmdRemove(args *commands.ParsedArgs) (bool, []string, error) {
	owner, name := args.Positional[0], args.Positional[1]
	if err := p.Deps().Triggers.Remove(name, owner, false); err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf("removed %s.%s", owner, name)}, nil
}
