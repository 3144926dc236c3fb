// Package commandsplugin exposes command history and replay over the
// command language itself (spec.md §4.5: "`!N` re-enqueues the Nth history
// entry"). Package/plugin/command listing is already built into
// internal/commands.Dispatcher.resolveAndRun — dispatching a partial
// dotted reference ("#bp", "#bp.core", "#bp.core.proxy") already lists
// packages/plugins/commands, so this plugin only adds what the dispatcher
// itself cannot: browsing and replaying the persisted history buffer.
//
// Grounded on the original's plugins/core/commands.py cmd_history/the `!`
// command, reimplemented over internal/commands.History.
package commandsplugin

import (
	"fmt"
	"strconv"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.commands"

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:    "Commands",
	Author:  "core",
	Purpose: "command history and replay",
	Version: "1.0",
	Package: "core",
	Short:   "commands",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.commands plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.commands plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// Initialize registers history/replay.
func (p *Plugin) Initialize() error {
	if err := p.AddCommand(&commands.Command{Name: "history", Fn: p.cmdHistory}); err != nil {
		return err
	}
	return p.AddCommand(&commands.Command{
		Name:   "replay",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "n", Positional: true, Required: true}),
		Fn:     p.cmdReplay,
	})
}

// Uninitialize has nothing to reverse beyond RemoveOwnedData.
func (p *Plugin) Uninitialize() error { return nil }

func (p *Plugin) history() (*commands.History, error) {
	h := p.Deps().Dispatcher.History()
	if h == nil {
		return nil, fmt.Errorf("command history is not enabled")
	}
	return h, nil
}

func (p *Plugin) cmdHistory(_ *commands.ParsedArgs) (bool, []string, error) {
	h, err := p.history()
	if err != nil {
		return false, nil, err
	}
	rows := h.All()
	out := make([]string, 0, len(rows))
	for i, row := range rows {
		out = append(out, fmt.Sprintf("%d: %s", i+1, row))
	}
	return true, out, nil
}

func (p *Plugin) cmdReplay(args *commands.ParsedArgs) (bool, []string, error) {
	h, err := p.history()
	if err != nil {
		return false, nil, err
	}
	n, err := strconv.Atoi(args.Positional[0])
	if err != nil {
		return false, nil, fmt.Errorf("n must be an integer: %w", err)
	}
	line, ok := h.Get(n)
	if !ok {
		return false, nil, fmt.Errorf("no history entry %d", n)
	}

	deps := p.Deps()
	if deps.Mud != nil {
		deps.Mud.Send(line)
	}
	return true, []string{fmt.Sprintf("replayed: %s", line)}, nil
}
