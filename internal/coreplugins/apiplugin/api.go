// Package apiplugin exposes the capability registry's own contents over the
// command language (spec.md §4.1's registry, component A): which dotted
// names are registered, who owns them, and how often each has been looked
// up — the same self-referential debug surface the proxy exposes for every
// other subsystem.
//
// Grounded on the original's plugins/debug/api/_patch_base.py "api" command,
// which wraps libs.api:list/libs.api:detail; here split into a plain
// list/detail pair over internal/capi.Registry.List/Get since RelayMUD's
// registry is a first-class component rather than a runtime patch.
package apiplugin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.api"

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:    "API",
	Author:  "core",
	Purpose: "capability registry introspection",
	Version: "1.0",
	Package: "core",
	Short:   "api",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.api plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.api plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// Initialize registers list/detail.
func (p *Plugin) Initialize() error {
	if err := p.AddCommand(&commands.Command{
		Name:   "list",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "match", Positional: true}),
		Fn:     p.cmdList,
	}); err != nil {
		return err
	}
	return p.AddCommand(&commands.Command{
		Name:   "detail",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "name", Positional: true, Required: true}),
		Fn:     p.cmdDetail,
	})
}

// Uninitialize has nothing to reverse beyond RemoveOwnedData.
func (p *Plugin) Uninitialize() error { return nil }

func (p *Plugin) cmdList(args *commands.ParsedArgs) (bool, []string, error) {
	match := ""
	if len(args.Positional) > 0 {
		match = args.Positional[0]
	}

	classNames, instanceNames := p.Deps().API.List()
	all := make(map[string]struct{}, len(classNames)+len(instanceNames))
	for _, n := range classNames {
		all[n] = struct{}{}
	}
	for _, n := range instanceNames {
		all[n] = struct{}{}
	}

	names := make([]string, 0, len(all))
	for n := range all {
		if match == "" || strings.Contains(n, match) {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return true, []string{"no capabilities found"}, nil
	}
	return true, names, nil
}

func (p *Plugin) cmdDetail(args *commands.ParsedArgs) (bool, []string, error) {
	name := args.Positional[0]
	item, err := p.Deps().API.Get(name)
	if err != nil {
		return false, nil, fmt.Errorf("capability %s does not exist", name)
	}

	out := []string{
		fmt.Sprintf("Name        : %s", item.FullName),
		fmt.Sprintf("Owner       : %s", item.OwnerID),
		fmt.Sprintf("Instance    : %v", item.Instance),
		fmt.Sprintf("Description : %s", item.Description),
		fmt.Sprintf("Total calls : %d", item.Stats().Total()),
	}
	if item.Overwritten != nil {
		out = append(out, fmt.Sprintf("Overwrites  : %s (owner %s)", item.Overwritten.FullName, item.Overwritten.OwnerID))
	}
	return true, out, nil
}
