// Package settingsplugin exposes every plugin's Setting table over the
// command language (spec.md §4.7/§3: "#bp.core.settings.list/get/set"),
// reading and writing through the "settings:<owner>.<name>" capabilities
// every plugin.Base.AddSetting call advertises in the capability registry,
// which in turn persist through internal/pstore.KV
// (data/plugins/<plugin_id>/settingvalues.txt).
//
// Grounded on the teacher's internal/ruriko/config/store.go Get/Set/List
// interface; "go through the capability registry rather than a direct
// reference to every plugin" mirrors the original's own
// `api("plugins.core.settings:get")` indirection (spec.md §4.1).
package settingsplugin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.settings"

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:    "Settings",
	Author:  "core",
	Purpose: "list/get/set every plugin's persisted settings",
	Version: "1.0",
	Package: "core",
	Short:   "settings",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.settings plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.settings plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// Initialize registers the list/get/set commands (spec.md §6's command
// table).
func (p *Plugin) Initialize() error {
	if err := p.AddCommand(&commands.Command{
		Name:   "list",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "owner", Positional: true}),
		Fn:     p.cmdList,
	}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{
		Name: "get",
		Parser: commands.NewArgParser(
			commands.ArgSpec{Name: "owner", Positional: true, Required: true},
			commands.ArgSpec{Name: "name", Positional: true, Required: true},
		),
		Fn: p.cmdGet,
	}); err != nil {
		return err
	}
	return p.AddCommand(&commands.Command{
		Name: "set",
		Parser: commands.NewArgParser(
			commands.ArgSpec{Name: "owner", Positional: true, Required: true},
			commands.ArgSpec{Name: "name", Positional: true, Required: true},
			commands.ArgSpec{Name: "value", Positional: true, Required: true},
		),
		Fn: p.cmdSet,
	})
}

// Uninitialize has nothing to reverse; ownership cleanup is handled by
// RemoveOwnedData for this plugin's own three commands.
func (p *Plugin) Uninitialize() error { return nil }

func (p *Plugin) cmdList(args *commands.ParsedArgs) (bool, []string, error) {
	owner := ""
	if len(args.Positional) > 0 {
		owner = args.Positional[0]
	}

	names := p.Deps().API.Children("settings")
	var out []string
	for _, n := range names {
		if owner != "" && !strings.HasPrefix(n, owner+".") {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return true, out, nil
}

func (p *Plugin) cmdGet(args *commands.ParsedArgs) (bool, []string, error) {
	owner, name := args.Positional[0], args.Positional[1]
	key := owner + "." + name

	item, err := p.Deps().API.Get("settings:" + key)
	if err != nil {
		return false, nil, fmt.Errorf("no such setting %q", key)
	}
	v, err := item.Fn()
	if err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf("%s = %v", key, v)}, nil
}

func (p *Plugin) cmdSet(args *commands.ParsedArgs) (bool, []string, error) {
	owner, name := args.Positional[0], args.Positional[1]
	value := strings.Join(args.Positional[2:], " ")
	key := owner + "." + name

	item, err := p.Deps().API.Get("settings:" + key)
	if err != nil {
		return false, nil, fmt.Errorf("no such setting %q", key)
	}
	old, err := item.Fn(value)
	if err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf("%s set to %q (was %v)", key, value, old)}, nil
}
