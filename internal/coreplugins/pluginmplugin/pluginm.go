// Package pluginmplugin exposes the loader's list/load/unload/reload
// lifecycle over the command language (spec.md §6's command table) and
// loads whatever additional, non-startup plugins its own "pluginstoload"
// setting names once every startup plugin is up (spec.md §4.7: "raise
// ev_libs.pluginloader_post_startup_plugins_initialize, which the pluginm
// plugin handles").
//
// Grounded on the original's plugins/core/pluginm/plugin/_pluginm.py
// list/load/unload/reload command surface, reimplemented over
// internal/loader.Loader instead of the original's module-reimport dance.
package pluginmplugin

import (
	"fmt"
	"sort"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.pluginm"

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:    "PluginManager",
	Author:  "core",
	Purpose: "list/load/unload/reload plugins and autoload configured extras",
	Version: "1.0",
	Package: "core",
	Short:   "pluginm",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.pluginm plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.pluginm plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// Initialize registers list/load/unload/reload and the "pluginstoload"
// setting, and subscribes to the loader's post-startup event.
func (p *Plugin) Initialize() error {
	p.AddSetting(plugin.NewSetting("pluginstoload", plugin.KindList, ""))

	if err := p.AddCommand(&commands.Command{Name: "list", Fn: p.cmdList}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{
		Name:   "load",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "id", Positional: true, Required: true}),
		Fn:     p.cmdLoad,
	}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{
		Name:   "unload",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "id", Positional: true, Required: true}),
		Fn:     p.cmdUnload,
	}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{
		Name:   "reload",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "id", Positional: true, Required: true}),
		Fn:     p.cmdReload,
	}); err != nil {
		return err
	}

	p.Subscribe(loader.PostStartupEvent, 50, func(rec *events.Record) (*events.Record, error) {
		p.loadConfigured()
		return rec, nil
	})

	return nil
}

// Uninitialize has nothing beyond what RemoveOwnedData already undoes.
func (p *Plugin) Uninitialize() error { return nil }

// loadConfigured loads every plugin id named in the "pluginstoload"
// setting that the startup pass didn't already load, logging (but not
// failing the process over) any one plugin's load error so a single bad
// id does not block the rest (spec.md §4.7 step 1: "record the traceback
// ... and continue").
func (p *Plugin) loadConfigured() {
	ld := p.Deps().Loader.Get()
	if ld == nil {
		return
	}
	for _, id := range p.Setting("pluginstoload").List() {
		if id == "" {
			continue
		}
		if err := ld.Load(id); err != nil {
			p.Deps().Bus.Raise("ev_error", map[string]any{"err": err.Error(), "source": ID, "plugin_id": id})
		}
	}
}

func (p *Plugin) cmdList(_ *commands.ParsedArgs) (bool, []string, error) {
	ld := p.Deps().Loader.Get()
	if ld == nil {
		return false, nil, fmt.Errorf("loader not bound")
	}

	ids := ld.IDs()
	sort.Strings(ids)

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		info, ok := ld.Info(id)
		if !ok {
			continue
		}
		state := "not loaded"
		if info.Loaded {
			state = "loaded"
		}
		out = append(out, fmt.Sprintf("%s v%s by %s (%s)", id, info.Version, info.Author, state))
	}
	return true, out, nil
}

func (p *Plugin) cmdLoad(args *commands.ParsedArgs) (bool, []string, error) {
	ld := p.Deps().Loader.Get()
	if ld == nil {
		return false, nil, fmt.Errorf("loader not bound")
	}
	id := args.Positional[0]
	if err := ld.Load(id); err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf("loaded %s", id)}, nil
}

func (p *Plugin) cmdUnload(args *commands.ParsedArgs) (bool, []string, error) {
	ld := p.Deps().Loader.Get()
	if ld == nil {
		return false, nil, fmt.Errorf("loader not bound")
	}
	id := args.Positional[0]
	if id == ID {
		return false, nil, fmt.Errorf("refusing to unload %s, the plugin manager itself", ID)
	}
	if err := ld.Unload(id); err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf("unloaded %s", id)}, nil
}

func (p *Plugin) cmdReload(args *commands.ParsedArgs) (bool, []string, error) {
	ld := p.Deps().Loader.Get()
	if ld == nil {
		return false, nil, fmt.Errorf("loader not bound")
	}
	id := args.Positional[0]
	if err := ld.Reload(id); err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf("reloaded %s", id)}, nil
}
