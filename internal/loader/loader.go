// Package loader's Loader type drives the lifecycle state machine of
// spec.md §4.7: single-plugin load (import/patch-base/instantiate/
// dependencies/initialize/advertise), unload, and reload, plus the
// startup ordering rule (core and client packages first, core.log
// pinned first, then the post-startup-initialize event).
//
// Grounded on internal/ruriko/app/app.go's progressive HandlersConfig
// construction (subsystems attached only once their prerequisites exist),
// generalized into explicit dependency-ordered loading.
package loader

import (
	"fmt"
	"sort"
	"time"

	"github.com/relaymud/relaymud/internal/plugin"
)

// PostStartupEvent is raised once every startup-package plugin has loaded.
// The core.pluginm plugin subscribes to it and loads whatever additional
// plugin ids its own "pluginstoload" setting names (spec.md §4.7).
const PostStartupEvent = "ev_libs.pluginloader_post_startup_plugins_initialize"

// ownedDataRemover is satisfied by any Plugin that embeds *plugin.Base,
// letting Unload remove every registrar entry the plugin owns (spec.md
// §4.7 step 3 of Unload).
type ownedDataRemover interface {
	RemoveOwnedData()
}

// Loader tracks every discovered plugin's metadata and, for those that
// have been loaded, their live instance.
type Loader struct {
	deps plugin.Deps

	infos  map[string]*plugin.Info
	loaded map[string]plugin.Plugin
	order  []string // ids in discovery/registration order, for stable listing
}

// New creates an empty Loader bound to deps.
func New(deps plugin.Deps) *Loader {
	return &Loader{
		deps:   deps,
		infos:  make(map[string]*plugin.Info),
		loaded: make(map[string]plugin.Plugin),
	}
}

// RegisterInfo adds a discovered plugin's metadata. Two plugins sharing an
// id is a conflict (spec.md §4.7 Conflict detection: "Two plugins may not
// share a plugin id").
func (l *Loader) RegisterInfo(info *plugin.Info) error {
	if _, exists := l.infos[info.ID]; exists {
		return fmt.Errorf("loader: plugin id %q already registered", info.ID)
	}
	l.infos[info.ID] = info
	l.order = append(l.order, info.ID)
	return nil
}

// Info returns the metadata for id, if known.
func (l *Loader) Info(id string) (*plugin.Info, bool) {
	i, ok := l.infos[id]
	return i, ok
}

// Loaded returns the live instance for id, if it has been loaded.
func (l *Loader) Loaded(id string) (plugin.Plugin, bool) {
	p, ok := l.loaded[id]
	return p, ok
}

// IDs returns every registered plugin id in registration order.
func (l *Loader) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Load imports, instantiates, and initializes id, first recursively loading
// any declared dependency that is not already loaded (spec.md §4.7 step 4).
// Loading an already-loaded plugin is a no-op.
func (l *Loader) Load(id string) error {
	if _, already := l.loaded[id]; already {
		return nil
	}

	info, ok := l.infos[id]
	if !ok {
		return fmt.Errorf("loader: unknown plugin %q", id)
	}

	for _, dep := range info.Dependencies {
		if err := l.Load(dep); err != nil {
			info.ImportErrors = append(info.ImportErrors, fmt.Sprintf("dependency %s: %v", dep, err))
			return fmt.Errorf("loader: load %q: dependency %q failed: %w", id, dep, err)
		}
	}

	ctor, ok := constructorFor(id)
	if !ok {
		err := fmt.Errorf("loader: no constructor registered for %q", id)
		info.ImportErrors = append(info.ImportErrors, err.Error())
		return err
	}

	l.deps.Dispatcher.RegisterPlugin(id, info.Package, info.Short)

	instance, err := ctor(id, l.deps)
	if err != nil {
		info.ImportErrors = append(info.ImportErrors, err.Error())
		return fmt.Errorf("loader: construct %q: %w", id, err)
	}
	info.Imported = true

	if err := instance.Initialize(); err != nil {
		info.ImportErrors = append(info.ImportErrors, err.Error())
		return fmt.Errorf("loader: initialize %q: %w", id, err)
	}

	info.Loaded = true
	info.ImportedAt = time.Now().UTC()
	info.Instance = instance
	l.loaded[id] = instance

	l.deps.Bus.Raise("ev_plugin_initialized", map[string]any{"plugin_id": id})
	l.deps.Bus.Raise("ev_plugin_loaded", map[string]any{"plugin_id": id})

	return nil
}

// Unload calls the instance's Uninitialize, removes every registrar entry
// it owns, and drops the live reference (spec.md §4.7 Unload). Refuses when
// the plugin's Info.CanReload is false.
func (l *Loader) Unload(id string) error {
	info, ok := l.infos[id]
	if !ok {
		return fmt.Errorf("loader: unknown plugin %q", id)
	}
	instance, loaded := l.loaded[id]
	if !loaded {
		return nil
	}
	if !info.CanReload {
		return fmt.Errorf("loader: plugin %q cannot be reloaded", id)
	}

	l.deps.Bus.Raise("ev_plugin_uninitialized", map[string]any{"plugin_id": id})

	if err := instance.Uninitialize(); err != nil {
		// logged by the caller's subsystem logger; unload proceeds regardless
		// (spec.md §4.7 step 2: "log exceptions but continue").
		info.ImportErrors = append(info.ImportErrors, fmt.Sprintf("uninitialize: %v", err))
	}

	if remover, ok := instance.(ownedDataRemover); ok {
		remover.RemoveOwnedData()
	}

	delete(l.loaded, id)
	info.Loaded = false
	info.Instance = nil
	info.HasBeenReloaded = true

	l.deps.Bus.Raise("ev_plugin_unloaded", map[string]any{"plugin_id": id})

	return nil
}

// Reload unloads then loads id again.
func (l *Loader) Reload(id string) error {
	if err := l.Unload(id); err != nil {
		return err
	}
	return l.Load(id)
}

// LoadStartupPlugins loads every registered plugin whose package is "core"
// or "client" and that is not flagged IsDev, with "core.log" pinned first
// (spec.md §4.7 Load order), then raises the post-startup event so the
// pluginm plugin's handler can load any additional plugins named in its
// own setting.
func (l *Loader) LoadStartupPlugins() error {
	var ids []string
	for id, info := range l.infos {
		if info.IsDev {
			continue
		}
		if info.Package == "core" || info.Package == "client" {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i] == "core.log" {
			return true
		}
		if ids[j] == "core.log" {
			return false
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		if err := l.Load(id); err != nil {
			return fmt.Errorf("loader: startup load %q: %w", id, err)
		}
	}

	l.deps.Bus.Raise(PostStartupEvent, nil)
	return nil
}
