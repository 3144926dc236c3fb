// Package plugin defines the builder API a RelayMUD plugin package uses to
// describe its commands, settings, and event subscriptions, and the
// Manifest literal the loader (internal/loader) reads via static AST
// parsing instead of importing the package (spec.md §4.7: "Parse is done
// by regex line scan... to avoid executing non-plugin code"; SPEC_FULL.md
// §6 replaces the regex scan with go/ast parsing of an exported literal).
//
// Grounded on internal/ruriko/commands/handlers.go's per-handler-method
// organization, generalized from one fixed Handlers struct into a builder
// any plugin package can call from its own constructor.
package plugin

import (
	"fmt"
	"time"

	"github.com/relaymud/relaymud/internal/approvals"
	"github.com/relaymud/relaymud/internal/audit"
	"github.com/relaymud/relaymud/internal/capi"
	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/pipeline"
	"github.com/relaymud/relaymud/internal/pstore"
	"github.com/relaymud/relaymud/internal/runtime"
	"github.com/relaymud/relaymud/internal/session"
	"github.com/relaymud/relaymud/internal/timers"
	"github.com/relaymud/relaymud/internal/triggers"
)

// Manifest is the metadata a plugin package exports as a package-level
// `var Manifest = plugin.Manifest{...}` literal (spec.md §4.7's
// PLUGIN_NAME/PLUGIN_AUTHOR/PLUGIN_PURPOSE/PLUGIN_VERSION/REQUIRED,
// SPEC_FULL.md §6's Go-native replacement for the original's docstring
// scan). The loader never imports the package to read this — it parses
// the literal's fields out of the AST.
type Manifest struct {
	Name     string
	Author   string
	Purpose  string
	Version  string
	Required bool
	// Package is the dotted package this plugin belongs to ("core",
	// "client", ...); Short is its short name within that package.
	Package string
	Short   string
	// Dependencies lists other plugin ids (dotted, e.g. "core.events")
	// that must be loaded (and initialized) before this one (spec.md
	// §4.7 step 4).
	Dependencies []string
}

// ID returns the dotted plugin id ("<package>.<short>") the loader and
// registry use to key this plugin.
func (m Manifest) ID() string {
	return m.Package + "." + m.Short
}

// Deps is the set of shared subsystems a plugin constructor receives.
// Plugins only read the fields they need; all are non-nil once the loader
// has wired the process Runtime (internal/runtime).
type Deps struct {
	API        *capi.Registry
	Bus        *events.Bus
	Dispatcher *commands.Dispatcher
	Triggers   *triggers.Engine
	Timers     *timers.Scheduler

	// Runtime-wide subsystems core plugins wrap. Not every plugin uses
	// every field; the settings/clients/proxy/log core plugins are their
	// primary consumers (spec.md §4.7's Deps is generalized here to carry
	// the whole process's shared state, not just the bus-facing pieces).
	Runtime   *runtime.Runtime
	Settings  *pstore.KV
	Sessions  *session.Manager
	Bans      *session.BanTable
	Mud       *session.MudSession
	Audit     *audit.Store
	Notifier  *audit.AdminNotifier
	Approvals *approvals.Store

	// SensitiveValues holds the cleartext proxy passwords, scrubbed by
	// common/redact before any command output that might otherwise echo
	// one back (e.g. core.events.raise/list, which can surface arbitrary
	// event data an admin just raised for testing).
	SensitiveValues []string

	// Loader lets the core.pluginm plugin drive list/load/unload/reload
	// from the command language. internal/loader imports this package to
	// build Deps in the first place, so the dependency cannot point the
	// other way; Loader is filled in after the fact through LoaderRef.
	Loader *LoaderRef
}

// LoaderHandle is the subset of *loader.Loader that core.pluginm needs.
// internal/loader.Loader satisfies this interface structurally.
type LoaderHandle interface {
	Load(id string) error
	Unload(id string) error
	Reload(id string) error
	IDs() []string
	Info(id string) (*Info, bool)
	Loaded(id string) (Plugin, bool)
}

// LoaderRef is a late-bound handle to the process's Loader. Deps must
// exist before loader.New(deps) can build the Loader itself, so main
// constructs an empty LoaderRef, hands it to Deps, and calls Set once the
// real Loader exists — every plugin holding the same Deps sees the bound
// value from then on.
type LoaderRef struct {
	h LoaderHandle
}

// Set binds h as the Loader every holder of this ref will see.
func (r *LoaderRef) Set(h LoaderHandle) { r.h = h }

// Get returns the bound Loader, or nil before Set has been called.
func (r *LoaderRef) Get() LoaderHandle { return r.h }

// RequestorUUID returns the ClientSession UUID that issued the
// command currently being dispatched, read off the ClientLine the
// pipeline's to-mud handler carries on the event record it runs inside
// of (spec.md §4.6), or "" if the command is running outside that
// context (e.g. from a test harness or a mud-originated trigger).
func RequestorUUID(deps Deps) string {
	rec := deps.Bus.CurrentRecord()
	if rec == nil {
		return ""
	}
	v, ok := rec.Get("ClientLine")
	if !ok {
		return ""
	}
	if cl, ok := v.(*pipeline.ClientLine); ok {
		return cl.ClientID
	}
	return ""
}

// Plugin is the lifecycle interface every plugin instance implements.
// Instances are constructed by a loader.Constructor, a `func(id string,
// deps Deps) (Plugin, error)` each plugin package registers under its id
// with loader.RegisterConstructor from an init function.
type Plugin interface {
	// ID returns the plugin's dotted id, matching its Manifest.ID().
	ID() string

	// Initialize registers the plugin's commands, settings, triggers,
	// timers, and event subscriptions against its Deps (spec.md §4.7
	// step 5). Returning an error aborts the load.
	Initialize() error

	// Uninitialize reverses Initialize's side effects that are not
	// automatically unwound by the loader's owner-scoped removal passes
	// (spec.md §4.7 step 2 — called before the registrar cleanup).
	Uninitialize() error
}

// Base is an embeddable helper that accumulates the commands, settings,
// and triggers a plugin declares during Initialize, so the loader can
// advertise them into the shared registrars and later remove them all by
// owner id on unload (spec.md's ownership invariant in §3: "plugin
// instances own their settings, commands, triggers, timers, and
// event-subscriptions").
type Base struct {
	id   string
	deps Deps

	settings map[string]*Setting
	commands []*commands.Command
}

// NewBase creates a Base bound to id and deps. Plugin constructors embed
// *Base (or compose it) and call its Add* methods from Initialize.
func NewBase(id string, deps Deps) *Base {
	return &Base{id: id, deps: deps, settings: make(map[string]*Setting)}
}

// ID returns the plugin id this Base was constructed with.
func (b *Base) ID() string { return b.id }

// Deps exposes the shared subsystems for plugins that need direct access
// beyond the Add* convenience methods.
func (b *Base) Deps() Deps { return b.deps }

// AddCommand registers a command owned by this plugin and advertises it
// to the dispatcher (spec.md §4.7 step 6: "For every method with
// command_data, build a Command").
func (b *Base) AddCommand(cmd *commands.Command) error {
	cmd.OwnerID = b.id
	if err := b.deps.Dispatcher.AddCommand(b.id, cmd); err != nil {
		return fmt.Errorf("plugin %s: add command %s: %w", b.id, cmd.Name, err)
	}
	b.commands = append(b.commands, cmd)
	return nil
}

// AddSetting registers a setting owned by this plugin (spec.md §3's
// Setting entity; SPEC_FULL.md §3 adds Secret), restoring any persisted
// value from the shared settingvalues.txt-backed store, and advertises a
// "settings:<owner>.<name>" capability so core.settings can get/set it
// without needing direct access to every plugin's Base (spec.md §4.1: "a
// process-wide, namespaced map from dotted names to callables").
func (b *Base) AddSetting(s *Setting) *Setting {
	s.OwnerID = b.id
	key := b.id + "." + s.Name

	if b.deps.Settings != nil {
		if persisted, err := b.deps.Settings.Get(key); err == nil {
			s.value = persisted
		}
	}
	b.settings[s.Name] = s

	if b.deps.API != nil {
		b.deps.API.Add("settings", key, func(args ...any) (any, error) {
			if len(args) == 0 {
				return s.Value(), nil
			}
			v, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("settings:%s: value must be a string", key)
			}
			old, err := s.Set(v)
			if err != nil {
				return nil, err
			}
			if b.deps.Settings != nil {
				if err := b.deps.Settings.Set(key, v, s.Secret); err != nil {
					return nil, fmt.Errorf("settings:%s: persist: %w", key, err)
				}
			}
			b.deps.Bus.Raise("ev_"+b.id+"_var_"+s.Name+"_modified", map[string]any{
				"old": old, "new": v,
			})
			return old, nil
		}, capi.Owner(b.id), capi.Description("setting "+key))
	}

	return s
}

// Setting returns a previously-added setting by name, or nil.
func (b *Base) Setting(name string) *Setting {
	return b.settings[name]
}

// Settings returns every setting this plugin owns.
func (b *Base) Settings() []*Setting {
	out := make([]*Setting, 0, len(b.settings))
	for _, s := range b.settings {
		out = append(out, s)
	}
	return out
}

// AddTimer marks t as owned by this plugin and, when enableNow is true, adds
// it to the scheduler; with enableNow false the timer is not scheduled.
func (b *Base) AddTimer(t *timers.Timer, enableNow bool) {
	t.OwnerID = b.id
	if enableNow {
		b.deps.Timers.Add(t, time.Now().UTC())
	}
}

// AddTrigger registers a trigger owned by this plugin.
func (b *Base) AddTrigger(name, regex string, opts triggers.AddOptions) (*triggers.Trigger, error) {
	tr, err := b.deps.Triggers.Add(name, regex, b.id, opts)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: add trigger %s: %w", b.id, name, err)
	}
	return tr, nil
}

// Subscribe registers an event handler owned by this plugin (spec.md
// §4.7 step 6: "For every method with event_registration, subscribe
// it").
func (b *Base) Subscribe(eventName string, priority int, fn events.HandlerFunc) {
	b.deps.Bus.RegisterToEvent(eventName, b.id, priority, fn)
}

// RemoveOwnedData removes every command, trigger, timer, setting, and
// event subscription this plugin owns, mirroring the loader's unload
// pass (spec.md §4.7 step 3: "Call remove.data.for.plugin/owner on every
// registrar"). Plugins normally do not call this directly — the loader
// does, on every owner-scoped registrar, after Uninitialize returns.
func (b *Base) RemoveOwnedData() {
	b.deps.Dispatcher.RemovePlugin(b.id)
	b.deps.Triggers.RemoveOwner(b.id)
	b.deps.Bus.RemoveEventsForOwner(b.id)
	b.deps.Timers.RemoveOwner(b.id)
	b.deps.API.RemoveOwner(b.id)
	b.settings = make(map[string]*Setting)
	b.commands = nil
}
