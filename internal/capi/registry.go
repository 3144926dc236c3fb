// Package capi implements the capability registry described in spec.md §4.1:
// a process-wide, namespaced map from dotted names to callables, with
// instance-level overrides, call statistics, and caller attribution.
//
// Grounded on the original's libs/api/_api.py for add/get/has/remove
// semantics; the Go shape (sync.RWMutex-guarded maps, fmt.Errorf-wrapped
// sentinel errors) follows the teacher's store.go idiom.
package capi

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get when neither table contains the location.
var ErrNotFound = errors.New("capi: not found")

// CallerAttributor resolves the nearest plugin instance on the call stack
// for caller attribution (spec.md §4.1). The registry itself has no notion
// of a "plugin instance"; callers that want attribution register a
// resolver. Tests and simple callers may leave this nil, in which case
// attribution falls back to an empty caller id.
type CallerAttributor func(pc []uintptr) (callerID string)

// Registry is the capability registry (component A).
type Registry struct {
	log *slog.Logger

	mu       sync.RWMutex
	class    map[string]*Item
	instance map[string]*Item

	// addedIn tracks, per top-level namespace, every full name installed
	// under it — spec.md §4.1 "addedin:{toplevel→[names]} bookkeeping so
	// bulk removals can find the entries installed by a given ... method."
	addedIn map[string][]string

	attributor CallerAttributor
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		log:      slog.With("component", "capi"),
		class:    make(map[string]*Item),
		instance: make(map[string]*Item),
		addedIn:  make(map[string][]string),
	}
}

// SetCallerAttributor installs the stack-walking resolver used for caller
// attribution on every successful Get.
func (r *Registry) SetCallerAttributor(fn CallerAttributor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attributor = fn
}

func fullName(top, name string) string {
	return top + ":" + name
}

// Add inserts fn under "<top>:<name>". If the entry already exists and
// force is false, the add is rejected (logged at error level) and the
// existing entry is kept. If force is true, the old entry is remembered on
// the new entry's Overwritten field. Adding the identical callable twice
// (same full name, same function pointer identity via description+owner
// match is not attempted — Go cannot compare func values) is treated as a
// no-op only when the full name already maps to an entry from the same
// owner; otherwise force is required. See spec.md §8 property 1.
func (r *Registry) Add(top, name string, fn Callable, opts ...AddOption) error {
	cfg := addConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	full := fullName(top, name)
	table := r.class
	if cfg.instance {
		table = r.instance
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := table[full]
	if exists && !cfg.force && cfg.owner != "" && existing.OwnerID == cfg.owner {
		return nil
	}
	if exists && !cfg.force {
		r.log.Error("add rejected: api already exists without force",
			"name", full, "owner", cfg.owner)
		return fmt.Errorf("capi: %q already registered (use force to overwrite)", full)
	}

	item := &Item{
		FullName:    full,
		OwnerID:     cfg.owner,
		Fn:          fn,
		Description: cfg.description,
		Instance:    cfg.instance,
		stats:       newStatItem(),
	}
	if exists && cfg.force {
		item.Overwritten = existing
	}

	table[full] = item
	r.addedIn[top] = append(r.addedIn[top], full)
	return nil
}

type addConfig struct {
	instance    bool
	force       bool
	owner       string
	description string
}

// AddOption configures an Add call.
type AddOption func(*addConfig)

// Instance marks the entry as instance-scoped (overrides the class table).
func Instance() AddOption { return func(c *addConfig) { c.instance = true } }

// Force allows Add to overwrite an existing entry.
func Force() AddOption { return func(c *addConfig) { c.force = true } }

// Owner attributes the entry to an owner id (usually a plugin id).
func Owner(id string) AddOption { return func(c *addConfig) { c.owner = id } }

// Description attaches human-readable documentation to the entry.
func Description(d string) AddOption { return func(c *addConfig) { c.description = d } }

// GetOptions configures a Get call.
type GetOptions struct {
	// GetClass forces resolution against the class table even when an
	// instance override exists.
	GetClass bool
	// CallerSuffix attributes this specific lookup under a finer-grained
	// key (e.g. "command:info") in addition to the caller id.
	CallerSuffix string
}

// Get resolves location ("<top>:<name>") to its Item. The instance table
// wins unless opts.GetClass is true (spec.md §8 property 2). Every
// successful Get is attributed to the nearest caller and recorded in the
// item's call statistics.
func (r *Registry) Get(location string, opts ...GetOptions) (*Item, error) {
	var cfg GetOptions
	if len(opts) > 0 {
		cfg = opts[0]
	}

	r.mu.RLock()
	var item *Item
	var ok bool
	if !cfg.GetClass {
		item, ok = r.instance[location]
	}
	if !ok {
		item, ok = r.class[location]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}

	callerID := r.attributeCaller()
	item.stats.record(callerID, cfg.CallerSuffix)
	return item, nil
}

// attributeCaller walks the call stack looking for the nearest frame
// belonging to a registered caller, via the installed CallerAttributor.
// Unknown callers are logged at debug level, matching the original's
// "Unknown callers are logged" note in spec.md §4.1.
func (r *Registry) attributeCaller() string {
	r.mu.RLock()
	attributor := r.attributor
	r.mu.RUnlock()
	if attributor == nil {
		return ""
	}

	pc := make([]uintptr, 32)
	n := runtime.Callers(3, pc)
	callerID := attributor(pc[:n])
	if callerID == "" {
		r.log.Debug("api get: unknown caller")
	}
	return callerID
}

// Has reports whether location resolves in either table. Per spec.md §4.1
// this additionally requires that, when the owner is a plugin id, that
// plugin is currently instantiated; instantiation checks are delegated to
// a caller-supplied predicate since the registry itself does not track
// plugin lifecycle.
func (r *Registry) Has(location string, pluginLoaded func(ownerID string) bool) bool {
	r.mu.RLock()
	item, ok := r.instance[location]
	if !ok {
		item, ok = r.class[location]
	}
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if pluginLoaded == nil || item.OwnerID == "" {
		return true
	}
	return pluginLoaded(item.OwnerID)
}

// Remove deletes every entry whose full name starts with "<topLevel>:" from
// both tables (spec.md §4.1).
func (r *Registry) Remove(topLevel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := topLevel + ":"
	for k := range r.class {
		if strings.HasPrefix(k, prefix) {
			delete(r.class, k)
		}
	}
	for k := range r.instance {
		if strings.HasPrefix(k, prefix) {
			delete(r.instance, k)
		}
	}
	delete(r.addedIn, topLevel)
}

// RemoveOwner deletes every entry (in either table, any top-level
// namespace) whose OwnerID equals ownerID. Used by the plugin loader's
// unload path to remove exactly what a plugin installed without requiring
// the caller to know every top-level namespace the plugin touched.
func (r *Registry) RemoveOwner(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.class {
		if v.OwnerID == ownerID {
			delete(r.class, k)
		}
	}
	for k, v := range r.instance {
		if v.OwnerID == ownerID {
			delete(r.instance, k)
		}
	}
}

// Children returns the dotted names registered directly under parent
// (spec.md §4.1 get.children).
func (r *Registry) Children(parent string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefix := parent + ":"
	seen := make(map[string]struct{})
	for k := range r.class {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			seen[rest] = struct{}{}
		}
	}
	for k := range r.instance {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			seen[rest] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// List returns every full name currently registered, class entries first
// then instance entries, both sorted — used by the `#bp.core.api.list`
// introspection command (SPEC_FULL.md §9).
func (r *Registry) List() (classNames, instanceNames []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k := range r.class {
		classNames = append(classNames, k)
	}
	for k := range r.instance {
		instanceNames = append(instanceNames, k)
	}
	sort.Strings(classNames)
	sort.Strings(instanceNames)
	return
}

// AddAPIsForObject scans a decorated-method table (built at plugin
// construction time rather than via reflection, per spec.md §9's Design
// Notes: "Decorated methods become explicit registrations in the plugin's
// constructor rather than runtime reflection") and registers each one.
// Descriptors is a slice so registration order (and hence addedIn
// ordering) is deterministic.
func (r *Registry) AddAPIsForObject(top, owner string, descriptors []MethodDescriptor) error {
	var firstErr error
	for _, d := range descriptors {
		if err := r.Add(top, d.Name, d.Fn, Owner(owner), Description(d.Description), instanceOpt(d.Instance)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func instanceOpt(v bool) AddOption {
	return func(c *addConfig) { c.instance = v }
}

// MethodDescriptor is one decorated-method registration, the Go equivalent
// of the original's `@AddAPI` metadata attribute.
type MethodDescriptor struct {
	Name        string
	Fn          Callable
	Description string
	Instance    bool
}
