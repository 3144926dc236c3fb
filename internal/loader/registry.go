package loader

import "github.com/relaymud/relaymud/internal/plugin"

// Constructor builds a plugin instance given its dotted id and the shared
// subsystem dependencies (spec.md §4.7 step 3: "Construct Plugin(plugin_id,
// plugin_info)"). Every coreplugin package registers one of these via
// RegisterConstructor from its own package init(), since Go plugins are
// compiled in rather than dynamically imported from a directory the way the
// original's Python packages are (see discovery.go's package doc).
type Constructor func(id string, deps plugin.Deps) (plugin.Plugin, error)

var constructors = make(map[string]Constructor)

// RegisterConstructor associates a plugin id with the function that builds
// it. Intended to be called from a coreplugin package's init().
func RegisterConstructor(id string, ctor Constructor) {
	constructors[id] = ctor
}

// constructorFor looks up a previously registered Constructor.
func constructorFor(id string) (Constructor, bool) {
	c, ok := constructors[id]
	return c, ok
}
