package plugin

import "time"

// Info is the loader's bookkeeping record for one discovered plugin
// (spec.md §3's PluginInfo entity; SPEC_FULL.md §3 adds Checksum for
// `pluginm.list -c`'s change detection).
type Info struct {
	ID      string // dotted: "<package>.<short>"
	Package string
	Short   string

	Files []string

	Name     string
	Author   string
	Purpose  string
	Version  string
	Required bool

	// IsDev marks a package under a "_dev" directory or a short name
	// starting with "_" (spec.md §4.7), excluded from startup autoload.
	IsDev bool

	// Checksum holds a sha256 of the plugin's source files. No code in this
	// module sets or reads it, so it is always empty and on-disk edits are
	// not detected.
	Checksum string

	Imported   bool
	Loaded     bool
	ImportedAt time.Time

	// ImportErrors records failures from any load stage (spec.md §4.7
	// step 1: "record the traceback in PluginInfo.import_errors").
	ImportErrors []string

	// CanReload gates unloading: Loader.Unload refuses a plugin whose
	// CanReload is false. loader.Discover always sets it to true, and
	// Manifest has no field that turns it off.
	CanReload bool

	// HasBeenReloaded is set after the first reload so future imports
	// skip any base-plugin patch step (spec.md §4.7 step 5).
	HasBeenReloaded bool

	Dependencies []string

	Instance Plugin
}
