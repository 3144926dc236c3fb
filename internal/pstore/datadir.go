// Package pstore implements the on-disk persistent state layout described
// in spec.md §6:
//
//	data/
//	  logs/                      — rotating text logs, midnight rotation
//	  plugins/<plugin_id>/
//	    settingvalues.txt        — key→value snapshot, on-change sync
//	    history.txt              — command history for the commands plugin
//	    <plugin-specific>.txt
//	  db/<name>.sqlite           — optional per-plugin SQLite databases
//
// Grounded on the teacher's store.go (SQLite open/pragma/migration idiom,
// adapted in sqlite.go) and config/store.go (plain on-disk settings file,
// adapted in kv.go).
package pstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir resolves the persistent-state layout rooted at base (spec.md §6:
// "the process's working directory determines the base path if the
// executable is not on an absolute path").
type Dir struct {
	base string
}

// NewDir ensures base/data and its logs/plugins/db subdirectories exist and
// returns a Dir rooted there.
func NewDir(base string) (*Dir, error) {
	root := filepath.Join(base, "data")
	for _, sub := range []string{"logs", "plugins", "db"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("pstore: create %s: %w", sub, err)
		}
	}
	return &Dir{base: root}, nil
}

// LogsDir returns data/logs.
func (d *Dir) LogsDir() string {
	return filepath.Join(d.base, "logs")
}

// DBPath returns the path for a named SQLite database under data/db.
func (d *Dir) DBPath(name string) string {
	return filepath.Join(d.base, "db", name+".sqlite")
}

// PluginDir ensures data/plugins/<pluginID> exists and returns its path.
func (d *Dir) PluginDir(pluginID string) (string, error) {
	dir := filepath.Join(d.base, "plugins", pluginID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pstore: create plugin dir %s: %w", pluginID, err)
	}
	return dir, nil
}

// PluginFile ensures the plugin's data directory exists and returns the path
// to name within it (e.g. "history.txt", "<plugin-specific>.txt").
func (d *Dir) PluginFile(pluginID, name string) (string, error) {
	dir, err := d.PluginDir(pluginID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
