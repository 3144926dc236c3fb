// Package commands implements the in-band command language described in
// spec.md §4.5: a "#bp"-prefixed dotted reference that fuzzy-resolves to a
// package, plugin, and command, plus pass-through handling (antispam,
// history, `!N` replay) for everything else.
//
// Grounded on internal/ruriko/commands/router.go's Parse/Route/Dispatch
// split and flag-scanning loop, generalized from a flat handler map to the
// package/plugin/command hierarchy and fuzzy resolution described in
// _examples/original_source/src/bastproxy/plugins/core/commands.py.
package commands

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

const fuzzyThreshold = 90

// pluginEntry is one plugin's registered commands, grouped under its
// package for the dotted resolution hierarchy.
type pluginEntry struct {
	ID       string // dotted plugin id, e.g. "core.proxy"
	Package  string // e.g. "core"
	Short    string // e.g. "proxy"
	Commands map[string]*Command
}

// Dispatcher routes client input lines to either the mud (pass-through) or
// an internal command handler (component E).
type Dispatcher struct {
	log *slog.Logger

	prefix    string
	splitChar byte

	plugins   map[string]*pluginEntry
	byPackage map[string][]string // package -> plugin ids

	history *History

	lastCmd         string
	cmdCount        int
	spamCount       int
	antispamCommand string
	noMultiple      map[string]bool
	justSent        map[string]bool

	currentArgs *ParsedArgs
}

// Config configures pass-through antispam/history behavior.
type Config struct {
	Prefix          string
	SplitChar       byte
	SpamCount       int
	AntispamCommand string
	NoMultiple      []string
	History         *History
}

// New creates a Dispatcher. Zero-value Config fields take the defaults from
// spec.md §4.5 (prefix "#bp", split char '|').
func New(cfg Config) *Dispatcher {
	if cfg.Prefix == "" {
		cfg.Prefix = "#bp"
	}
	if cfg.SplitChar == 0 {
		cfg.SplitChar = '|'
	}
	if cfg.SpamCount <= 0 {
		cfg.SpamCount = 3
	}
	noMultiple := make(map[string]bool, len(cfg.NoMultiple))
	for _, l := range cfg.NoMultiple {
		noMultiple[l] = true
	}
	return &Dispatcher{
		log:             slog.With("component", "commands"),
		prefix:          cfg.Prefix,
		splitChar:       cfg.SplitChar,
		plugins:         make(map[string]*pluginEntry),
		byPackage:       make(map[string][]string),
		history:         cfg.History,
		spamCount:       cfg.SpamCount,
		antispamCommand: cfg.AntispamCommand,
		noMultiple:      noMultiple,
		justSent:        make(map[string]bool),
	}
}

// RegisterPlugin declares a plugin's package/short-name membership so its
// commands become reachable via dotted resolution.
func (d *Dispatcher) RegisterPlugin(id, pkg, short string) {
	if _, exists := d.plugins[id]; exists {
		return
	}
	e := &pluginEntry{ID: id, Package: pkg, Short: short, Commands: make(map[string]*Command)}
	d.plugins[id] = e
	d.byPackage[pkg] = append(d.byPackage[pkg], id)
}

// RemovePlugin removes a plugin and all of its commands (spec.md §4.7
// unload step 3, `remove.data.for.plugin`).
func (d *Dispatcher) RemovePlugin(id string) {
	e, ok := d.plugins[id]
	if !ok {
		return
	}
	ids := d.byPackage[e.Package]
	for i, candidate := range ids {
		if candidate == id {
			d.byPackage[e.Package] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	delete(d.plugins, id)
}

// AddCommand registers a command under an already-registered plugin id.
func (d *Dispatcher) AddCommand(pluginID string, cmd *Command) error {
	e, ok := d.plugins[pluginID]
	if !ok {
		return fmt.Errorf("plugin %s not registered", pluginID)
	}
	if _, exists := e.Commands[cmd.Name]; exists {
		return fmt.Errorf("command %s already exists on plugin %s", cmd.Name, pluginID)
	}
	cmd.OwnerID = pluginID
	if cmd.Parser == nil {
		cmd.Parser = NewArgParser()
	}
	e.Commands[cmd.Name] = cmd
	return nil
}

// IsCommand reports whether line begins with the configured prefix
// (case-insensitive), per spec.md §4.5 "Input prefix".
func (d *Dispatcher) IsCommand(line string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) >= len(d.prefix) && strings.EqualFold(trimmed[:len(d.prefix)], d.prefix)
}

// CurrentArgs returns the parsed args of the command currently executing,
// for the handler's own use (spec.md §4.5: "get.current.command.args()").
func (d *Dispatcher) CurrentArgs() *ParsedArgs {
	return d.currentArgs
}

// History returns the shared command history this Dispatcher was
// configured with (nil if none was set), for commandsplugin's "!N" replay
// and "history" listing commands.
func (d *Dispatcher) History() *History {
	return d.history
}

// Dispatch resolves and executes an internal command line. line must
// already have passed IsCommand. Returns the rendered output lines.
func (d *Dispatcher) Dispatch(line string) []string {
	rest := strings.TrimSpace(line)[len(d.prefix):]
	rest = strings.TrimPrefix(rest, ".")

	dottedRef, argString := splitRefAndArgs(rest)
	parts := splitNonEmpty(dottedRef, '.')

	return d.resolveAndRun(parts, argString)
}

func splitRefAndArgs(rest string) (string, string) {
	idx := strings.IndexByte(rest, ' ')
	if idx < 0 {
		return rest, ""
	}
	return rest[:idx], strings.TrimSpace(rest[idx+1:])
}

func splitNonEmpty(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, string(sep))
	out := raw[:0]
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveAndRun implements the package → plugin → command resolution
// pipeline (spec.md §4.5 steps 1-5).
func (d *Dispatcher) resolveAndRun(parts []string, argString string) []string {
	if len(parts) == 0 {
		return d.listPackages()
	}

	pkg, pluginTok, cmdTok, ok := d.resolveParts(parts)
	if !ok {
		return []string{fmt.Sprintf("unable to resolve command from %q", strings.Join(parts, "."))}
	}

	if pkg != "" && pluginTok == "" {
		return d.listPluginsInPackage(pkg)
	}

	pluginID, ok := d.resolvePlugin(pkg, pluginTok)
	if !ok {
		return []string{fmt.Sprintf("no plugin matches %q", pluginTok)}
	}

	if cmdTok == "" {
		return d.listCommands(pluginID)
	}

	cmd, ok := d.resolveCommand(pluginID, cmdTok)
	if !ok {
		return []string{fmt.Sprintf("no command matches %q on plugin %s", cmdTok, pluginID)}
	}

	return d.execute(cmd, argString)
}

// resolveParts interprets up to three dotted tokens as
// [package, plugin, command], accepting the "<plugin>[.<command>]" shorthand
// when the first token does not confidently match any known package
// (spec.md §4.5: "<prefix>[.<package>].<plugin>[.<command>]").
func (d *Dispatcher) resolveParts(parts []string) (pkg, plugin, cmd string, ok bool) {
	packages := d.packageNames()

	switch len(parts) {
	case 1:
		if p, matched := bestMatch(parts[0], packages, fuzzyThreshold); matched {
			return p, "", "", true
		}
		return "", parts[0], "", true
	case 2:
		if p, matched := bestMatch(parts[0], packages, fuzzyThreshold); matched {
			return p, parts[1], "", true
		}
		return "", parts[0], parts[1], true
	default:
		if p, matched := bestMatch(parts[0], packages, fuzzyThreshold); matched {
			return p, parts[1], parts[2], true
		}
		return "", parts[0], parts[1], true
	}
}

func (d *Dispatcher) packageNames() []string {
	out := make([]string, 0, len(d.byPackage))
	for p := range d.byPackage {
		out = append(out, p)
	}
	return out
}

// resolvePlugin fuzzy-matches token against short names within pkg (when
// known), falling back to a full-plugin-id match across every loaded
// plugin (spec.md §4.5 step 3). Unlike package resolution, plugin and
// command resolution have no minimum-score gate — the single best-scoring
// candidate wins (spec.md §8 property 10: resolution is decided by which
// candidate has the higher token_set_ratio, not by clearing a threshold).
func (d *Dispatcher) resolvePlugin(pkg, token string) (string, bool) {
	if pkg != "" {
		var shorts []string
		shortToID := make(map[string]string)
		for _, id := range d.byPackage[pkg] {
			e := d.plugins[id]
			shorts = append(shorts, e.Short)
			shortToID[e.Short] = id
		}
		if short, ok := bestMatch(token, shorts, 0); ok {
			return shortToID[short], true
		}
	}

	var ids []string
	for id := range d.plugins {
		ids = append(ids, id)
	}
	return bestMatch(token, ids, 0)
}

func (d *Dispatcher) resolveCommand(pluginID, token string) (*Command, bool) {
	e, ok := d.plugins[pluginID]
	if !ok {
		return nil, false
	}
	var names []string
	for name := range e.Commands {
		names = append(names, name)
	}
	name, ok := bestMatch(token, names, 0)
	if !ok {
		return nil, false
	}
	return e.Commands[name], true
}

func (d *Dispatcher) listPackages() []string {
	names := d.packageNames()
	sort.Strings(names)
	lines := []string{"Packages:"}
	for _, n := range names {
		lines = append(lines, "  "+n)
	}
	return lines
}

func (d *Dispatcher) listPluginsInPackage(pkg string) []string {
	ids := append([]string(nil), d.byPackage[pkg]...)
	sort.Strings(ids)
	lines := []string{fmt.Sprintf("Plugins in package %s:", pkg)}
	for _, id := range ids {
		lines = append(lines, "  "+d.plugins[id].Short)
	}
	return lines
}

func (d *Dispatcher) listCommands(pluginID string) []string {
	e := d.plugins[pluginID]
	var names []string
	for name := range e.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := []string{fmt.Sprintf("Commands for %s:", pluginID)}
	for _, n := range names {
		lines = append(lines, "  "+n)
	}
	return lines
}

// execute parses argString with cmd's parser and runs the handler,
// wrapping successful output in the standard header/footer unless the
// command opts out (spec.md §4.5 "Execution").
func (d *Dispatcher) execute(cmd *Command, argString string) []string {
	args, err := cmd.Parser.Parse(argString)
	if err != nil {
		lines := []string{"Error: " + err.Error()}
		return append(lines, cmd.Parser.Help(cmd.FullName())...)
	}

	if args.Help {
		return cmd.Parser.Help(cmd.FullName())
	}

	d.currentArgs = args
	defer func() { d.currentArgs = nil }()

	cmd.CallCount++
	ok, lines, err := cmd.Fn(args)
	if err != nil {
		return []string{fmt.Sprintf("command %s failed: %v", cmd.FullName(), err)}
	}
	if !ok {
		return lines
	}
	if !cmd.Format {
		return lines
	}
	return frame(cmd.FullName(), lines)
}

// frame wraps output in the two-line bar header/footer (spec.md §4.5:
// "a two-line bar around the command's fully-qualified name").
func frame(name string, lines []string) []string {
	bar := strings.Repeat("-", len(name)+4)
	out := make([]string, 0, len(lines)+3)
	out = append(out, bar, "| "+name+" |")
	out = append(out, lines...)
	out = append(out, bar)
	return out
}

// SplitLines splits raw on the configured split character, treating a
// doubled split character as an escaped literal (spec.md §4.5 "Line
// splitting": "default '|' ... '||' is the escape for a literal '|'").
func (d *Dispatcher) SplitLines(raw string) []string {
	sep := d.splitChar
	var out []string
	var cur strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == sep {
			if i+1 < len(raw) && raw[i+1] == sep {
				cur.WriteByte(sep)
				i++
				continue
			}
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(raw[i])
	}
	out = append(out, cur.String())
	return out
}

// PassThroughResult is the outcome of running non-command pass-through
// logic over a single line (spec.md §4.5 "Pass-through").
type PassThroughResult struct {
	Line          string
	SendToMud     bool
	AddToHistory  bool
	AntispamFired bool
}

// PassThrough applies the lastcmd/cmdcount antispam tracking and the
// no_multiple_commands denylist to a non-command line headed for the mud
// (spec.md §4.5 steps 1-3, §8 property 11).
func (d *Dispatcher) PassThrough(line string) PassThroughResult {
	if line != d.lastCmd {
		d.lastCmd = line
		d.cmdCount = 0
	} else {
		d.cmdCount++
	}

	if d.cmdCount == d.spamCount && d.antispamCommand != "" {
		d.cmdCount = 0
		d.log.Warn("antispam triggered", "line", line)
		return PassThroughResult{Line: d.antispamCommand, SendToMud: true, AddToHistory: false, AntispamFired: true}
	}

	if d.noMultiple[line] && d.justSent[line] {
		d.justSent[line] = false
		return PassThroughResult{Line: line, SendToMud: false, AddToHistory: true}
	}

	d.justSent[line] = d.noMultiple[line]
	return PassThroughResult{Line: line, SendToMud: true, AddToHistory: true}
}
