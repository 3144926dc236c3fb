// Package errorsplugin keeps a bounded ring buffer of the most recently
// logged errors across every subsystem, surfaced in-band (SPEC_FULL.md's
// expansion: "Errors plugin (#bp.core.errors.list) — a bounded ring buffer
// of the last N logged errors across all subsystems").
//
// Grounded on the original's plugins/core/errors/plugin/_errors.py:
// errors:add/errors:get/errors:clear.all.errors capabilities and the
// _command_show "show errors" command, generalized from an unbounded list
// to a fixed-size ring buffer (the original never trims its list).
package errorsplugin

import (
	"fmt"
	"strconv"
	"time"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.errors"

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:    "Errors",
	Author:  "core",
	Purpose: "bounded ring buffer of recently logged errors",
	Version: "1.0",
	Package: "core",
	Short:   "errors",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// maxErrors bounds the ring buffer (the original's list grows without
// limit; spec.md's ambient resource-boundedness expectations call for a
// fixed cap instead).
const maxErrors = 200

// entry is one recorded error.
type entry struct {
	At  time.Time
	Src string
	Msg string
}

// Plugin is the core.errors plugin instance.
type Plugin struct {
	*plugin.Base
	errs []entry
}

// New constructs the core.errors plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// Initialize advertises the add/get/clear capabilities and the list
// command, and subscribes to ev_error so every subsystem's error events
// land in the ring without each needing to call the capability directly.
func (p *Plugin) Initialize() error {
	deps := p.Deps()
	if err := deps.API.Add("errors", "add", func(args ...any) (any, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("errors:add requires (source, message)")
		}
		src, _ := args[0].(string)
		msg, _ := args[1].(string)
		p.record(src, msg)
		return nil, nil
	}); err != nil {
		return err
	}
	if err := deps.API.Add("errors", "get", func(args ...any) (any, error) {
		return p.All(), nil
	}); err != nil {
		return err
	}
	if err := deps.API.Add("errors", "clear.all.errors", func(args ...any) (any, error) {
		p.errs = nil
		return nil, nil
	}); err != nil {
		return err
	}

	p.Subscribe("ev_error", 50, func(rec *events.Record) (*events.Record, error) {
		p.record(rec.GetString("source"), rec.GetString("err"))
		return rec, nil
	})

	return p.AddCommand(&commands.Command{
		Name:   "list",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "number", Positional: true, Default: "-1"}),
		Fn:     p.cmdList,
	})
}

// Uninitialize has nothing to reverse beyond RemoveOwnedData.
func (p *Plugin) Uninitialize() error { return nil }

// record appends an error, trimming the oldest entry once the ring is full.
func (p *Plugin) record(src, msg string) {
	p.errs = append(p.errs, entry{At: time.Now().UTC(), Src: src, Msg: msg})
	if len(p.errs) > maxErrors {
		p.errs = p.errs[len(p.errs)-maxErrors:]
	}
}

// All returns every recorded error, oldest first.
func (p *Plugin) All() []entry {
	return p.errs
}

func (p *Plugin) cmdList(args *commands.ParsedArgs) (bool, []string, error) {
	number := -1
	if v, ok := args.Get("number"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return false, []string{"please specify a number"}, nil
		}
		number = n
	}

	errs := p.errs
	if number > 0 && number < len(errs) {
		errs = errs[len(errs)-number:]
	}

	if len(errs) == 0 {
		return true, []string{"no errors recorded"}, nil
	}
	out := make([]string, 0, len(errs)*3)
	for _, e := range errs {
		out = append(out, "",
			fmt.Sprintf("Time  : %s", e.At.Format("2006-01-02 15:04:05 UTC")),
			fmt.Sprintf("Source: %s", e.Src),
			fmt.Sprintf("Error : %s", e.Msg))
	}
	return true, out, nil
}
