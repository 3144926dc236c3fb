// Package utilsplugin exposes the small helper functions other core
// plugins lean on — timelength parsing/formatting and setting-kind value
// verification — as capi capabilities, per SPEC_FULL.md's expansion ("Utils
// plugin — timestring/colorstring/verify-type helpers ... available as
// capabilities utils:convert.timelength, utils:verify.value").
//
// Grounded on the original's plugins/core/utils.py: convert:timelength:to:secs
// (here: internal/plugin.ParseTimeLength, already shared with Setting's own
// validation), convert:seconds:to:dhms (here: FormatDuration), and
// verify:value (here: VerifyValue, generalized to RelayMUD's own Setting
// Kind enum).
package utilsplugin

import (
	"fmt"
	"strconv"
	"time"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.utils"

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:         "Utils",
	Author:       "core",
	Purpose:      "timelength/verify-value helpers shared by other core plugins",
	Version:      "1.0",
	Package:      "core",
	Short:        "utils",
	Dependencies: []string{"core.colors"},
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.utils plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.utils plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// Initialize advertises the convert.timelength/format.duration/verify.value
// capabilities and a "timelength" command to preview them.
func (p *Plugin) Initialize() error {
	deps := p.Deps()
	if err := deps.API.Add("utils", "convert.timelength", func(args ...any) (any, error) {
		s, _ := args[0].(string)
		d, err := plugin.ParseTimeLength(s)
		if err != nil {
			return nil, err
		}
		return d, nil
	}); err != nil {
		return err
	}
	if err := deps.API.Add("utils", "format.duration", func(args ...any) (any, error) {
		s, _ := args[0].(string)
		d, err := plugin.ParseTimeLength(s)
		if err != nil {
			return nil, err
		}
		return FormatDuration(d), nil
	}); err != nil {
		return err
	}
	if err := deps.API.Add("utils", "verify.value", func(args ...any) (any, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("verify.value requires (kind, value)")
		}
		kind, _ := args[0].(string)
		value, _ := args[1].(string)
		return VerifyValue(kind, value)
	}); err != nil {
		return err
	}
	return p.AddCommand(&commands.Command{
		Name:   "timelength",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "value", Positional: true, Required: true}),
		Fn:     p.cmdTimelength,
	})
}

// Uninitialize has nothing to reverse beyond RemoveOwnedData.
func (p *Plugin) Uninitialize() error { return nil }

func (p *Plugin) cmdTimelength(args *commands.ParsedArgs) (bool, []string, error) {
	d, err := plugin.ParseTimeLength(args.Positional[0])
	if err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf("%s = %s", args.Positional[0], FormatDuration(d))}, nil
}

// FormatDuration renders d as a compact "<d>d:<h>h:<m>m:<s>s" string,
// omitting leading zero components, matching the original's
// convert:seconds:to:dhms.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	total %= 86400
	hours := total / 3600
	total %= 3600
	minutes := total / 60
	seconds := total % 60

	var out string
	wrote := false
	if days > 0 {
		out += fmt.Sprintf("%02dd:", days)
		wrote = true
	}
	if hours > 0 || wrote {
		out += fmt.Sprintf("%02dh:", hours)
		wrote = true
	}
	if minutes > 0 || wrote {
		out += fmt.Sprintf("%02dm:", minutes)
	}
	out += fmt.Sprintf("%02ds", seconds)
	return out
}

// VerifyValue checks value against kind (spec.md §3's Setting kinds:
// "bool/int/str/color/timelength/list") and returns it coerced to the
// matching Go type, or an error describing why it failed.
func VerifyValue(kind, value string) (any, error) {
	switch kind {
	case "bool":
		return strconv.ParseBool(value)
	case "int":
		return strconv.Atoi(value)
	case "str", "color", "list":
		return value, nil
	case "timelength":
		return plugin.ParseTimeLength(value)
	default:
		return nil, fmt.Errorf("unknown setting kind %q", kind)
	}
}
