// Package colorsplugin supplies the color-markup mapping spec.md §1 leaves
// unfixed ("a function mapping color markup to ANSI escape bytes and
// back"): RelayMUD's own `@<letter>` markup (lowercase = normal intensity,
// uppercase = bright, `@x###`/`@z###` = xterm-256 foreground/background,
// `@@` = literal `@`) translated to ANSI SGR sequences for clients, and
// stripped back to plain text for trigger matching against non-colored
// lines (spec.md §4.4: triggers match the stripped line unless
// matchcolor=true).
//
// Grounded on the original's plugins/core/colors/plugin/_colors.py
// (fixstring's tilde/`@@`/invalid-code cleanup, and the markup alphabet
// itself); the ANSI SGR numbers are the standard xterm 16-color table, not
// carried over from any Python source (spec.md explicitly leaves the exact
// mapping unfixed).
package colorsplugin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.colors"

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:    "Colors",
	Author:  "core",
	Purpose: "color markup <-> ANSI SGR translation",
	Version: "1.0",
	Package: "core",
	Short:   "colors",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// letterCodes maps the `@<letter>` markup alphabet to ANSI SGR foreground
// codes; uppercase letters additionally set the bold/bright attribute.
var letterCodes = map[byte]int{
	'k': 30, 'r': 31, 'g': 32, 'y': 33, 'b': 34, 'm': 35, 'c': 36, 'w': 37,
}

// Plugin is the core.colors plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.colors plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// Initialize advertises the markup.to.ansi/strip capabilities and the
// "test" command used to preview the mapping.
func (p *Plugin) Initialize() error {
	deps := p.Deps()
	if err := deps.API.Add("colors", "markup.to.ansi", func(args ...any) (any, error) {
		return ToANSI(argString(args)), nil
	}); err != nil {
		return err
	}
	if err := deps.API.Add("colors", "strip", func(args ...any) (any, error) {
		return Strip(argString(args)), nil
	}); err != nil {
		return err
	}
	return p.AddCommand(&commands.Command{
		Name:   "test",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "text", Positional: true, Required: true}),
		Fn:     p.cmdTest,
	})
}

// Uninitialize has nothing to reverse beyond RemoveOwnedData.
func (p *Plugin) Uninitialize() error { return nil }

func (p *Plugin) cmdTest(args *commands.ParsedArgs) (bool, []string, error) {
	raw := strings.Join(args.Positional, " ")
	return true, []string{
		fmt.Sprintf("markup : %s", raw),
		fmt.Sprintf("ansi   : %q", ToANSI(raw)),
		fmt.Sprintf("stripped: %s", Strip(raw)),
	}, nil
}

func argString(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s, _ := args[0].(string)
	return s
}

// ToANSI translates markup to ANSI SGR escape sequences: `@@` becomes a
// literal `@`, `@<letter>` sets an SGR foreground (bold for uppercase),
// `@x<n>`/`@z<n>` set an xterm-256 foreground/background, and any other
// `@`-prefixed sequence is dropped as invalid markup (mirroring fixstring's
// "rip out hidden garbage").
func ToANSI(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '@' || i == len(s)-1 {
			out.WriteByte(s[i])
			continue
		}
		next := s[i+1]
		switch {
		case next == '@':
			out.WriteByte('@')
			i++
		case next == 'x' || next == 'z':
			n, width := scanDigits(s, i+2)
			if width == 0 {
				i++
				continue
			}
			if next == 'x' {
				fmt.Fprintf(&out, "\x1b[38;5;%dm", n)
			} else {
				fmt.Fprintf(&out, "\x1b[48;5;%dm", n)
			}
			i += 1 + width
		default:
			lower := next | 0x20
			code, ok := letterCodes[lower]
			if !ok {
				i++
				continue
			}
			if next >= 'A' && next <= 'Z' {
				fmt.Fprintf(&out, "\x1b[1;%dm", code)
			} else {
				fmt.Fprintf(&out, "\x1b[0;%dm", code)
			}
			i++
		}
	}
	return out.String()
}

// Strip removes every recognized markup sequence, leaving plain text for
// trigger matching against non-colored lines (spec.md §4.4).
func Strip(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '@' || i == len(s)-1 {
			out.WriteByte(s[i])
			continue
		}
		next := s[i+1]
		switch {
		case next == '@':
			out.WriteByte('@')
			i++
		case next == 'x' || next == 'z':
			_, width := scanDigits(s, i+2)
			i += 1 + width
		default:
			lower := next | 0x20
			if _, ok := letterCodes[lower]; ok {
				i++
			}
			// else: leave the '@' in place, matching fixstring's
			// "strip only recognized sequences" behavior.
		}
	}
	return out.String()
}

// scanDigits reads up to 3 ASCII digits starting at i, returning the parsed
// value and how many bytes were consumed (0 if none).
func scanDigits(s string, i int) (int, int) {
	j := i
	for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0, 0
	}
	n, _ := strconv.Atoi(s[i:j])
	return n, j - i
}
