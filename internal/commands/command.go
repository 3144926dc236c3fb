package commands

import (
	"fmt"
	"strings"
)

// ParsedArgs is the result of running a Command's ArgParser over the
// remainder of a command line (spec.md §4.5 Execution).
type ParsedArgs struct {
	Positional []string
	Flags      map[string]string
	Help       bool
}

// Get returns a flag's value and whether it was set.
func (p *ParsedArgs) Get(name string) (string, bool) {
	v, ok := p.Flags[name]
	return v, ok
}

// ArgSpec describes one accepted flag, for help-text generation.
type ArgSpec struct {
	Name       string
	Help       string
	Default    string
	TakesValue bool
	Positional bool
	Required   bool
}

// ArgParser parses a command's argument string and always accepts -h/--help
// (spec.md §4.5: "the command's argparser, which always carries a -h/--help
// flag").
type ArgParser struct {
	specs []ArgSpec
}

// NewArgParser creates a parser with the given flag/positional specs.
func NewArgParser(specs ...ArgSpec) *ArgParser {
	return &ArgParser{specs: specs}
}

// Parse splits raw on whitespace (respecting simple double-quoted
// substrings) and fills in flags/positionals, matching the teacher's
// Router.Parse flag-scanning loop generalized to arbitrary flag specs.
func (p *ArgParser) Parse(raw string) (*ParsedArgs, error) {
	fields := splitArgs(raw)

	out := &ParsedArgs{Flags: make(map[string]string)}

	positionalIdx := 0
	var positionalSpecs []ArgSpec
	for _, s := range p.specs {
		if s.Positional {
			positionalSpecs = append(positionalSpecs, s)
		}
		if s.Default != "" {
			out.Flags[s.Name] = s.Default
		}
	}

	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "-h" || f == "--help":
			out.Help = true
		case strings.HasPrefix(f, "--"):
			name := strings.TrimPrefix(f, "--")
			spec, ok := findSpec(p.specs, name)
			if !ok {
				return nil, fmt.Errorf("unknown flag --%s", name)
			}
			if spec.TakesValue {
				if i+1 >= len(fields) {
					return nil, fmt.Errorf("flag --%s requires a value", name)
				}
				out.Flags[name] = fields[i+1]
				i++
			} else {
				out.Flags[name] = "true"
			}
		default:
			out.Positional = append(out.Positional, f)
			if positionalIdx < len(positionalSpecs) {
				out.Flags[positionalSpecs[positionalIdx].Name] = f
				positionalIdx++
			}
		}
	}

	if !out.Help {
		for _, s := range positionalSpecs {
			if s.Required {
				if _, ok := out.Flags[s.Name]; !ok {
					return nil, fmt.Errorf("missing required argument %s", s.Name)
				}
			}
		}
	}

	return out, nil
}

func findSpec(specs []ArgSpec, name string) (ArgSpec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return ArgSpec{}, false
}

// Help renders the parser's usage block.
func (p *ArgParser) Help(fullName string) []string {
	lines := []string{"Usage: " + fullName + " [options]"}
	for _, s := range p.specs {
		marker := "--" + s.Name
		if s.Positional {
			marker = s.Name
		}
		lines = append(lines, fmt.Sprintf("  %-20s %s", marker, s.Help))
	}
	lines = append(lines, fmt.Sprintf("  %-20s %s", "-h, --help", "show this help message"))
	return lines
}

// splitArgs tokenizes on whitespace, keeping double-quoted spans together.
func splitArgs(raw string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range raw {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}

// HandlerFunc executes a command after its arguments have been parsed. It
// returns whether the command succeeded and the output lines to render
// (spec.md §4.5: "it must return (success: bool, lines: [string])").
type HandlerFunc func(args *ParsedArgs) (bool, []string, error)

// Command is one registered proxy command (spec.md §3).
type Command struct {
	OwnerID       string
	Name          string
	Fn            HandlerFunc
	Parser        *ArgParser
	Group         string
	ShowInHistory bool
	Format        bool
	Preamble      bool

	CallCount int64
}

// FullName is the dotted reference used in help text and history:
// "<owner>.<name>".
func (c *Command) FullName() string {
	return c.OwnerID + "." + c.Name
}
