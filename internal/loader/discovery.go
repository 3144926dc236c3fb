// Package loader implements the plugin loader described in spec.md §4.7:
// filesystem discovery, dependency-ordered import/instantiate/initialize/
// uninitialize, hot reload, and conflict detection.
//
// Discovery is grounded on the original's libs/plugins/plugininfo.py, which
// reads PLUGIN_NAME/PLUGIN_AUTHOR/PLUGIN_PURPOSE/PLUGIN_VERSION/REQUIRED by
// regex line-scanning a plugin's init file "to avoid executing non-plugin
// code" (spec.md §4.7). Go cannot import a package without compiling and
// running its init()s, so SPEC_FULL.md §6 replaces the line-scan with an
// equivalent that preserves the same invariant: discovery parses the
// `var Manifest = plugin.Manifest{...}` composite literal via go/parser +
// go/ast — never running the package's code — and a separate, explicit
// constructor Registry (registry.go) supplies the already-compiled
// `New` function once a discovered manifest's package is actually loaded.
package loader

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/relaymud/relaymud/internal/plugin"
)

// Discover walks root looking for Go source files that declare a
// package-level `var Manifest = plugin.Manifest{...}` literal, returning
// one plugin.Info per discovered package (spec.md §4.7 Discovery). It never
// parses more than the AST — no package is imported or executed.
func Discover(root string) ([]*plugin.Info, error) {
	var infos []*plugin.Info

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		m, ok, err := scanFile(path)
		if err != nil {
			return fmt.Errorf("loader: scan %s: %w", path, err)
		}
		if !ok {
			return nil
		}

		info := manifestToInfo(m, path)
		if err := validateManifestFields(m.fields); err != nil {
			info.ImportErrors = append(info.ImportErrors, err.Error())
		}
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// parsedManifest holds the string/bool/[]string fields read out of a
// Manifest composite literal.
type parsedManifest struct {
	fields map[string]string
	deps   []string
}

// scanFile parses one Go source file and looks for a top-level
// `var Manifest = plugin.Manifest{...}` (or `Manifest{...}` if the file
// dot-imports the plugin package, though RelayMUD's own plugins never do).
func scanFile(path string) (*parsedManifest, bool, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, false, err
	}

	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			continue
		}
		for _, spec := range gd.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for i, name := range vs.Names {
				if name.Name != "Manifest" || i >= len(vs.Values) {
					continue
				}
				lit, ok := vs.Values[i].(*ast.CompositeLit)
				if !ok {
					continue
				}
				if !isManifestType(lit.Type) {
					continue
				}
				return parseManifestLit(lit), true, nil
			}
		}
	}
	return nil, false, nil
}

func isManifestType(expr ast.Expr) bool {
	switch t := expr.(type) {
	case *ast.SelectorExpr:
		return t.Sel.Name == "Manifest"
	case *ast.Ident:
		return t.Name == "Manifest"
	default:
		return false
	}
}

func parseManifestLit(lit *ast.CompositeLit) *parsedManifest {
	pm := &parsedManifest{fields: make(map[string]string)}
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		key, ok := kv.Key.(*ast.Ident)
		if !ok {
			continue
		}
		switch v := kv.Value.(type) {
		case *ast.BasicLit:
			pm.fields[key.Name] = literalValue(v)
		case *ast.Ident:
			pm.fields[key.Name] = v.Name // true/false
		case *ast.CompositeLit:
			if key.Name == "Dependencies" {
				pm.deps = stringSliceLit(v)
			}
		}
	}
	return pm
}

func literalValue(b *ast.BasicLit) string {
	if b.Kind == token.STRING {
		if v, err := strconv.Unquote(b.Value); err == nil {
			return v
		}
	}
	return b.Value
}

func stringSliceLit(lit *ast.CompositeLit) []string {
	var out []string
	for _, elt := range lit.Elts {
		if b, ok := elt.(*ast.BasicLit); ok && b.Kind == token.STRING {
			if v, err := strconv.Unquote(b.Value); err == nil {
				out = append(out, v)
			}
		}
	}
	return out
}

func manifestToInfo(m *parsedManifest, path string) *plugin.Info {
	pkg := m.fields["Package"]
	short := m.fields["Short"]
	info := &plugin.Info{
		ID:           pkg + "." + short,
		Package:      pkg,
		Short:        short,
		Files:        []string{path},
		Name:         m.fields["Name"],
		Author:       m.fields["Author"],
		Purpose:      m.fields["Purpose"],
		Version:      m.fields["Version"],
		Required:     m.fields["Required"] == "true",
		IsDev:        strings.HasPrefix(short, "_") || strings.Contains(filepath.ToSlash(path), "/_dev/"),
		CanReload:    true,
		Dependencies: m.deps,
	}
	return info
}
