package pluginmplugin

import (
	"testing"

	"github.com/relaymud/relaymud/internal/capi"
	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
	"github.com/relaymud/relaymud/internal/timers"
	"github.com/relaymud/relaymud/internal/triggers"
)

// fakePlugin is a minimal plugin.Plugin used to exercise the loader without
// pulling in a real coreplugin package.
type fakePlugin struct {
	*plugin.Base
}

func (f *fakePlugin) Initialize() error   { return nil }
func (f *fakePlugin) Uninitialize() error { return nil }

func init() {
	loader.RegisterConstructor("core.fakedemo", func(id string, deps plugin.Deps) (plugin.Plugin, error) {
		return &fakePlugin{Base: plugin.NewBase(id, deps)}, nil
	})
}

func newTestDeps() (plugin.Deps, *plugin.LoaderRef) {
	bus := events.New()
	ref := &plugin.LoaderRef{}
	return plugin.Deps{
		API:        capi.New(),
		Bus:        bus,
		Dispatcher: commands.New(commands.Config{Prefix: "#bp"}),
		Triggers:   triggers.New(bus),
		Timers:     timers.New(),
		Loader:     ref,
	}, ref
}

func newLoaderWithFakeDemo(t *testing.T, deps plugin.Deps) *loader.Loader {
	t.Helper()
	l := loader.New(deps)
	if err := l.RegisterInfo(&plugin.Info{ID: "core.fakedemo", Package: "core", Short: "fakedemo", CanReload: true}); err != nil {
		t.Fatalf("register info: %v", err)
	}
	return l
}

func TestPluginM_CommandsRequireBoundLoader(t *testing.T) {
	deps, _ := newTestDeps()
	p := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := p.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, _, err := p.cmdList(&commands.ParsedArgs{}); err == nil {
		t.Fatal("expected an error with no loader bound")
	}
	if _, _, err := p.cmdLoad(&commands.ParsedArgs{Positional: []string{"core.fakedemo"}}); err == nil {
		t.Fatal("expected an error with no loader bound")
	}
}

func TestPluginM_LoadUnloadReload(t *testing.T) {
	deps, ref := newTestDeps()
	l := newLoaderWithFakeDemo(t, deps)
	ref.Set(l)

	p := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := p.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ok, lines, err := p.cmdLoad(&commands.ParsedArgs{Positional: []string{"core.fakedemo"}})
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one confirmation line, got %v", lines)
	}
	if _, loaded := l.Loaded("core.fakedemo"); !loaded {
		t.Fatal("expected core.fakedemo to be loaded")
	}

	ok, lines, err = p.cmdList(&commands.ParsedArgs{})
	if err != nil || !ok {
		t.Fatalf("list: ok=%v err=%v", ok, err)
	}
	found := false
	for _, l := range lines {
		if len(l) >= len("core.fakedemo") && l[:len("core.fakedemo")] == "core.fakedemo" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected core.fakedemo in list output, got %v", lines)
	}

	ok, _, err = p.cmdReload(&commands.ParsedArgs{Positional: []string{"core.fakedemo"}})
	if err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}
	if _, loaded := l.Loaded("core.fakedemo"); !loaded {
		t.Fatal("expected core.fakedemo to still be loaded after reload")
	}

	ok, _, err = p.cmdUnload(&commands.ParsedArgs{Positional: []string{"core.fakedemo"}})
	if err != nil || !ok {
		t.Fatalf("unload: ok=%v err=%v", ok, err)
	}
	if _, loaded := l.Loaded("core.fakedemo"); loaded {
		t.Fatal("expected core.fakedemo to be unloaded")
	}
}

func TestPluginM_RefusesToUnloadItself(t *testing.T) {
	deps, ref := newTestDeps()
	l := newLoaderWithFakeDemo(t, deps)
	ref.Set(l)

	p := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := p.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, _, err := p.cmdUnload(&commands.ParsedArgs{Positional: []string{ID}}); err == nil {
		t.Fatal("expected an error refusing to unload core.pluginm")
	}
}

func TestPluginM_PostStartupEventLoadsConfiguredPlugins(t *testing.T) {
	deps, ref := newTestDeps()
	l := newLoaderWithFakeDemo(t, deps)
	ref.Set(l)

	p := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := p.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, err := p.Setting("pluginstoload").Set("core.fakedemo"); err != nil {
		t.Fatalf("set pluginstoload: %v", err)
	}

	deps.Bus.Raise(loader.PostStartupEvent, nil)

	if _, loaded := l.Loaded("core.fakedemo"); !loaded {
		t.Fatal("expected the post-startup event to autoload core.fakedemo")
	}
}

func TestPluginM_PostStartupEventSkipsUnknownIDsWithoutAborting(t *testing.T) {
	deps, ref := newTestDeps()
	l := newLoaderWithFakeDemo(t, deps)
	ref.Set(l)

	p := &Plugin{Base: plugin.NewBase(ID, deps)}
	if err := p.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, err := p.Setting("pluginstoload").Set("core.nosuchplugin,core.fakedemo"); err != nil {
		t.Fatalf("set pluginstoload: %v", err)
	}

	var sawError bool
	deps.Bus.RegisterToEvent("ev_error", "test", 0, func(rec *events.Record) (*events.Record, error) {
		sawError = true
		return rec, nil
	})

	deps.Bus.Raise(loader.PostStartupEvent, nil)

	if !sawError {
		t.Fatal("expected ev_error to be raised for the unknown plugin id")
	}
	if _, loaded := l.Loaded("core.fakedemo"); !loaded {
		t.Fatal("expected core.fakedemo to still load despite the earlier unknown id")
	}
}
