// Command relaymud is the proxy's process entrypoint: it loads
// configuration from flags and the environment, wires every subsystem
// together (capability registry, event bus, dispatcher, trigger engine,
// timer scheduler, persistence, sessions), discovers and loads the core
// plugins, and serves client listeners until an orderly shutdown.
//
// Grounded on the teacher's cmd/ruriko/main.go: version banner, a
// loadConfig() built from common/environment's typed helpers, a required-config
// exit(1) check, and crypto.LoadMasterKey() before anything that might
// touch a secret. Where the teacher hands off to a single internal/app
// wrapper, RelayMUD has no such package (its subsystems are a wider,
// flatter set than Ruriko's Matrix client), so main itself performs the
// construction app.New would otherwise have hidden.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/relaymud/relaymud/common/crypto"
	"github.com/relaymud/relaymud/common/environment"
	"github.com/relaymud/relaymud/common/redact"
	"github.com/relaymud/relaymud/common/version"
	"github.com/relaymud/relaymud/internal/approvals"
	"github.com/relaymud/relaymud/internal/audit"
	"github.com/relaymud/relaymud/internal/capi"
	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/coreplugins/clientsplugin"
	"github.com/relaymud/relaymud/internal/coreplugins/colorsplugin"
	"github.com/relaymud/relaymud/internal/coreplugins/proxyplugin"
	"github.com/relaymud/relaymud/internal/engine"
	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/pipeline"
	"github.com/relaymud/relaymud/internal/plugin"
	"github.com/relaymud/relaymud/internal/pstore"
	"github.com/relaymud/relaymud/internal/runtime"
	"github.com/relaymud/relaymud/internal/session"
	"github.com/relaymud/relaymud/internal/timers"
	"github.com/relaymud/relaymud/internal/triggers"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	// Blank-imported so each coreplugin's init() registers its constructor
	// with the loader; loader.Discover separately finds their Manifest
	// literals on disk (see internal/loader/discovery.go's package doc).
	_ "github.com/relaymud/relaymud/internal/coreplugins/apiplugin"
	_ "github.com/relaymud/relaymud/internal/coreplugins/commandsplugin"
	_ "github.com/relaymud/relaymud/internal/coreplugins/errorsplugin"
	_ "github.com/relaymud/relaymud/internal/coreplugins/eventsplugin"
	_ "github.com/relaymud/relaymud/internal/coreplugins/logplugin"
	_ "github.com/relaymud/relaymud/internal/coreplugins/pluginmplugin"
	_ "github.com/relaymud/relaymud/internal/coreplugins/settingsplugin"
	_ "github.com/relaymud/relaymud/internal/coreplugins/timersplugin"
	_ "github.com/relaymud/relaymud/internal/coreplugins/triggersplugin"
	_ "github.com/relaymud/relaymud/internal/coreplugins/utilsplugin"
)

// config is every env/flag-derived setting main needs before it can build
// a runtime.Runtime (spec.md §6 External Interfaces).
type config struct {
	baseDir      string
	listenPort   int
	maxClients   int
	mudAddress   string
	pluginSrcDir string
	daemon       bool

	adminPassword string
	viewPassword  string
}

func main() {
	cfg := loadConfig()

	if !cfg.daemon {
		fmt.Println("RelayMUD")
		fmt.Printf("Version: %s\n", version.Info())
		fmt.Println()
	}

	if cfg.adminPassword == "" {
		fmt.Fprintln(os.Stderr, "Error: RELAYMUD_ADMIN_PASSWORD is required")
		os.Exit(1)
	}

	masterKey, err := crypto.LoadMasterKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\nGenerate a key with: openssl rand -hex 32\n", err)
		os.Exit(1)
	}

	if err := run(cfg, masterKey); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// fileConfig is the subset of config a YAML config file may set, applied
// between the environment defaults and flag overrides (spec.md §6's
// listener addresses, mud host/port, command prefix, and bootstrap
// passwords). Fields left unset in the file keep whatever the environment
// already produced — yaml.Unmarshal only touches keys present in the
// document.
type fileConfig struct {
	BaseDir       *string `yaml:"base_dir"`
	ListenPort    *int    `yaml:"listen_port"`
	MaxClients    *int    `yaml:"max_clients"`
	MudAddress    *string `yaml:"mud_address"`
	PluginSrcDir  *string `yaml:"plugin_src_dir"`
	AdminPassword *string `yaml:"admin_password"`
	ViewPassword  *string `yaml:"view_password"`
	Daemon        *bool   `yaml:"daemon"`
}

// applyTo overlays any field fc sets onto cfg.
func (fc fileConfig) applyTo(cfg *config) {
	if fc.BaseDir != nil {
		cfg.baseDir = *fc.BaseDir
	}
	if fc.ListenPort != nil {
		cfg.listenPort = *fc.ListenPort
	}
	if fc.MaxClients != nil {
		cfg.maxClients = *fc.MaxClients
	}
	if fc.MudAddress != nil {
		cfg.mudAddress = *fc.MudAddress
	}
	if fc.PluginSrcDir != nil {
		cfg.pluginSrcDir = *fc.PluginSrcDir
	}
	if fc.AdminPassword != nil {
		cfg.adminPassword = *fc.AdminPassword
	}
	if fc.ViewPassword != nil {
		cfg.viewPassword = *fc.ViewPassword
	}
	if fc.Daemon != nil {
		cfg.daemon = *fc.Daemon
	}
}

// loadConfig reads RELAYMUD_-prefixed environment variables through
// common/environment's typed helpers, overlays a YAML config file if
// RELAYMUD_CONFIG_FILE names one (spec.md §6's external config file), then
// lets flags override the port and daemon mode (spec.md §6: "-p/--port",
// "-d/--daemon") — env, then file, then flags, each layer only overriding
// what the one before it set.
func loadConfig() config {
	cfg := config{
		baseDir:       environment.StringOr("RELAYMUD_BASE_DIR", "."),
		listenPort:    environment.IntOr("RELAYMUD_PORT", 9999),
		maxClients:    environment.IntOr("RELAYMUD_MAX_CLIENTS", 5),
		mudAddress:    environment.StringOr("RELAYMUD_MUD_ADDRESS", ""),
		pluginSrcDir:  environment.StringOr("RELAYMUD_PLUGIN_SRC_DIR", "internal/coreplugins"),
		adminPassword: environment.StringOr("RELAYMUD_ADMIN_PASSWORD", ""),
		viewPassword:  environment.StringOr("RELAYMUD_VIEW_PASSWORD", ""),
		daemon:        environment.BoolOr("RELAYMUD_DAEMON", false),
	}

	if path := environment.StringOr("RELAYMUD_CONFIG_FILE", ""); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	flag.IntVar(&cfg.listenPort, "p", cfg.listenPort, "listen port")
	flag.IntVar(&cfg.listenPort, "port", cfg.listenPort, "listen port")
	flag.BoolVar(&cfg.daemon, "d", cfg.daemon, "run without the startup banner, as under a supervisor")
	flag.BoolVar(&cfg.daemon, "daemon", cfg.daemon, "run without the startup banner, as under a supervisor")
	flag.Parse()

	return cfg
}

// loadConfigFile reads and overlays a YAML config file onto cfg.
func loadConfigFile(path string, cfg *config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	fc.applyTo(cfg)
	return nil
}

// run wires every subsystem together and serves until ctx is cancelled by
// an OS signal (spec.md §6: exit 0 on orderly shutdown, 1 on listener
// failure — the latter handled inside session.Supervisor.Start itself).
func run(cfg config, masterKey []byte) error {
	// The admin/view passwords never appear past this point: anything
	// that might log the effective config has them scrubbed first
	// (common/redact, grounded on the teacher's observability.RedactSecrets
	// wrapper over the same package).
	slog.Info("starting relaymud",
		"base_dir", cfg.baseDir,
		"listen_port", cfg.listenPort,
		"max_clients", cfg.maxClients,
		"mud_address", cfg.mudAddress,
		"admin_password", redact.String(cfg.adminPassword, cfg.adminPassword),
		"view_password", redact.String(cfg.viewPassword, cfg.viewPassword),
	)

	rt := runtime.New(cfg.baseDir)
	rt.SetMeta("mud_address", cfg.mudAddress)

	for _, dir := range []string{rt.Paths.Data, rt.Paths.Logs, rt.Paths.Plugins, rt.Paths.DB} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	settings, err := pstore.OpenKV(filepath.Join(rt.Paths.DB, "settingvalues.txt"), masterKey)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}

	auditStore, err := audit.OpenStore(filepath.Join(rt.Paths.DB, "audit.sqlite"))
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer auditStore.Close()

	approvalsStore, err := approvals.OpenStore(filepath.Join(rt.Paths.DB, "approvals.db"))
	if err != nil {
		return fmt.Errorf("open approvals store: %w", err)
	}
	defer approvalsStore.Close()

	bus := events.New()
	api := capi.New()
	scheduler := timers.New()
	triggerEngine := triggers.New(bus)

	history := commands.NewHistory(filepath.Join(rt.Paths.DB, "history.log"), 50)
	if err := history.Load(); err != nil {
		return fmt.Errorf("load command history: %w", err)
	}
	dispatcher := commands.New(commands.Config{
		Prefix:    rt.CommandPrefix,
		SplitChar: rt.CommandSplit,
		History:   history,
	})

	bans, err := session.OpenBanTable(filepath.Join(rt.Paths.DB, "bans.db"), scheduler)
	if err != nil {
		return fmt.Errorf("open ban table: %w", err)
	}

	adminHash, err := session.HashPassword(cfg.adminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	var viewHash []byte
	if cfg.viewPassword != "" {
		viewHash, err = session.HashPassword(cfg.viewPassword)
		if err != nil {
			return fmt.Errorf("hash view password: %w", err)
		}
	}
	creds := session.Credentials{PrimaryHash: adminHash, ViewHash: viewHash}

	sessions := session.NewManager(bus, bans, creds, cfg.maxClients)
	notifier := audit.NewAdminNotifier(sessions)

	pl := pipeline.New(bus, dispatcher, triggerEngine, sessions, rate.Limit(20), 40)

	// loop is the single goroutine spec.md §5 mandates for every mutation
	// of the bus, dispatcher, trigger engine, and timer scheduler. The mud
	// reader, every client reader, and the timer ticker each run on their
	// own goroutine but only ever post a work item here.
	loop := engine.New()
	sessions.SetDispatcher(loop.Post)

	mud := session.NewMudSession(bus, rt, cfg.mudAddress, func(raw string) {
		loop.Post(func() {
			pl.IngestMudLine(colorsplugin.Strip(raw), colorsplugin.ToANSI(raw))
		})
	})
	mud.SetDispatcher(loop.Post)
	sessions.SetMudForwarder(mud.Send)

	loaderRef := &plugin.LoaderRef{}
	deps := plugin.Deps{
		API:             api,
		Bus:             bus,
		Dispatcher:      dispatcher,
		Triggers:        triggerEngine,
		Timers:          scheduler,
		Runtime:         rt,
		Settings:        settings,
		Sessions:        sessions,
		Bans:            bans,
		Mud:             mud,
		Audit:           auditStore,
		Notifier:        notifier,
		Approvals:       approvalsStore,
		SensitiveValues: []string{cfg.adminPassword, cfg.viewPassword},
		Loader:          loaderRef,
	}

	pluginRoot := cfg.pluginSrcDir
	if !filepath.IsAbs(pluginRoot) {
		pluginRoot = filepath.Join(cfg.baseDir, cfg.pluginSrcDir)
	}
	infos, err := loader.Discover(pluginRoot)
	if err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}

	ld := loader.New(deps)
	loaderRef.Set(ld)
	for _, info := range infos {
		if err := ld.RegisterInfo(info); err != nil {
			return fmt.Errorf("register plugin %s: %w", info.ID, err)
		}
	}
	if err := ld.LoadStartupPlugins(); err != nil {
		return fmt.Errorf("load startup plugins: %w", err)
	}
	rt.SetStartupComplete()

	if cp, ok := ld.Loaded(clientsplugin.ID); ok {
		if pp, ok := ld.Loaded(proxyplugin.ID); ok {
			pp.(*proxyplugin.Plugin).BindClients(cp.(*clientsplugin.Plugin))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go loop.Run(ctx)
	go scheduler.Run(ctx, loop.Post)
	if cfg.mudAddress != "" {
		go mud.Start(ctx)
	}

	sup := session.NewSupervisor(func(conn net.Conn) {
		go handleConnection(ctx, sessions, pl, loop, conn)
	})

	listenCfg := session.DefaultListenerConfig(cfg.listenPort)
	if err := sup.Start(ctx, listenCfg); err != nil {
		return fmt.Errorf("start listeners: %w", err)
	}

	<-ctx.Done()
	rt.BeginShutdown()
	bus.Raise("ev_proxy_shutdown", nil)
	mud.Stop()
	return nil
}

// handleConnection drives one client socket end to end: accept, prompt for
// a password, then hand every subsequent line to the pipeline once logged
// in (spec.md §4.8: not-logged-in clients get no mud output and their
// input is never dispatched). Login state is local to this connection, but
// every line that reaches the pipeline is posted onto loop rather than
// ingested directly, since IngestClientLine ends up touching the bus,
// dispatcher, and trigger engine that loop's own goroutine owns exclusively
// (spec.md §5).
func handleConnection(ctx context.Context, sessions *session.Manager, pl *pipeline.Pipeline, loop *engine.Loop, conn net.Conn) {
	cs, err := sessions.Accept(conn)
	if err != nil {
		return
	}
	defer sessions.Remove(cs)

	_ = cs.WriteLine("RelayMUD. Enter password:")

	err = sessions.RunGMCPLoop(ctx, cs, func(line string) {
		if cs.State() == session.NotLoggedIn {
			state := sessions.Authenticate(cs, line)
			if state == session.NotLoggedIn {
				_ = cs.WriteLine("Incorrect password.")
				return
			}
			cs.IsAdmin = state == session.LoggedIn
			_ = cs.WriteLine("Login accepted.")
			return
		}
		loop.Post(func() { pl.IngestClientLine(ctx, cs.UUID, line) })
	})
	if err != nil {
		_ = cs.Close()
	}
}
