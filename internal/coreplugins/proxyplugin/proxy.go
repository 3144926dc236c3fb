// Package proxyplugin owns the commands that affect the process itself —
// info, connect/disconnect from the mud, and the gated shutdown/restart
// pair — plus the approve/deny commands that resolve any pending
// internal/approvals.Approval, including the ones clientsplugin files for
// a gated ban (spec.md §9: "shutdown/restart/ban should require a second
// confirmation from an admin before taking effect").
//
// Grounded on the original's plugins/net/proxy.py: cmd_info/cmd_disconnect/
// cmd_connect/cmd_restart/cmd_shutdown and the api_shutdown/api_restart/
// timer_restart trio (restart arms a one-shot timer, then re-execs the
// running binary via an exec syscall — os.execv there, syscall.Exec here).
package proxyplugin

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/relaymud/relaymud/internal/approvals"
	"github.com/relaymud/relaymud/internal/audit"
	"github.com/relaymud/relaymud/internal/coreplugins/clientsplugin"
	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
	"github.com/relaymud/relaymud/internal/timers"
)

// ID is this plugin's dotted id.
const ID = "core.proxy"

// restartDelay mirrors the original's "Respawning ... in 10 seconds"
// warning window before timer_restart actually re-execs the process.
const restartDelay = 10 * time.Second

// Manifest is read by loader.Discover via static AST parsing.
var Manifest = plugin.Manifest{
	Name:    "Proxy",
	Author:  "core",
	Purpose: "process control: info, connect/disconnect, gated shutdown/restart",
	Version: "1.0",
	Package: "core",
	Short:   "proxy",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.proxy plugin instance.
type Plugin struct {
	*plugin.Base

	// clients is filled in by main once core.clients has loaded, so
	// ApplyApprovedBan can be called without core.proxy importing the
	// loader registry directly.
	clients *clientsplugin.Plugin
}

// New constructs the core.proxy plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// BindClients wires the clientsplugin instance this plugin calls into for
// ApplyApprovedBan once a ban approval is confirmed. Called once, by main,
// after both plugins have loaded.
func (p *Plugin) BindClients(cp *clientsplugin.Plugin) { p.clients = cp }

// Initialize registers info/connect/disconnect/restart/shutdown/approve/deny.
func (p *Plugin) Initialize() error {
	for _, c := range []*commands.Command{
		{Name: "info", Fn: p.cmdInfo},
		{Name: "connect", Fn: p.cmdConnect},
		{Name: "disconnect", Fn: p.cmdDisconnect},
		{Name: "restart", Fn: p.cmdRestart},
		{Name: "shutdown", Fn: p.cmdShutdown},
		{
			Name:   "approve",
			Parser: commands.NewArgParser(commands.ArgSpec{Name: "id", Positional: true, Required: true}),
			Fn:     p.cmdApprove,
		},
		{
			Name:   "deny",
			Parser: commands.NewArgParser(commands.ArgSpec{Name: "id", Positional: true, Required: true}),
			Fn:     p.cmdDeny,
		},
	} {
		if err := p.AddCommand(c); err != nil {
			return err
		}
	}
	return nil
}

// Uninitialize has nothing to reverse beyond RemoveOwnedData.
func (p *Plugin) Uninitialize() error { return nil }

func (p *Plugin) cmdInfo(_ *commands.ParsedArgs) (bool, []string, error) {
	deps := p.Deps()
	rt := deps.Runtime

	out := []string{
		fmt.Sprintf("started: %s", rt.StartedAt.Format(time.RFC3339)),
		fmt.Sprintf("uptime: %s", rt.Uptime().Round(time.Second)),
	}
	if deps.Mud != nil {
		out = append(out, fmt.Sprintf("mud connected: %v", deps.Mud.Connected()))
	}
	if deps.Sessions != nil {
		out = append(out, fmt.Sprintf("clients connected: %d", deps.Sessions.Count()))
	}
	return true, out, nil
}

func (p *Plugin) cmdConnect(_ *commands.ParsedArgs) (bool, []string, error) {
	deps := p.Deps()
	if deps.Mud == nil {
		return false, nil, fmt.Errorf("mud session not configured")
	}
	if deps.Mud.Connected() {
		return true, []string{"already connected"}, nil
	}
	go deps.Mud.Start(context.Background())
	return true, []string{"connecting to the mud"}, nil
}

func (p *Plugin) cmdDisconnect(_ *commands.ParsedArgs) (bool, []string, error) {
	deps := p.Deps()
	if deps.Mud == nil {
		return false, nil, fmt.Errorf("mud session not configured")
	}
	deps.Mud.Stop()
	return true, []string{"disconnected from the mud"}, nil
}

// cmdShutdown is gated: it files an Approval rather than shutting down
// immediately, unless no approvals store is configured.
func (p *Plugin) cmdShutdown(_ *commands.ParsedArgs) (bool, []string, error) {
	deps := p.Deps()
	if deps.Approvals == nil {
		p.doShutdown()
		return true, []string{"shutting down"}, nil
	}

	approval, err := deps.Approvals.Create(context.Background(), "core.proxy.shutdown", "", "", plugin.RequestorUUID(deps))
	if err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf(
		"shutdown held for approval (id=%s) — run #bp.core.proxy.approve %s to confirm", approval.ID, approval.ID)}, nil
}

// cmdRestart is gated the same way as cmdShutdown.
func (p *Plugin) cmdRestart(_ *commands.ParsedArgs) (bool, []string, error) {
	deps := p.Deps()
	if deps.Approvals == nil {
		p.doRestart()
		return true, []string{"restarting"}, nil
	}

	approval, err := deps.Approvals.Create(context.Background(), "core.proxy.restart", "", "", plugin.RequestorUUID(deps))
	if err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf(
		"restart held for approval (id=%s) — run #bp.core.proxy.approve %s to confirm", approval.ID, approval.ID)}, nil
}

func (p *Plugin) cmdApprove(args *commands.ParsedArgs) (bool, []string, error) {
	return p.resolve(args.Positional[0], approvals.StatusApproved)
}

func (p *Plugin) cmdDeny(args *commands.ParsedArgs) (bool, []string, error) {
	return p.resolve(args.Positional[0], approvals.StatusDenied)
}

func (p *Plugin) resolve(id string, status approvals.Status) (bool, []string, error) {
	deps := p.Deps()
	if deps.Approvals == nil {
		return false, nil, fmt.Errorf("approvals not configured")
	}

	ctx := context.Background()
	approval, err := deps.Approvals.Get(ctx, id)
	if err != nil {
		return false, nil, fmt.Errorf("no such approval %q", id)
	}
	if approval.Status != approvals.StatusPending {
		return false, nil, fmt.Errorf("approval %q is already %s", id, approval.Status)
	}
	if approval.IsExpired(time.Now().UTC()) {
		return false, nil, fmt.Errorf("approval %q has expired", id)
	}

	resolvedBy := plugin.RequestorUUID(deps)
	if err := deps.Approvals.Resolve(ctx, id, status, resolvedBy); err != nil {
		return false, nil, err
	}
	if status == approvals.StatusDenied {
		return true, []string{fmt.Sprintf("approval %q denied", id)}, nil
	}

	switch approval.Action {
	case "core.proxy.shutdown":
		p.doShutdown()
		return true, []string{fmt.Sprintf("approval %q confirmed, shutting down", id)}, nil
	case "core.proxy.restart":
		p.doRestart()
		return true, []string{fmt.Sprintf("approval %q confirmed, restarting", id)}, nil
	case "core.clients.ban":
		if p.clients == nil {
			return false, nil, fmt.Errorf("core.clients plugin not bound")
		}
		return clientsplugin.ApplyApprovedBan(p.clients, approval.Target, approval.RawArgs)
	default:
		return false, nil, fmt.Errorf("approval %q: unknown action %q", id, approval.Action)
	}
}

func (p *Plugin) doShutdown() {
	deps := p.Deps()
	deps.Runtime.BeginShutdown()
	deps.Bus.Raise("ev_plugins.core.proxy_shutdown", nil)
	if deps.Audit != nil {
		deps.Audit.Write(context.Background(), audit.Event{Kind: audit.KindProxyShutdown, Message: "shutdown requested"})
	}
	if deps.Sessions != nil {
		deps.Sessions.SendToClients("Shutting down.", "")
	}
	if deps.Mud != nil {
		deps.Mud.Stop()
	}
	go func() {
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	}()
}

func (p *Plugin) doRestart() {
	deps := p.Deps()
	if deps.Sessions != nil {
		deps.Sessions.SendToClients(fmt.Sprintf("Restarting in %s.", restartDelay), "")
	}
	if deps.Audit != nil {
		deps.Audit.Write(context.Background(), audit.Event{Kind: audit.KindProxyRestart, Message: "restart requested"})
	}
	deps.Timers.Add(&timers.Timer{
		Name:    "core.proxy.restart",
		OwnerID: ID,
		OneShot: true,
		Period:  restartDelay,
		Fn: func() error {
			p.execRestart()
			return nil
		},
	}, time.Now().UTC())
}

// execRestart re-execs the running binary in place, mirroring the
// original's sys.executable/os.execv re-spawn.
func (p *Plugin) execRestart() {
	deps := p.Deps()
	deps.Runtime.BeginShutdown()
	if deps.Mud != nil {
		deps.Mud.Stop()
	}

	exe, err := os.Executable()
	if err != nil {
		deps.Bus.Raise("ev_error", map[string]any{"err": err.Error(), "source": ID})
		os.Exit(1)
	}
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		deps.Bus.Raise("ev_error", map[string]any{"err": err.Error(), "source": ID})
		os.Exit(1)
	}
}
