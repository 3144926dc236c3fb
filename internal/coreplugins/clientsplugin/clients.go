// Package clientsplugin exposes the connected-client table and ban list
// over the command language (spec.md §4.8/§6: "#bp.core.clients.list/
// ban/unban/kick"). Banning (but not unbanning) is a gated action: the
// command only files an approvals.Approval and the ban itself is applied
// by proxyplugin's approve handler once an admin confirms it (spec.md §9:
// "shutdown/restart/ban should require a second confirmation").
package clientsplugin

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/relaymud/relaymud/internal/commands"
	"github.com/relaymud/relaymud/internal/loader"
	"github.com/relaymud/relaymud/internal/plugin"
)

// ID is this plugin's dotted id.
const ID = "core.clients"

// Manifest is read by loader.Discover via static AST parsing; it must never
// depend on anything computed at init time (spec.md §4.7 Discovery).
var Manifest = plugin.Manifest{
	Name:    "Clients",
	Author:  "core",
	Purpose: "connected-client table and ban list",
	Version: "1.0",
	Package: "core",
	Short:   "clients",
}

func init() {
	loader.RegisterConstructor(ID, New)
}

// Plugin is the core.clients plugin instance.
type Plugin struct {
	*plugin.Base
}

// New constructs the core.clients plugin.
func New(id string, deps plugin.Deps) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(id, deps)}, nil
}

// Initialize registers list/ban/unban/kick.
func (p *Plugin) Initialize() error {
	if err := p.AddCommand(&commands.Command{Name: "list", Fn: p.cmdList}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{
		Name: "ban",
		Parser: commands.NewArgParser(
			commands.ArgSpec{Name: "ip", Positional: true, Required: true},
			commands.ArgSpec{Name: "seconds", Positional: true, Required: true,
				Help: "-1 for a permanent ban, otherwise a duration in seconds"},
			commands.ArgSpec{Name: "reason", Positional: true},
		),
		Fn: p.cmdBan,
	}); err != nil {
		return err
	}
	if err := p.AddCommand(&commands.Command{
		Name:   "unban",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "ip", Positional: true, Required: true}),
		Fn:     p.cmdUnban,
	}); err != nil {
		return err
	}
	return p.AddCommand(&commands.Command{
		Name:   "kick",
		Parser: commands.NewArgParser(commands.ArgSpec{Name: "uuid", Positional: true, Required: true}),
		Fn:     p.cmdKick,
	})
}

// Uninitialize has nothing to reverse beyond RemoveOwnedData.
func (p *Plugin) Uninitialize() error { return nil }

func (p *Plugin) cmdList(_ *commands.ParsedArgs) (bool, []string, error) {
	deps := p.Deps()
	if deps.Sessions == nil {
		return false, nil, fmt.Errorf("session manager not configured")
	}

	sessions := deps.Sessions.Snapshot()
	out := make([]string, 0, len(sessions)+len(deps.Bans.List()))
	for _, cs := range sessions {
		out = append(out, fmt.Sprintf("%s %s state=%s", cs.UUID, cs.RemoteIP, cs.State()))
	}

	var bans []string
	for _, b := range deps.Bans.List() {
		kind := "timed"
		if b.Permanent {
			kind = "permanent"
		}
		bans = append(bans, fmt.Sprintf("ban %s (%s) reason=%q", b.IP, kind, b.Reason))
	}
	sort.Strings(bans)
	out = append(out, bans...)
	return true, out, nil
}

func (p *Plugin) cmdBan(args *commands.ParsedArgs) (bool, []string, error) {
	ip := args.Positional[0]
	seconds, err := strconv.Atoi(args.Positional[1])
	if err != nil {
		return false, nil, fmt.Errorf("seconds must be an integer (-1 for permanent): %w", err)
	}
	reason := ""
	if len(args.Positional) > 2 {
		reason = strings.Join(args.Positional[2:], " ")
	}

	deps := p.Deps()
	if deps.Approvals == nil {
		return p.applyBan(ip, seconds, reason)
	}

	rawArgs := fmt.Sprintf("%d|%s", seconds, reason)
	approval, err := deps.Approvals.Create(context.Background(), "core.clients.ban", ip, rawArgs, plugin.RequestorUUID(deps))
	if err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf(
		"ban on %s held for approval (id=%s) — an admin must run #bp.core.proxy.approve %s",
		ip, approval.ID, approval.ID)}, nil
}

// applyBan performs the ban itself once approved (or immediately, when no
// approvals store is configured).
func (p *Plugin) applyBan(ip string, seconds int, reason string) (bool, []string, error) {
	deps := p.Deps()
	if seconds == -1 {
		if err := deps.Bans.BanPermanent(context.Background(), ip, reason); err != nil {
			return false, nil, err
		}
	} else if seconds >= 0 {
		deps.Bans.BanTimed(ip, reason, seconds)
	} else {
		return false, nil, fmt.Errorf("seconds must be -1 or >= 0")
	}

	n := deps.Sessions.KickByIP(ip)
	return true, []string{fmt.Sprintf("banned %s (disconnected %d active session(s))", ip, n)}, nil
}

func (p *Plugin) cmdUnban(args *commands.ParsedArgs) (bool, []string, error) {
	ip := args.Positional[0]
	if err := p.Deps().Bans.Unban(context.Background(), ip); err != nil {
		return false, nil, err
	}
	return true, []string{fmt.Sprintf("unbanned %s", ip)}, nil
}

func (p *Plugin) cmdKick(args *commands.ParsedArgs) (bool, []string, error) {
	uuid := args.Positional[0]
	if !p.Deps().Sessions.Kick(uuid) {
		return false, nil, fmt.Errorf("no connected client %q", uuid)
	}
	return true, []string{fmt.Sprintf("kicked %s", uuid)}, nil
}

// ApplyApprovedBan is called by proxyplugin once a "core.clients.ban"
// approval is confirmed, re-parsing the rawArgs a pending Approval carried.
func ApplyApprovedBan(p *Plugin, target, rawArgs string) (bool, []string, error) {
	parts := strings.SplitN(rawArgs, "|", 2)
	seconds, err := strconv.Atoi(parts[0])
	if err != nil {
		return false, nil, fmt.Errorf("corrupt approval args: %w", err)
	}
	reason := ""
	if len(parts) > 1 {
		reason = parts[1]
	}
	return p.applyBan(target, seconds, reason)
}

