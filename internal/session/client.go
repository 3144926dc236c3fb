package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/relaymud/relaymud/internal/events"
)

// LoginState is a ClientSession's position in the authentication state
// machine (spec.md §4.8: "not-logged-in" / "logged-in" / view-only).
type LoginState int

const (
	NotLoggedIn LoginState = iota
	LoggedIn
	LoggedInViewOnly
)

func (s LoginState) String() string {
	switch s {
	case LoggedIn:
		return "logged-in"
	case LoggedInViewOnly:
		return "logged-in (view only)"
	default:
		return "not-logged-in"
	}
}

// ClientSession is one connected telnet client (spec.md §3 ClientSession).
type ClientSession struct {
	UUID        string
	RemoteIP    string
	RemotePort  int
	ConnectedAt time.Time
	TermType    string
	IsAdmin     bool

	mu    sync.Mutex
	state LoginState
	conn  net.Conn
	out   *bufio.Writer
}

func newClientSession(conn net.Conn) *ClientSession {
	host, portStr, _ := net.SplitHostPort(conn.RemoteAddr().String())
	port := 0
	fmt.Sscanf(portStr, "%d", &port)

	return &ClientSession{
		UUID:        uuid.New().String(),
		RemoteIP:    host,
		RemotePort:  port,
		ConnectedAt: time.Now().UTC(),
		state:       NotLoggedIn,
		conn:        conn,
		out:         bufio.NewWriter(conn),
	}
}

// State returns the client's current login state.
func (c *ClientSession) State() LoginState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ViewOnly reports whether input from this client must be dropped while
// mud output is still echoed (spec.md §4.8).
func (c *ClientSession) ViewOnly() bool {
	return c.State() == LoggedInViewOnly
}

// WriteLine queues line (CR/LF terminated) for this client's socket.
// Broadcast writes serialize per-socket (spec.md §5: "each ClientSession
// owns its socket exclusively").
func (c *ClientSession) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.WriteString(line); err != nil {
		return err
	}
	if _, err := c.out.WriteString("\r\n"); err != nil {
		return err
	}
	return c.out.Flush()
}

// WriteGMCP queues a GMCP subnegotiation for this client.
func (c *ClientSession) WriteGMCP(module string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(encodeGMCP(module, data)); err != nil {
		return err
	}
	return c.out.Flush()
}

// Close closes the underlying socket.
func (c *ClientSession) Close() error {
	return c.conn.Close()
}

// Credentials holds the bcrypt hashes of the primary and view-only proxy
// passwords (spec.md §4.8 auth; SPEC_FULL.md DOMAIN STACK: bcrypt replaces
// cleartext password comparison).
type Credentials struct {
	PrimaryHash []byte
	ViewHash    []byte
}

// HashPassword bcrypt-hashes a plaintext proxy password for storage.
func HashPassword(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
}

// authenticate compares input against creds, returning the resulting
// LoginState. A match on neither password leaves the client NotLoggedIn.
func authenticate(creds Credentials, input string) LoginState {
	if len(creds.PrimaryHash) > 0 && bcrypt.CompareHashAndPassword(creds.PrimaryHash, []byte(input)) == nil {
		return LoggedIn
	}
	if len(creds.ViewHash) > 0 && bcrypt.CompareHashAndPassword(creds.ViewHash, []byte(input)) == nil {
		return LoggedInViewOnly
	}
	return NotLoggedIn
}

// Manager owns every connected ClientSession (spec.md §3: ClientSession
// table). It implements pipeline.Sender so the pipeline can broadcast
// without knowing about sockets, and audit.Broadcaster so audit events
// reach admin clients (spec.md §7).
type Manager struct {
	log  *slog.Logger
	bus  *events.Bus
	bans *BanTable

	creds     Credentials
	maxClient int

	mu           sync.RWMutex
	clients      map[string]*ClientSession
	forwardToMud func(line string)

	post func(func())
}

// NewManager creates a Manager bound to bus and bans, accepting at most
// maxClients concurrent sessions (spec.md §4.8: default 5).
func NewManager(bus *events.Bus, bans *BanTable, creds Credentials, maxClients int) *Manager {
	return &Manager{
		log:       slog.With("component", "session.manager"),
		bus:       bus,
		bans:      bans,
		creds:     creds,
		maxClient: maxClients,
		clients:   make(map[string]*ClientSession),
	}
}

// SetDispatcher wires post as the function through which Manager raises
// every bus event, so that accept/disconnect/login/GMCP events never touch
// the bus from whatever goroutine is reading a client socket (spec.md §5:
// the bus, dispatcher, and trigger engine are mutated from exactly one
// goroutine). Leaving post unset (e.g. in tests) raises inline.
func (m *Manager) SetDispatcher(post func(func())) {
	m.post = post
}

func (m *Manager) dispatch(fn func()) {
	if m.post != nil {
		m.post(fn)
		return
	}
	fn()
}

// ErrBanned is returned by Accept when the remote address is banned.
var ErrBanned = errors.New("session: remote address is banned")

// ErrMaxClients is returned by Accept when the connection limit is reached.
var ErrMaxClients = errors.New("session: maximum client count reached")

// Accept registers a freshly-accepted net.Conn as a ClientSession (spec.md
// §4.8 accept steps 1–3), closing and returning an error if the remote is
// banned or the client limit is exceeded.
func (m *Manager) Accept(conn net.Conn) (*ClientSession, error) {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	if m.bans.IsBanned(host) {
		conn.Close()
		return nil, ErrBanned
	}

	m.mu.Lock()
	if len(m.clients) >= m.maxClient {
		m.mu.Unlock()
		conn.Close()
		return nil, ErrMaxClients
	}
	cs := newClientSession(conn)
	m.clients[cs.UUID] = cs
	m.mu.Unlock()

	m.dispatch(func() {
		m.bus.Raise("ev_plugins.core.clients_client_connected", map[string]any{"uuid": cs.UUID, "ip": cs.RemoteIP})
	})
	m.log.Info("client connected", "uuid", cs.UUID, "ip", cs.RemoteIP)
	return cs, nil
}

// Remove drops cs from the table and raises the disconnect event (spec.md
// §4.8/E6: "an ev_…_client_disconnected event raised immediately after
// accept" for a remote that closes after being banned).
func (m *Manager) Remove(cs *ClientSession) {
	m.mu.Lock()
	_, existed := m.clients[cs.UUID]
	delete(m.clients, cs.UUID)
	m.mu.Unlock()

	if !existed {
		return
	}
	m.dispatch(func() {
		m.bus.Raise("ev_plugins.core.clients_client_disconnected", map[string]any{"uuid": cs.UUID, "ip": cs.RemoteIP})
	})
	m.log.Info("client disconnected", "uuid", cs.UUID, "ip", cs.RemoteIP)
}

// Authenticate attempts to log cs in against the configured proxy
// passwords, raising the logged-in (or view-only) event on success.
func (m *Manager) Authenticate(cs *ClientSession, input string) LoginState {
	state := authenticate(m.creds, input)
	if state == NotLoggedIn {
		return state
	}

	cs.mu.Lock()
	cs.state = state
	cs.mu.Unlock()

	eventName := "ev_plugins.core.clients_client_logged_in"
	if state == LoggedInViewOnly {
		eventName = "ev_plugins.core.clients_client_logged_in_view_only"
	}
	m.dispatch(func() { m.bus.Raise(eventName, map[string]any{"uuid": cs.UUID}) })
	return state
}

// Kick closes and removes the session identified by uuid, if connected.
func (m *Manager) Kick(uuid string) bool {
	cs, ok := m.Get(uuid)
	if !ok {
		return false
	}
	cs.Close()
	m.Remove(cs)
	return true
}

// KickByIP closes and removes every session currently connected from ip
// (spec.md §4.8: banning an IP disconnects any client already connected
// from it, not just future accepts).
func (m *Manager) KickByIP(ip string) int {
	n := 0
	for _, cs := range m.Snapshot() {
		if cs.RemoteIP == ip {
			cs.Close()
			m.Remove(cs)
			n++
		}
	}
	return n
}

// Get returns the session with the given uuid, if connected.
func (m *Manager) Get(uuid string) (*ClientSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, ok := m.clients[uuid]
	return cs, ok
}

// Snapshot returns every connected session (spec.md §5: "a snapshot taken
// at broadcast time to tolerate mid-broadcast disconnects").
func (m *Manager) Snapshot() []*ClientSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ClientSession, 0, len(m.clients))
	for _, cs := range m.clients {
		out = append(out, cs)
	}
	return out
}

// Count returns the number of currently connected clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// SendToMud satisfies pipeline.Sender. The actual mud delivery is wired by
// the caller providing a MudSession; Manager itself only fans out to
// clients, so this indirection lives in the proxy core plugin that
// constructs both and feeds Manager a forwarding func.
func (m *Manager) SendToMud(line string) {
	if m.forwardToMud != nil {
		m.forwardToMud(line)
	}
}

// SetMudForwarder wires the function Manager.SendToMud calls.
func (m *Manager) SetMudForwarder(fn func(line string)) {
	m.forwardToMud = fn
}

// SendToClients satisfies pipeline.Sender: broadcast line to every
// connected client except excludeClientID (empty excludes none). Clients
// in NotLoggedIn never receive mud output; view-only clients do (spec.md
// §4.8: "view_only=true (input is dropped but mud output is echoed)").
func (m *Manager) SendToClients(line string, excludeClientID string) {
	for _, cs := range m.Snapshot() {
		if cs.UUID == excludeClientID {
			continue
		}
		if cs.State() == NotLoggedIn {
			continue
		}
		if err := cs.WriteLine(line); err != nil {
			m.log.Warn("write to client failed", "uuid", cs.UUID, "err", err)
		}
	}
}

// BroadcastToAdmins satisfies audit.Broadcaster (spec.md §7).
func (m *Manager) BroadcastToAdmins(line string) error {
	var firstErr error
	for _, cs := range m.Snapshot() {
		if !cs.IsAdmin {
			continue
		}
		if err := cs.WriteLine(line); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RunGMCPLoop reads IAC/GMCP-framed input from cs until ctx is cancelled or
// the connection errors, raising ev_net.GMCP_MOD_<module> for each decoded
// GMCP message and calling onLine for ordinary text lines (spec.md §4.8:
// "route option subnegotiation events... through the event bus").
func (m *Manager) RunGMCPLoop(ctx context.Context, cs *ClientSession, onLine func(line string)) error {
	scanner := NewLineScanner(cs.conn)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		evt, err := scanner.ReadNext()
		if err != nil {
			return err
		}
		switch {
		case evt.GMCP != nil:
			mod, data := evt.GMCP.Module, evt.GMCP.Data
			m.dispatch(func() {
				m.bus.Raise(negotiationEventName(mod), map[string]any{
					"module": mod,
					"data":   data,
					"uuid":   cs.UUID,
				})
			})
		case evt.Line != "":
			if cs.ViewOnly() {
				continue
			}
			onLine(evt.Line)
		}
	}
}
