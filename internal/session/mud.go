package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/runtime"
)

// Default reconnect backoff bounds (spec.md §4.8: "reconnect with
// exponential backoff, capped"). Grounded on the teacher's
// internal/ruriko/matrix/client.go Start loop, which hand-rolls the same
// doubling/cap shape for its own indefinitely-retried connection — an
// infinite retry loop has no natural MaxAttempts, so it is not expressed
// through common/retry.Do (see internal/session/listener.go for where
// retry.Do's bounded-attempts API is actually exercised).
const (
	mudBackoffMin = 2 * time.Second
	mudBackoffMax = 5 * time.Minute
)

// MudSession owns the single outbound connection to the mud (spec.md §3
// MudSession; §4.8: "exactly one live connection to the mud at a time").
type MudSession struct {
	log *slog.Logger
	bus *events.Bus
	rt  *runtime.Runtime

	address string

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	stopCh    chan struct{}

	onLine func(line string)
	post   func(func())
}

// NewMudSession creates a MudSession dialing address. onLine is called for
// every line of mud output, outside any lock.
func NewMudSession(bus *events.Bus, rt *runtime.Runtime, address string, onLine func(line string)) *MudSession {
	return &MudSession{
		log:     slog.With("component", "session.mud"),
		bus:     bus,
		rt:      rt,
		address: address,
		onLine:  onLine,
	}
}

// SetDispatcher wires post as the function through which MudSession raises
// connect/disconnect/GMCP bus events, keeping them off the mud reader's own
// goroutine (spec.md §5). Leaving post unset raises inline.
func (m *MudSession) SetDispatcher(post func(func())) {
	m.post = post
}

func (m *MudSession) dispatch(fn func()) {
	if m.post != nil {
		m.post(fn)
		return
	}
	fn()
}

// Connected reports whether the mud connection is currently live.
func (m *MudSession) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Send writes a line to the mud, if connected.
func (m *MudSession) Send(line string) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
		m.log.Warn("write to mud failed", "err", err)
	}
}

// Start runs the connect/read/reconnect loop until ctx is cancelled
// (spec.md §4.8: the mud connection survives across client connects and
// disconnects and is re-established automatically).
func (m *MudSession) Start(ctx context.Context) {
	m.mu.Lock()
	m.stopCh = make(chan struct{})
	stop := m.stopCh
	m.mu.Unlock()

	backoff := mudBackoffMin
	for {
		if ctx.Err() != nil {
			return
		}

		err := m.runOnce(ctx)
		// Any outcome other than a failed dial means the connection was up.
		var opErr *net.OpError
		if !errors.As(err, &opErr) || opErr.Op != "dial" {
			backoff = mudBackoffMin
		}
		if err != nil {
			m.log.Warn("mud connection lost", "err", err, "retry_in", backoff)
			errMsg := err.Error()
			m.dispatch(func() { m.bus.Raise("ev_net.mud_disconnected", map[string]any{"err": errMsg}) })
			m.rt.SetCharacterActive(false)
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > mudBackoffMax {
			backoff = mudBackoffMax
		}
	}
}

// Stop tears down any live connection and prevents further reconnects.
func (m *MudSession) Stop() {
	m.mu.Lock()
	if m.stopCh != nil {
		select {
		case <-m.stopCh:
		default:
			close(m.stopCh)
		}
	}
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// runOnce dials once and reads lines until the connection closes or errors,
// resetting backoff to mudBackoffMin on a successful connect.
func (m *MudSession) runOnce(ctx context.Context) error {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", m.address)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.connected = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.conn = nil
		m.connected = false
		m.mu.Unlock()
		conn.Close()
	}()

	m.dispatch(func() { m.bus.Raise("ev_net.mud_connected", map[string]any{"address": m.address}) })
	m.rt.SetCharacterActive(true)
	m.log.Info("connected to mud", "address", m.address)

	scanner := NewLineScanner(conn)
	for {
		evt, err := scanner.ReadNext()
		if err != nil {
			return err
		}
		if evt.Line != "" && m.onLine != nil {
			m.onLine(evt.Line)
		}
		if evt.GMCP != nil {
			mod, data := evt.GMCP.Module, evt.GMCP.Data
			m.dispatch(func() {
				m.bus.Raise(negotiationEventName(mod), map[string]any{"module": mod, "data": data})
			})
		}
	}
}
