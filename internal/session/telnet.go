// Package session implements the client/mud connection model of spec.md
// §4.8: listener supervision, the client authentication state machine, the
// ban table, and the mud's outbound reconnecting connection.
//
// Telnet/GMCP framing is explicitly out of scope for a third-party library
// per SPEC_FULL.md §4.9 ("the raw telnet/GMCP byte framing library is
// explicitly out of scope... no third-party telnet library exists in the
// example corpus"); telnet.go is the one ambient concern intentionally left
// on the standard library; everything else in this package follows the
// teacher's net.Conn-oriented idiom.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Telnet IAC command bytes (RFC 854).
const (
	iac  byte = 255
	will byte = 251
	wont byte = 252
	do   byte = 253
	dont byte = 254
	sb   byte = 250
	se   byte = 240
)

// gmcpOption is the telnet option number negotiated for GMCP (RFC draft,
// widely implemented by MUD clients/servers as option 201).
const gmcpOption byte = 201

// GMCPMessage is a decoded "Module.Sub value" GMCP subnegotiation payload.
type GMCPMessage struct {
	Module string
	Data   json.RawMessage
}

// LineScanner reads a telnet stream, stripping IAC sequences and handing
// line-oriented text and decoded GMCP messages to the caller. It recognizes
// IAC WILL/WONT/DO/DONT <opt> and IAC SB GMCP ... IAC SE subnegotiation
// (spec.md §4.8: "the session must route option subnegotiation events...
// through the event bus"); everything else is treated as CR/LF-terminated
// line text.
type LineScanner struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

// NewLineScanner wraps r.
func NewLineScanner(r io.Reader) *LineScanner {
	return &LineScanner{r: bufio.NewReader(r)}
}

// ReadEvent is the result of one ReadNext call: exactly one of Line or GMCP
// is set, or Option is non-zero for a bare option negotiation the caller
// may want to answer.
type ReadEvent struct {
	Line   string
	GMCP   *GMCPMessage
	Option *OptionNegotiation
}

// OptionNegotiation is a bare IAC WILL/WONT/DO/DONT <opt> the caller may
// choose to answer. No telnet option beyond GMCP is negotiated, and the
// proxy's own readers send no reply to these.
type OptionNegotiation struct {
	Command byte
	Option  byte
}

// ReadNext blocks until a full line, a GMCP message, or a bare option
// negotiation is available, or the underlying reader errors/closes.
func (s *LineScanner) ReadNext() (ReadEvent, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return ReadEvent{}, err
		}

		if b == iac {
			evt, handled, err := s.handleIAC()
			if err != nil {
				return ReadEvent{}, err
			}
			if handled {
				return evt, nil
			}
			continue
		}

		if b == '\n' {
			line := s.buf.String()
			s.buf.Reset()
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			return ReadEvent{Line: line}, nil
		}

		s.buf.WriteByte(b)
	}
}

// handleIAC consumes the command byte (and option byte / subnegotiation
// payload, as applicable) following an IAC byte already read from the
// stream. handled is false for IAC IAC (a literal 255 byte in the data
// stream) and for commands this proxy has no event to raise for.
func (s *LineScanner) handleIAC() (ReadEvent, bool, error) {
	cmd, err := s.r.ReadByte()
	if err != nil {
		return ReadEvent{}, false, err
	}

	switch cmd {
	case iac:
		s.buf.WriteByte(iac)
		return ReadEvent{}, false, nil

	case will, wont, do, dont:
		opt, err := s.r.ReadByte()
		if err != nil {
			return ReadEvent{}, false, err
		}
		return ReadEvent{Option: &OptionNegotiation{Command: cmd, Option: opt}}, true, nil

	case sb:
		return s.readSubnegotiation()

	default:
		return ReadEvent{}, false, nil
	}
}

// readSubnegotiation reads through the terminating IAC SE, decoding a GMCP
// payload ("Module.Sub {json}") if the subnegotiation option is GMCP.
func (s *LineScanner) readSubnegotiation() (ReadEvent, bool, error) {
	opt, err := s.r.ReadByte()
	if err != nil {
		return ReadEvent{}, false, err
	}

	var payload bytes.Buffer
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return ReadEvent{}, false, err
		}
		if b != iac {
			payload.WriteByte(b)
			continue
		}
		next, err := s.r.ReadByte()
		if err != nil {
			return ReadEvent{}, false, err
		}
		if next == se {
			break
		}
		payload.WriteByte(next) // escaped IAC inside subnegotiation data
	}

	if opt != gmcpOption {
		return ReadEvent{}, false, nil
	}

	module, data, ok := bytes.Cut(payload.Bytes(), []byte(" "))
	if !ok {
		module = payload.Bytes()
		data = nil
	}
	return ReadEvent{GMCP: &GMCPMessage{Module: string(module), Data: json.RawMessage(data)}}, true, nil
}

// encodeGMCP frames a GMCP message for transmission: IAC SB GMCP <module>
// <json> IAC SE.
func encodeGMCP(module string, data json.RawMessage) []byte {
	var buf bytes.Buffer
	buf.WriteByte(iac)
	buf.WriteByte(sb)
	buf.WriteByte(gmcpOption)
	buf.WriteString(module)
	if len(data) > 0 {
		buf.WriteByte(' ')
		buf.Write(data)
	}
	buf.WriteByte(iac)
	buf.WriteByte(se)
	return buf.Bytes()
}

// negotiationEventName builds the event name spec.md §4.8 names for a GMCP
// module update: ev_net.GMCP_MOD_<module>.
func negotiationEventName(module string) string {
	return fmt.Sprintf("ev_net.GMCP_MOD_%s", module)
}
