package session

import (
	"bytes"
	"strings"
	"testing"
)

func TestLineScanner_PlainLineStripsCR(t *testing.T) {
	s := NewLineScanner(strings.NewReader("look\r\n"))
	evt, err := s.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if evt.Line != "look" {
		t.Fatalf("expected %q, got %q", "look", evt.Line)
	}
}

func TestLineScanner_MultipleLines(t *testing.T) {
	s := NewLineScanner(strings.NewReader("north\r\nsouth\r\n"))
	for _, want := range []string{"north", "south"} {
		evt, err := s.ReadNext()
		if err != nil {
			t.Fatalf("ReadNext: %v", err)
		}
		if evt.Line != want {
			t.Fatalf("expected %q, got %q", want, evt.Line)
		}
	}
}

func TestLineScanner_OptionNegotiation(t *testing.T) {
	input := []byte{iac, do, gmcpOption}
	s := NewLineScanner(bytes.NewReader(input))
	evt, err := s.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if evt.Option == nil {
		t.Fatal("expected an OptionNegotiation")
	}
	if evt.Option.Command != do || evt.Option.Option != gmcpOption {
		t.Fatalf("unexpected negotiation: %+v", evt.Option)
	}
}

func TestLineScanner_LiteralIACByteInData(t *testing.T) {
	input := []byte{'a', iac, iac, 'b', '\n'}
	s := NewLineScanner(bytes.NewReader(input))
	evt, err := s.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if evt.Line != "a\xffb" {
		t.Fatalf("expected literal IAC byte preserved, got %q", evt.Line)
	}
}

func TestLineScanner_GMCPSubnegotiation(t *testing.T) {
	var input bytes.Buffer
	input.WriteByte(iac)
	input.WriteByte(sb)
	input.WriteByte(gmcpOption)
	input.WriteString(`Core.Hello {"client":"test"}`)
	input.WriteByte(iac)
	input.WriteByte(se)

	s := NewLineScanner(&input)
	evt, err := s.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if evt.GMCP == nil {
		t.Fatal("expected a GMCP message")
	}
	if evt.GMCP.Module != "Core.Hello" {
		t.Fatalf("expected module %q, got %q", "Core.Hello", evt.GMCP.Module)
	}
	if string(evt.GMCP.Data) != `{"client":"test"}` {
		t.Fatalf("unexpected GMCP data: %s", evt.GMCP.Data)
	}
}

func TestLineScanner_GMCPWithoutPayload(t *testing.T) {
	var input bytes.Buffer
	input.WriteByte(iac)
	input.WriteByte(sb)
	input.WriteByte(gmcpOption)
	input.WriteString("Core.Ping")
	input.WriteByte(iac)
	input.WriteByte(se)

	s := NewLineScanner(&input)
	evt, err := s.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if evt.GMCP == nil || evt.GMCP.Module != "Core.Ping" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if len(evt.GMCP.Data) != 0 {
		t.Fatalf("expected empty data, got %s", evt.GMCP.Data)
	}
}

func TestLineScanner_NonGMCPSubnegotiationIgnored(t *testing.T) {
	var input bytes.Buffer
	input.WriteByte(iac)
	input.WriteByte(sb)
	input.WriteByte(42) // unrelated option
	input.WriteString("whatever")
	input.WriteByte(iac)
	input.WriteByte(se)
	input.WriteString("ok\r\n")

	s := NewLineScanner(&input)
	evt, err := s.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if evt.Line != "ok" {
		t.Fatalf("expected the subnegotiation to be swallowed and line text to follow, got %+v", evt)
	}
}

func TestEncodeGMCP_RoundTripsThroughLineScanner(t *testing.T) {
	framed := encodeGMCP("Char.Vitals", []byte(`{"hp":10}`))
	s := NewLineScanner(bytes.NewReader(framed))
	evt, err := s.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if evt.GMCP == nil || evt.GMCP.Module != "Char.Vitals" || string(evt.GMCP.Data) != `{"hp":10}` {
		t.Fatalf("round trip failed: %+v", evt)
	}
}

func TestNegotiationEventName(t *testing.T) {
	if got := negotiationEventName("Char.Vitals"); got != "ev_net.GMCP_MOD_Char.Vitals" {
		t.Fatalf("unexpected event name: %q", got)
	}
}
