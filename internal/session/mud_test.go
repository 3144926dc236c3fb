package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/relaymud/relaymud/internal/events"
	"github.com/relaymud/relaymud/internal/runtime"
)

func TestMudSession_ConnectsReadsLinesAndSetsCharacterActive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("Welcome to the mud\r\n"))
		time.Sleep(2 * time.Second)
	}()

	bus := events.New()
	rt := runtime.New(t.TempDir())

	lines := make(chan string, 1)
	mud := NewMudSession(bus, rt, ln.Addr().String(), func(line string) { lines <- line })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mud.Start(ctx)
	defer mud.Stop()

	select {
	case line := <-lines:
		if line != "Welcome to the mud" {
			t.Fatalf("unexpected line: %q", line)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for mud line")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if rt.CharacterActive() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected CharacterActive to become true after connect")
}
