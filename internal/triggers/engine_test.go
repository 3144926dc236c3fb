package triggers

import (
	"testing"

	"github.com/relaymud/relaymud/internal/events"
)

func newTestEngine() (*Engine, *events.Bus) {
	bus := events.New()
	return New(bus), bus
}

func checkLine(e *Engine, line string) *ToClientRecord {
	tcr := &ToClientRecord{Line: line, ColorLine: line, SendToClient: true}
	rec := events.NewRecord("ev_to_client_data_modify", map[string]any{"ToClientRecord": tcr})
	e.Check(rec)
	return tcr
}

func TestEngine_SlotReuseForIdenticalFlattenedRegex(t *testing.T) {
	e, _ := newTestEngine()
	t1, err := e.Add("one", `^(?P<name>\w+) arrives\.$`, "plugin.a", AddOptions{Enabled: true})
	if err != nil {
		t.Fatalf("add t1: %v", err)
	}
	t2, err := e.Add("two", `^(?P<who>\w+) arrives\.$`, "plugin.b", AddOptions{Enabled: true})
	if err != nil {
		t.Fatalf("add t2: %v", err)
	}

	if t1.RegexSlotID != t2.RegexSlotID {
		t.Fatalf("expected shared slot, got %q and %q", t1.RegexSlotID, t2.RegexSlotID)
	}
	slot := e.slots[t1.RegexSlotID]
	if len(slot.Triggers) != 2 {
		t.Fatalf("expected 2 triggers in shared slot, got %d", len(slot.Triggers))
	}
}

func TestEngine_OmitSuppressesSendToClient(t *testing.T) {
	e, _ := newTestEngine()
	_, err := e.Add("spam", `^SPAM LINE$`, "plugin.a", AddOptions{Enabled: true, Omit: true})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	tcr := checkLine(e, "SPAM LINE")
	if tcr.SendToClient {
		t.Fatal("expected omit trigger to suppress sending to client")
	}
}

func TestEngine_RewriteReplacesLineAndNotesChange(t *testing.T) {
	e, bus := newTestEngine()
	tr, err := e.Add("flicks", `^(?P<n>\w+) flicks a (?P<i>\w+) off his bar\.$`, "plugin.a", AddOptions{Enabled: true})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	bus.RegisterToEvent(tr.EventName, "plugin.a", 50, func(r *events.Record) (*events.Record, error) {
		name := r.GetString("n")
		r.Set("plugin.a", "newline", name+" flicks!")
		return r, nil
	})

	tcr := checkLine(e, "Bast flicks a bug off his bar.")
	if tcr.Line != "Bast flicks!" {
		t.Fatalf("got line %q, want %q", tcr.Line, "Bast flicks!")
	}
}

func TestEngine_StopEvaluatingAbortsOnlyCurrentSlot(t *testing.T) {
	e, bus := newTestEngine()

	var ranHighA, ranLowA, ranOtherSlot bool

	highA, _ := e.Add("high", `^shared line$`, "plugin.a", AddOptions{Enabled: true, Priority: 200, StopEvaluating: true})
	_, _ = e.Add("low", `^shared line$`, "plugin.b", AddOptions{Enabled: true, Priority: 100})
	otherSlot, _ := e.Add("other", `^different pattern$`, "plugin.c", AddOptions{Enabled: true})
	_ = otherSlot

	bus.RegisterToEvent(highA.EventName, "plugin.a", 50, func(r *events.Record) (*events.Record, error) {
		ranHighA = true
		return r, nil
	})
	lowTrig, _ := e.Get("low", "plugin.b")
	bus.RegisterToEvent(lowTrig.EventName, "plugin.b", 50, func(r *events.Record) (*events.Record, error) {
		ranLowA = true
		return r, nil
	})
	otherTrig, _ := e.Get("other", "plugin.c")
	bus.RegisterToEvent(otherTrig.EventName, "plugin.c", 50, func(r *events.Record) (*events.Record, error) {
		ranOtherSlot = true
		return r, nil
	})

	checkLine(e, "shared line")

	if !ranHighA {
		t.Fatal("expected higher-priority trigger in the matched slot to run")
	}
	if ranLowA {
		t.Fatal("expected stopevaluating to prevent lower-priority trigger in same slot from running")
	}
	_ = ranOtherSlot // different line did not match; no assertion needed here
}

func TestEngine_EmptyLineRaisesEmptylineAndAll(t *testing.T) {
	e, bus := newTestEngine()
	var sawEmptyline, sawAll bool

	if err := e.SetEnabled("emptyline", "core.triggers", true); err != nil {
		t.Fatalf("enable emptyline: %v", err)
	}
	if err := e.SetEnabled("all", "core.triggers", true); err != nil {
		t.Fatalf("enable all: %v", err)
	}
	emptyTrig, _ := e.Get("emptyline", "core.triggers")
	allTrig, _ := e.Get("all", "core.triggers")

	bus.RegisterToEvent(emptyTrig.EventName, "t", 50, func(r *events.Record) (*events.Record, error) {
		sawEmptyline = true
		return r, nil
	})
	bus.RegisterToEvent(allTrig.EventName, "t", 50, func(r *events.Record) (*events.Record, error) {
		sawAll = true
		return r, nil
	})

	checkLine(e, "")

	if !sawEmptyline {
		t.Fatal("expected emptyline trigger to fire on blank line")
	}
	if !sawAll {
		t.Fatal("expected all trigger to always fire")
	}
}

func TestEngine_RemoveRefusesWithSubscribersUnlessForced(t *testing.T) {
	e, bus := newTestEngine()
	tr, _ := e.Add("x", `^hi$`, "plugin.a", AddOptions{Enabled: true})
	bus.RegisterToEvent(tr.EventName, "plugin.a", 50, func(r *events.Record) (*events.Record, error) { return r, nil })

	if err := e.Remove("x", "plugin.a", false); err == nil {
		t.Fatal("expected remove without force to fail while subscribers exist")
	}
	if err := e.Remove("x", "plugin.a", true); err != nil {
		t.Fatalf("expected forced remove to succeed: %v", err)
	}
	if _, ok := e.Get("x", "plugin.a"); ok {
		t.Fatal("expected trigger gone after forced remove")
	}
}

func TestEngine_RemoveOwnerClearsAllTriggers(t *testing.T) {
	e, _ := newTestEngine()
	e.Add("a", `^one$`, "plugin.a", AddOptions{Enabled: true})
	e.Add("b", `^two$`, "plugin.a", AddOptions{Enabled: true})
	e.Add("c", `^three$`, "plugin.b", AddOptions{Enabled: true})

	e.RemoveOwner("plugin.a")

	if _, ok := e.Get("a", "plugin.a"); ok {
		t.Fatal("expected plugin.a's trigger a removed")
	}
	if _, ok := e.Get("b", "plugin.a"); ok {
		t.Fatal("expected plugin.a's trigger b removed")
	}
	if _, ok := e.Get("c", "plugin.b"); !ok {
		t.Fatal("expected plugin.b's trigger to survive")
	}
}
