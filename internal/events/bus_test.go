package events

import (
	"fmt"
	"testing"
)

func TestBus_OrderingAcrossAndWithinPriority(t *testing.T) {
	b := New()
	var order []string

	b.RegisterToEvent("tick", "a", 10, func(r *Record) (*Record, error) {
		order = append(order, "a")
		return r, nil
	})
	b.RegisterToEvent("tick", "b", 10, func(r *Record) (*Record, error) {
		order = append(order, "b")
		return r, nil
	})
	b.RegisterToEvent("tick", "c", 20, func(r *Record) (*Record, error) {
		order = append(order, "c")
		return r, nil
	})

	b.Raise("tick", nil)

	want := []string{"a", "b", "c"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
}

func TestBus_MutationVisibleToLaterSubscribersAndRaiser(t *testing.T) {
	b := New()
	b.RegisterToEvent("line", "first", 10, func(r *Record) (*Record, error) {
		r.Set("first", "x", "mutated")
		return r, nil
	})

	var sawAtSecond string
	b.RegisterToEvent("line", "second", 20, func(r *Record) (*Record, error) {
		sawAtSecond = r.GetString("x")
		return r, nil
	})

	result := b.Raise("line", map[string]any{"x": "original"})

	if sawAtSecond != "mutated" {
		t.Fatalf("second subscriber saw %q, want mutated", sawAtSecond)
	}
	if result.GetString("x") != "mutated" {
		t.Fatalf("raiser saw %q, want mutated", result.GetString("x"))
	}
}

func TestBus_SubscriberErrorDoesNotStopDispatch(t *testing.T) {
	b := New()
	var secondRan bool

	b.RegisterToEvent("evt", "bad", 10, func(r *Record) (*Record, error) {
		return nil, fmt.Errorf("boom")
	})
	b.RegisterToEvent("evt", "good", 20, func(r *Record) (*Record, error) {
		secondRan = true
		return r, nil
	})

	b.Raise("evt", nil)

	if !secondRan {
		t.Fatal("expected second subscriber to run despite first subscriber's error")
	}
}

func TestBus_PanicRecovered(t *testing.T) {
	b := New()
	var secondRan bool
	b.RegisterToEvent("evt", "panics", 10, func(r *Record) (*Record, error) {
		panic("kaboom")
	})
	b.RegisterToEvent("evt", "good", 20, func(r *Record) (*Record, error) {
		secondRan = true
		return r, nil
	})

	b.Raise("evt", nil)
	if !secondRan {
		t.Fatal("expected dispatch to continue after a panicking subscriber")
	}
}

func TestBus_ReentrantRaiseRestoresStack(t *testing.T) {
	b := New()
	var innerSeen string

	b.RegisterToEvent("outer", "o", 10, func(r *Record) (*Record, error) {
		b.RegisterToEvent("inner", "i", 10, func(ir *Record) (*Record, error) {
			innerSeen = b.CurrentRecord().GetString("tag")
			return ir, nil
		})
		b.Raise("inner", map[string]any{"tag": "inner-data"})
		// after the nested raise returns, current record must be back to outer's
		if b.CurrentRecord() != r {
			t.Error("expected outer record restored to top of stack after nested raise")
		}
		return r, nil
	})

	b.Raise("outer", map[string]any{"tag": "outer-data"})
	if innerSeen != "inner-data" {
		t.Fatalf("nested raise saw %q, want inner-data", innerSeen)
	}
}

func TestBus_RemoveEventsForOwner(t *testing.T) {
	b := New()
	var ran bool
	b.RegisterToEvent("evt", "owner1", 10, func(r *Record) (*Record, error) {
		ran = true
		return r, nil
	})
	b.RemoveEventsForOwner("owner1")
	b.Raise("evt", nil)
	if ran {
		t.Fatal("expected subscriber removed for unloaded owner not to run")
	}
}

func TestBus_LazyDeclareAfterSubscribe(t *testing.T) {
	b := New()
	b.RegisterToEvent("late", "sub", 10, func(r *Record) (*Record, error) { return r, nil })
	b.Declare("late", "declarer", "a late event", nil)

	d, ok := b.Detail("late")
	if !ok {
		t.Fatal("expected event to exist")
	}
	if d.OwnerID != "declarer" {
		t.Fatalf("expected declarer owner, got %q", d.OwnerID)
	}
	if len(d.Subscribers[10]) != 1 {
		t.Fatalf("expected one subscriber at priority 10, got %v", d.Subscribers)
	}
}
