package capi

import "testing"

func noop(args ...any) (any, error) { return nil, nil }

func TestRegistry_UniquenessWithoutForce(t *testing.T) {
	r := New()
	if err := r.Add("core", "foo", noop, Owner("p1")); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := r.Add("core", "foo", noop, Owner("p2")); err == nil {
		t.Fatal("expected second add without force to be rejected")
	}

	item, err := r.Get("core:foo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.OwnerID != "p1" {
		t.Fatalf("expected first registration to survive, got owner %q", item.OwnerID)
	}
}

func TestRegistry_ForceOverwriteChainsOld(t *testing.T) {
	r := New()
	if err := r.Add("core", "foo", noop, Owner("p1")); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := r.Add("core", "foo", noop, Owner("p2"), Force()); err != nil {
		t.Fatalf("forced add: %v", err)
	}

	item, err := r.Get("core:foo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.OwnerID != "p2" {
		t.Fatalf("expected second registration, got owner %q", item.OwnerID)
	}
	if item.Overwritten == nil || item.Overwritten.OwnerID != "p1" {
		t.Fatalf("expected Overwritten to reference p1's entry, got %+v", item.Overwritten)
	}
}

func TestRegistry_InstancePrecedence(t *testing.T) {
	r := New()
	if err := r.Add("core", "foo", noop, Owner("class-owner")); err != nil {
		t.Fatalf("class add: %v", err)
	}
	if err := r.Add("core", "foo", noop, Owner("instance-owner"), Instance()); err != nil {
		t.Fatalf("instance add: %v", err)
	}

	got, err := r.Get("core:foo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OwnerID != "instance-owner" {
		t.Fatalf("expected instance entry to win, got %q", got.OwnerID)
	}

	gotClass, err := r.Get("core:foo", GetOptions{GetClass: true})
	if err != nil {
		t.Fatalf("get class: %v", err)
	}
	if gotClass.OwnerID != "class-owner" {
		t.Fatalf("expected class entry with GetClass=true, got %q", gotClass.OwnerID)
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	r := New()
	if _, err := r.Get("core:missing"); err == nil {
		t.Fatal("expected error for missing capability")
	}
}

func TestRegistry_RemoveTopLevel(t *testing.T) {
	r := New()
	r.Add("core", "foo", noop, Owner("p1"))
	r.Add("core", "bar", noop, Owner("p1"), Instance())
	r.Add("other", "baz", noop, Owner("p2"))

	r.Remove("core")

	if _, err := r.Get("core:foo"); err == nil {
		t.Fatal("expected core:foo removed")
	}
	if _, err := r.Get("core:bar"); err == nil {
		t.Fatal("expected core:bar removed from instance table too")
	}
	if _, err := r.Get("other:baz"); err != nil {
		t.Fatal("expected other:baz to survive")
	}
}

func TestRegistry_RemoveOwner(t *testing.T) {
	r := New()
	r.Add("core", "foo", noop, Owner("plugins.core.commands"))
	r.Add("net", "bar", noop, Owner("plugins.core.commands"), Instance())
	r.Add("core", "keep", noop, Owner("plugins.core.settings"))

	r.RemoveOwner("plugins.core.commands")

	if _, err := r.Get("core:foo"); err == nil {
		t.Fatal("expected core:foo removed")
	}
	if _, err := r.Get("net:bar"); err == nil {
		t.Fatal("expected net:bar removed")
	}
	if _, err := r.Get("core:keep"); err != nil {
		t.Fatal("expected core:keep to survive")
	}
}

func TestRegistry_StatsIncrementOnGet(t *testing.T) {
	r := New()
	r.Add("core", "foo", noop)
	item, _ := r.Get("core:foo")
	if item.Stats().Total() != 1 {
		t.Fatalf("expected 1 recorded call, got %d", item.Stats().Total())
	}
	r.Get("core:foo")
	if item.Stats().Total() != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", item.Stats().Total())
	}
}

func TestRegistry_Children(t *testing.T) {
	r := New()
	r.Add("commands", "list", noop)
	r.Add("commands", "history", noop)
	r.Add("events", "raise", noop)

	got := r.Children("commands")
	if len(got) != 2 || got[0] != "history" || got[1] != "list" {
		t.Fatalf("unexpected children: %v", got)
	}
}
