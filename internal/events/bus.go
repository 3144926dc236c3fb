// Package events implements the event bus described in spec.md §4.2: named,
// priority-ordered, synchronous pub/sub over mutable Records, with a stack
// of currently-raising events.
//
// Grounded on the original's plugins/core/events/plugin/_events.py for
// semantics (lazy event creation, ascending priority dispatch, subscriber
// exception isolation); the Go error/log idiom follows the teacher's
// "log and continue" pattern from runtime.Reconciler.Reconcile.
package events

import (
	"fmt"
	"log/slog"
	"sort"
)

const defaultPriority = 50

// HandlerFunc is the signature every subscriber callback implements.
type HandlerFunc func(*Record) (*Record, error)

// historyCap bounds the rolling FIFO of raised event names (spec.md §4.2:
// "a bounded FIFO of the last 300 raises").
const historyCap = 300

// Subscriber is one registered callback. fn receives the current record and
// may mutate it; its return value becomes the new "current" record for
// subsequent subscribers (spec.md §4.2 step 3).
type Subscriber struct {
	OwnerID  string
	Fn       HandlerFunc
	Priority int
}

type event struct {
	name        string
	ownerID     string
	description string
	argDescs    map[string]string

	// buckets holds subscribers keyed by priority, each slice kept in
	// registration order, since spec.md §3 requires "subscribers within a
	// priority are invoked in registration order."
	buckets map[int][]Subscriber

	raisedCount int64
}

func newEvent(name string) *event {
	return &event{name: name, buckets: make(map[int][]Subscriber), argDescs: make(map[string]string)}
}

// Bus is the event bus (component B).
type Bus struct {
	log *slog.Logger

	events map[string]*event

	// stack is the reentrant active-event stack: raising an event pushes
	// its current record, nested raises push again, and each pops on
	// completion (spec.md §4.2 steps 1 and 5).
	stack []*Record

	history []string
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		log:    slog.With("component", "events"),
		events: make(map[string]*event),
	}
}

// getOrCreate returns the named event, lazily creating it if it does not
// yet exist (spec.md §4.2: "missing events are created on demand... legal
// to subscribe before its declarer has registered a description").
func (b *Bus) getOrCreate(name string) *event {
	e, ok := b.events[name]
	if !ok {
		e = newEvent(name)
		b.events[name] = e
	}
	return e
}

// Declare attaches description metadata to name, creating the event if
// necessary. Safe to call after subscribers already exist.
func (b *Bus) Declare(name, ownerID, description string, argDescs map[string]string) {
	e := b.getOrCreate(name)
	e.ownerID = ownerID
	e.description = description
	for k, v := range argDescs {
		e.argDescs[k] = v
	}
}

// RegisterToEvent subscribes fn to name at the given priority (prio <= 0
// selects the default of 50). Registrations are not de-duplicated: Go func
// values cannot be compared, so registering the same handler twice adds two
// subscribers and the handler runs twice per raise.
func (b *Bus) RegisterToEvent(name, ownerID string, prio int, fn HandlerFunc) {
	if prio <= 0 {
		prio = defaultPriority
	}
	e := b.getOrCreate(name)
	e.buckets[prio] = append(e.buckets[prio], Subscriber{OwnerID: ownerID, Fn: fn, Priority: prio})
}

// UnregisterFromEvent removes every subscriber owned by ownerID from name.
func (b *Bus) UnregisterFromEvent(name, ownerID string) {
	e, ok := b.events[name]
	if !ok {
		return
	}
	for prio, subs := range e.buckets {
		kept := subs[:0]
		for _, s := range subs {
			if s.OwnerID != ownerID {
				kept = append(kept, s)
			}
		}
		e.buckets[prio] = kept
	}
}

// RemoveEventsForOwner removes every subscription across every event whose
// owner is ownerID (spec.md §4.2: used by the loader on unload; spec.md §8
// property 12, unload completeness).
func (b *Bus) RemoveEventsForOwner(ownerID string) {
	for name := range b.events {
		b.UnregisterFromEvent(name, ownerID)
	}
}

// sortedPriorities returns the event's populated priority buckets in
// ascending order (spec.md §3: "priorities are dispatched low-to-high").
func (e *event) sortedPriorities() []int {
	prios := make([]int, 0, len(e.buckets))
	for p, subs := range e.buckets {
		if len(subs) > 0 {
			prios = append(prios, p)
		}
	}
	sort.Ints(prios)
	return prios
}

// Raise dispatches an event by name with the given initial data, running
// every subscriber in ascending-priority, registration order (spec.md §4.2,
// §8 property 3). Each subscriber's returned record becomes the record
// passed to the next subscriber and is ultimately returned to the raiser
// (spec.md §4.2 step 3, §8 property 4). A subscriber error is logged and
// dispatch continues with the next subscriber (spec.md §4.2 step 4, §7).
func (b *Bus) Raise(name string, data map[string]any) *Record {
	rec := NewRecord(name, data)
	return b.RaiseRecord(name, rec)
}

// RaiseRecord is like Raise but takes a pre-built record (used by the
// pipeline to raise ev_to_mud_data_modify/ev_to_client_data_modify with a
// caller-constructed record type).
func (b *Bus) RaiseRecord(name string, rec *Record) *Record {
	e := b.getOrCreate(name)
	e.raisedCount++

	b.stack = append(b.stack, rec)
	b.pushHistory(name)
	defer b.popStack()

	for _, prio := range e.sortedPriorities() {
		// Re-read the bucket on each iteration: a subscriber may register a
		// new subscriber at the same or lower priority mid-dispatch; spec.md
		// §5 says such additions "are not observed for the in-flight
		// dispatch," so we snapshot the slice length once per priority
		// rather than per event.
		subs := e.buckets[prio]
		for i := 0; i < len(subs); i++ {
			sub := subs[i]
			next, err := b.invoke(sub, rec)
			if err != nil {
				b.log.Error("subscriber error", "event", name, "owner", sub.OwnerID, "err", err)
				continue
			}
			if next != nil {
				rec = next
			}
		}
	}

	return rec
}

// invoke calls a subscriber, recovering from panics the same way the bus
// recovers from returned errors — a single misbehaving plugin must not stop
// the event loop (spec.md §5, §7).
func (b *Bus) invoke(sub Subscriber, rec *Record) (result *Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in subscriber %s: %v", sub.OwnerID, p)
		}
	}()
	return sub.Fn(rec)
}

func (b *Bus) pushHistory(name string) {
	b.history = append(b.history, name)
	if len(b.history) > historyCap {
		b.history = b.history[len(b.history)-historyCap:]
	}
}

func (b *Bus) popStack() {
	if len(b.stack) == 0 {
		b.log.Error("event stack underflow on pop")
		return
	}
	b.stack = b.stack[:len(b.stack)-1]
}

// CurrentRecord returns the record of the event currently being raised
// (top of the active-event stack), or nil if no raise is in progress
// (spec.md §4.2 step 3: "get.current.event.record()").
func (b *Bus) CurrentRecord() *Record {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

// History returns a copy of the rolling FIFO of the last raised event
// names, oldest first.
func (b *Bus) History() []string {
	out := make([]string, len(b.history))
	copy(out, b.history)
	return out
}

// RaisedCount returns how many times name has been raised.
func (b *Bus) RaisedCount(name string) int64 {
	if e, ok := b.events[name]; ok {
		return e.raisedCount
	}
	return 0
}

// Names returns every declared or subscribed-to event name, sorted.
func (b *Bus) Names() []string {
	out := make([]string, 0, len(b.events))
	for name := range b.events {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Owner returns the declaring owner id for name, or "" if undeclared.
func (b *Bus) Owner(name string) string {
	if e, ok := b.events[name]; ok {
		return e.ownerID
	}
	return ""
}

// Detail describes an event for the `#bp.core.events.detail` command:
// description, arg descriptions, and subscriber owners grouped by priority.
type Detail struct {
	Name        string
	OwnerID     string
	Description string
	ArgDescs    map[string]string
	Subscribers map[int][]string // priority -> owner ids, in registration order
}

// Detail returns introspection data for name.
func (b *Bus) Detail(name string) (Detail, bool) {
	e, ok := b.events[name]
	if !ok {
		return Detail{}, false
	}
	d := Detail{
		Name:        e.name,
		OwnerID:     e.ownerID,
		Description: e.description,
		ArgDescs:    e.argDescs,
		Subscribers: make(map[int][]string),
	}
	for prio, subs := range e.buckets {
		var owners []string
		for _, s := range subs {
			owners = append(owners, s.OwnerID)
		}
		if len(owners) > 0 {
			d.Subscribers[prio] = owners
		}
	}
	return d, true
}
