package capi

import "sync"

// Callable is the heterogeneous function shape stored in the registry. Every
// capability is invoked with a loosely-typed argument record and returns a
// result plus an error, mirroring the original's dynamic `api("top:name")(...)`
// call convention (spec.md §9, Design Notes: "a map of string to a generic
// callable variant accepting a heterogeneous argument record").
type Callable func(args ...any) (any, error)

// Item is an entry in the registry: a full dotted name mapped to a callable,
// with the bookkeeping spec.md §3 requires (owner, description, instance
// flag, overwritten predecessor, call statistics).
type Item struct {
	FullName string // "<top_level>:<dotted_name>"
	OwnerID  string
	Fn       Callable

	Description string
	Instance    bool

	// Overwritten holds the APIItem this entry replaced, when it was added
	// with force=true over an existing entry.
	Overwritten *Item

	stats *StatItem
}

// Stats returns the call statistics accumulated for this item.
func (it *Item) Stats() *StatItem { return it.stats }

// StatItem tracks per-APIItem call statistics (spec.md §3: "Total count;
// per-caller-id count; per-caller-id-with-suffix count"). Every lookup that
// resolves to a real callable increments it (spec.md §3, APIStatItem
// invariant), so it must tolerate concurrent increments even though the
// registry itself is single-threaded in steady state (tests call it
// directly without going through the main loop).
type StatItem struct {
	mu           sync.Mutex
	total        int64
	byCaller     map[string]int64
	byCallerFull map[string]int64
}

// newStatItem allocates a StatItem ready for concurrent increment.
func newStatItem() *StatItem {
	return &StatItem{
		byCaller:     make(map[string]int64),
		byCallerFull: make(map[string]int64),
	}
}

// record increments the total and per-caller counters for a resolved lookup.
// callerSuffix is an optional finer-grained attribution (e.g. the command
// name the caller was executing) recorded separately per spec.md §3
// ("per-caller-id-with-suffix count").
func (s *StatItem) record(callerID, callerSuffix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if callerID != "" {
		s.byCaller[callerID]++
		if callerSuffix != "" {
			s.byCallerFull[callerID+":"+callerSuffix]++
		}
	}
}

// Total returns the total resolved-lookup count for this item.
func (s *StatItem) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByCaller returns the resolved-lookup count attributed to callerID (a
// plugin id, with no command suffix).
func (s *StatItem) ByCaller(callerID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byCaller[callerID]
}

// ByCallerSuffix returns the resolved-lookup count attributed to the
// callerID+suffix pair (e.g. a specific command invocation path).
func (s *StatItem) ByCallerSuffix(callerID, suffix string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byCallerFull[callerID+":"+suffix]
}
