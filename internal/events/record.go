package events

// Record is the mutable argument bundle passed to every subscriber of a
// single raise (spec.md §3, EventRecord). It is the same object across all
// subscribers: mutations by one subscriber are visible to later subscribers
// and to the raiser (spec.md §8 property 4).
type Record struct {
	// Name is the event name this record was raised for.
	Name string

	// Data holds the standard-plus-per-event fields as a loosely typed map,
	// matching the original's dict-shaped event args.
	Data map[string]any

	// Updates is the trail of (actor, description) notes subscribers leave
	// when they mutate the record (spec.md §3; used by the trigger engine's
	// rewrite bookkeeping, spec.md §8 property 7).
	Updates []Update

	// Internal, when true, marks this record as proxy-generated (e.g. log
	// output sent via SendDataDirectlyToClient) so the trigger engine skips
	// matching against it (spec.md §4.4 step 1).
	Internal bool
}

// Update is one entry in a Record's change trail.
type Update struct {
	Actor       string
	Description string
}

// NewRecord creates a Record with an initialized Data map.
func NewRecord(name string, data map[string]any) *Record {
	if data == nil {
		data = make(map[string]any)
	}
	return &Record{Name: name, Data: data}
}

// Get returns Data[key] and whether it was present.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.Data[key]
	return v, ok
}

// GetString returns Data[key] as a string, or "" if absent or not a string.
func (r *Record) GetString(key string) string {
	if v, ok := r.Data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetBool returns Data[key] as a bool, defaulting to def when absent or of
// the wrong type.
func (r *Record) GetBool(key string, def bool) bool {
	if v, ok := r.Data[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Set stores value under key and appends a change-trail note. actor should
// be the owner id of the subscriber making the change.
func (r *Record) Set(actor, key string, value any) {
	r.Data[key] = value
	r.Updates = append(r.Updates, Update{Actor: actor, Description: key + " modified"})
}

// Note appends a free-form entry to the change trail without touching Data,
// for subscribers that want to record an observation without a field
// mutation (e.g. "evaluated trigger t_42").
func (r *Record) Note(actor, description string) {
	r.Updates = append(r.Updates, Update{Actor: actor, Description: description})
}
