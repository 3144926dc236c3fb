// Package triggers implements the trigger engine described in spec.md §4.4:
// per-trigger regex matchers sharing "flattened" (named-group-stripped)
// alternation slots for cheap combined scanning, with per-slot priority
// dispatch, omission, and rewrite semantics.
//
// Grounded on the original's plugins/core/triggers/plugin/_triggers.py
// (TriggerItem, regex slot bookkeeping, process_match ordering); the Go
// mutex/log idiom follows internal/events.Bus.
package triggers

import (
	"regexp"
)

// namedGroup matches a Go/PCRE-style named capture group header so it can be
// stripped to produce a trigger's "flattened" regex (spec.md §3: "flattened
// regex (named groups stripped)").
var namedGroup = regexp.MustCompile(`\(\?P<[^>]+>`)

// flatten strips named-group headers from a regex, turning `(?P<n>\w+)`
// into `(\w+)`, so distinct triggers with structurally identical patterns
// collapse onto the same regex slot (spec.md §8 property 5).
func flatten(original string) string {
	return namedGroup.ReplaceAllString(original, "(")
}

// Trigger is one registered matcher (spec.md §3, TriggerItem).
type Trigger struct {
	ID      string // t_<owner_id>_<name>
	Name    string
	OwnerID string

	OriginalRegex string
	Compiled      *regexp.Regexp

	FlattenedRegex string
	RegexSlotID    string

	Enabled        bool
	Group          string
	Omit           bool
	Priority       int
	ArgTypes       map[string]func(string) any
	MatchColor     bool
	StopEvaluating bool

	Hits      int64
	EventName string
}

func triggerID(ownerID, name string) string {
	return "t_" + ownerID + "_" + name
}

func eventName(id string) string {
	return "ev_core.triggers_" + id
}
