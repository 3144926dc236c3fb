package triggers

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"

	"github.com/relaymud/relaymud/internal/events"
)

// ToClientRecord is the subset of a to-client event record the engine reads
// and mutates (spec.md §4.4 steps 3-4). It is embedded in the events.Record
// passed through ev_to_client_data_modify via its Data map.
type ToClientRecord struct {
	Line         string
	ColorLine    string
	SendToClient bool
	Internal     bool
}

// Engine holds every registered trigger, the regex slots they share, and the
// combined alternation regex rebuilt whenever slot membership changes
// (spec.md §3, §4.4).
type Engine struct {
	log *slog.Logger
	bus *events.Bus

	triggers map[string]*Trigger
	groups   map[string][]string // group name -> trigger ids

	slots        map[string]*regexSlot
	slotsByText  map[string]string // flattened regex text -> slot id
	nextSlotID   int
	combinedText string
	combined     *regexp.Regexp

	beallID, allID, emptylineID string
}

// New creates an Engine wired to bus for raising per-trigger events.
func New(bus *events.Bus) *Engine {
	e := &Engine{
		log:         slog.With("component", "triggers"),
		bus:         bus,
		triggers:    make(map[string]*Trigger),
		groups:      make(map[string][]string),
		slots:       make(map[string]*regexSlot),
		slotsByText: make(map[string]string),
	}
	e.beallID = triggerID("core.triggers", "beall")
	e.allID = triggerID("core.triggers", "all")
	e.emptylineID = triggerID("core.triggers", "emptyline")
	for _, id := range []string{e.beallID, e.allID, e.emptylineID} {
		e.triggers[id] = &Trigger{ID: id, OwnerID: "core.triggers", EventName: eventName(id), Enabled: false}
	}
	return e
}

// AddOptions configures an added trigger; all fields are optional.
type AddOptions struct {
	Enabled        bool
	Group          string
	Omit           bool
	Priority       int
	ArgTypes       map[string]func(string) any
	MatchColor     bool
	StopEvaluating bool
}

// Add registers a new trigger (spec.md §4.4: "On trigger.add(...)").
func (e *Engine) Add(name, regex, ownerID string, opts AddOptions) (*Trigger, error) {
	id := triggerID(ownerID, name)
	if _, exists := e.triggers[id]; exists {
		return nil, fmt.Errorf("trigger %s already exists", id)
	}

	priority := opts.Priority
	if priority == 0 {
		priority = 100
	}

	t := &Trigger{
		ID:             id,
		Name:           name,
		OwnerID:        ownerID,
		OriginalRegex:  regex,
		Enabled:        opts.Enabled,
		Group:          opts.Group,
		Omit:           opts.Omit,
		Priority:       priority,
		ArgTypes:       opts.ArgTypes,
		MatchColor:     opts.MatchColor,
		StopEvaluating: opts.StopEvaluating,
		EventName:      eventName(id),
	}

	if regex != "" {
		compiled, err := regexp.Compile(regex)
		if err != nil {
			return nil, fmt.Errorf("compile regex for trigger %s: %w", id, err)
		}
		t.Compiled = compiled
		t.FlattenedRegex = flatten(regex)
		t.RegexSlotID = e.findOrCreateSlot(t.FlattenedRegex)

		if t.Enabled {
			e.slots[t.RegexSlotID].addTrigger(id)
			if err := e.rebuild(); err != nil {
				return nil, err
			}
		}
	}

	if opts.Group != "" {
		e.groups[opts.Group] = append(e.groups[opts.Group], id)
	}

	e.triggers[id] = t
	e.log.Debug("added trigger", "id", id, "owner", ownerID)
	return t, nil
}

func (e *Engine) findOrCreateSlot(flattened string) string {
	if id, ok := e.slotsByText[flattened]; ok {
		return id
	}
	e.nextSlotID++
	id := "reg_" + strconv.Itoa(e.nextSlotID)
	e.slots[id] = newRegexSlot(id, flattened)
	e.slotsByText[flattened] = id
	return id
}

func (e *Engine) rebuild() error {
	text, re, err := combinedPattern(e.slots)
	if err != nil {
		e.log.Error("could not compile combined regex", "err", err)
		return fmt.Errorf("rebuild combined regex: %w", err)
	}
	e.combinedText = text
	e.combined = re
	return nil
}

// Remove deletes a trigger. Refuses unless force is set or the trigger's
// event currently has no subscribers (spec.md §4.4: "On trigger.remove").
func (e *Engine) Remove(name, ownerID string, force bool) error {
	id := triggerID(ownerID, name)
	t, ok := e.triggers[id]
	if !ok {
		return fmt.Errorf("trigger %s does not exist", id)
	}

	if !force {
		if d, ok := e.bus.Detail(t.EventName); ok && len(d.Subscribers) > 0 {
			return fmt.Errorf("trigger %s has functions registered", id)
		}
	}

	if t.RegexSlotID != "" {
		if slot, ok := e.slots[t.RegexSlotID]; ok {
			slot.removeTrigger(id)
		}
		if err := e.rebuild(); err != nil {
			return err
		}
	}
	delete(e.triggers, id)
	return nil
}

// RemoveOwner removes every trigger belonging to ownerID (spec.md §4.4:
// "remove.data.for.owner"; spec.md §8 property 12, unload completeness).
func (e *Engine) RemoveOwner(ownerID string) {
	for id, t := range e.triggers {
		if t.OwnerID == ownerID {
			if t.RegexSlotID != "" {
				if slot, ok := e.slots[t.RegexSlotID]; ok {
					slot.removeTrigger(id)
				}
			}
			delete(e.triggers, id)
		}
	}
	e.rebuild()
}

// SetEnabled toggles a trigger's slot membership (spec.md §4.4:
// "trigger.toggle.enable").
func (e *Engine) SetEnabled(name, ownerID string, flag bool) error {
	id := triggerID(ownerID, name)
	t, ok := e.triggers[id]
	if !ok {
		return fmt.Errorf("trigger %s does not exist", id)
	}
	t.Enabled = flag
	if t.RegexSlotID == "" {
		return nil
	}
	slot := e.slots[t.RegexSlotID]
	if flag {
		slot.addTrigger(id)
	} else {
		slot.removeTrigger(id)
	}
	return e.rebuild()
}

// SetOmit sets only the omit bit (spec.md §4.4: "trigger.toggle.omit").
func (e *Engine) SetOmit(name, ownerID string, flag bool) error {
	id := triggerID(ownerID, name)
	t, ok := e.triggers[id]
	if !ok {
		return fmt.Errorf("trigger %s does not exist", id)
	}
	t.Omit = flag
	return nil
}

// SetGroupEnabled toggles every trigger in a group (spec.md §4.4:
// "group.toggle.enable").
func (e *Engine) SetGroupEnabled(group string, flag bool) error {
	for _, id := range e.groups[group] {
		t := e.triggers[id]
		if t == nil {
			continue
		}
		if err := e.SetEnabled(t.Name, t.OwnerID, flag); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the named trigger, if any.
func (e *Engine) Get(name, ownerID string) (*Trigger, bool) {
	t, ok := e.triggers[triggerID(ownerID, name)]
	return t, ok
}

// triggersInSlotByPriority returns enabled trigger ids in a slot ordered by
// priority descending, ties by insertion (slot.Triggers) order (spec.md §5:
// "triggers within a regex slot run in priority DESC, insertion ASC order").
func (e *Engine) triggersInSlotByPriority(slotID string) []*Trigger {
	slot, ok := e.slots[slotID]
	if !ok {
		return nil
	}
	out := make([]*Trigger, 0, len(slot.Triggers))
	for _, id := range slot.Triggers {
		if t := e.triggers[id]; t != nil && t.Enabled {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Check runs the trigger engine against one line from the mud (spec.md §4.4
// step-by-step), raising beall/emptyline/all and the per-match trigger
// events, and mutating rec's ToClientRecord data in place.
func (e *Engine) Check(rec *events.Record) {
	tc, ok := rec.Get("ToClientRecord")
	if !ok {
		return
	}
	tcr, ok := tc.(*ToClientRecord)
	if !ok || tcr.Internal {
		return
	}

	data := tcr.Line
	colorData := tcr.ColorLine

	e.raiseFixed(e.beallID, data, rec)

	if data == "" {
		e.raiseFixed(e.emptylineID, data, rec)
	} else if e.combined != nil {
		if e.combined.MatchString(data) {
			e.processMatch(data, colorData, rec)
		} else {
			e.log.Debug("line did not match any regexes", "line", data)
		}
	}

	e.raiseFixed(e.allID, data, rec)
}

// raiseFixed raises beall/all/emptyline, which have no regex match data of
// their own (spec.md §4.4 steps 2 and 3).
func (e *Engine) raiseFixed(id string, line string, rec *events.Record) {
	t := e.triggers[id]
	if t == nil || !t.Enabled {
		return
	}
	e.dispatch(t, map[string]any{"line": line, "trigger_name": t.Name, "trigger_id": t.ID}, rec)
}

// processMatch finds which slots fired in the combined match and dispatches
// every enabled trigger in each fired slot, in priority order, running each
// trigger's own original regex to extract named groups (spec.md §4.4 step 3,
// mirroring the original's process_match).
func (e *Engine) processMatch(data, colorData string, rec *events.Record) {
	names := e.combined.SubexpNames()
	subs := e.combined.FindStringSubmatch(data)
	if subs == nil {
		return
	}

	for i, name := range names {
		if name == "" || subs[i] == "" {
			continue
		}
		slot, ok := e.slots[name]
		if !ok {
			e.log.Error("regex slot not found", "slot", name)
			continue
		}
		slot.Hits++

		for _, t := range e.triggersInSlotByPriority(name) {
			var m []string
			if t.MatchColor {
				m = t.Compiled.FindStringSubmatch(colorData)
			} else {
				m = t.Compiled.FindStringSubmatch(data)
			}
			if m == nil {
				continue
			}
			groups := namedGroupsToMap(t.Compiled, m)
			groups["line"] = data
			groups["colorline"] = colorData
			groups["trigger_name"] = t.Name
			groups["trigger_id"] = t.ID
			if t.ArgTypes != nil {
				for arg, coerce := range t.ArgTypes {
					if raw, ok := groups[arg].(string); ok {
						groups[arg] = coerce(raw)
					}
				}
			}

			e.dispatch(t, groups, rec)
			t.Hits++

			if t.StopEvaluating {
				break
			}
		}
	}
}

func namedGroupsToMap(re *regexp.Regexp, match []string) map[string]any {
	out := make(map[string]any)
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(match) {
			out[name] = match[i]
		}
	}
	return out
}

// dispatch raises a trigger's event and applies omit/rewrite semantics to
// the to-client record (spec.md §4.4 step 4, mirroring raisetrigger).
func (e *Engine) dispatch(t *Trigger, args map[string]any, rec *events.Record) {
	tc, _ := rec.Get("ToClientRecord")
	tcr, _ := tc.(*ToClientRecord)

	if t.Omit && tcr != nil {
		tcr.SendToClient = false
		rec.Note(t.OwnerID, fmt.Sprintf("trigger %s set omit", t.ID))
	}

	sub := events.NewRecord(t.EventName, args)
	result := e.bus.RaiseRecord(t.EventName, sub)

	if result == nil || tcr == nil {
		return
	}

	if newline, ok := result.Get("newline"); ok {
		if s, ok := newline.(string); ok {
			tcr.Line = s
			rec.Note(t.OwnerID, fmt.Sprintf("trigger %s rewrote line", t.ID))
		}
	}

	if result.GetBool("omit", false) {
		tcr.SendToClient = false
		rec.Note(t.OwnerID, fmt.Sprintf("trigger %s subscriber requested omit", t.ID))
	}
}

// Names returns every registered trigger id, sorted.
func (e *Engine) Names() []string {
	out := make([]string, 0, len(e.triggers))
	for id := range e.triggers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CombinedPattern returns the current combined alternation regex text, for
// introspection commands.
func (e *Engine) CombinedPattern() string {
	return e.combinedText
}

// All returns every registered Trigger, sorted by id, for listing/detail
// commands that need the full struct rather than just its id.
func (e *Engine) All() []*Trigger {
	out := make([]*Trigger, 0, len(e.triggers))
	for _, t := range e.triggers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
