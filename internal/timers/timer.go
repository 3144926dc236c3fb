package timers

import "time"

// Timer is a scheduled callable (spec.md §3). Fields mirror the Timer
// entity exactly.
type Timer struct {
	Name    string
	OwnerID string
	Fn      func() error

	// Period is the interval between fires. Must be > 0 for a
	// periodic timer; ignored for one-shot timers after their first fire.
	Period time.Duration

	// Anchor, when non-nil, pins periodic fires to a specific hour:minute
	// of the day (spec.md §4.3, HHMM anchor) instead of created_at+period.
	Anchor *Anchor

	OneShot bool
	Enabled bool
	LogFire bool

	CreatedAt  time.Time
	LastFired  time.Time
	NextFireAt time.Time
}

// Anchor is an HHMM wall-clock anchor in UTC.
type Anchor struct {
	Hour   int
	Minute int
}

// nextFireFromAnchor returns the next UTC instant matching the anchor at or
// after `now` (spec.md §4.3: "the next UTC instant matching that minute; if
// already passed, add one day").
func nextFireFromAnchor(a Anchor, now time.Time) time.Time {
	now = now.UTC()
	candidate := time.Date(now.Year(), now.Month(), now.Day(), a.Hour, a.Minute, 0, 0, time.UTC)
	if !candidate.After(now) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate
}

// initialNextFire computes the first NextFireAt for a freshly-created timer.
func (t *Timer) initialNextFire(now time.Time) time.Time {
	if t.Anchor != nil {
		return nextFireFromAnchor(*t.Anchor, now)
	}
	base := t.CreatedAt
	if base.IsZero() {
		base = now
	}
	return advancePeriod(base.Add(t.Period), t.Period, now)
}

// nextAfterFire computes the NextFireAt to reinsert with after a periodic
// timer fires at its previous NextFireAt.
func (t *Timer) nextAfterFire(now time.Time) time.Time {
	if t.Anchor != nil {
		return nextFireFromAnchor(*t.Anchor, now)
	}
	return advancePeriod(t.NextFireAt.Add(t.Period), t.Period, now)
}

// advancePeriod adds whole multiples of period to from until it is >= now.
func advancePeriod(from time.Time, period time.Duration, now time.Time) time.Time {
	if period <= 0 {
		return now
	}
	if !from.Before(now) {
		return from
	}
	missed := now.Sub(from)/period + 1
	return from.Add(missed * period)
}
