package calendar

import (
	"time"

	"github.com/dukerupert/duende/internal/model"
)

// Candidate is a proposed time range on the displayed basis.
type Candidate struct {
	Start time.Time
	End   time.Time
	Type  model.EventType
}

// Policy is what the caller must do with a verdict.
type Policy int

const (
	PolicyProceed Policy = iota
	PolicyConfirm
	PolicyBlock
)

func (p Policy) String() string {
	switch p {
	case PolicyConfirm:
		return "confirm"
	case PolicyBlock:
		return "block"
	}
	return "proceed"
}

// Verdict is the outcome of conflict detection.
//
// Conflicts lists every overlapping event in working-set order.
// ConflictingType is makeup when any conflict is a makeup event, so a hard
// block is never hidden behind a soft one; otherwise it is the type of the
// first conflict.
type Verdict struct {
	HasConflict     bool                  `json:"has_conflict"`
	ConflictingType model.EventType       `json:"conflicting_type,omitempty"`
	Conflicts       []model.CalendarEvent `json:"conflicts,omitempty"`
}

func (v Verdict) Policy() Policy {
	switch {
	case !v.HasConflict:
		return PolicyProceed
	case v.ConflictingType == model.EventTypeMakeup:
		return PolicyBlock
	default:
		return PolicyConfirm
	}
}

// Overlaps is the half-open interval test: touching endpoints do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && e1.After(s2)
}

// Detect checks candidate against existing. The event with ID excludeID is
// skipped so an update never conflicts with itself; pass 0 on create.
func Detect(candidate Candidate, existing []model.CalendarEvent, excludeID int64) Verdict {
	var v Verdict
	for _, ev := range existing {
		if ev.Type == model.EventTypeOrder && ev.AllDay {
			continue
		}
		if excludeID != 0 && ev.ID == excludeID {
			continue
		}
		start, end, ok := ev.Interval()
		if !ok {
			continue
		}
		if !Overlaps(candidate.Start, candidate.End, start, end) {
			continue
		}

		if !v.HasConflict {
			v.HasConflict = true
			v.ConflictingType = ev.Type
		}
		if ev.Type == model.EventTypeMakeup {
			v.ConflictingType = model.EventTypeMakeup
		}
		v.Conflicts = append(v.Conflicts, ev)
	}
	return v
}
