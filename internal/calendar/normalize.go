package calendar

import (
	"time"

	"github.com/dukerupert/duende/internal/model"
)

// storageShift is the offset between the displayed and persisted times of
// every non-order event: persisted = displayed - storageShift. It is applied
// on the UTC timeline so Denormalize(Normalize(x)) == x holds for every instant.
const storageShift = 24 * time.Hour

// Normalize converts a persisted record to the displayed basis.
func Normalize(raw model.RawEventRecord) (model.CalendarEvent, error) {
	typ, err := model.ParseTag(raw.Tipo)
	if err != nil {
		return model.CalendarEvent{}, invalid("event %d: %v", raw.ID, err)
	}

	ev := model.CalendarEvent{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		Type:        typ,
		OrderNumber: copyString(raw.NumeroOrden),
	}

	if typ == model.EventTypeOrder {
		ev.AllDay = true
		ev.Start = shift(raw.Start, 0)
		ev.End = shift(raw.End, 0)
		return ev, nil
	}

	ev.Start = shift(raw.Start, storageShift)
	ev.End = shift(raw.End, storageShift)
	return ev, nil
}

// Denormalize converts an event on the displayed basis back to its persisted shape.
func Denormalize(ev model.CalendarEvent) model.RawEventRecord {
	raw := model.RawEventRecord{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Tipo:        ev.Type.Tag(),
		NumeroOrden: copyString(ev.OrderNumber),
	}

	var d time.Duration
	if ev.Type != model.EventTypeOrder {
		d = -storageShift
	}
	raw.Start = shift(ev.Start, d)
	raw.End = shift(ev.End, d)
	return raw
}

// NormalizeAll converts a full listing. A single bad record fails the listing.
func NormalizeAll(raws []model.RawEventRecord) ([]model.CalendarEvent, error) {
	events := make([]model.CalendarEvent, 0, len(raws))
	for _, raw := range raws {
		ev, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func shift(t *time.Time, d time.Duration) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Add(d)
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
