package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/duende/internal/model"
)

func TestNormalizeShiftsNonOrderEvents(t *testing.T) {
	start := time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 4, 11, 0, 0, 0, time.UTC)

	for _, tag := range []string{model.TagMakeup, model.TagMeeting} {
		t.Run(tag, func(t *testing.T) {
			ev, err := Normalize(model.RawEventRecord{ID: 1, Title: "x", Start: &start, End: &end, Tipo: tag})
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			wantStart := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
			if !ev.Start.Equal(wantStart) {
				t.Errorf("start = %v, want %v", ev.Start, wantStart)
			}
			if !ev.End.Equal(wantStart.Add(time.Hour)) {
				t.Errorf("end = %v, want %v", ev.End, wantStart.Add(time.Hour))
			}
			if ev.AllDay {
				t.Error("non-order event should not be all day")
			}
		})
	}
}

func TestNormalizeOrderEventUnshifted(t *testing.T) {
	start := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	end := start.Add(OrderEventDuration)
	number := "OR-5"

	ev, err := Normalize(model.RawEventRecord{ID: 3, Title: "Orden OR-5", Start: &start, End: &end, Tipo: model.TagOrder, NumeroOrden: &number})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.Type != model.EventTypeOrder {
		t.Errorf("type = %q, want %q", ev.Type, model.EventTypeOrder)
	}
	if !ev.AllDay {
		t.Error("order event should be all day")
	}
	if !ev.Start.Equal(start) || !ev.End.Equal(end) {
		t.Errorf("times = %v-%v, want %v-%v", ev.Start, ev.End, start, end)
	}
	if ev.OrderNumber == nil || *ev.OrderNumber != "OR-5" {
		t.Errorf("order number = %v", ev.OrderNumber)
	}
}

func TestNormalizeNullTimes(t *testing.T) {
	ev, err := Normalize(model.RawEventRecord{ID: 1, Title: "x", Tipo: model.TagMeeting})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.Start != nil || ev.End != nil {
		t.Errorf("start/end = %v/%v, want nil", ev.Start, ev.End)
	}
}

func TestNormalizeUnknownTag(t *testing.T) {
	_, err := Normalize(model.RawEventRecord{ID: 1, Title: "x", Tipo: "fiesta"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("err = %v, want ErrInvalidEvent", err)
	}
}

func TestRoundTrip(t *testing.T) {
	loc := time.FixedZone("UTC-6", -6*60*60)
	start := time.Date(2026, 3, 8, 23, 30, 0, 0, loc)
	end := start.Add(90 * time.Minute)
	number := "OR-7"

	records := []model.RawEventRecord{
		{ID: 1, Title: "makeup", Description: "d", Start: &start, End: &end, Tipo: model.TagMakeup},
		{ID: 2, Title: "meeting", Start: &start, End: &end, Tipo: model.TagMeeting},
		{ID: 3, Title: "order", Start: &start, End: &end, Tipo: model.TagOrder, NumeroOrden: &number},
		{ID: 4, Title: "open", Tipo: model.TagMeeting},
	}

	for _, raw := range records {
		ev, err := Normalize(raw)
		if err != nil {
			t.Fatalf("normalize %d: %v", raw.ID, err)
		}
		got := Denormalize(ev)
		if got.ID != raw.ID || got.Title != raw.Title || got.Description != raw.Description || got.Tipo != raw.Tipo {
			t.Errorf("record %d: got %+v, want %+v", raw.ID, got, raw)
		}
		if !sameTime(got.Start, raw.Start) || !sameTime(got.End, raw.End) {
			t.Errorf("record %d: times %v-%v, want %v-%v", raw.ID, got.Start, got.End, raw.Start, raw.End)
		}
		if (got.NumeroOrden == nil) != (raw.NumeroOrden == nil) {
			t.Errorf("record %d: order number %v, want %v", raw.ID, got.NumeroOrden, raw.NumeroOrden)
		}
	}
}

func TestNormalizeAllFailsOnBadRecord(t *testing.T) {
	_, err := NormalizeAll([]model.RawEventRecord{
		{ID: 1, Title: "ok", Tipo: model.TagMeeting},
		{ID: 2, Title: "bad", Tipo: "?"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
