package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/duende/internal/database"
	"github.com/dukerupert/duende/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupEventStore(t *testing.T) *EventStore {
	t.Helper()
	return NewEventStore(openTestDB(t))
}

func ptr[T any](v T) *T { return &v }

func meetingRecord(title string, start, end time.Time) model.RawEventRecord {
	return model.RawEventRecord{
		Title: title,
		Start: &start,
		End:   &end,
		Tipo:  model.TagMeeting,
	}
}

func TestCreateAssignsNextID(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	start := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	id1, err := s.Create(ctx, meetingRecord("First", start, end))
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if id1 != 1 {
		t.Errorf("first id = %d, want 1", id1)
	}

	id2, err := s.Create(ctx, meetingRecord("Second", start, end))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if id2 != 2 {
		t.Errorf("second id = %d, want 2", id2)
	}

	// An explicit id moves the maximum.
	rec := meetingRecord("Explicit", start, end)
	rec.ID = 10
	if _, err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create explicit: %v", err)
	}
	id4, err := s.Create(ctx, meetingRecord("After", start, end))
	if err != nil {
		t.Fatalf("create after explicit: %v", err)
	}
	if id4 != 11 {
		t.Errorf("id after explicit = %d, want 11", id4)
	}
}

func TestCreateAndGetByID(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	start := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 5, 11, 0, 0, 0, time.UTC)
	rec := meetingRecord("Team Meeting", start, end)
	rec.Description = "Weekly sync"

	id, err := s.Create(ctx, rec)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil {
		t.Fatal("expected event, got nil")
	}
	if got.Title != "Team Meeting" {
		t.Errorf("title = %q, want %q", got.Title, "Team Meeting")
	}
	if got.Description != "Weekly sync" {
		t.Errorf("description = %q, want %q", got.Description, "Weekly sync")
	}
	if got.Tipo != model.TagMeeting {
		t.Errorf("tipo = %q, want %q", got.Tipo, model.TagMeeting)
	}
	if got.Start == nil || !got.Start.Equal(start) {
		t.Errorf("start = %v, want %v", got.Start, start)
	}
	if got.End == nil || !got.End.Equal(end) {
		t.Errorf("end = %v, want %v", got.End, end)
	}
	if got.NumeroOrden != nil {
		t.Errorf("numeroOrden = %q, want nil", *got.NumeroOrden)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	s := setupEventStore(t)

	got, err := s.GetByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent event")
	}
}

func TestNullTimesRoundTrip(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, model.RawEventRecord{Title: "Open ended", Tipo: model.TagMakeup})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Start != nil || got.End != nil {
		t.Errorf("start/end = %v/%v, want nil/nil", got.Start, got.End)
	}
}

func TestCreateRejectsUnknownTag(t *testing.T) {
	s := setupEventStore(t)

	_, err := s.Create(context.Background(), model.RawEventRecord{Title: "Bad", Tipo: "fiesta"})
	if err == nil {
		t.Fatal("expected error for unknown event tag")
	}
}

func TestList(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	start := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	for _, title := range []string{"A", "B", "C"} {
		if _, err := s.Create(ctx, meetingRecord(title, start, start.Add(time.Hour))); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i, want := range []string{"A", "B", "C"} {
		if records[i].Title != want {
			t.Errorf("records[%d].Title = %q, want %q", i, records[i].Title, want)
		}
	}
}

func TestUpdate(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	start := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	rec := meetingRecord("Original Title", start, start.Add(time.Hour))
	rec.NumeroOrden = ptr("OR-1")
	id, err := s.Create(ctx, rec)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	newStart := time.Date(2026, 2, 5, 14, 0, 0, 0, time.UTC)
	newEnd := time.Date(2026, 2, 5, 15, 30, 0, 0, time.UTC)
	err = s.Update(ctx, id, model.EventPatch{
		Title:       "Updated Title",
		Description: "Added desc",
		Start:       &newStart,
		End:         &newEnd,
		Tipo:        model.TagMakeup,
	})
	if err != nil {
		t.Fatalf("update event: %v", err)
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Title != "Updated Title" {
		t.Errorf("title = %q, want %q", got.Title, "Updated Title")
	}
	if got.Tipo != model.TagMakeup {
		t.Errorf("tipo = %q, want %q", got.Tipo, model.TagMakeup)
	}
	if !got.Start.Equal(newStart) || !got.End.Equal(newEnd) {
		t.Errorf("times = %v-%v, want %v-%v", got.Start, got.End, newStart, newEnd)
	}
	if got.NumeroOrden == nil || *got.NumeroOrden != "OR-1" {
		t.Errorf("order number changed by update: %v", got.NumeroOrden)
	}
}

func TestDelete(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()

	start := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	id, err := s.Create(ctx, meetingRecord("To Delete", start, start.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("delete event: %v", err)
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get by id after delete: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func orderRecord(number string, at time.Time) model.RawEventRecord {
	end := at.Add(10 * time.Minute)
	return model.RawEventRecord{
		Title:       "Orden " + number,
		Start:       &at,
		End:         &end,
		Tipo:        model.TagOrder,
		NumeroOrden: &number,
	}
}

func TestCreateForOrderOnce(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	id, created, err := s.CreateForOrder(ctx, orderRecord("OR-5", at))
	if err != nil {
		t.Fatalf("create for order: %v", err)
	}
	if !created {
		t.Fatal("first call should create")
	}

	id2, created, err := s.CreateForOrder(ctx, orderRecord("OR-5", at))
	if err != nil {
		t.Fatalf("second create for order: %v", err)
	}
	if created {
		t.Error("second call should not create")
	}
	if id2 != id {
		t.Errorf("existing id = %d, want %d", id2, id)
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}

func TestCreateForOrderRequiresNumber(t *testing.T) {
	s := setupEventStore(t)
	rec := orderRecord("", time.Now())
	rec.NumeroOrden = nil

	if _, _, err := s.CreateForOrder(context.Background(), rec); err == nil {
		t.Fatal("expected error without order number")
	}
}

func TestCreateForOrderConcurrent(t *testing.T) {
	s := setupEventStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.CreateForOrder(ctx, orderRecord("OR-9", at))
			if err != nil {
				t.Errorf("create for order: %v", err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 {
		t.Errorf("created %d times, want exactly 1", createdCount)
	}
	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}
