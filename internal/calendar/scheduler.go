// Package calendar holds the scheduling core: the persisted/displayed time
// conversion, conflict detection, order synchronization and the Scheduler
// that owns the in-memory working set.
package calendar

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/duende/internal/model"
)

const DefaultStoreTimeout = 10 * time.Second

// EventInput is a user-supplied event on the displayed basis.
type EventInput struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Type        model.EventType
}

func (in *EventInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return invalid("title is required")
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return invalid("start and end are required")
	}
	if !in.Start.Before(in.End) {
		return invalid("start must be before end")
	}
	if in.Type != "" && !in.Type.Valid() {
		return invalid("unknown event type %q", in.Type)
	}
	return nil
}

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
	ChangeSynced  ChangeKind = "synced"
)

// Change describes a committed mutation of the working set.
type Change struct {
	Kind    ChangeKind
	EventID int64
	Count   int
}

type Options struct {
	// StoreTimeout bounds each gateway call. Defaults to DefaultStoreTimeout.
	StoreTimeout time.Duration
	Logger       *slog.Logger
	// Notify is called after every committed mutation.
	Notify func(Change)
}

// Scheduler is the single writer of the calendar. Each operation runs the
// conflict policy, commits through the gateway and re-reads the full event
// set before returning.
type Scheduler struct {
	mu     sync.Mutex // serializes operations
	gw     EventGateway
	syncer *Synchronizer
	logger *slog.Logger
	notify func(Change)

	viewMu sync.RWMutex
	events []model.CalendarEvent
	stale  bool
}

func New(gw EventGateway, opts Options) *Scheduler {
	if opts.StoreTimeout == 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	bounded := withTimeout(gw, opts.StoreTimeout)
	return &Scheduler{
		gw:     bounded,
		syncer: NewSynchronizer(bounded, opts.Logger),
		logger: opts.Logger,
		notify: opts.Notify,
		stale:  true,
	}
}

// Load reads the event set from the gateway.
func (s *Scheduler) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh(ctx)
}

// Events returns a copy of the working set.
func (s *Scheduler) Events() []model.CalendarEvent {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	out := make([]model.CalendarEvent, len(s.events))
	for i, ev := range s.events {
		out[i] = cloneEvent(ev)
	}
	return out
}

// Event returns the working-set event with the given id.
func (s *Scheduler) Event(id int64) (model.CalendarEvent, bool) {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	for _, ev := range s.events {
		if ev.ID == id {
			return cloneEvent(ev), true
		}
	}
	return model.CalendarEvent{}, false
}

// Check runs conflict detection without writing anything. excludeID is the
// event being edited, or 0.
func (s *Scheduler) Check(in EventInput, excludeID int64) (Verdict, error) {
	if err := in.validate(); err != nil {
		return Verdict{}, err
	}
	return Detect(Candidate{Start: in.Start, End: in.End, Type: in.Type}, s.Events(), excludeID), nil
}

// Create adds a makeup or meeting event. A soft conflict is committed only
// when override is set; a makeup conflict is always rejected.
func (s *Scheduler) Create(ctx context.Context, in EventInput, override bool) (model.CalendarEvent, error) {
	if err := in.validate(); err != nil {
		return model.CalendarEvent{}, err
	}
	switch in.Type {
	case model.EventTypeMakeup, model.EventTypeMeeting:
	case model.EventTypeOrder:
		return model.CalendarEvent{}, invalid("order events are created from confirmed orders")
	default:
		return model.CalendarEvent{}, invalid("type is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureFresh(ctx); err != nil {
		return model.CalendarEvent{}, err
	}

	ev := in.event()
	if err := s.admit(ev, 0, override); err != nil {
		return model.CalendarEvent{}, err
	}

	id, err := s.gw.Create(ctx, Denormalize(ev))
	if err != nil {
		s.logger.Error("create event", "title", ev.Title, "error", err)
		return model.CalendarEvent{}, &StoreError{Op: "create event", Err: err}
	}
	ev.ID = id

	s.refreshAfterWrite(ctx)
	if fresh, ok := s.Event(id); ok {
		ev = fresh
	}
	s.emit(Change{Kind: ChangeCreated, EventID: id, Count: 1})
	return ev, nil
}

// Update replaces the mutable fields of event id. The event itself never
// counts as a conflict. Order events keep their type; other events cannot
// become orders. An empty in.Type keeps the current type.
func (s *Scheduler) Update(ctx context.Context, id int64, in EventInput, override bool) (model.CalendarEvent, error) {
	if err := in.validate(); err != nil {
		return model.CalendarEvent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureFresh(ctx); err != nil {
		return model.CalendarEvent{}, err
	}

	current, ok := s.Event(id)
	if !ok {
		return model.CalendarEvent{}, ErrNotFound
	}

	if in.Type == "" {
		in.Type = current.Type
	}
	if (current.Type == model.EventTypeOrder) != (in.Type == model.EventTypeOrder) {
		return model.CalendarEvent{}, invalid("cannot change type from %s to %s", current.Type, in.Type)
	}

	ev := in.event()
	ev.ID = id
	ev.OrderNumber = current.OrderNumber
	if err := s.admit(ev, id, override); err != nil {
		return model.CalendarEvent{}, err
	}

	raw := Denormalize(ev)
	patch := model.EventPatch{
		Title:       raw.Title,
		Description: raw.Description,
		Start:       raw.Start,
		End:         raw.End,
		Tipo:        raw.Tipo,
	}
	if err := s.gw.Update(ctx, id, patch); err != nil {
		s.logger.Error("update event", "event_id", id, "error", err)
		return model.CalendarEvent{}, &StoreError{Op: "update event", Err: err}
	}

	s.refreshAfterWrite(ctx)
	if fresh, ok := s.Event(id); ok {
		ev = fresh
	}
	s.emit(Change{Kind: ChangeUpdated, EventID: id, Count: 1})
	return ev, nil
}

// Delete removes event id. No conflict check applies.
func (s *Scheduler) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureFresh(ctx); err != nil {
		return err
	}
	if _, ok := s.Event(id); !ok {
		return ErrNotFound
	}

	if err := s.gw.Delete(ctx, id); err != nil {
		s.logger.Error("delete event", "event_id", id, "error", err)
		return &StoreError{Op: "delete event", Err: err}
	}

	s.refreshAfterWrite(ctx)
	s.emit(Change{Kind: ChangeDeleted, EventID: id, Count: 1})
	return nil
}

// Reconcile materializes confirmed orders that have no event yet and returns
// the events created. Events created before a failure are kept and reported.
func (s *Scheduler) Reconcile(ctx context.Context, orders []model.ConfirmedOrder) ([]model.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}

	created, err := s.syncer.Reconcile(ctx, orders, s.Events())
	if len(created) > 0 {
		s.refreshAfterWrite(ctx)
		s.emit(Change{Kind: ChangeSynced, Count: len(created)})
	}
	if err != nil {
		s.logger.Error("reconcile orders", "created", len(created), "error", err)
		return created, err
	}
	return created, nil
}

// Run reconciles every snapshot delivered by feed until ctx is done.
func (s *Scheduler) Run(ctx context.Context, feed OrderFeed) error {
	updates, err := feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	for orders := range updates {
		if _, err := s.Reconcile(ctx, orders); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("order sync failed", "orders", len(orders), "error", err)
		}
	}
	return ctx.Err()
}

func (s *Scheduler) admit(ev model.CalendarEvent, excludeID int64, override bool) error {
	candidate := Candidate{Start: *ev.Start, End: *ev.End, Type: ev.Type}
	verdict := Detect(candidate, s.Events(), excludeID)

	switch verdict.Policy() {
	case PolicyBlock:
		s.logger.Info("event blocked by makeup appointment", "title", ev.Title, "conflicts", len(verdict.Conflicts))
		return &ConflictError{Verdict: verdict}
	case PolicyConfirm:
		if !override {
			return &ConflictError{Verdict: verdict}
		}
		s.logger.Info("conflict overridden", "title", ev.Title, "conflicting_type", verdict.ConflictingType)
	}
	return nil
}

func (s *Scheduler) ensureFresh(ctx context.Context) error {
	s.viewMu.RLock()
	stale := s.stale
	s.viewMu.RUnlock()
	if !stale {
		return nil
	}
	return s.refresh(ctx)
}

func (s *Scheduler) refresh(ctx context.Context) error {
	raws, err := s.gw.List(ctx)
	if err != nil {
		return &StoreError{Op: "list events", Err: err}
	}
	events, err := NormalizeAll(raws)
	if err != nil {
		return &StoreError{Op: "normalize events", Err: err}
	}

	s.viewMu.Lock()
	s.events = events
	s.stale = false
	s.viewMu.Unlock()
	return nil
}

// refreshAfterWrite re-reads the event set after a committed write. On
// failure the previous set is kept and marked stale so the next operation
// reloads it first.
func (s *Scheduler) refreshAfterWrite(ctx context.Context) {
	if err := s.refresh(ctx); err != nil {
		s.logger.Error("refresh after write", "error", err)
		s.viewMu.Lock()
		s.stale = true
		s.viewMu.Unlock()
	}
}

func (s *Scheduler) emit(c Change) {
	if s.notify != nil {
		s.notify(c)
	}
}

func (in EventInput) event() model.CalendarEvent {
	start := in.Start.UTC()
	end := in.End.UTC()
	return model.CalendarEvent{
		Title:       in.Title,
		Description: in.Description,
		Start:       &start,
		End:         &end,
		Type:        in.Type,
		AllDay:      in.Type == model.EventTypeOrder,
	}
}

func cloneEvent(ev model.CalendarEvent) model.CalendarEvent {
	if ev.Start != nil {
		v := *ev.Start
		ev.Start = &v
	}
	if ev.End != nil {
		v := *ev.End
		ev.End = &v
	}
	ev.OrderNumber = copyString(ev.OrderNumber)
	return ev
}
