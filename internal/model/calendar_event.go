package model

import (
	"fmt"
	"time"
)

// EventType classifies a calendar entry.
type EventType string

const (
	EventTypeMakeup  EventType = "makeup"
	EventTypeMeeting EventType = "meeting"
	EventTypeOrder   EventType = "order"
)

// Persisted tags for each event type.
const (
	TagMakeup  = "maquillaje"
	TagMeeting = "reunion"
	TagOrder   = "orden"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeMakeup, EventTypeMeeting, EventTypeOrder:
		return true
	}
	return false
}

// Tag returns the persisted tag for t.
func (t EventType) Tag() string {
	switch t {
	case EventTypeMakeup:
		return TagMakeup
	case EventTypeMeeting:
		return TagMeeting
	case EventTypeOrder:
		return TagOrder
	}
	return ""
}

// ParseTag maps a persisted tag back to its event type.
func ParseTag(tag string) (EventType, error) {
	switch tag {
	case TagMakeup:
		return EventTypeMakeup, nil
	case TagMeeting:
		return EventTypeMeeting, nil
	case TagOrder:
		return EventTypeOrder, nil
	}
	return "", fmt.Errorf("unknown event tag %q", tag)
}

// CalendarEvent is an event on the displayed time basis.
type CalendarEvent struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	Type        EventType  `json:"type"`
	AllDay      bool       `json:"all_day"`
	OrderNumber *string    `json:"order_number,omitempty"`
}

// Interval returns the event's time range. ok is false when either bound is null.
func (e CalendarEvent) Interval() (start, end time.Time, ok bool) {
	if e.Start == nil || e.End == nil {
		return time.Time{}, time.Time{}, false
	}
	return *e.Start, *e.End, true
}

// RawEventRecord is an event as persisted, on the storage time basis.
type RawEventRecord struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	Description string     `json:"description"`
	Tipo        string     `json:"tipo"`
	NumeroOrden *string    `json:"numeroOrden"`
}

// EventPatch holds the fields an update writes. Identity and order number are immutable.
type EventPatch struct {
	Title       string
	Description string
	Start       *time.Time
	End         *time.Time
	Tipo        string
}
