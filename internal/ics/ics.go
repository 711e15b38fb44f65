// Package ics renders calendar events as an iCalendar feed.
package ics

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/dukerupert/duende/internal/model"
)

const ProductID = "-//duende//calendar//ES"

// UID is the stable iCalendar identifier for an event.
func UID(id int64) string {
	return fmt.Sprintf("event-%d@duende", id)
}

// Calendar builds a VCALENDAR with one VEVENT per event that has a start.
// All-day events are written as DATE values ending the following day.
func Calendar(events []model.CalendarEvent, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText("X-WR-CALNAME", "Duende")

	stamp := now.UTC()
	for _, ev := range events {
		if ev.Start == nil {
			continue
		}
		cal.Children = append(cal.Children, vevent(ev, stamp))
	}
	return cal
}

// Encode writes the events as iCalendar to w.
func Encode(w io.Writer, events []model.CalendarEvent, now time.Time) error {
	if err := ical.NewEncoder(w).Encode(Calendar(events, now)); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func vevent(ev model.CalendarEvent, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, UID(ev.ID))
	ve.Props.SetText(ical.PropSummary, ev.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	ve.Props.SetText(ical.PropCategories, string(ev.Type))

	if ev.AllDay {
		day := ev.Start.UTC()
		ve.Props.SetDate(ical.PropDateTimeStart, day)
		ve.Props.SetDate(ical.PropDateTimeEnd, day.AddDate(0, 0, 1))
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.UTC())
		if ev.End != nil {
			ve.Props.SetDateTime(ical.PropDateTimeEnd, ev.End.UTC())
		}
	}

	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.OrderNumber != nil {
		ve.Props.SetText("X-DUENDE-ORDER", *ev.OrderNumber)
	}
	return ve
}
