package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/duende/internal/calendar"
	"github.com/dukerupert/duende/internal/model"
)

type CalendarEventHandler struct {
	sched  *calendar.Scheduler
	logger *slog.Logger
}

func NewCalendarEventHandler(sched *calendar.Scheduler, logger *slog.Logger) *CalendarEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarEventHandler{sched: sched, logger: logger}
}

type eventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Type        string `json:"type"`
	Override    bool   `json:"override"`
	// ExcludeID names the event being edited on /check.
	ExcludeID int64 `json:"exclude_id"`
}

func (h *CalendarEventHandler) parseInput(w http.ResponseWriter, r *http.Request) (*eventRequest, calendar.EventInput, bool) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return nil, calendar.EventInput{}, false
	}

	start, err := parseOptionalTime(req.Start)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "start must be RFC3339 format")
		return nil, calendar.EventInput{}, false
	}
	end, err := parseOptionalTime(req.End)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "end must be RFC3339 format")
		return nil, calendar.EventInput{}, false
	}

	in := calendar.EventInput{
		Title:       req.Title,
		Description: req.Description,
		Start:       start,
		End:         end,
		Type:        model.EventType(strings.ToLower(strings.TrimSpace(req.Type))),
	}
	return &req, in, true
}

// List returns the working set. With start and end it returns only events
// whose interval overlaps [start, end); undated events are left out then.
func (h *CalendarEventHandler) List(w http.ResponseWriter, r *http.Request) {
	events := h.sched.Events()

	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr != "" || endStr != "" {
		if startStr == "" || endStr == "" {
			writeMessage(w, http.StatusBadRequest, "start and end must be given together")
			return
		}
		start, err := parseFlexibleTime(startStr)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "start must be RFC3339 or YYYY-MM-DD format")
			return
		}
		end, err := parseFlexibleTime(endStr)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "end must be RFC3339 or YYYY-MM-DD format")
			return
		}
		events = inRange(events, start, end)
	}

	if events == nil {
		events = []model.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *CalendarEventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	event, ok := h.sched.Event(id)
	if !ok {
		writeMessage(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *CalendarEventHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, in, ok := h.parseInput(w, r)
	if !ok {
		return
	}

	event, err := h.sched.Create(r.Context(), in, req.Override)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *CalendarEventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	req, in, ok := h.parseInput(w, r)
	if !ok {
		return
	}

	event, err := h.sched.Update(r.Context(), id, in, req.Override)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *CalendarEventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.sched.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkResponse struct {
	calendar.Verdict
	Policy string `json:"policy"`
}

// Check reports what Create or Update would decide, without writing.
func (h *CalendarEventHandler) Check(w http.ResponseWriter, r *http.Request) {
	req, in, ok := h.parseInput(w, r)
	if !ok {
		return
	}

	verdict, err := h.sched.Check(in, req.ExcludeID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Verdict: verdict, Policy: verdict.Policy().String()})
}

func inRange(events []model.CalendarEvent, start, end time.Time) []model.CalendarEvent {
	var out []model.CalendarEvent
	for _, ev := range events {
		if ev.Start == nil || !ev.Start.Before(end) {
			continue
		}
		evEnd := *ev.Start
		if ev.End != nil {
			evEnd = *ev.End
		}
		if evEnd.After(start) || !ev.Start.Before(start) {
			out = append(out, ev)
		}
	}
	return out
}

func parseOptionalTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseFlexibleTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
