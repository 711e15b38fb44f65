package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/duende/internal/calendar"
	"github.com/dukerupert/duende/internal/ics"
	"github.com/dukerupert/duende/internal/snapshot"
)

const calendarContentType = "text/calendar; charset=utf-8"

type ExportHandler struct {
	sched     *calendar.Scheduler
	snapshots *snapshot.Manager
	logger    *slog.Logger
}

func NewExportHandler(sched *calendar.Scheduler, snapshots *snapshot.Manager, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{sched: sched, snapshots: snapshots, logger: logger}
}

// Calendar serves the working set as an iCalendar feed.
func (h *ExportHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := ics.Encode(&buf, h.sched.Events(), time.Now()); err != nil {
		h.logger.Error("encode calendar", "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", calendarContentType)
	w.Header().Set("Content-Disposition", `inline; filename="duende.ics"`)
	w.Write(buf.Bytes())
}

func (h *ExportHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	key, err := h.snapshots.Upload(r.Context())
	if errors.Is(err, snapshot.ErrDisabled) {
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeMessage(w, http.StatusBadGateway, "failed to upload snapshot")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"key": key, "status": h.snapshots.Status()})
}

func (h *ExportHandler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	rc, err := h.snapshots.Latest(r.Context())
	if errors.Is(err, snapshot.ErrDisabled) {
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("latest snapshot", "error", err)
		writeMessage(w, http.StatusNotFound, "no snapshot available")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", calendarContentType)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream snapshot", "error", err)
	}
}

func (h *ExportHandler) SnapshotStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshots.Status())
}
