package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/duende/internal/calendar"
	"github.com/dukerupert/duende/internal/handler"
	"github.com/dukerupert/duende/internal/middleware"
	"github.com/dukerupert/duende/internal/snapshot"
	"github.com/dukerupert/duende/internal/store"
	ws "github.com/dukerupert/duende/internal/websocket"
)

type Options struct {
	// WriteRateLimit is the number of writes per client per minute. Zero disables limiting.
	WriteRateLimit int
	// OriginPatterns restricts websocket origins. Empty accepts any.
	OriginPatterns []string
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	sched       *calendar.Scheduler
	snapshots   *snapshot.Manager
	eventH      *handler.CalendarEventHandler
	orderH      *handler.OrderHandler
	exportH     *handler.ExportHandler
	rateLimiter *middleware.RateLimiter
	opts        Options
	logger      *slog.Logger
}

func New(db *sql.DB, sched *calendar.Scheduler, orders *store.OrderStore, snapshots *snapshot.Manager, hub *ws.Hub, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		db:          db,
		hub:         hub,
		sched:       sched,
		snapshots:   snapshots,
		eventH:      handler.NewCalendarEventHandler(sched, logger.With("component", "calendar")),
		orderH:      handler.NewOrderHandler(orders, logger.With("component", "orders")),
		exportH:     handler.NewExportHandler(sched, snapshots, logger.With("component", "export")),
		rateLimiter: middleware.NewRateLimiter(),
		opts:        opts,
		logger:      logger,
	}
}

// ChangeNotifier turns scheduler changes into websocket broadcasts.
func ChangeNotifier(hub *ws.Hub) func(calendar.Change) {
	return func(c calendar.Change) {
		hub.Broadcast(ws.EventMessage(string(c.Kind), c.EventID, c.Count))
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.opts.OriginPatterns...))
	mux.HandleFunc("GET /calendar.ics", s.exportH.Calendar)

	api := http.NewServeMux()
	s.registerAPIRoutes(api)

	var apiHandler http.Handler = api
	if s.opts.WriteRateLimit > 0 {
		apiHandler = middleware.RateLimit(s.rateLimiter, s.opts.WriteRateLimit, time.Minute)(api)
	}
	mux.Handle("/api/", apiHandler)

	return middleware.RequestID(middleware.RequestLogger(s.logger.With("component", "http"))(mux))
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	// Calendar events
	mux.HandleFunc("GET /api/events", s.eventH.List)
	mux.HandleFunc("POST /api/events", s.eventH.Create)
	mux.HandleFunc("POST /api/events/check", s.eventH.Check)
	mux.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	mux.HandleFunc("PUT /api/events/{id}", s.eventH.Update)
	mux.HandleFunc("DELETE /api/events/{id}", s.eventH.Delete)

	// Orders
	mux.HandleFunc("GET /api/orders", s.orderH.List)
	mux.HandleFunc("POST /api/orders", s.orderH.Upsert)
	mux.HandleFunc("GET /api/orders/{number}", s.orderH.Get)
	mux.HandleFunc("PUT /api/orders/{number}/status", s.orderH.UpdateStatus)

	// Snapshots
	mux.HandleFunc("POST /api/snapshots", s.exportH.CreateSnapshot)
	mux.HandleFunc("GET /api/snapshots/latest", s.exportH.LatestSnapshot)
	mux.HandleFunc("GET /api/snapshots/status", s.exportH.SnapshotStatus)
}

type healthResponse struct {
	Status    string         `json:"status"`
	Database  string         `json:"database"`
	Events    int            `json:"events"`
	Clients   int            `json:"ws_clients"`
	Snapshots snapshot.State `json:"snapshots"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Database:  "ok",
		Events:    len(s.sched.Events()),
		Clients:   s.hub.ClientCount(),
		Snapshots: s.snapshots.Status().State,
	}
	status := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health: database ping", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
