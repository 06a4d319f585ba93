package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/lazypower/horizon/internal/alert"
	"github.com/lazypower/horizon/internal/event"
	"github.com/lazypower/horizon/internal/feed"
	"github.com/lazypower/horizon/internal/horizon"
	"github.com/lazypower/horizon/internal/store"
)

// maxBody bounds an ingest request.
const maxBody = 4 << 20

// Server is the horizon HTTP API server.
type Server struct {
	scanner *horizon.Scanner
	db      *store.DB
	hub     *alert.Hub
	limiter *rate.Limiter
	parser  *feed.Parser
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server over the scanner. db may be nil, in which case pushed
// events are not archived and reports come from the scanner's history.
func New(sc *horizon.Scanner, db *store.DB, version string) *Server {
	s := &Server{
		scanner: sc,
		db:      db,
		version: version,
		started: time.Now(),
		limiter: rate.NewLimiter(rate.Inf, 0),
		parser:  &feed.Parser{Classifier: event.NewClassifier(sc.Config().KeywordTags)},
	}
	s.routes()
	return s
}

// SetHub enables the websocket alert endpoint.
func (s *Server) SetHub(h *alert.Hub) { s.hub = h }

// SetIngestLimit throttles POST /api/events to perSecond events with the
// given burst. A non-positive rate removes the limit.
func (s *Server) SetIngestLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		s.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/events", s.handleIngest)
		r.Post("/scan", s.handleScan)
		r.Post("/baseline", s.handleBaseline)

		r.Get("/reports", s.handleListReports)
		r.Get("/reports/{reportID}", s.handleGetReport)
		r.Get("/patterns", s.handlePatterns)
		r.Get("/emerging", s.handleEmerging)
		r.Get("/resonance", s.handleResonance)
		r.Get("/quiet", s.handleQuiet)
		r.Get("/anomalies", s.handleAnomalies)
		r.Get("/alerts/ws", s.handleAlerts)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"version":  s.version,
		"uptime":   time.Since(s.started).Seconds(),
		"patterns": len(s.scanner.Patterns(patternQueryAll)),
	}
	if s.db != nil {
		body["db"] = s.db.PingContext(r.Context()) == nil
		body["db_path"] = s.db.Path
		if st, err := s.db.Stats(r.Context()); err == nil {
			body["pending"] = st.Pending
			body["store"] = st
		}
	}
	if s.hub != nil {
		body["alert_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
