package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/horizon/internal/event"
	"github.com/lazypower/horizon/internal/feed"
	"github.com/lazypower/horizon/internal/horizon"
	"github.com/lazypower/horizon/internal/pattern"
)

var patternQueryAll = pattern.Query{}

type ingestResult struct {
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	Skipped    int      `json:"skipped"`
	IDs        []string `json:"ids"`
}

// handleIngest accepts one event object, a JSON array of them, or
// newline-delimited JSON when the content type is application/x-ndjson.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	if len(body) > maxBody {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	events, skipped, err := s.decodeEvents(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	n := len(events) + skipped
	if n > 0 && !s.limiter.AllowN(time.Now(), n) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "ingest rate exceeded")
		return
	}

	res := ingestResult{Skipped: skipped, IDs: []string{}}
	for _, ev := range events {
		switch err := s.scanner.Ingest(ev); {
		case errors.Is(err, horizon.ErrDuplicate):
			res.Duplicates++
		case err != nil:
			log.Printf("ingest: skipping %s: %v", ev.ID, err)
			res.Skipped++
		default:
			res.Accepted++
			res.IDs = append(res.IDs, ev.ID)
			if s.db != nil {
				if _, err := s.db.ArchiveEvent(r.Context(), ev); err != nil {
					log.Printf("ingest: archive %s: %v", ev.ID, err)
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) decodeEvents(contentType string, body []byte) ([]event.Record, int, error) {
	if strings.HasPrefix(contentType, "application/x-ndjson") {
		res, err := s.parser.Parse(bytes.NewReader(body))
		return res.Events, res.Skipped, err
	}

	var lines []feed.Line
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &lines); err != nil {
			return nil, 0, err
		}
	} else {
		var l feed.Line
		if err := json.Unmarshal(trimmed, &l); err != nil {
			return nil, 0, err
		}
		lines = append(lines, l)
	}

	var (
		events  []event.Record
		skipped int
	)
	for _, l := range lines {
		ev, err := s.parser.Record(l)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	res := s.scanner.Scan(r.Context())
	if res.TooSoon {
		writeJSON(w, http.StatusOK, map[string]any{
			"too_soon":  true,
			"next_scan": res.NextScan,
		})
		return
	}
	writeJSON(w, http.StatusOK, res.Report)
}

func (s *Server) handleBaseline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scanner.EstablishBaseline())
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	if s.db == nil {
		reports := s.scanner.Reports()
		// newest first, to match the archive
		out := make([]horizon.Report, 0, limit)
		for i := len(reports) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, reports[i])
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	reports, err := s.db.ListReports(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reports == nil {
		reports = []horizon.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reportID")

	if s.db == nil {
		for _, rep := range s.scanner.Reports() {
			if rep.ID == id {
				writeJSON(w, http.StatusOK, rep)
				return
			}
		}
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	rep, err := s.db.GetReport(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rep == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	q, err := parsePatternQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patterns := s.scanner.Patterns(q)
	if patterns == nil {
		patterns = []pattern.Pattern{}
	}
	writeJSON(w, http.StatusOK, patterns)
}

func parsePatternQuery(r *http.Request) (pattern.Query, error) {
	var q pattern.Query
	params := r.URL.Query()
	if v := params.Get("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			return q, errors.New("invalid min_confidence")
		}
		q.MinConfidence = f
	}
	if v := params.Get("min_frequency"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, errors.New("invalid min_frequency")
		}
		q.MinFrequency = n
	}
	if v := params.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, errors.New("invalid since, want RFC 3339")
		}
		q.Since = t
	}
	return q, nil
}

func (s *Server) handleEmerging(w http.ResponseWriter, r *http.Request) {
	emerging := s.scanner.Emerging()
	if emerging == nil {
		emerging = []horizon.EmergingPattern{}
	}
	writeJSON(w, http.StatusOK, emerging)
}

func (s *Server) handleResonance(w http.ResponseWriter, r *http.Request) {
	threshold := 0.0
	if v := r.URL.Query().Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			writeError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = f
	}

	body := map[string]any{"scores": s.scanner.Resonance()}
	if tag, ok := s.scanner.DominantTag(threshold); ok {
		body["dominant_tag"] = tag
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleQuiet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scanner.QuietDensity())
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	anomalies := s.scanner.Anomalies()
	if anomalies == nil {
		anomalies = []horizon.Anomaly{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"baseline":  s.scanner.Baseline(),
		"anomalies": anomalies,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "alerts not configured")
		return
	}
	s.hub.ServeWS(w, r)
}
