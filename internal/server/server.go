// Package server exposes the review session over HTTP and streams every
// state change to websocket clients.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"call-review-go/internal/aggregator"
	"call-review-go/internal/backend"
	"call-review-go/internal/feed"
	"call-review-go/internal/feedback"
	"call-review-go/internal/logger"
	"call-review-go/internal/review"
	"call-review-go/internal/types"
)

// WorstCaller finds an agent's lowest scoring call for deep review.
type WorstCaller interface {
	WorstCall(ctx context.Context, agentName string) (types.CallDetail, error)
}

type Deps struct {
	Feed      *feed.Poller
	Reviewer  *review.Reviewer
	Drafts    *feedback.Drafts
	Submitter *feedback.Submitter
	Log       *feedback.Log
	Worst     WorstCaller
	Logger    *logger.Logger
}

type Server struct {
	Deps
	hub *Hub
	mux *http.ServeMux
}

// New builds the handler tree and subscribes the websocket hub to feed,
// session and acknowledgement changes.
func New(d Deps) *Server {
	s := &Server{Deps: d, hub: NewHub(d.Logger.Entry), mux: http.NewServeMux()}

	d.Reviewer.OnChange(func(v review.View) { s.hub.Broadcast("session", v) })
	d.Feed.Subscribe(func(snap feed.Snapshot) { s.hub.Broadcast("feed", s.escalations(snap)) })
	d.Submitter.OnChange(func() { s.hub.Broadcast("ack", s.ack()) })

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /escalations", s.handleEscalations)
	s.mux.HandleFunc("POST /escalations/refresh", s.handleRefresh)

	s.mux.HandleFunc("POST /calls/{id}/select", s.handleSelect)
	s.mux.HandleFunc("POST /agents/{name}/worst-call", s.handleWorstCall)

	s.mux.HandleFunc("GET /session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Reviewer.View())
	})
	s.mux.HandleFunc("DELETE /session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Reviewer.Collapse())
	})
	s.mux.HandleFunc("POST /session/play", s.control(s.Reviewer.Play))
	s.mux.HandleFunc("POST /session/pause", s.control(s.Reviewer.Pause))
	s.mux.HandleFunc("POST /session/toggle", s.control(s.Reviewer.TogglePlay))
	s.mux.HandleFunc("POST /session/seek", s.handleSeek)
	s.mux.HandleFunc("POST /session/deviations/{index}/seek", s.handleSeekDeviation)
	s.mux.HandleFunc("PUT /session/draft", s.handleDraft)
	s.mux.HandleFunc("POST /session/feedback", s.handleSubmit)

	s.mux.HandleFunc("GET /feedback", s.handleFeedbackLog)
	s.mux.HandleFunc("GET /feedback/export", s.handleExport)

	s.mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		s.hub.ServeWS(w, r,
			Message{Type: "feed", Data: s.escalations(s.Feed.Snapshot())},
			Message{Type: "session", Data: s.Reviewer.View()},
			Message{Type: "ack", Data: s.ack()},
		)
	})
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.withLogging(s.mux)
}

func (s *Server) Hub() *Hub { return s.hub }

// Close disconnects websocket clients.
func (s *Server) Close() { s.hub.Close() }

type escalationsView struct {
	feed.Snapshot
	Loaded bool               `json:"loaded"`
	Stats  aggregator.Insight `json:"stats"`
}

func (s *Server) escalations(snap feed.Snapshot) escalationsView {
	return escalationsView{Snapshot: snap, Loaded: s.Feed.Loaded(), Stats: snap.Stats()}
}

func (s *Server) ack() *feedback.Ack {
	a, ok := s.Submitter.Ack()
	if !ok {
		return nil
	}
	return &a
}

func (s *Server) handleEscalations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.escalations(s.Feed.Snapshot()))
}

// handleRefresh forces a feed fetch. A failed fetch still returns the
// snapshot being kept, with 502.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if err := s.Feed.Refresh(r.Context()); err != nil {
		s.Logger.WithRequest(r).WithError(err).Warn("manual refresh failed")
		status = http.StatusBadGateway
	}
	writeJSON(w, status, s.escalations(s.Feed.Snapshot()))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	v, err := s.Reviewer.Select(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleWorstCall(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	detail, err := s.Worst.WorstCall(r.Context(), name)
	if err != nil {
		s.fail(w, r, fmt.Errorf("worst call for %s: %w", name, err))
		return
	}
	writeJSON(w, http.StatusOK, s.Reviewer.OpenDetail(detail))
}

func (s *Server) control(op func() (review.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := op()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fraction *float64 `json:"fraction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Fraction == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"fraction\": 0..1}")
		return
	}
	v, err := s.Reviewer.Seek(*body.Fraction)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSeekDeviation(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "deviation index must be an integer")
		return
	}
	v, err := s.Reviewer.SeekToDeviation(idx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type draftBody struct {
	Text *string `json:"text"`
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var body draftBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"text\": \"...\"}")
		return
	}
	call, ok := s.Reviewer.Current()
	if !ok {
		s.fail(w, r, review.ErrNoSession)
		return
	}
	d, err := s.Drafts.Update(call.CallID, *body.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type submitResponse struct {
	Record types.FeedbackRecord `json:"record"`
	Ack    *feedback.Ack        `json:"ack,omitempty"`
}

// handleSubmit sends the open call's draft. An optional {"text"} body
// replaces the draft first.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	call, ok := s.Reviewer.Current()
	if !ok {
		s.fail(w, r, review.ErrNoSession)
		return
	}
	var body draftBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Text != nil {
		if _, err := s.Drafts.Update(call.CallID, *body.Text); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	draft, ok := s.Drafts.Get(call.CallID)
	if !ok {
		s.fail(w, r, feedback.ErrNoDraft)
		return
	}

	rec, err := s.Submitter.Submit(r.Context(), call.CallID, call.Agent, draft.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.hub.Broadcast("session", s.Reviewer.View())
	writeJSON(w, http.StatusOK, submitResponse{Record: rec, Ack: s.ack()})
}

func (s *Server) handleFeedbackLog(w http.ResponseWriter, r *http.Request) {
	entries := s.Log.Entries()
	if id := r.URL.Query().Get("call_id"); id != "" {
		entries = s.Log.ForCall(id)
	}
	if entries == nil {
		entries = []types.FeedbackRecord{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="coaching-remarks.xlsx"`)
	if err := s.Log.ExportXLSX(w); err != nil {
		s.Logger.WithRequest(r).WithError(err).Error("feedback export failed")
	}
}

// fail maps domain errors onto HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *feedback.ValidationError
		se *feedback.SubmitError
		be *backend.StatusError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.Is(err, review.ErrUnknownCall), errors.Is(err, review.ErrNoDeviation):
		status = http.StatusNotFound
	case errors.Is(err, review.ErrNoSession), errors.Is(err, feedback.ErrNoDraft):
		status = http.StatusConflict
	case errors.As(err, &se):
		status = http.StatusBadGateway
	case errors.As(err, &be) && be.Code == http.StatusNotFound:
		status = http.StatusNotFound
	case errors.As(err, &be):
		status = http.StatusBadGateway
	}

	entry := s.Logger.WithRequest(r).WithError(err).WithField("status", status)
	if status >= 500 {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLog := s.Logger.WithRequest(r)
		if id, ok := reqLog.Data["req_id"].(string); ok {
			r.Header.Set(logger.RequestIDHeader, id)
			w.Header().Set(logger.RequestIDHeader, id)
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		reqLog.WithFields(logrus.Fields{
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request served")
	})
}
