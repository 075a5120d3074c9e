// Package httpapi is the local control surface: session connect/disconnect,
// status, the event log (snapshot and live stream), and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vesper-voice/vesper/internal/audio"
	"github.com/vesper-voice/vesper/internal/config"
	"github.com/vesper-voice/vesper/internal/eventlog"
	"github.com/vesper-voice/vesper/internal/observability"
	"github.com/vesper-voice/vesper/internal/session"
)

// SessionController is the slice of the voice session the API drives.
type SessionController interface {
	Connect(ctx context.Context) error
	Disconnect()
	Connected() bool
	Scheduler() *audio.Scheduler
}

// MemoryBackend reports connectivity for the status endpoint.
type MemoryBackend interface {
	Connected() bool
}

type Server struct {
	cfg      config.Config
	control  SessionController
	tracker  *session.Tracker
	log      *eventlog.Log
	window   *observability.LatencyWindow
	memcore  MemoryBackend
	meter    *audio.LevelMeter
	upgrader websocket.Upgrader
}

func New(cfg config.Config, control SessionController, tracker *session.Tracker, log *eventlog.Log, window *observability.LatencyWindow, memcore MemoryBackend, meter *audio.LevelMeter) *Server {
	return &Server{
		cfg:     cfg,
		control: control,
		tracker: tracker,
		log:     log,
		window:  window,
		memcore: memcore,
		meter:   meter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections may watch the log
				// stream if the API is ever exposed beyond localhost.
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/log", s.handleLog)
	r.Get("/api/log/stream", s.handleLogStream)
	r.Post("/api/session/connect", s.handleConnect)
	r.Post("/api/session/disconnect", s.handleDisconnect)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type statusResponse struct {
	Session       session.Snapshot              `json:"session"`
	MemcoreOnline bool                          `json:"memcore_online"`
	MicLevel      float64                       `json:"mic_level"`
	Playback      *playbackStatus               `json:"playback,omitempty"`
	Latency       observability.LatencySnapshot `json:"latency"`
}

type playbackStatus struct {
	ActiveBuffers int     `json:"active_buffers"`
	CursorSeconds float64 `json:"cursor_seconds"`
	ClockSeconds  float64 `json:"clock_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Session:       s.tracker.Snapshot(),
		MemcoreOnline: s.memcore != nil && s.memcore.Connected(),
		Latency:       s.window.Snapshot(),
	}
	if s.meter != nil {
		resp.MicLevel = s.meter.Level()
	}
	if sched := s.control.Scheduler(); sched != nil {
		resp.Playback = &playbackStatus{
			ActiveBuffers: sched.ActiveCount(),
			CursorSeconds: sched.Cursor(),
			ClockSeconds:  sched.Now(),
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": s.log.Recent(limit)})
}

// handleLogStream pushes log entries over a websocket as they are published.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	entries, unsubscribe := s.log.Subscribe(128)
	defer unsubscribe()

	// Reader goroutine only to detect the peer going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Connect(r.Context()); err != nil {
		respondError(w, http.StatusConflict, "connect_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"session": s.tracker.Snapshot()})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.control.Disconnect()
	respondJSON(w, http.StatusOK, map[string]any{"status": "disconnecting"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
