// Package status serves the pipeline state over HTTP: health probes, a JSON
// snapshot, a websocket feed of changes and Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/user/homehub-voice/internal/session"
)

const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 5 * time.Second
	pingInterval      = 30 * time.Second
)

// Report is the document served by /status and pushed over /ws.
type Report struct {
	session.Snapshot
	Date string `json:"date"`
	View string `json:"view"`
}

type ReportFunc func() Report

type Server struct {
	addr     string
	report   ReportFunc
	metrics  http.Handler
	upgrader websocket.Upgrader

	server *http.Server
	done   chan struct{}

	subs   map[chan struct{}]struct{}
	subsMu sync.Mutex

	started  bool
	shutdown bool
	mu       sync.Mutex
}

// New creates a server. metrics may be nil, in which case /metrics is not
// routed.
func New(addr string, report ReportFunc, metrics http.Handler) *Server {
	return &Server{
		addr:    addr,
		report:  report,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The hub UI is served from a different local origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
		subs: make(map[chan struct{}]struct{}),
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("GET /ws", s.ws)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.started = true
	s.mu.Unlock()

	log.Info().Str("addr", s.addr).Msg("Status server listening")
	return s.server.ListenAndServe()
}

// Shutdown closes websocket feeds and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.shutdown {
		s.shutdown = true
		close(s.done)
	}
	if s.server != nil && s.started {
		s.started = false
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Notify tells websocket clients the state changed. It never blocks.
func (s *Server) Notify() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Server) subscribe() (chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	return ch, func() {
		s.subsMu.Lock()
		delete(s.subs, ch)
		s.subsMu.Unlock()
	}
}

type probe struct {
	Status string `json:"status"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probe{Status: "ok"})
}

// readyz is ready only while the microphone is capturing.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.report().Listening {
		writeJSON(w, http.StatusOK, probe{Status: "ok"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, probe{Status: "not listening"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.report())
}

func (s *Server) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade status websocket")
		return
	}
	defer conn.Close()

	changes, unsubscribe := s.subscribe()
	defer unsubscribe()

	// Drain client frames so close and pong control messages are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Debug().Str("remote", r.RemoteAddr).Msg("Status websocket connected")
	defer log.Debug().Str("remote", r.RemoteAddr).Msg("Status websocket disconnected")

	if err := s.push(conn); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-changes:
			if err := s.push(conn); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeTimeout))
			return
		}
	}
}

func (s *Server) push(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(s.report())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write JSON response")
	}
}
