// Package server exposes a running simulation over HTTP: a JSON control
// API, a websocket frame stream and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/logging"
	"github.com/nvandessel/nexus/internal/scheduler"
	"github.com/nvandessel/nexus/internal/simulator"
	"github.com/nvandessel/nexus/internal/visualization"
)

// maxBodyBytes bounds request bodies on the control API.
const maxBodyBytes = 1 << 16

// Server serves the control API for one driver.
type Server struct {
	driver   *scheduler.Driver
	hub      *Hub
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves gatherer on /metrics. Without it /metrics is 404.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server for d and subscribes its websocket hub to d.
func New(d *scheduler.Driver, opts ...Option) *Server {
	s := &Server{
		driver: d,
		logger: logging.Discard(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger)
	d.Subscribe(s.hub)
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Addr returns the address the server is listening on. Returns the empty
// string before ListenAndServe has bound.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/nodes/{id}", s.handleNode)
	mux.HandleFunc("GET /api/graph", s.handleGraph)
	mux.HandleFunc("POST /api/start", s.handleCommand(s.driver.Start))
	mux.HandleFunc("POST /api/pause", s.handleCommand(s.driver.Pause))
	mux.HandleFunc("POST /api/reset", s.handleCommand(s.driver.Reset))
	mux.HandleFunc("POST /api/tick", s.handleTick)
	mux.HandleFunc("POST /api/params", s.handleParams)
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s.logRequests(mux)
}

// ListenAndServe binds addr and serves until ctx is cancelled. An empty
// addr picks a free localhost port. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = "localhost:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		s.hub.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.driver.Status())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.driver.Frame())
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	activation, err := s.driver.ActivationOf(id)
	if errors.Is(err, graph.ErrUnknownNode) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         id,
		"activation": activation,
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	format, err := visualization.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	nodes := s.driver.Frame().Nodes
	switch format {
	case visualization.FormatJSON:
		writeJSON(w, http.StatusOK, visualization.RenderJSON(nodes))
	default:
		w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
		w.Write([]byte(visualization.RenderDOT(nodes)))
	}
}

func (s *Server) handleCommand(fn func() simulator.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fn())
	}
}

// tickResponse reports a manual tick.
type tickResponse struct {
	Advanced bool             `json:"advanced"`
	Status   simulator.Status `json:"status"`
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	advanced, err := s.driver.Tick()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tickResponse{Advanced: advanced, Status: s.driver.Status()})
}

// paramsRequest carries optional parameter updates. Omitted fields keep
// their current value.
type paramsRequest struct {
	RecursionDepth    *int     `json:"recursion_depth"`
	IntrospectionRate *float64 `json:"introspection_rate"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.RecursionDepth == nil && req.IntrospectionRate == nil {
		writeError(w, http.StatusBadRequest, "recursion_depth or introspection_rate is required")
		return
	}

	writeJSON(w, http.StatusOK, s.driver.UpdateParams(req.RecursionDepth, req.IntrospectionRate))
}

// wsCommand is a control message sent by a websocket client.
type wsCommand struct {
	Type              string   `json:"type"`
	RecursionDepth    *int     `json:"recursion_depth,omitempty"`
	IntrospectionRate *float64 `json:"introspection_rate,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	initial, err := json.Marshal(s.driver.Frame())
	if err != nil {
		conn.Close()
		return
	}
	c := s.hub.register(conn, initial)
	defer s.hub.unregister(c)

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.applyCommand(cmd)
	}
}

func (s *Server) applyCommand(cmd wsCommand) {
	switch cmd.Type {
	case "start":
		s.driver.Start()
	case "pause":
		s.driver.Pause()
	case "reset":
		s.driver.Reset()
	case "tick":
		if _, err := s.driver.Tick(); err != nil {
			s.logger.Error("websocket tick failed", "error", err)
		}
	case "params":
		s.driver.UpdateParams(cmd.RecursionDepth, cmd.IntrospectionRate)
	default:
		s.logger.Debug("ignoring websocket command", "type", cmd.Type)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
