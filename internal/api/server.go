// Package api serves the run status HTTP API and mounts channel subscriptions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/cache"
	"github.com/bryanchriswhite/DetectorSim/internal/channel"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/bryanchriswhite/DetectorSim/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	// StatsStreamInterval is how often /api/stats/stream pushes a status
	StatsStreamInterval = time.Second
	version             = "0.1.0"
)

// Run is the part of a server run the API reports on
type Run interface {
	Info() server.Info
	Stats() server.Stats
	Cache() cache.Cache
}

// Status is the body of /api/stats and of each stats stream message
type Status struct {
	Info  server.Info       `json:"info"`
	Stats server.Stats      `json:"stats"`
	Cache cache.Stats       `json:"cache"`
	Hub   *channel.HubStats `json:"hub,omitempty"`
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	run      Run
	config   any
	hub      *channel.Hub
	upgrader websocket.Upgrader
	interval time.Duration

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	quit     chan struct{}
	streams  sync.WaitGroup
}

// NewServer creates a new API server. cfg is served as is on /api/config.
// hub may be nil when frames go out over another transport.
func NewServer(run Run, cfg any, hub *channel.Hub) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		run:      run,
		config:   cfg,
		hub:      hub,
		interval: StatsStreamInterval,
		quit:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/stats/stream", s.handleStatsStream)
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/channels", s.handleChannels).Methods("GET")

	if s.hub != nil {
		s.router.HandleFunc("/channels/{name}", s.hub.SubscribeHandler())
	}
}

// Handler returns the routed handler with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	srv := s.httpSrv
	s.mu.Unlock()

	logger.WithComponent("api").Info().Str("addr", ln.Addr().String()).Msg("Starting API server")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithComponent("api").Error().Err(err).Msg("API server stopped")
		}
	}()
	return nil
}

// Addr returns the listening address, or "" before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server and closes open stats streams
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	srv := s.httpSrv
	s.httpSrv = nil
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.streams.Wait()
	return err
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) status() Status {
	st := Status{
		Info:  s.run.Info(),
		Stats: s.run.Stats(),
		Cache: s.run.Cache().Stats(),
	}
	if s.hub != nil {
		hs := s.hub.Stats()
		st.Hub = &hs
	}
	return st
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Response write failed")
	}
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.run.Stats()
	writeJSON(w, map[string]any{
		"status":  "healthy",
		"version": version,
		"run_id":  stats.RunID,
		"done":    stats.Done,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.config)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if s.hub != nil {
		writeJSON(w, s.hub.Channels())
		return
	}
	writeJSON(w, []channel.ChannelInfo{{Name: s.run.Info().ChannelName}})
}

func (s *Server) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		return
	default:
	}
	s.streams.Add(1)
	s.mu.Unlock()
	defer s.streams.Done()

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.status()); err != nil {
			logger.WithComponent("api").Debug().Err(err).Msg("WebSocket write error")
			return
		}
		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-s.quit:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
