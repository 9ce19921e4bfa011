package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quarterdeck/captain/pkg/captain"
	"github.com/quarterdeck/captain/pkg/log"
	"github.com/quarterdeck/captain/pkg/metrics"
)

// Server is the captain's HTTP ingress: the user surface, the sailor
// surface (prereg and heartbeat), and the operational endpoints.
type Server struct {
	captain    *captain.Captain
	router     *mux.Router
	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// NewServer creates an API server over the given captain.
func NewServer(c *captain.Captain) *Server {
	s := &Server{
		captain: c,
		router:  mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.WithComponent("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.instrument)

	// Crew
	r.HandleFunc("/crew", s.handleListCrew).Methods(http.MethodGet)
	r.HandleFunc("/api/crew/", s.handleListCrew).Methods(http.MethodGet)
	r.HandleFunc("/api/crew/{name}", s.handleRemoveSailor).Methods(http.MethodDelete)
	r.HandleFunc("/prereg", s.handlePrereg).Methods(http.MethodPost)
	r.HandleFunc("/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)

	// Chores
	r.HandleFunc("/chores", s.handleListChores).Methods(http.MethodGet)
	r.HandleFunc("/api/chores/", s.handleListChores).Methods(http.MethodGet)
	r.HandleFunc("/api/chores/{id:[0-9]+}", s.handleGetChore).Methods(http.MethodGet)
	r.HandleFunc("/chore", s.handleSubmitChore).Methods(http.MethodPost)
	r.HandleFunc("/cancel", s.handleCancelChore).Methods(http.MethodPost)
	r.HandleFunc("/api/archive", s.handleArchive).Methods(http.MethodGet)

	// Users and sessions
	r.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	r.HandleFunc("/user-set", s.handleSetUser).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/me/chores", s.handleMyChores).Methods(http.MethodGet)
	r.HandleFunc("/me/cancel", s.handleMyCancel).Methods(http.MethodPost)

	// Operational
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// Start binds the listener and serves in the background. The bound
// address is available from Addr once Start returns.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = lis
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("api listening")
	metrics.SetComponent("api", true, "listening on "+lis.Addr().String())

	go func() {
		if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("api server error")
			metrics.SetComponent("api", false, err.Error())
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info().Msg("api shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
