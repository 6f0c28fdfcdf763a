// Package server runs the conversation websocket and its HTTP surface.
//
// Each /ws connection is a session: inbound AUDIO frames are decoded, fed to
// the session's recognizer, and every finalized utterance is passed through
// the voice pipeline. The reply goes back on the same socket as one AUDIO
// frame.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-parley/pkg/stt"
	"github.com/teslashibe/go-parley/pkg/voice"
)

// ErrMissingDependency is returned by New without a factory or pipeline.
var ErrMissingDependency = errors.New("server: recognizer factory and pipeline are required")

// Server accepts conversation sessions.
type Server struct {
	app      *fiber.App
	factory  stt.Factory
	pipeline *voice.Pipeline
	config   *Config
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// New builds the server and its routes.
func New(factory stt.Factory, pipeline *voice.Pipeline, opts ...Option) (*Server, error) {
	if factory == nil || pipeline == nil {
		return nil, ErrMissingDependency
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		factory:  factory,
		pipeline: pipeline,
		config:   cfg,
		logger:   cfg.Logger.With("component", "server"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "go-parley",
		DisableStartupMessage: true,
		BodyLimit:             int(cfg.ReadLimit),
	})
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.app.Use(recover.New())
	s.app.Get("/health", s.handleHealth)

	if s.config.Gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.app.Group("/api")
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id/turns", s.handleListTurns)

	if s.config.Hub != nil {
		s.app.Get("/ws/events", s.config.Hub.Handler())
	}

	s.app.Get("/ws", s.admit, websocket.New(s.handleConversation))
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown cancels every session, waits for them to finish, then stops the
// listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("sessions still open at shutdown", "sessions", s.ActiveSessions())
	}
	return s.app.ShutdownWithContext(ctx)
}

// ActiveSessions returns the number of open sessions.
func (s *Server) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// admit refuses plain HTTP with 426 and new sessions over the cap with 503.
func (s *Server) admit(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if s.ctx.Err() != nil {
		return fiber.ErrServiceUnavailable
	}
	if s.ActiveSessions() >= s.config.MaxSessions {
		s.logger.Warn("session refused, at capacity", "max_sessions", s.config.MaxSessions)
		return fiber.NewError(fiber.StatusServiceUnavailable, "too many sessions")
	}
	return c.Next()
}

// register adds sess unless the cap was reached between admit and upgrade.
func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.config.MaxSessions {
		return false
	}
	s.sessions[sess.id] = sess
	s.wg.Add(1)
	return true
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	s.wg.Done()
}

// SessionInfo describes an open session.
type SessionInfo struct {
	ID      string    `json:"id"`
	Remote  string    `json:"remote"`
	Started time.Time `json:"started"`
	Turns   int64     `json:"turns"`
}

// Sessions lists open sessions, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.RLock()
	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, sess.info())
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Started.Before(infos[j].Started) })
	return infos
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	sessions := s.Sessions()
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleListTurns(c *fiber.Ctx) error {
	limit := 0
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a non-negative integer"})
		}
		limit = n
	}

	turns, err := s.config.Store.List(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		s.logger.Error("list turns", "session_id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"session_id": c.Params("id"),
		"turns":      turns,
	})
}

// handleHealth reports liveness. With ?deep=1 it probes every provider
// and answers 503 if any of them fails.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":   "ok",
		"version":  s.config.Version,
		"sessions": s.ActiveSessions(),
	}
	if c.Query("deep") == "" || c.Query("deep") == "0" {
		return c.JSON(resp)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	checks := s.checkProviders(ctx)
	providers := make(fiber.Map, len(checks))
	healthy := true
	for name, err := range checks {
		if err != nil {
			healthy = false
			providers[name] = err.Error()
			continue
		}
		providers[name] = "ok"
	}
	resp["providers"] = providers

	if !healthy {
		resp["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *Server) checkProviders(ctx context.Context) map[string]error {
	checks := make(map[string]error)
	if h, ok := s.factory.(stt.HealthChecker); ok {
		checks[string(voice.StageSTT)] = h.Health(ctx)
	}
	for stage, err := range s.pipeline.Health(ctx) {
		checks[string(stage)] = err
	}
	if p, ok := s.config.Store.(interface{ Ping(context.Context) error }); ok {
		checks["store"] = p.Ping(ctx)
	}
	return checks
}
