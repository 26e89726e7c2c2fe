package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/internal/metrics"
	"github.com/caffeineduck/doctest/option"
	"github.com/caffeineduck/doctest/parser"
	"github.com/caffeineduck/doctest/runner"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for running doctests",
		Long: `Start an HTTP server that runs doctest text on request.

Endpoints:
  POST   /run                  Run doctest text in a fresh environment
  POST   /sessions             Create session, returns {"session_id":"..."}
  POST   /sessions/{id}/run    Run doctest text in a session (state persists)
  DELETE /sessions/{id}        Close session
  GET    /flags                List option flags
  GET    /health               Health check
  GET    /metrics              Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	cmd.Flags().Duration("session-ttl", 15*time.Minute, "Close sessions idle for this long")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	port, _ := cmd.Flags().GetInt("port")
	ttl, _ := cmd.Flags().GetDuration("session-ttl")

	sb, release, err := buildSandbox(cmd, s)
	if err != nil {
		return err
	}
	defer release()

	reg := prometheus.NewRegistry()
	srv := &server{
		sandbox:  sb,
		parser:   s.parser,
		registry: s.registry,
		flags:    s.flags,
		globals:  s.cfg.Globals,
		metrics:  metrics.New(reg),
		gatherer: reg,
		sessions: newSessionManager(ttl, s.logger),
		logger:   s.logger,
	}
	defer srv.sessions.closeAll()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.ErrOrStderr(), "doctest server listening on %s\n", httpSrv.Addr)
		serverErrors <- httpSrv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return err
	case <-shutdown:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			return httpSrv.Close()
		}
		return nil
	}
}

type server struct {
	sandbox  doctest.Sandbox
	parser   *parser.Parser
	registry *option.Registry
	flags    option.Flags
	globals  doctest.Environment
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	sessions *sessionManager
	logger   *slog.Logger
}

type runRequest struct {
	Text    string `json:"text"`
	Name    string `json:"name,omitempty"`
	Options string `json:"options,omitempty"`
}

type runResponse struct {
	Name       string `json:"name"`
	Attempted  int    `json:"attempted"`
	Failed     int    `json:"failed"`
	Report     string `json:"report"`
	DurationMs int64  `json:"duration_ms"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/run", s.handleRun)
	r.Post("/sessions", s.handleCreateSession)
	r.Post("/sessions/{id}/run", s.handleSessionRun)
	r.Delete("/sessions/{id}", s.handleCloseSession)
	r.Get("/flags", s.handleFlags)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRun(w, r)
	if !ok {
		return
	}
	s.serveRun(w, r, req, s.globals.Clone(), false)
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.create(s.globals.Clone())
	s.logger.Debug("session created", "id", id)
	writeJSON(w, http.StatusOK, createSessionResponse{SessionID: id})
}

func (s *server) handleSessionRun(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	req, ok := decodeRun(w, r)
	if !ok {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.env = s.serveRun(w, r, req, sess.env, true)
}

func (s *server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.close(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleFlags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Names())
}

// serveRun parses and runs req against env and returns the environment the
// next run should use.
func (s *server) serveRun(w http.ResponseWriter, r *http.Request, req runRequest, env doctest.Environment, keep bool) doctest.Environment {
	flags := s.flags
	if req.Options != "" {
		o, err := s.registry.Parse(req.Options)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return env
		}
		flags = o.Apply(flags)
	}

	name := req.Name
	if name == "" {
		name = "request"
	}
	test, err := s.parser.DocTest(req.Text, nil, name, doctest.Location{Line: doctest.UnknownLine})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return env
	}
	test.Env = env

	rn := runner.New(s.sandbox,
		runner.WithFlags(flags),
		runner.WithLogger(s.logger),
		runner.WithHooks(s.metrics.Hooks()),
	)
	var report bytes.Buffer
	var opts []runner.RunOption
	if keep {
		opts = append(opts, runner.KeepEnvironment())
	}

	start := time.Now()
	stats, err := rn.Run(r.Context(), test, &report, opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return test.Env
	}
	writeJSON(w, http.StatusOK, runResponse{
		Name:       name,
		Attempted:  stats.Attempted,
		Failed:     stats.Failed,
		Report:     report.String(),
		DurationMs: durationMs(time.Since(start)),
	})
	return test.Env
}

func decodeRun(w http.ResponseWriter, r *http.Request) (runRequest, bool) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// sessionManager keeps one environment per session and closes sessions
// left idle for longer than ttl.
type sessionManager struct {
	sessions map[string]*serverSession
	mu       sync.Mutex
	ttl      time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	once     sync.Once
}

type serverSession struct {
	mu       sync.Mutex
	env      doctest.Environment
	lastUsed time.Time
}

func newSessionManager(ttl time.Duration, logger *slog.Logger) *sessionManager {
	sm := &sessionManager{
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	if ttl > 0 {
		go sm.cleanup(ttl / 2)
	}
	return sm
}

func (sm *sessionManager) create(env doctest.Environment) string {
	id := uuid.NewString()
	sm.mu.Lock()
	sm.sessions[id] = &serverSession{env: env, lastUsed: time.Now()}
	sm.mu.Unlock()
	return id
}

func (sm *sessionManager) get(id string) (*serverSession, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ss, ok := sm.sessions[id]
	if ok {
		ss.lastUsed = time.Now()
	}
	return ss, ok
}

func (sm *sessionManager) close(id string) bool {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if ok {
		ss.release(sm.logger)
	}
	return ok
}

// expire closes sessions idle since before now-ttl.
func (sm *sessionManager) expire(now time.Time) int {
	var idle []*serverSession
	sm.mu.Lock()
	for id, ss := range sm.sessions {
		if now.Sub(ss.lastUsed) > sm.ttl {
			idle = append(idle, ss)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()
	for _, ss := range idle {
		ss.release(sm.logger)
	}
	return len(idle)
}

func (sm *sessionManager) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			sm.expire(now)
		case <-sm.stop:
			return
		}
	}
}

func (sm *sessionManager) closeAll() {
	sm.once.Do(func() { close(sm.stop) })
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*serverSession)
	sm.mu.Unlock()
	for _, ss := range sessions {
		ss.release(sm.logger)
	}
}

func (ss *serverSession) release(logger *slog.Logger) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if err := ss.env.Clear(); err != nil {
		logger.Warn("close session", "error", err)
	}
}
