// Package server is the sichter control API: job submission, policy
// read/write, event tailing, and the live WebSocket event stream. Every
// endpoint except the health probes sits behind the rate limiter and the
// API-key gate.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/heimgewebe/sichter/internal/auth"
	"github.com/heimgewebe/sichter/internal/eventlog"
	"github.com/heimgewebe/sichter/internal/paths"
	"github.com/heimgewebe/sichter/internal/policy"
	"github.com/heimgewebe/sichter/internal/queue"
	"github.com/heimgewebe/sichter/internal/ratelimit"
)

// Config holds API server configuration.
type Config struct {
	Addr        string
	Paths       paths.Paths
	Gate        *auth.Gate
	Limiter     *ratelimit.Limiter
	CORSOrigins []string
}

// Server wires the control API's components behind one http.Server.
type Server struct {
	cfg     Config
	paths   paths.Paths
	log     *eventlog.Log
	queue   *queue.Queue
	policy  *policy.Store
	gate    *auth.Gate
	limiter *ratelimit.Limiter
	origins []string
	srv     *http.Server
}

// New creates the API server. Gate and Limiter default from the
// environment; CORS origins default to none. A wildcard must be configured
// deliberately, never assumed.
func New(cfg Config) (*Server, error) {
	if err := cfg.Paths.Ensure(); err != nil {
		return nil, fmt.Errorf("ensure state tree: %w", err)
	}
	if cfg.Gate == nil {
		cfg.Gate = auth.FromEnv()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.FromEnv()
	}
	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = originsFromEnv()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8714"
	}

	log := eventlog.New(cfg.Paths.Events)
	s := &Server{
		cfg:     cfg,
		paths:   cfg.Paths,
		log:     log,
		queue:   queue.New(cfg.Paths.Queue, log),
		policy:  policy.NewStore(cfg.Paths.PolicyFile(), log),
		gate:    cfg.Gate,
		limiter: cfg.Limiter,
		origins: cfg.CORSOrigins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("POST /enqueue", s.gated(s.handleEnqueue))
	mux.Handle("POST /sweep", s.gated(s.handleSweep))
	mux.Handle("GET /events/tail", s.gated(s.handleEventsTail))
	mux.Handle("GET /events/recent", s.gated(s.handleEventsRecent))
	mux.Handle("GET /events/stream", s.gated(s.handleEventsStream))
	mux.Handle("GET /policy", s.gated(s.handlePolicyGet))
	mux.Handle("PUT /policy", s.gated(s.handlePolicyPut))
	mux.Handle("GET /logs/latest", s.gated(s.handleLogsLatest))
	mux.Handle("GET /overview", s.gated(s.handleOverview))
	mux.Handle("GET /repos/status", s.gated(s.handleReposStatus))

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start listens and serves until ctx is cancelled, running the limiter
// evictor alongside.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}

	stop := make(chan struct{})
	go s.limiter.RunEvictor(stop, ratelimit.DefaultWindow)

	go func() {
		<-ctx.Done()
		close(stop)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.Serve(ln); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// originsFromEnv parses SICHTER_CORS_ORIGINS (comma-separated). Unset means
// no cross-origin access.
func originsFromEnv() []string {
	raw := os.Getenv("SICHTER_CORS_ORIGINS")
	if raw == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// originAllowed checks an Origin header value against the configured list.
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// withCORS applies the configured cross-origin policy. Credentials are
// allowed, so the allowed origin is echoed rather than wildcarded.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+auth.Header)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gated chains the rate limiter and the API-key gate in front of a handler.
// Rate limiting runs first so unauthenticated floods are still bounded.
func (s *Server) gated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientID(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if err := s.gate.Check(apiKey(r)); err != nil {
			fmt.Fprintf(os.Stderr, "auth rejected (%s): %s %s\n", err.Kind, r.Method, r.URL.Path)
			writeError(w, http.StatusForbidden, err.Message)
			return
		}
		next(w, r)
	})
}

// apiKey extracts the client key, accepting the query parameter fallback
// browsers need for WebSocket connections.
func apiKey(r *http.Request) string {
	if key := r.Header.Get(auth.Header); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// clientID identifies the caller for rate limiting: the remote host, or
// "unknown".
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

// writeError sends the uniform {"detail": ...} error body.
func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fmt.Fprintf(os.Stderr, "server: encode response: %v\n", err)
	}
}
