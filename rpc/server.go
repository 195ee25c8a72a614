package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"lottochain/core"
	"lottochain/native/lottery"
	"lottochain/observability/logging"
)

const (
	maxRequestBytes   = 1 << 20 // 1 MiB
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	limiterIdleTTL    = 15 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeNotFound       = -32004
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRejected       = -32010
	codeRateLimited    = -32020
	codeUnavailable    = -32030
)

// Config tunes the HTTP surface.
type Config struct {
	// AuthToken protects /v1/beacon when set.
	AuthToken string
	// InvokeRate bounds submissions per client per second. Zero disables
	// limiting.
	InvokeRate float64
	// InvokeBurst is the bucket size for InvokeRate. Defaults to 5.
	InvokeBurst int
	// Beacon serves /v1/beacon. Nil disables the route.
	Beacon lottery.Oracle
	Logger *slog.Logger
}

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Server exposes the node over HTTP.
type Server struct {
	node   *core.Node
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*sourceLimiter

	router http.Handler
}

// NewServer builds the router for node.
func NewServer(node *core.Node, cfg Config) *Server {
	if cfg.InvokeBurst <= 0 {
		cfg.InvokeBurst = 5
	}
	cfg.AuthToken = strings.TrimSpace(cfg.AuthToken)
	s := &Server{
		node:     node,
		cfg:      cfg,
		logger:   logging.Component(cfg.Logger, "rpc"),
		limiters: make(map[string]*sourceLimiter),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v2/transactions", s.handleTransactions)

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(s.limitInvocations).Post("/invoke", s.handleInvoke)
		v1.Get("/lottery/cycle", s.handleCycle)
		v1.Get("/lottery/registry/{cycle}", s.handleRegistry)
		v1.Get("/lottery/entrants/{address}", s.handleEntrant)
		if s.cfg.Beacon != nil {
			v1.With(s.requireAuth).Get("/beacon/{round}", s.handleBeacon)
		}
	})
	return otelhttp.NewHandler(r, "lottod")
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func writeError(w http.ResponseWriter, status int, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: errObj})
}

func writeResult(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
