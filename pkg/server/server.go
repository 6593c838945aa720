// Package server exposes the probe fan-out over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
	"github.com/anirudhbiyani/ping-service/pkg/metrics"
	"github.com/anirudhbiyani/ping-service/pkg/probe"
	"github.com/anirudhbiyani/ping-service/pkg/providers/cloudflare"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// CredentialBroker acquires per-request outbound material.
// *cloudauth.Broker satisfies it.
type CredentialBroker interface {
	Acquire(ctx context.Context) (*cloudauth.Material, error)
}

// Prober fans a target out to the probe endpoints.
// *probe.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, target string, m *cloudauth.Material) <-chan probe.Result
}

// Server is the HTTP front end of the service.
type Server struct {
	auth     cloudauth.Authenticator
	broker   CredentialBroker
	prober   Prober
	log      logr.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	handler  http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics records request outcomes on m and serves it at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a Server.
func New(auth cloudauth.Authenticator, broker CredentialBroker, prober Prober, opts ...Option) *Server {
	s := &Server{
		auth:   auth,
		broker: broker,
		prober: prober,
		log:    logr.Discard(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestContext)

	r.HandleFunc("/liveness_check", ok).Methods(http.MethodGet)
	r.HandleFunc("/readiness_check", ok).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	authed := r.NewRoute().Subrouter()
	authed.Use(s.authenticate)
	authed.HandleFunc("/", s.handleProbe).Methods(http.MethodGet)
	authed.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowCredentials(),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", cloudflare.AssertionHeader}),
		handlers.ExposedHeaders([]string{requestIDHeader}),
	)
	return otelhttp.NewHandler(cors(r), "ping-service")
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Ok!"))
}
