package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
	"github.com/anirudhbiyani/ping-service/pkg/metrics"
	"github.com/anirudhbiyani/ping-service/pkg/probe"
	"github.com/anirudhbiyani/ping-service/pkg/stream"
)

// prepare validates the target and acquires outbound material. It writes
// the error response itself and returns ok=false when the request cannot
// proceed.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (target string, m *cloudauth.Material, ok bool) {
	log := logr.FromContextOrDiscard(r.Context())

	target = r.URL.Query().Get(probe.TargetParam)
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: url")
		return "", nil, false
	}

	m, err := s.broker.Acquire(r.Context())
	if err != nil {
		s.metrics.CredentialAcquisition(metrics.OutcomeError)
		log.Error(err, "credential acquisition failed")
		writeError(w, http.StatusBadGateway, "failed to acquire outbound credentials")
		return "", nil, false
	}
	s.metrics.CredentialAcquisition(metrics.OutcomeSuccess)
	return target, m, true
}

// handleProbe streams one NDJSON record per endpoint.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	target, m, ok := s.prepare(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := logr.FromContextOrDiscard(ctx)

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	start := time.Now()
	results := s.prober.Probe(ctx, target, m)

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	n, err := stream.NewEncoder(w, stream.WithLogger(log)).Stream(results)
	if err != nil {
		log.V(1).Info("client went away", "written", n, "error", err.Error())
		return
	}
	log.V(1).Info("stream complete", "target", target, "records", n, "elapsed", time.Since(start))
}

// handleWebSocket streams the same records as text frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	target, m, ok := s.prepare(w, r)
	if !ok {
		return
	}
	log := logr.FromContextOrDiscard(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.V(1).Info("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading is the only way to observe a client close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	n, err := stream.WriteWebSocket(conn, s.prober.Probe(ctx, target, m), stream.WithLogger(log))
	if err != nil {
		log.V(1).Info("websocket stream ended early", "written", n, "error", err.Error())
		return
	}
	log.V(1).Info("websocket stream complete", "target", target, "records", n)
}
