package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
	"github.com/anirudhbiyani/ping-service/pkg/providers/cloudflare"
)

const requestIDHeader = "X-Request-Id"

// requestContext assigns a request ID and stores a request-scoped logger
// in the context.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		log := s.log.WithValues("request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(logr.NewContext(r.Context(), log)))
	})
}

// authenticate rejects callers without a verifiable bearer token before
// any handler work is done.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logr.FromContextOrDiscard(ctx)

		claims, err := s.auth.Authenticate(ctx, bearerToken(r))
		if err != nil {
			s.unauthorized(w, r, err)
			return
		}

		log = log.WithValues("subject", claims.Subject)
		next.ServeHTTP(w, r.WithContext(logr.NewContext(ctx, log)))
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	log := logr.FromContextOrDiscard(r.Context())
	category := cloudauth.CategoryOf(err)
	s.metrics.AuthFailure(string(category))

	switch category {
	case cloudauth.ErrCategoryUnauthenticated:
		w.Header().Set("WWW-Authenticate", `Bearer realm="auth_required"`)
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	case cloudauth.ErrCategoryKeySource:
		log.Error(err, "verification keys unavailable")
	default:
		log.V(1).Info("caller rejected", "reason", category, "error", err.Error())
	}

	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeError(w, http.StatusUnauthorized, "Invalid authentication credentials")
}

// bearerToken returns the token from the Authorization header, or the
// Access assertion header when no Authorization header is present.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.Header.Get(cloudflare.AssertionHeader)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
