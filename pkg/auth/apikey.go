// Package auth guards the proxy routes with a static API key.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// HeaderName carries the inbound credential.
const HeaderName = "X-API-KEY"

var authRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "segment_proxy_auth_rejections_total",
	Help: "Total inbound requests rejected by the API key gate by reason",
}, []string{"reason"})

// Rejection reasons.
const (
	reasonNotConfigured = "not_configured"
	reasonMissing       = "missing"
	reasonMismatch      = "mismatch"
)

// APIKey rejects requests whose X-API-KEY header does not exactly match the
// configured secret. An empty secret rejects everything.
type APIKey struct {
	secret []byte
	logger zerolog.Logger
}

// NewAPIKey creates the gate for the given secret.
func NewAPIKey(secret string, logger zerolog.Logger) *APIKey {
	return &APIKey{
		secret: []byte(secret),
		logger: logger,
	}
}

// Authenticate reports why r is rejected, or "" when it is allowed.
func (a *APIKey) Authenticate(r *http.Request) string {
	if len(a.secret) == 0 {
		return reasonNotConfigured
	}

	presented := r.Header.Get(HeaderName)
	if presented == "" {
		return reasonMissing
	}

	if subtle.ConstantTimeCompare([]byte(presented), a.secret) != 1 {
		return reasonMismatch
	}
	return ""
}

// Middleware wraps next so that it only runs for authenticated requests.
func (a *APIKey) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := a.Authenticate(r); reason != "" {
			authRejectionsTotal.WithLabelValues(reason).Inc()
			a.logger.Warn().
				Str("reason", reason).
				Str("path", r.URL.Path).
				Msg("Rejected unauthenticated request")
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}
