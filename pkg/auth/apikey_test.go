package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAPIKey_Middleware(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		header     *string
		wantStatus int
		wantCalled bool
	}{
		{"valid key", "s3cret", strPtr("s3cret"), http.StatusOK, true},
		{"missing header", "s3cret", nil, http.StatusUnauthorized, false},
		{"empty header", "s3cret", strPtr(""), http.StatusUnauthorized, false},
		{"wrong key", "s3cret", strPtr("guess"), http.StatusUnauthorized, false},
		{"case differs", "s3cret", strPtr("S3CRET"), http.StatusUnauthorized, false},
		{"prefix of key", "s3cret", strPtr("s3c"), http.StatusUnauthorized, false},
		{"secret not configured", "", strPtr(""), http.StatusUnauthorized, false},
		{"secret not configured with header", "", strPtr("anything"), http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			gate := NewAPIKey(tt.secret, zerolog.Nop())
			h := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/segments/42/members", nil)
			if tt.header != nil {
				req.Header.Set(HeaderName, *tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestAPIKey_HeaderNameIsCaseInsensitive(t *testing.T) {
	gate := NewAPIKey("s3cret", zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-api-key", "s3cret")

	assert.Empty(t, gate.Authenticate(req))
}

func strPtr(s string) *string { return &s }
