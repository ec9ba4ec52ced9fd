package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LogsAndPropagatesRequestID(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	buf := &bytes.Buffer{}
	base := zerolog.New(buf)

	var ctxLoggerFound bool
	h := Middleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLoggerFound = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/42/members", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.True(t, ctxLoggerFound)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	out := buf.String()
	assert.Contains(t, out, `"path":"/segments/42/members"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"request_id":"`+rec.Header().Get(RequestIDHeader)+`"`)
}

func TestMiddleware_UsesChiRequestID(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	buf := &bytes.Buffer{}
	h := middleware.RequestID(Middleware(zerolog.New(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"status":200`)
}
