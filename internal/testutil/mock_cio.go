// Package testutil provides testing utilities for the segment proxy.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockFailure makes the mock answer one specific call with an error.
type MockFailure struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// RecordedRequest is one membership call received by the mock.
type RecordedRequest struct {
	SegmentID     string
	Start         string
	HasStart      bool
	Limit         int
	Authorization string
}

// MockCustomerIO is a configurable mock of the Customer.io membership API.
//
// Each segment is a list of pages. Page i (0-based) is served for start
// token "" when i == 0 and "tok<i>" otherwise; its next token is "tok<i+1>"
// unless it is the last page.
type MockCustomerIO struct {
	server *httptest.Server
	mu     sync.RWMutex

	segments map[string][][]json.RawMessage
	failures map[int]MockFailure

	requests []RecordedRequest
}

// NewMockCustomerIO creates a new mock Customer.io server.
func NewMockCustomerIO() *MockCustomerIO {
	mock := &MockCustomerIO{
		segments: make(map[string][][]json.RawMessage),
		failures: make(map[int]MockFailure),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock base URL (use as the client BaseURL).
func (m *MockCustomerIO) URL() string {
	return m.server.URL + "/v1"
}

// Close shuts down the mock server.
func (m *MockCustomerIO) Close() {
	m.server.Close()
}

// SetSegment configures the pages of a segment.
func (m *MockCustomerIO) SetSegment(segmentID string, pages ...[]json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments[segmentID] = pages
}

// FailOnCall makes the n-th call (1-based, counted across all segments) fail.
func (m *MockCustomerIO) FailOnCall(n int, failure MockFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[n] = failure
}

// Requests returns a copy of the recorded calls.
func (m *MockCustomerIO) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// GetRequestCount returns the number of calls received.
func (m *MockCustomerIO) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Reset clears recorded calls and failures.
func (m *MockCustomerIO) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.failures = make(map[int]MockFailure)
}

func (m *MockCustomerIO) handle(w http.ResponseWriter, r *http.Request) {
	segmentID, ok := parseMembershipPath(r.URL.Path)
	if !ok {
		writeJSON(w, http.StatusNotFound, `{"errors":[{"detail":"not found"}]}`)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	start, hasStart := q.Get("start"), q.Has("start")

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		SegmentID:     segmentID,
		Start:         start,
		HasStart:      hasStart,
		Limit:         limit,
		Authorization: r.Header.Get("Authorization"),
	})
	call := len(m.requests)
	failure, shouldFail := m.failures[call]
	pages, known := m.segments[segmentID]
	m.mu.Unlock()

	if shouldFail {
		for k, v := range failure.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(failure.StatusCode)
		_, _ = w.Write([]byte(failure.Body))
		return
	}

	if !known {
		writeJSON(w, http.StatusNotFound, `{"errors":[{"detail":"segment not found"}]}`)
		return
	}

	index := 0
	if start != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(start, "tok"))
		if err != nil || !strings.HasPrefix(start, "tok") || n < 1 || n >= len(pages) {
			writeJSON(w, http.StatusBadRequest, `{"errors":[{"detail":"invalid start token"}]}`)
			return
		}
		index = n
	}

	var resp struct {
		Identifiers []json.RawMessage `json:"identifiers"`
		Next        *string           `json:"next"`
	}
	if index < len(pages) {
		resp.Identifiers = pages[index]
	}
	if index+1 < len(pages) {
		next := "tok" + strconv.Itoa(index+1)
		resp.Next = &next
	}

	body, _ := json.Marshal(resp)
	writeJSON(w, http.StatusOK, string(body))
}

// parseMembershipPath extracts the segment from /v1/segments/{id}/membership.
func parseMembershipPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "v1" || parts[1] != "segments" || parts[3] != "membership" {
		return "", false
	}
	return parts[2], true
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Identifiers builds opaque identifier objects {"id": "<id>"}.
func Identifiers(ids ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)))
	}
	return out
}

// NewThrottledFailure creates a 429 response with a Retry-After header.
func NewThrottledFailure(retryAfter int) MockFailure {
	return MockFailure{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"meta":{"error":"rate limit exceeded"}}`,
		Headers:    map[string]string{"Retry-After": strconv.Itoa(retryAfter)},
	}
}

// NewServerErrorFailure creates a 500 response with a JSON body.
func NewServerErrorFailure() MockFailure {
	return MockFailure{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"meta":{"error":"internal error"}}`,
	}
}
