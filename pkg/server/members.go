package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/cio-segment-proxy/pkg/client"
	"github.com/Sternrassler/cio-segment-proxy/pkg/pagination"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const fetchFailedMessage = "Failed to fetch segment members"

// AggregateQuery is the input of the aggregation route.
type AggregateQuery struct {
	SegmentID string
	Start     string
	Limit     int
}

type errorResponse struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details any    `json:"details"`
}

// isPaginated selects page mode when the caller speaks in page numbers.
func isPaginated(q url.Values) bool {
	return q.Has("page") || q.Has("per_page")
}

func parseAggregateQuery(r *http.Request) AggregateQuery {
	q := r.URL.Query()
	return AggregateQuery{
		SegmentID: chi.URLParam(r, "id"),
		Start:     q.Get("start"),
		Limit:     positiveInt(q.Get("limit"), client.DefaultAggregateLimit),
	}
}

func parsePageQuery(r *http.Request) pagination.PageRequest {
	q := r.URL.Query()
	return pagination.PageRequest{
		SegmentID: chi.URLParam(r, "id"),
		Page:      positiveInt(q.Get("page"), 1),
		PerPage:   positiveInt(q.Get("per_page"), client.DefaultPageSize),
		Start:     q.Get("start"),
	}
}

// positiveInt parses v, falling back to def for anything but a positive integer.
func positiveInt(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (s *Server) getMembers(w http.ResponseWriter, r *http.Request) {
	if isPaginated(r.URL.Query()) {
		s.getMembersPaginated(w, r)
		return
	}

	query := parseAggregateQuery(r)

	// Aggregation runs to completion even if the caller goes away.
	ctx := context.WithoutCancel(r.Context())

	members, err := s.aggregator.FetchAll(ctx, query.SegmentID, query.Start, query.Limit)
	if err != nil {
		s.writeFetchError(w, r, query.SegmentID, err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (s *Server) getMembersPaginated(w http.ResponseWriter, r *http.Request) {
	req := parsePageQuery(r)

	result, err := s.pager.FetchPage(r.Context(), req)
	if err != nil {
		s.writeFetchError(w, r, req.SegmentID, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeFetchError mirrors upstream failures and maps everything else to 502.
func (s *Server) writeFetchError(w http.ResponseWriter, r *http.Request, segmentID string, err error) {
	logger := zerolog.Ctx(r.Context())

	if upstreamErr, ok := client.AsUpstreamError(err); ok {
		logger.Warn().
			Str("segment_id", segmentID).
			Int("status", upstreamErr.StatusCode).
			Msg("Returning upstream failure to caller")
		writeJSON(w, upstreamErr.StatusCode, errorResponse{
			Error:   fetchFailedMessage,
			Status:  upstreamErr.StatusCode,
			Details: upstreamErr.Details(),
		})
		return
	}

	logger.Error().Err(err).Str("segment_id", segmentID).Msg("Segment fetch failed")
	writeJSON(w, http.StatusBadGateway, errorResponse{
		Error:   fetchFailedMessage,
		Status:  http.StatusBadGateway,
		Details: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
