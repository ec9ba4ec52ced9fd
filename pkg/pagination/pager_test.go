package pagination

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Sternrassler/cio-segment-proxy/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyResolver struct {
	calls int
}

func (s *spyResolver) ResolveCursor(ctx context.Context, segmentID string, targetPage, perPage int) (string, error) {
	s.calls++
	return "", nil
}

func TestPager_FirstPage(t *testing.T) {
	fetcher := newFakeFetcher(ids("A", "B"), ids("C"))
	pager := NewPager(fetcher, (&pauseRecorder{}).config())

	result, err := pager.FetchPage(context.Background(), PageRequest{SegmentID: "42", Page: 1, PerPage: 2})
	require.NoError(t, err)

	assert.Equal(t, ids("A", "B"), result.Data)
	assert.Equal(t, 1, result.Pagination.CurrentPage)
	assert.Equal(t, 2, result.Pagination.PerPage)
	assert.True(t, result.Pagination.HasMore)
	require.NotNil(t, result.Pagination.NextPage)
	assert.Equal(t, 2, *result.Pagination.NextPage)
	require.NotNil(t, result.Pagination.NextStartToken)
	assert.Equal(t, "c1", *result.Pagination.NextStartToken)
	assert.Equal(t, []string{""}, fetcher.cursors())
}

func TestPager_Defaults(t *testing.T) {
	fetcher := newFakeFetcher(ids("A"))
	pager := NewPager(fetcher, (&pauseRecorder{}).config())

	result, err := pager.FetchPage(context.Background(), PageRequest{SegmentID: "42"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Pagination.CurrentPage)
	assert.Equal(t, client.DefaultPageSize, result.Pagination.PerPage)
	assert.Equal(t, client.DefaultPageSize, fetcher.calls[0].Limit)
	assert.False(t, result.Pagination.HasMore)
	assert.Nil(t, result.Pagination.NextPage)
	assert.Nil(t, result.Pagination.NextStartToken)
}

func TestPager_ExplicitStartBypassesWalker(t *testing.T) {
	for _, page := range []int{0, 1, 2, 5, 100} {
		fetcher := newFakeFetcher(pagesOf(4)...)
		spy := &spyResolver{}
		pager := NewPager(fetcher, (&pauseRecorder{}).config())
		pager.walker = spy

		result, err := pager.FetchPage(context.Background(), PageRequest{SegmentID: "42", Page: page, PerPage: 10, Start: "c2"})
		require.NoError(t, err)

		assert.Equal(t, 0, spy.calls, "walker invoked for page %d", page)
		assert.Equal(t, []string{"c2"}, fetcher.cursors())
		assert.Equal(t, ids("m3"), result.Data)
		assert.Equal(t, "c3", *result.Pagination.NextStartToken)
	}
}

func TestPager_PageNumberWalks(t *testing.T) {
	fetcher := newFakeFetcher(pagesOf(4)...)
	pauses := &pauseRecorder{}
	pager := NewPager(fetcher, pauses.config())

	result, err := pager.FetchPage(context.Background(), PageRequest{SegmentID: "42", Page: 3, PerPage: 10})
	require.NoError(t, err)

	assert.Equal(t, ids("m3"), result.Data)
	assert.Equal(t, []string{"", "c1", "c2"}, fetcher.cursors())
	assert.Equal(t, 1, pauses.count())
	assert.Equal(t, 3, result.Pagination.CurrentPage)
	assert.Equal(t, 4, *result.Pagination.NextPage)
	assert.Equal(t, "c3", *result.Pagination.NextStartToken)
}

func TestPager_LastPage(t *testing.T) {
	fetcher := newFakeFetcher(pagesOf(2)...)
	pager := NewPager(fetcher, (&pauseRecorder{}).config())

	result, err := pager.FetchPage(context.Background(), PageRequest{SegmentID: "42", Page: 2, PerPage: 10})
	require.NoError(t, err)

	assert.Equal(t, ids("m2"), result.Data)
	assert.False(t, result.Pagination.HasMore)
	assert.Nil(t, result.Pagination.NextPage)
	assert.Nil(t, result.Pagination.NextStartToken)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestPager_ExhaustedReturnsEmptyPage(t *testing.T) {
	fetcher := newFakeFetcher(pagesOf(1)...)
	pager := NewPager(fetcher, (&pauseRecorder{}).config())

	result, err := pager.FetchPage(context.Background(), PageRequest{SegmentID: "42", Page: 3, PerPage: 10})
	require.NoError(t, err)

	// Only the walker's single step: no call for the page itself.
	assert.Equal(t, 1, fetcher.callCount())

	body, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"data": [],
		"pagination": {
			"current_page": 3,
			"per_page": 10,
			"has_more": false,
			"next_page": null,
			"next_start_token": null
		}
	}`, string(body))
}

func TestPager_ExhaustedMakesNoExtraCall(t *testing.T) {
	fetcher := newFakeFetcher(pagesOf(2)...)
	pager := NewPager(fetcher, (&pauseRecorder{}).config())

	result, err := pager.FetchPage(context.Background(), PageRequest{SegmentID: "42", Page: 5, PerPage: 10})
	require.NoError(t, err)

	assert.Empty(t, result.Data)
	assert.False(t, result.Pagination.HasMore)
	assert.Equal(t, 2, fetcher.callCount(), "walker calls only")
}

func TestPager_WalkerFailurePropagates(t *testing.T) {
	fetcher := newFakeFetcher(pagesOf(4)...)
	fetcher.failAt = 1
	fetcher.err = &client.UpstreamError{StatusCode: http.StatusUnauthorized, ErrorClass: client.ErrorClassClient, Body: []byte("nope")}
	pager := NewPager(fetcher, (&pauseRecorder{}).config())

	result, err := pager.FetchPage(context.Background(), PageRequest{SegmentID: "42", Page: 3, PerPage: 10})
	assert.Nil(t, result)
	upstreamErr, ok := client.AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, upstreamErr.StatusCode)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestPager_FetchFailurePropagates(t *testing.T) {
	fetcher := newFakeFetcher(pagesOf(4)...)
	fetcher.failAt = 1
	fetcher.err = &client.UpstreamError{StatusCode: http.StatusNotFound, ErrorClass: client.ErrorClassClient}
	pager := NewPager(fetcher, (&pauseRecorder{}).config())

	_, err := pager.FetchPage(context.Background(), PageRequest{SegmentID: "42", Page: 1, PerPage: 10})
	upstreamErr, ok := client.AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, upstreamErr.StatusCode)
}
