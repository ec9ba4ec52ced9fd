package pagination

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Sternrassler/cio-segment-proxy/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PageRequest selects one page of a segment.
type PageRequest struct {
	SegmentID string

	// Page is 1-based. Ignored when Start is set.
	Page    int
	PerPage int

	// Start is an upstream cursor from a previous next_start_token.
	Start string
}

// Metadata describes where a page sits in the segment.
type Metadata struct {
	CurrentPage    int     `json:"current_page"`
	PerPage        int     `json:"per_page"`
	HasMore        bool    `json:"has_more"`
	NextPage       *int    `json:"next_page"`
	NextStartToken *string `json:"next_start_token"`
}

// PageResult is one page of members plus metadata.
type PageResult struct {
	Data       []json.RawMessage `json:"data"`
	Pagination Metadata          `json:"pagination"`
}

type cursorResolver interface {
	ResolveCursor(ctx context.Context, segmentID string, targetPage, perPage int) (string, error)
}

// Pager serves single pages by number or by start token.
type Pager struct {
	fetcher PageFetcher
	walker  cursorResolver
	logger  zerolog.Logger
}

// NewPager creates a pager that walks cursors with its own Walker.
func NewPager(fetcher PageFetcher, config Config) *Pager {
	return &Pager{
		fetcher: fetcher,
		walker:  NewWalker(fetcher, config),
		logger:  log.With().Str("component", "pager").Logger(),
	}
}

// FetchPage returns the requested page. A page number past the end of the
// segment is not an error: it yields empty data with HasMore false.
func (p *Pager) FetchPage(ctx context.Context, req PageRequest) (*PageResult, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PerPage < 1 {
		req.PerPage = client.DefaultPageSize
	}

	cursor := req.Start
	if cursor == "" && req.Page > 1 {
		resolved, err := p.walker.ResolveCursor(ctx, req.SegmentID, req.Page, req.PerPage)
		if errors.Is(err, ErrExhausted) {
			return &PageResult{
				Data: []json.RawMessage{},
				Pagination: Metadata{
					CurrentPage: req.Page,
					PerPage:     req.PerPage,
				},
			}, nil
		}
		if err != nil {
			return nil, err
		}
		cursor = resolved
	}

	p.logger.Info().
		Str("segment_id", req.SegmentID).
		Int("page", req.Page).
		Int("per_page", req.PerPage).
		Str("cursor", cursor).
		Msg("Customer.io paginated request")

	page, err := p.fetcher.FetchPage(ctx, req.SegmentID, req.PerPage, cursor)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		CurrentPage: req.Page,
		PerPage:     req.PerPage,
		HasMore:     page.HasNext(),
	}
	if meta.HasMore {
		nextPage := req.Page + 1
		nextToken := page.Next
		meta.NextPage = &nextPage
		meta.NextStartToken = &nextToken
	}

	data := page.Identifiers
	if data == nil {
		data = []json.RawMessage{}
	}

	return &PageResult{
		Data:       data,
		Pagination: meta,
	}, nil
}
