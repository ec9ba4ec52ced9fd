package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Aggregator fetches every page of a segment and concatenates the members.
type Aggregator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewAggregator creates a new aggregator.
func NewAggregator(fetcher PageFetcher, config Config) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		config:  config.withDefaults(),
		logger:  log.With().Str("component", "aggregator").Logger(),
	}
}

// FetchAll follows cursors from startCursor (empty for the first page) until
// the upstream stops returning one. There is no page cap. Any failure discards
// what was gathered so far.
func (a *Aggregator) FetchAll(ctx context.Context, segmentID, startCursor string, limit int) ([]json.RawMessage, error) {
	start := time.Now()
	members := []json.RawMessage{}
	cursor := startCursor
	pages := 0

	for {
		page, err := a.fetcher.FetchPage(ctx, segmentID, limit, cursor)
		if err != nil {
			a.logger.Warn().
				Str("segment_id", segmentID).
				Int("pages_discarded", pages).
				Int("members_discarded", len(members)).
				Msg("Aggregation aborted")
			return nil, fmt.Errorf("aggregate segment %s (page %d): %w", segmentID, pages+1, err)
		}

		members = append(members, page.Identifiers...)
		pages++

		if pages%50 == 0 {
			a.logger.Info().
				Str("segment_id", segmentID).
				Int("pages", pages).
				Int("members", len(members)).
				Msg("Aggregation progress")
		}

		if !page.HasNext() {
			break
		}
		cursor = page.Next
		a.config.Pause(a.config.PageDelay)
	}

	a.logger.Info().
		Str("segment_id", segmentID).
		Int("pages", pages).
		Int("members", len(members)).
		Dur("duration", time.Since(start)).
		Msg("Aggregation complete")

	return members, nil
}
