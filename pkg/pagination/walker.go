package pagination

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Walker finds the cursor of a page number by replaying pages from the start.
type Walker struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewWalker creates a new cursor walker.
func NewWalker(fetcher PageFetcher, config Config) *Walker {
	return &Walker{
		fetcher: fetcher,
		config:  config.withDefaults(),
		logger:  log.With().Str("component", "cursor-walker").Logger(),
	}
}

// ResolveCursor returns the start token of targetPage using pages of perPage
// members. It costs targetPage-1 upstream calls. Returns ErrExhausted when the
// segment ends first; upstream failures abort the walk and are returned as is.
func (w *Walker) ResolveCursor(ctx context.Context, segmentID string, targetPage, perPage int) (string, error) {
	cursor := ""

	for current := 1; current < targetPage; {
		page, err := w.fetcher.FetchPage(ctx, segmentID, perPage, cursor)
		if err != nil {
			return "", fmt.Errorf("walk segment %s to page %d (at page %d): %w", segmentID, targetPage, current, err)
		}

		cursor = page.Next
		if !page.HasNext() {
			w.logger.Debug().
				Str("segment_id", segmentID).
				Int("page", targetPage).
				Int("last_page", current).
				Msg("Segment exhausted before requested page")
			return "", ErrExhausted
		}

		current++
		if current < targetPage {
			w.config.Pause(w.config.WalkDelay)
		}
	}

	return cursor, nil
}
