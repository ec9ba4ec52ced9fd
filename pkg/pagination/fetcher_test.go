package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/cio-segment-proxy/pkg/client"
)

// fakeFetcher serves a fixed chain of pages: page i is reached with cursor
// "c<i>" (page 0 with ""), and links to "c<i+1>" unless it is the last.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  [][]json.RawMessage
	failAt int // 1-based call number; 0 disables
	err    error
	calls  []fetchCall
}

type fetchCall struct {
	SegmentID string
	Limit     int
	Cursor    string
}

func newFakeFetcher(pages ...[]json.RawMessage) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) FetchPage(ctx context.Context, segmentID string, limit int, cursor string) (*client.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fetchCall{SegmentID: segmentID, Limit: limit, Cursor: cursor})
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return nil, f.err
	}

	index := 0
	if cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(cursor, "c"))
		if err != nil || n >= len(f.pages) {
			return nil, fmt.Errorf("unknown cursor %q", cursor)
		}
		index = n
	}

	page := &client.Page{}
	if index < len(f.pages) {
		page.Identifiers = f.pages[index]
	}
	if index+1 < len(f.pages) {
		page.Next = "c" + strconv.Itoa(index+1)
	}
	return page, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) cursors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Cursor)
	}
	return out
}

// pauseRecorder records pauses instead of sleeping.
type pauseRecorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (p *pauseRecorder) pause(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses = append(p.pauses, d)
}

func (p *pauseRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pauses)
}

func (p *pauseRecorder) config() Config {
	cfg := DefaultConfig()
	cfg.Pause = p.pause
	return cfg
}

func ids(values ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		out = append(out, json.RawMessage(strconv.Quote(v)))
	}
	return out
}

// pagesOf builds n single-member pages named m1..mn.
func pagesOf(n int) [][]json.RawMessage {
	pages := make([][]json.RawMessage, n)
	for i := range pages {
		pages[i] = ids("m" + strconv.Itoa(i+1))
	}
	return pages
}
