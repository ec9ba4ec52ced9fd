// Package pagination walks Customer.io membership cursors on behalf of callers.
//
// Customer.io only offers cursor pagination: every page carries an opaque
// "next" token that must be sent back verbatim as "start". This package
// provides three sequential access patterns on top of a PageFetcher:
//
//   - Aggregator follows cursors until exhausted and concatenates every page.
//   - Walker replays pages from the beginning to find the cursor of page N.
//   - Pager returns one page plus metadata, using Walker when the caller asks
//     for a page number instead of a start token.
//
// Upstream calls are never overlapped, and nothing is cached between calls
// to these types: each operation starts from the cursor it was given.
//
// Page numbers are an approximation over a cursor API. If segment membership
// changes between the walk and the final fetch, page N may overlap or skip
// members relative to an earlier read. Callers that need stable deep
// pagination should continue with next_start_token instead of page numbers.
//
// Example usage:
//
//	c, _ := client.New(client.DefaultConfig(apiKey))
//	agg := pagination.NewAggregator(c, pagination.DefaultConfig())
//	members, err := agg.FetchAll(ctx, "42", "", client.DefaultAggregateLimit)
package pagination
