// Package http provides the one-shot fetch primitives used by datt.
//
// This package handles:
//   - Connection pooling for high parallelism
//   - Whole-body GET requests for segments (Fetch)
//   - Text GET requests that tolerate 4xx pages (GetText)
//   - Urlencoded form POSTs (PostForm)
//   - Retry with exponential backoff on transport errors and 5xx
//
// Fetch treats every non-2xx answer as a failure. Callers that probe for
// segments do not distinguish "not found" from other failures; the sentinel
// errors exist for diagnostics.
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    Timeout:       30 * time.Second,
//	    RetryAttempts: 1,
//	})
//
//	data, err := client.Fetch(ctx, segmentURL)
//	page, err := client.GetText(ctx, episodeURL)
//	text, err := client.PostForm(ctx, formURL, url.Values{"id": {id}})
package http
