package loc

import (
	"context"
	"strconv"
	"time"

	errs "locharvest/pkg/errors"
	"locharvest/pkg/logger"
	"locharvest/pkg/retry"
)

// Record is one collection item. The upstream records have no stable schema,
// so they stay schemaless maps; typed accessors pull out the fields we need.
type Record map[string]interface{}

// String returns the record's value under key when it is a non-empty string.
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Page is one fetched response: the page number and the child records it
// carried. Held only for the duration of one orchestration iteration.
type Page struct {
	Number  int
	Results []Record
}

// HasMore reports whether the page carried any records. An empty page is the
// natural end of a collection.
func (p *Page) HasMore() bool {
	return len(p.Results) > 0
}

// pageEnvelope is the expected top-level response shape.
type pageEnvelope struct {
	Results []Record `json:"results"`
}

// PageFetcher fetches numbered collection pages with bounded retries.
type PageFetcher struct {
	client     *Client
	baseURL    string
	perPage    int
	maxRetries int
	backoff    retry.BackoffStrategy
	logger     logger.Logger
}

// NewPageFetcher creates a page fetcher for one collection base URL.
// maxRetries is the total attempt count per page.
func NewPageFetcher(client *Client, baseURL string, perPage, maxRetries int, log logger.Logger) *PageFetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &PageFetcher{
		client:     client,
		baseURL:    baseURL,
		perPage:    perPage,
		maxRetries: maxRetries,
		backoff:    DefaultPageBackoff(),
		logger:     log,
	}
}

// DefaultPageBackoff grows from a small base; page fetches should back off
// quickly but never stall the run for minutes.
func DefaultPageBackoff() retry.BackoffStrategy {
	return &retry.ExponentialBackoff{
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// SetBackoff replaces the retry backoff strategy (used by tests to avoid
// real delays).
func (f *PageFetcher) SetBackoff(b retry.BackoffStrategy) {
	f.backoff = b
}

// Fetch retrieves one page. After exhausting retries it returns a
// *errors.FetchFailure carrying the page number and the last underlying
// error; that failure is terminal for the page.
func (f *PageFetcher) Fetch(ctx context.Context, page int) (*Page, error) {
	url, err := BuildURL(f.baseURL, map[string]string{
		"fo": "json",
		"c":  strconv.Itoa(f.perPage),
		"sp": strconv.Itoa(page),
	})
	if err != nil {
		return nil, &errs.FetchFailure{Page: page, Err: err}
	}

	cfg := &retry.Config{
		MaxAttempts: f.maxRetries,
		Backoff:     f.backoff,
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      f.logger,
	}

	result, err := retry.DoWithResult(func() (*Page, error) {
		var envelope pageEnvelope
		if err := f.client.GetJSON(ctx, url, &envelope); err != nil {
			return nil, err
		}
		return &Page{Number: page, Results: envelope.Results}, nil
	}, cfg)
	if err != nil {
		return nil, &errs.FetchFailure{Page: page, Err: err}
	}

	f.logger.DebugWithFields("page fetched", map[string]interface{}{
		"page":    page,
		"records": len(result.Results),
	})

	return result, nil
}
