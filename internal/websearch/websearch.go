// Package websearch implements the consumed web-search interface (spec §6):
// search(query) -> [{title, url, text}]. The pack's web-search adapters
// (anboat/strato-sdk/adapters/search) wire several concrete engines behind a
// strategy/fallback layer tied to the eino framework; this engine needs only
// the single-endpoint HTTP contract the spec names, so the adapter here is
// an original, minimal HTTP client rather than an import of that package.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tangerg-labs/deepresearch/internal/state"
)

// ErrUnavailable wraps any failure reaching the web-search provider (spec §7,
// ErrWebSearchUnavailable origin).
var ErrUnavailable = errors.New("websearch: provider unavailable")

// Result is one hit from the outbound web-search interface.
type Result struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Client is the Tool Layer's web-search backend.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient builds a client against a single search endpoint.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type searchRequestBody struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponseBody struct {
	Results []Result `json:"results"`
}

// Search calls the configured endpoint and returns up to topK SourceHits
// with origin="web" and a URL citation (spec §4.1 search_web).
func (c *Client) Search(ctx context.Context, query string, topK int) ([]state.SourceHit, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("%w: no endpoint configured", ErrUnavailable)
	}

	body, err := json.Marshal(searchRequestBody{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %s", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %s", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed searchResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %s", ErrUnavailable, err)
	}

	return hitsFromResults(parsed.Results, topK), nil
}

// hitsFromResults converts raw results into SourceHits, discarding hits
// with empty text or URL and capping at topK (spec §4.1).
func hitsFromResults(results []Result, topK int) []state.SourceHit {
	hits := make([]state.SourceHit, 0, len(results))
	for _, r := range results {
		if r.Text == "" || r.URL == "" {
			continue
		}
		hits = append(hits, state.NewSourceHit(r.Text, state.OriginWeb, state.Citation{URL: r.URL}))
		if topK > 0 && len(hits) >= topK {
			break
		}
	}
	return hits
}
