// Package codesearch is the client for the external candidate code
// retrieval service. The service owns index construction and embedding
// computation; this client only consumes its ranked-candidate lookup.
package codesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
)

const defaultTopK = 3

// Vocabulary selects which code system to search.
type Vocabulary string

const (
	VocabICD10 Vocabulary = "icd10"
	VocabCPT   Vocabulary = "cpt"
)

// Candidate is one ranked search hit. Score is cosine similarity in [0,1];
// results arrive in descending score order.
type Candidate struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Client performs semantic candidate lookups.
type Client interface {
	Search(ctx context.Context, vocab Vocabulary, query string) ([]Candidate, error)
}

// StatusError reports a non-2xx response from the retrieval service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("codesearch: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithTopK overrides the default number of candidates requested.
func WithTopK(k int) Option {
	return func(c *httpClient) {
		c.topK = k
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithCacheTTL enables in-process response caching. Identical queries
// within the TTL are served from memory; the retrieval index is treated
// as stable over that window.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *httpClient) {
		c.cache = gocache.New(ttl, 2*ttl)
	}
}

type httpClient struct {
	baseURL string
	topK    int
	http    *http.Client
	cache   *gocache.Cache
}

// NewClient creates a retrieval service client.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		topK:    defaultTopK,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	Results []Candidate `json:"results"`
}

func (c *httpClient) Search(ctx context.Context, vocab Vocabulary, query string) ([]Candidate, error) {
	if query == "" {
		return nil, eris.New("codesearch: query is empty")
	}

	cacheKey := string(vocab) + "\x00" + query
	if c.cache != nil {
		if hit, ok := c.cache.Get(cacheKey); ok {
			return hit.([]Candidate), nil
		}
	}

	u := fmt.Sprintf("%s/search?vocab=%s&q=%s&k=%s",
		c.baseURL, url.QueryEscape(string(vocab)), url.QueryEscape(query), strconv.Itoa(c.topK))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "codesearch: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "codesearch: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "codesearch: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "codesearch: decode response")
	}

	candidates := result.Results
	if len(candidates) > c.topK {
		candidates = candidates[:c.topK]
	}

	if c.cache != nil {
		c.cache.SetDefault(cacheKey, candidates)
	}
	return candidates, nil
}
