// Package storeapi is the HTTP client for the remote store-catalog
// API: category search listings, per-app details, and the full app
// index. It performs no retry policy of its own; callers route status
// codes. Requests are paced by a client-side limiter so the crawler is
// polite even before the remote starts answering 429.
package storeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/appdex/catalog-crawler/internal/catalog"
)

// Config captures the remote endpoints and client behavior.
type Config struct {
	SearchURL   string
	DetailsURL  string
	AppListURL  string
	UserAgent   string
	Timeout     time.Duration
	CountryCode string
	Language    string
	// RequestsPerSecond and Burst feed the client-side pacer.
	RequestsPerSecond float64
	Burst             int
}

// StatusError reports a non-200 listing or app-list response.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

// Client implements catalog.ListingClient, catalog.DetailClient, and
// catalog.AppListClient over plain HTTP.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a Client. httpc may be nil, in which case a default
// client with the configured timeout is used; tests inject their own.
func New(cfg Config, httpc *http.Client, logger *zap.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		httpc:   httpc,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

type searchResponse struct {
	Items []struct {
		Name string `json:"name"`
		Logo string `json:"logo"`
	} `json:"items"`
}

// SearchResults fetches one page of a category listing. Non-200
// responses return a *StatusError; successfully decoded pages come
// back as raw entries with no ID extracted yet.
func (c *Client) SearchResults(ctx context.Context, q catalog.ListingQuery) ([]catalog.ListingEntry, error) {
	params := url.Values{}
	params.Set("hidef2p", "1")
	params.Set("json", "1")
	params.Set("page", fmt.Sprintf("%d", q.Page))
	params.Set("filter", q.Filter)
	if q.Specials {
		params.Set("specials", "1")
	}

	resp, err := c.get(ctx, c.cfg.SearchURL, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: "search results", StatusCode: resp.StatusCode}
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	entries := make([]catalog.ListingEntry, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		entries = append(entries, catalog.ListingEntry{Name: item.Name, Logo: item.Logo})
	}
	return entries, nil
}

// AppDetails issues one details request and surfaces the raw status so
// the fetcher can apply its backoff policy. Only 200 responses are
// decoded; the payload is the sub-object keyed by the ID's string
// form.
func (c *Client) AppDetails(ctx context.Context, id catalog.AppID) (catalog.DetailResponse, error) {
	params := url.Values{}
	params.Set("appids", id.String())
	params.Set("cc", c.cfg.CountryCode)
	params.Set("l", c.cfg.Language)

	resp, err := c.get(ctx, c.cfg.DetailsURL, params)
	if err != nil {
		return catalog.DetailResponse{}, err
	}
	defer resp.Body.Close()

	out := catalog.DetailResponse{StatusCode: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		return out, nil
	}

	var envelope map[string]struct {
		Success bool           `json:"success"`
		Data    catalog.Record `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return catalog.DetailResponse{}, fmt.Errorf("decode app details: %w", err)
	}
	entry, ok := envelope[id.String()]
	if !ok {
		return catalog.DetailResponse{}, fmt.Errorf("app details response missing key %s", id)
	}
	out.Success = entry.Success
	out.Data = entry.Data
	return out, nil
}

type appListResponse struct {
	AppList struct {
		Apps []catalog.AppIndexEntry `json:"apps"`
	} `json:"applist"`
}

// AppList fetches the full application index.
func (c *Client) AppList(ctx context.Context) ([]catalog.AppIndexEntry, error) {
	resp, err := c.get(ctx, c.cfg.AppListURL, url.Values{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: "app list", StatusCode: resp.StatusCode}
	}
	var decoded appListResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode app list: %w", err)
	}
	return decoded.AppList.Apps, nil
}
