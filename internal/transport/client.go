// Package transport delivers one classification batch to the remote
// endpoint: per-attempt timeout, exponential backoff between attempts,
// response normalization, and a fail-open fallback when every attempt
// fails. Classification unavailability never withholds content, so
// SendBatch always returns a usable result for every input item.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"classgate/internal/classify"
	"classgate/internal/metrics"
)

// Client sends classification batches to a single remote endpoint
type Client struct {
	requestTimeout time.Duration
	retryAttempts  int
	backoffBase    time.Duration

	httpClient *http.Client
	logger     zerolog.Logger

	mu       sync.RWMutex
	endpoint string
}

// NewClient creates a new Client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	httpTransport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		requestTimeout: cfg.RequestTimeout,
		retryAttempts:  attempts,
		backoffBase:    cfg.RetryBackoffBase,
		// Attempt timeouts are enforced per request via context so a
		// timeout stays distinguishable from other transport errors.
		httpClient: &http.Client{Transport: httpTransport},
		logger:     logger.With().Str("component", "transport").Logger(),
		endpoint:   cfg.Endpoint,
	}
}

// SetEndpoint changes the endpoint used by subsequent sends
func (c *Client) SetEndpoint(endpoint string) {
	c.mu.Lock()
	c.endpoint = endpoint
	c.mu.Unlock()
}

// Endpoint returns the current endpoint
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// Config returns a copy of the client configuration
func (c *Client) Config() Config {
	return Config{
		Endpoint:         c.Endpoint(),
		RequestTimeout:   c.requestTimeout,
		RetryAttempts:    c.retryAttempts,
		RetryBackoffBase: c.backoffBase,
	}
}

// SendBatch delivers one batch and returns results keyed by fingerprint.
// An empty batch returns an empty map with no network call. If every
// attempt fails, every item is resolved allow/0 with FailedOpen set
// instead of returning an error.
func (c *Client) SendBatch(ctx context.Context, posts []classify.Post) map[string]classify.Result {
	if len(posts) == 0 {
		return map[string]classify.Result{}
	}

	payload := classify.BatchPayload{
		Posts:     posts,
		Timestamp: time.Now().UnixMilli(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal batch payload")
		return c.failOpen(posts)
	}

	var lastErr error

	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoffBase << (attempt - 2)
			metrics.RetriesTotal.Inc()

			select {
			case <-ctx.Done():
				c.logger.Warn().Err(ctx.Err()).Msg("context canceled during backoff")
				return c.failOpen(posts)
			case <-time.After(delay):
			}
		}

		metrics.SendAttemptsTotal.Inc()

		results, err := c.sendOnce(ctx, body, posts)
		if err == nil {
			c.logger.Debug().
				Int("posts", len(posts)).
				Int("mapped", len(results)).
				Int("attempt", attempt).
				Msg("batch classified")
			return results
		}

		lastErr = err
		c.logger.Warn().
			Int("attempt", attempt).
			Int("maxAttempts", c.retryAttempts).
			Int("posts", len(posts)).
			Err(err).
			Msg("send attempt failed")

		if ctx.Err() != nil {
			break
		}
	}

	c.logger.Warn().
		Int("posts", len(posts)).
		Err(lastErr).
		Msg("all attempts failed, failing open")

	return c.failOpen(posts)
}

// sendOnce performs a single timeout-bounded exchange
func (c *Client) sendOnce(ctx context.Context, body []byte, posts []classify.Post) (map[string]classify.Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.requestTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: HTTP %d", ErrTransport, resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	return normalizeResponse(respBody, posts)
}

// normalizeResponse converts either accepted response shape into one
// canonical fingerprint-keyed map. Items the response does not cover are
// left unmapped; the batcher resolves those with its allow default.
func normalizeResponse(body []byte, posts []classify.Post) (map[string]classify.Result, error) {
	var raw struct {
		Classifications json.RawMessage `json:"classifications"`
		Results         json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	out := make(map[string]classify.Result, len(posts))

	switch {
	case raw.Classifications != nil:
		// Positional: index i of the response corresponds to post i.
		var entries []classify.Entry
		if err := json.Unmarshal(raw.Classifications, &entries); err != nil {
			return nil, fmt.Errorf("%w: classifications is not an array: %v", ErrProtocol, err)
		}
		for i, post := range posts {
			if i < len(entries) {
				out[post.Hash] = entries[i].ToResult(post.Hash)
			}
		}

	case raw.Results != nil:
		var entries map[string]classify.Entry
		if err := json.Unmarshal(raw.Results, &entries); err != nil {
			return nil, fmt.Errorf("%w: results is not an object: %v", ErrProtocol, err)
		}
		for _, post := range posts {
			if entry, ok := entries[post.Hash]; ok {
				out[post.Hash] = entry.ToResult(post.Hash)
			}
		}

	default:
		return nil, fmt.Errorf("%w: neither classifications nor results present", ErrProtocol)
	}

	if len(out) < len(posts) {
		metrics.UnmappedResultsTotal.Add(float64(len(posts) - len(out)))
	}

	return out, nil
}

// failOpen builds the degraded-mode result map for a whole batch
func (c *Client) failOpen(posts []classify.Post) map[string]classify.Result {
	metrics.FailOpenTotal.Add(float64(len(posts)))

	out := make(map[string]classify.Result, len(posts))
	for _, post := range posts {
		out[post.Hash] = classify.FailOpenResult(post.Hash)
	}
	return out
}

// HealthCheck probes the endpoint with a bodyless HEAD request under the
// usual attempt timeout. Returns false on any error, never raises.
func (c *Client) HealthCheck(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, c.Endpoint(), nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("health probe failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
