package warden

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client is the Warden SDK client. It communicates with the core's decision
// API to authorize actions before they run.
type Client struct {
	serverAddr     string
	apiKey         string
	defaultChannel string
	defaultSource  string
	failMode       string
	timeout        time.Duration
	httpClient     *http.Client

	// Cache fields. Only allow decisions are cached.
	cache        sync.Map
	cacheTTL     time.Duration
	cacheMaxSize int
	cacheCount   int64
	cacheMu      sync.Mutex

	logger *slog.Logger
}

// cacheEntry is a cached authorization with expiry.
type cacheEntry struct {
	response  *AuthorizeResponse
	expiresAt time.Time
	createdAt time.Time
}

// NewClient creates a new Warden SDK client.
// It reads configuration from WARDEN_* environment variables by default.
// Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr:     os.Getenv("WARDEN_SERVER_ADDR"),
		apiKey:         os.Getenv("WARDEN_API_KEY"),
		defaultChannel: envOrDefault("WARDEN_CHANNEL", "api"),
		defaultSource:  os.Getenv("WARDEN_SOURCE"),
		failMode:       envOrDefault("WARDEN_FAIL_MODE", "closed"),
		timeout:        parseDurationEnv("WARDEN_TIMEOUT", 5*time.Second),
		cacheTTL:       parseDurationEnv("WARDEN_CACHE_TTL", 5*time.Second),
		cacheMaxSize:   parseIntEnv("WARDEN_CACHE_MAX_SIZE", 1000),
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Authorize sends a decision request to the Warden core and returns the
// outcome. On deny, it returns a *DeniedError. On ask_user, it returns an
// *ApprovalRequiredError: the core records consent-gated outcomes but does
// not collect consent, so the caller must obtain it. On server unreachable
// with fail_mode=open, it returns an allow response.
func (c *Client) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error) {
	// Fill defaults from client configuration. The configured API key only
	// applies when the request names no credential of its own.
	if req.APIKey == "" && req.UserID == "" && req.ExternalID == "" {
		req.APIKey = c.apiKey
	}
	if req.Channel == "" {
		req.Channel = c.defaultChannel
	}
	if req.Source == "" {
		req.Source = c.defaultSource
	}

	// Check cache.
	cacheKey := c.buildCacheKey(req)
	if resp, ok := c.getFromCache(cacheKey); ok {
		return resp, nil
	}

	// Send request.
	resp, err := c.doAuthorize(ctx, req)
	if err != nil {
		// Handle server unreachable.
		if isConnectionError(err) {
			if c.failMode != "open" {
				return nil, &ServerUnreachableError{Cause: err}
			}
			// Fail open: return allow.
			c.logger.Warn("warden core unreachable, failing open",
				"server_addr", c.serverAddr,
				"error", err,
			)
			return &AuthorizeResponse{
				Decision: DecisionAllow,
				Reason:   "core unreachable, fail-open",
			}, nil
		}
		return nil, err
	}

	// Handle decision.
	switch resp.Decision {
	case DecisionAllow:
		c.putInCache(cacheKey, resp)
		return resp, nil

	case DecisionDeny:
		return nil, &DeniedError{
			Reason: resp.Reason,
			User:   resp.User,
			Threat: resp.Threat,
		}

	case DecisionAskUser:
		return nil, &ApprovalRequiredError{
			Reason: resp.Reason,
			User:   resp.User,
		}

	default:
		return resp, nil
	}
}

// Check is a convenience method that authorizes a request and returns a
// boolean. It returns true if the action is allowed, and false — without an
// error — when it is denied or needs user consent.
func (c *Client) Check(ctx context.Context, req AuthorizeRequest) (bool, error) {
	resp, err := c.Authorize(ctx, req)
	if err != nil {
		if errors.Is(err, ErrDenied) || errors.Is(err, ErrApprovalRequired) {
			return false, nil
		}
		return false, err
	}
	return resp.Decision == DecisionAllow, nil
}

// doAuthorize sends the HTTP request to the decision endpoint.
func (c *Client) doAuthorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error) {
	var resp AuthorizeResponse
	err := c.doRequest(ctx, http.MethodPost, "/v1/decision", req, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// doRequest performs an HTTP request to the Warden core. The subject
// credential travels in the request body; the decision endpoint carries no
// separate caller authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	url := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return &WardenError{
			Code: fmt.Sprintf("HTTP_%d", httpResp.StatusCode),
			Err:  fmt.Errorf("core returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// buildCacheKey creates a cache key from the request. The key covers the
// subject credential (fingerprinted, never stored raw), the action, the
// permission, and a hash of resource, tool, and arguments.
func (c *Client) buildCacheKey(req AuthorizeRequest) string {
	h := sha256.New()
	io.WriteString(h, req.APIKey)
	io.WriteString(h, "\x00")
	io.WriteString(h, req.UserID)
	io.WriteString(h, "\x00")
	io.WriteString(h, req.Channel)
	io.WriteString(h, "\x00")
	io.WriteString(h, req.ExternalID)
	io.WriteString(h, "\x00")
	io.WriteString(h, req.Resource)
	io.WriteString(h, "\x00")
	io.WriteString(h, req.Tool)
	if req.Args != nil {
		argBytes, _ := json.Marshal(req.Args)
		h.Write(argBytes)
	}
	fingerprint := hex.EncodeToString(h.Sum(nil))[:16]
	return fmt.Sprintf("%s:%s:%s", req.Action, req.Permission, fingerprint)
}

// getFromCache retrieves a cached response if it exists and hasn't expired.
func (c *Client) getFromCache(key string) (*AuthorizeResponse, bool) {
	val, ok := c.cache.Load(key)
	if !ok {
		return nil, false
	}
	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.cache.Delete(key)
		c.cacheMu.Lock()
		c.cacheCount--
		c.cacheMu.Unlock()
		return nil, false
	}
	return entry.response, true
}

// putInCache stores a response in the cache.
func (c *Client) putInCache(key string, resp *AuthorizeResponse) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	// Best-effort eviction: if over max size, delete some expired entries.
	if c.cacheCount >= int64(c.cacheMaxSize) {
		now := time.Now()
		evicted := 0
		c.cache.Range(func(k, v any) bool {
			entry := v.(*cacheEntry)
			if now.After(entry.expiresAt) {
				c.cache.Delete(k)
				evicted++
			}
			// Stop after evicting enough or checking a batch.
			return evicted < 100
		})
		c.cacheCount -= int64(evicted)

		// If still over limit, evict the oldest entry.
		if c.cacheCount >= int64(c.cacheMaxSize) {
			var oldest time.Time
			var oldestKey any
			c.cache.Range(func(k, v any) bool {
				entry := v.(*cacheEntry)
				if oldest.IsZero() || entry.createdAt.Before(oldest) {
					oldest = entry.createdAt
					oldestKey = k
				}
				return true
			})
			if oldestKey != nil {
				c.cache.Delete(oldestKey)
				c.cacheCount--
			}
		}
	}

	c.cache.Store(key, &cacheEntry{
		response:  resp,
		expiresAt: time.Now().Add(c.cacheTTL),
		createdAt: time.Now(),
	})
	c.cacheCount++
}

// isConnectionError determines if an error is a connection-level error
// (server unreachable, connection refused, timeout, etc.).
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// HTTP errors are not connection errors.
	var werr *WardenError
	if errors.As(err, &werr) {
		return false
	}

	// All other errors from http.Client.Do are connection errors
	// (DNS resolution, connection refused, TLS handshake, timeouts).
	return true
}

// Helper functions for env var parsing.

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// Try parsing as seconds (integer).
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	// Try parsing as duration string.
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}

func parseIntEnv(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return defaultVal
}
