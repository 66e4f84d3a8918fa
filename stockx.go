// Package stockx is the Go client for the StockX inventory and sales API.
//
// Every backend call passes through a single gateway that resolves the
// backend origin by liveness probing, attaches the stored bearer token, and
// classifies failures uniformly: an authentication-rejected response clears
// the session and is terminal, a transport failure while offline degrades to
// cache in the read paths, and everything else propagates to the caller.
//
// Example:
//
//	client := stockx.NewClient(
//		stockx.WithOrigins("http://192.168.1.10:3000", "https://stockx.example.com"),
//		stockx.WithCredentials(creds),
//	)
//
//	page, _ := client.Catalog().FetchPage(ctx, 1, false)
//	me, _ := client.Session().CurrentUser(ctx)
//	convos, _ := client.Chat().Conversations(ctx)
package stockx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultOrigin is the public backend, used when no candidates are given.
	DefaultOrigin = "https://stockx.example.com"

	// DefaultTimeout bounds ordinary data calls. The probe path carries its
	// own, much shorter timeout.
	DefaultTimeout = 15 * time.Second

	// probeTimeout bounds a single origin liveness probe so one unreachable
	// candidate cannot stall resolution.
	probeTimeout = 2 * time.Second

	// redirectDelay gives the session-expired notice time to be seen before
	// the host app navigates back to login.
	redirectDelay = 2 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the API gateway. It is safe for concurrent use.
type Client struct {
	origins    []string
	httpClient *http.Client
	creds      CredentialStore
	cache      CacheStore
	net        Connectivity
	notifier   Notifier
	onExpired  func()
	logger     *slog.Logger

	// Resolved origin is process-sticky: once a candidate answers the probe
	// it is used for the rest of the session, even if it later fails.
	originMu sync.Mutex
	origin   string

	catalog *Catalog
	session *Session

	products   *ProductsClient
	stocks     *StocksClient
	sales      *SalesClient
	account    *AccountClient
	chat       *ChatClient
	businesses *BusinessesClient
	users      *UsersClient
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithOrigins sets the candidate backend origins in priority order, local
// addresses first and the public fallback last.
func WithOrigins(origins ...string) ClientOption {
	return func(c *Client) {
		c.origins = c.origins[:0]
		for _, o := range origins {
			c.origins = append(c.origins, strings.TrimRight(o, "/"))
		}
	}
}

// WithTimeout sets the data-call timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithCredentials sets the secure store holding the session token and user id.
func WithCredentials(store CredentialStore) ClientOption {
	return func(c *Client) { c.creds = store }
}

// WithCache sets the local cache store backing the catalog and profile.
func WithCache(store CacheStore) ClientOption {
	return func(c *Client) { c.cache = store }
}

// WithConnectivity sets the network reachability oracle.
func WithConnectivity(net Connectivity) ClientOption {
	return func(c *Client) { c.net = net }
}

// WithNotifier sets the channel for user-facing notices.
func WithNotifier(n Notifier) ClientOption {
	return func(c *Client) { c.notifier = n }
}

// WithSessionExpiredHandler sets the callback invoked (after a short delay)
// when the backend rejects the session, typically a redirect to login.
func WithSessionExpiredHandler(fn func()) ClientOption {
	return func(c *Client) { c.onExpired = fn }
}

// WithLogger sets the structured logger. Logging is off by default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a gateway client. With no options it talks to the public
// origin, keeps credentials in memory, and caches in memory.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		origins:    []string{DefaultOrigin},
		httpClient: &http.Client{Timeout: DefaultTimeout},
		creds:      NewMemoryCredentials(),
		cache:      NewMemoryCache(),
		net:        AlwaysOnline,
		notifier:   NopNotifier{},
		logger:     slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.origins) == 0 {
		c.origins = []string{DefaultOrigin}
	}

	c.catalog = newCatalog(c)
	c.session = newSession(c)
	c.products = &ProductsClient{c: c}
	c.stocks = &StocksClient{c: c}
	c.sales = &SalesClient{c: c}
	c.account = &AccountClient{c: c}
	c.chat = &ChatClient{c: c}
	c.businesses = &BusinessesClient{c: c}
	c.users = &UsersClient{c: c}
	return c
}

// Catalog returns the offline-first product catalog synchronizer.
func (c *Client) Catalog() *Catalog { return c.catalog }

// Session returns the session/profile manager.
func (c *Client) Session() *Session { return c.session }

// Products returns the raw products sub-client. Most callers want Catalog.
func (c *Client) Products() *ProductsClient { return c.products }

// Stocks returns the stock-movement sub-client.
func (c *Client) Stocks() *StocksClient { return c.stocks }

// Sales returns the sales sub-client.
func (c *Client) Sales() *SalesClient { return c.sales }

// Account returns the account sub-client.
func (c *Client) Account() *AccountClient { return c.account }

// Chat returns the messaging sub-client.
func (c *Client) Chat() *ChatClient { return c.chat }

// Businesses returns the business/invite sub-client.
func (c *Client) Businesses() *BusinessesClient { return c.businesses }

// Users returns the user-directory sub-client.
func (c *Client) Users() *UsersClient { return c.users }

// ============================================================================
// Origin resolution
// ============================================================================

// ResolveOrigin probes each candidate origin in priority order with GET /ping
// under a short per-candidate timeout and memoizes the first responder. If
// none respond it memoizes the last (public) candidate as an optimistic
// default. The result is sticky for the life of the process; a later failure
// of the chosen origin is handled by the request error path, not re-probing.
func (c *Client) ResolveOrigin(ctx context.Context) string {
	c.originMu.Lock()
	defer c.originMu.Unlock()
	if c.origin != "" {
		return c.origin
	}

	for _, candidate := range c.origins {
		if c.probe(ctx, candidate) {
			c.origin = candidate
			c.logger.Info("origin resolved", "origin", candidate)
			return c.origin
		}
	}

	c.origin = c.origins[len(c.origins)-1]
	c.logger.Warn("no origin responded to probe, using fallback", "origin", c.origin)
	return c.origin
}

func (c *Client) probe(ctx context.Context, origin string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, origin+"/ping", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// ============================================================================
// Request path
// ============================================================================

// do issues one backend call: resolve origin, attach bearer token, send,
// classify the outcome. A nil, nil return means the call was terminally
// handled by the gateway (session expired) and the caller should treat it as
// "no further data".
func (c *Client) do(ctx context.Context, method, path string, body any, query url.Values) ([]byte, error) {
	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, bodyReader, contentType, query)
}

// doMultipart issues a multipart/form-data call through the same gateway
// path, used for avatar and product-image uploads.
func (c *Client) doMultipart(ctx context.Context, method, path string, build func(*multipart.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := build(w); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}
	return c.send(ctx, method, path, &buf, w.FormDataContentType(), nil)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string, query url.Values) ([]byte, error) {
	origin := c.ResolveOrigin(ctx)

	u := origin + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token, err := c.creds.Get(KeyAuthToken); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransport(method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classifyTransport(method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.handleSessionExpired()
		return nil, nil
	case resp.StatusCode >= 300:
		return nil, statusError(resp.StatusCode, data)
	}
	return data, nil
}

// classifyTransport distinguishes "you are offline" from other transport
// failures. Either way the original error reaches the caller so per-call
// fallback logic can react; the offline case additionally fires a notice.
func (c *Client) classifyTransport(method, path string, err error) error {
	c.logger.Warn("request failed", "method", method, "path", path, "error", err)
	if !c.net.Connected() || isConnectionError(err) {
		c.notifier.Notify(Notice{
			Kind:   NoticeError,
			Title:  "You are offline",
			Detail: "Some features may not work until connection is restored.",
		})
		return &OfflineError{Err: err}
	}
	return fmt.Errorf("request failed: %w", err)
}

// handleSessionExpired runs the terminal auth-rejection path: clear stored
// credentials, notify, and schedule the redirect so the notice can be seen.
func (c *Client) handleSessionExpired() {
	c.logger.Info("session rejected by backend, clearing credentials")
	_ = c.creds.Delete(KeyAuthToken)
	_ = c.creds.Delete(KeyUserID)

	c.notifier.Notify(Notice{Kind: NoticeWarning, Title: "Session expired"})

	if c.onExpired != nil {
		fn := c.onExpired
		time.AfterFunc(redirectDelay, fn)
	}
}

func statusError(code int, body []byte) *StatusError {
	se := &StatusError{StatusCode: code, Body: body}
	var wrapped struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil {
		se.API = wrapped.Error
	}
	return se
}

// isConnectionError reports whether err looks like a failure to reach the
// network at all, as opposed to a server-side refusal.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"dial tcp",
		"i/o timeout",
		"context deadline exceeded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// discardHandler is the silent default slog handler.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
