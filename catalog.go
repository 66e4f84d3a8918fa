package stockx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPageSize matches the backend's per_page default.
	DefaultPageSize = 10

	// DefaultPageMaxAge is the staleness threshold for per-page cache
	// entries. A stale entry is still served offline; it is only flagged.
	DefaultPageMaxAge = 24 * time.Hour

	// DefaultMaxRollingProducts bounds the merged all-products cache.
	// Oldest-seen products are evicted first once the cap is reached.
	DefaultMaxRollingProducts = 1000
)

// RetryPolicy is the backoff applied around the catalog's live-fetch step.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries twice with exponential backoff.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Multiplier:  2,
	MaxDelay:    5 * time.Second,
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	delay := time.Duration(d)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// cachedPage is the persisted form of a product page.
type cachedPage struct {
	Products []Product `json:"products"`
	Meta     PageMeta  `json:"meta"`
}

// Catalog produces {products, meta} results for pages and searches of the
// product catalog, maximizing freshness and never failing while any prior
// data exists. Tiers, in order: live fetch (forced), live fetch (normal),
// per-page cache, simulated pagination over the rolling all-products cache,
// explicit empty result.
type Catalog struct {
	c          *Client
	pageSize   int
	pageMaxAge time.Duration
	maxRolling int
	retry      RetryPolicy
	sleep      func(context.Context, time.Duration) error

	mu          sync.Mutex
	query       string // normalized
	nextPage    int
	hasMore     bool
	loadingMore bool
	searchGen   uint64
	products    []Product
}

func newCatalog(c *Client) *Catalog {
	return &Catalog{
		c:          c,
		pageSize:   DefaultPageSize,
		pageMaxAge: DefaultPageMaxAge,
		maxRolling: DefaultMaxRollingProducts,
		retry:      DefaultRetryPolicy,
		sleep:      sleepCtx,
		nextPage:   1,
		hasMore:    true,
	}
}

// SetPageSize overrides the per-page item count.
func (cat *Catalog) SetPageSize(n int) {
	if n > 0 {
		cat.mu.Lock()
		cat.pageSize = n
		cat.mu.Unlock()
	}
}

// SetRetryPolicy overrides the live-fetch retry policy.
func (cat *Catalog) SetRetryPolicy(p RetryPolicy) {
	cat.mu.Lock()
	cat.retry = p
	cat.mu.Unlock()
}

// SetPageMaxAge overrides the per-page staleness threshold.
func (cat *Catalog) SetPageMaxAge(d time.Duration) {
	cat.mu.Lock()
	cat.pageMaxAge = d
	cat.mu.Unlock()
}

func (cat *Catalog) maxAge() time.Duration {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	return cat.pageMaxAge
}

// ============================================================================
// Page fetching
// ============================================================================

// FetchPage returns one page of the catalog for the current query. With
// forceRefresh the live fetch is preferred even if a fresh cache entry
// exists. The call only errors on context cancellation; every data failure
// degrades through the cache tiers down to an explicit empty result.
func (cat *Catalog) FetchPage(ctx context.Context, page int, forceRefresh bool) (*ProductPage, error) {
	if page < 1 {
		page = 1
	}
	cat.mu.Lock()
	query := cat.query
	cat.mu.Unlock()

	return cat.fetchPage(ctx, page, query, forceRefresh)
}

func (cat *Catalog) fetchPage(ctx context.Context, page int, query string, forceRefresh bool) (*ProductPage, error) {
	// Tiers 1 and 2: live fetch while connected. Forced and normal fetches
	// run the same fetch/normalize/cache sequence; forceRefresh matters to
	// callers holding memoized screen state, not to the tier order.
	if cat.c.net.Connected() {
		live, err := cat.liveFetch(ctx, page, query)
		if err == nil && live != nil {
			return live, nil
		}
		if ctx.Err() != nil {
			// The caller gave up; only their own context ends the call. An
			// expired internal fetch deadline is just another transport
			// failure and degrades through the tiers below.
			return nil, ctx.Err()
		}
		if err == nil && live == nil {
			// Session expired: terminally handled by the gateway. Render an
			// empty state instead of resurrecting cached data for a
			// logged-out user.
			return emptyPage(page), nil
		}
		cat.c.logger.Warn("live catalog fetch failed, falling back to cache",
			"page", page, "query", query, "error", err)
	}

	// Tier 3: per-page cache. Staleness degrades confidence, not
	// availability: an entry past the threshold is still returned, flagged.
	key := pageCacheKey(page, query)
	if cached, writtenAt, ok := getJSON[cachedPage](cat.c.cache, key, 0); ok {
		return &ProductPage{
			Products:  cached.Products,
			Meta:      cached.Meta,
			FetchedAt: writtenAt,
			Stale:     time.Since(writtenAt) > cat.maxAge(),
		}, nil
	}

	// Tier 4: simulate pagination from the rolling all-products cache.
	if sim := cat.simulatePage(page, query); sim != nil {
		return sim, nil
	}

	// Tier 5: nothing anywhere. The UI must be able to render an empty
	// state unconditionally, so this is a result, not an error.
	return emptyPage(page), nil
}

// liveFetch runs the network fetch with the retry policy, then normalizes
// image URLs and writes through to the page cache and the rolling cache.
func (cat *Catalog) liveFetch(ctx context.Context, page int, query string) (*ProductPage, error) {
	cat.mu.Lock()
	retry := cat.retry
	pageSize := cat.pageSize
	cat.mu.Unlock()

	fetchCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, cat.c.httpClient.Timeout)
		defer cancel()
	}

	var result *ProductPage
	var lastErr error
	for attempt := 0; attempt < retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := cat.sleep(fetchCtx, retry.delay(attempt-1)); err != nil {
				return nil, err
			}
		}
		result, lastErr = cat.c.products.List(fetchCtx, page, pageSize, query)
		if lastErr == nil {
			break
		}
		if !retryable(lastErr) {
			return nil, lastErr
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	if result == nil {
		// Auth rejection, already handled.
		return nil, nil
	}

	cat.normalizeImageURLs(result.Products)

	putJSON(cat.c.cache, pageCacheKey(page, query), cachedPage{
		Products: result.Products,
		Meta:     result.Meta,
	})
	cat.mergeRolling(result.Products)
	return result, nil
}

// retryable reports whether a live-fetch error is worth another attempt.
// Offline failures are not: the next tier is the cache, not the network.
func retryable(err error) bool {
	if IsOffline(err) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

// normalizeImageURLs absolute-izes relative image paths against the resolved
// origin. This happens exactly once, at ingestion, so cached copies are
// already absolute.
func (cat *Catalog) normalizeImageURLs(products []Product) {
	origin := ""
	for i := range products {
		img := products[i].ImageURL
		if img == "" || strings.Contains(img, "://") {
			continue
		}
		if origin == "" {
			origin = cat.c.ResolveOrigin(context.Background())
		}
		if !strings.HasPrefix(img, "/") {
			img = "/" + img
		}
		products[i].ImageURL = origin + img
	}
}

// mergeRolling merges a fetched page into the all-products cache: dedup by
// id with the newest write winning, insertion order preserved, bounded by
// maxRolling with oldest-seen evicted first.
func (cat *Catalog) mergeRolling(products []Product) {
	if len(products) == 0 {
		return
	}
	existing, _, _ := getJSON[[]Product](cat.c.cache, rollingCacheKey, 0)

	index := make(map[string]int, len(existing))
	for i, p := range existing {
		index[p.ID] = i
	}
	for _, p := range products {
		if i, ok := index[p.ID]; ok {
			existing[i] = p
			continue
		}
		index[p.ID] = len(existing)
		existing = append(existing, p)
	}
	if len(existing) > cat.maxRolling {
		existing = existing[len(existing)-cat.maxRolling:]
	}
	putJSON(cat.c.cache, rollingCacheKey, existing)
}

// simulatePage slices the rolling cache as if the backend had paginated it.
// Only used for the unfiltered catalog; query results are not reconstructed
// from the merged set.
func (cat *Catalog) simulatePage(page int, query string) *ProductPage {
	if query != "" {
		return nil
	}
	all, writtenAt, ok := getJSON[[]Product](cat.c.cache, rollingCacheKey, 0)
	if !ok || len(all) == 0 {
		return nil
	}

	cat.mu.Lock()
	pageSize := cat.pageSize
	cat.mu.Unlock()

	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	return &ProductPage{
		Products:  all[start:end],
		Meta:      PageMeta{CurrentPage: page, HasMore: end < len(all)},
		FetchedAt: writtenAt,
		Stale:     time.Since(writtenAt) > cat.maxAge(),
	}
}

func emptyPage(page int) *ProductPage {
	return &ProductPage{
		Products:  []Product{},
		Meta:      PageMeta{CurrentPage: page, HasMore: false},
		FetchedAt: time.Now(),
	}
}

// ============================================================================
// Incremental loading
// ============================================================================

// Refresh resets the pagination cursor and fetches page 1, preferring live
// data. It replaces the accumulated result set.
func (cat *Catalog) Refresh(ctx context.Context) (*ProductPage, error) {
	cat.mu.Lock()
	query := cat.query
	cat.mu.Unlock()

	page, err := cat.fetchPage(ctx, 1, query, true)
	if err != nil {
		return nil, err
	}

	cat.mu.Lock()
	defer cat.mu.Unlock()
	if cat.query != query {
		// Query changed while the refresh was in flight; discard.
		return page, nil
	}
	cat.products = append([]Product(nil), page.Products...)
	cat.nextPage = 2
	cat.hasMore = page.Meta.HasMore
	return page, nil
}

// LoadMore appends the next page to the accumulated result set. It is a
// no-op while another LoadMore is in flight or when pagination is exhausted,
// so overlapping calls cannot produce duplicate appends.
func (cat *Catalog) LoadMore(ctx context.Context) ([]Product, error) {
	cat.mu.Lock()
	if cat.loadingMore || !cat.hasMore {
		snapshot := append([]Product(nil), cat.products...)
		cat.mu.Unlock()
		return snapshot, nil
	}
	cat.loadingMore = true
	page := cat.nextPage
	query := cat.query
	cat.mu.Unlock()

	result, err := cat.fetchPage(ctx, page, query, false)

	cat.mu.Lock()
	defer cat.mu.Unlock()
	cat.loadingMore = false
	if err != nil {
		return append([]Product(nil), cat.products...), err
	}
	if cat.query != query {
		// Superseded by a query change; keep the newer state.
		return append([]Product(nil), cat.products...), nil
	}

	seen := make(map[string]bool, len(cat.products))
	for _, p := range cat.products {
		seen[p.ID] = true
	}
	for _, p := range result.Products {
		if !seen[p.ID] {
			cat.products = append(cat.products, p)
		}
	}
	cat.nextPage = page + 1
	cat.hasMore = result.Meta.HasMore
	return append([]Product(nil), cat.products...), nil
}

// Results returns a snapshot of the accumulated result set.
func (cat *Catalog) Results() []Product {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	return append([]Product(nil), cat.products...)
}

// HasMore reports whether further pages remain for the current query.
func (cat *Catalog) HasMore() bool {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	return cat.hasMore
}

// ============================================================================
// Search mode
// ============================================================================

// Search runs a non-paginated query and replaces the result set wholesale.
// Search results are not cached and have no offline fallback; a failure is
// the caller's to surface. Each dispatch is tagged with a generation counter:
// if a newer search (or a query reset) starts before this one resolves, the
// late result is discarded so it cannot clobber the newer query's results.
//
// Debouncing while the user types is the caller's job, not the catalog's.
func (cat *Catalog) Search(ctx context.Context, query string) ([]Product, error) {
	normalized := normalizeQuery(query)

	cat.mu.Lock()
	cat.searchGen++
	gen := cat.searchGen
	cat.query = normalized
	cat.nextPage = 1
	cat.mu.Unlock()

	if normalized == "" {
		page, err := cat.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		return page.Products, nil
	}

	products, err := cat.c.products.Search(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []Product{}
	}
	cat.normalizeImageURLs(products)

	cat.mu.Lock()
	defer cat.mu.Unlock()
	if cat.searchGen != gen {
		// A newer search superseded this one while it was in flight.
		return append([]Product(nil), cat.products...), nil
	}
	cat.products = append([]Product(nil), products...)
	cat.hasMore = false
	return append([]Product(nil), products...), nil
}

// Query returns the current normalized query, empty in browse mode.
func (cat *Catalog) Query() string {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	return cat.query
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
