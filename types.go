package stockx

import (
	"encoding/json"
	"strconv"
	"time"
)

// ============================================================================
// Errors
// ============================================================================

// APIError is a structured error payload returned by the backend.
type APIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ============================================================================
// Products
// ============================================================================

// Product is a catalog item. Copies held by the client are read-mostly; the
// backend owns the record. ImageURL is always absolute once a product has
// been through the catalog cache (relative paths are resolved at ingestion).
type Product struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	SKU        string  `json:"sku"`
	Price      float64 `json:"price"`
	TotalStock int     `json:"total_stock"`
	ImageURL   string  `json:"image_url,omitempty"`
}

// PageMeta describes the pagination state of a product page.
type PageMeta struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages,omitempty"`
	TotalCount  int  `json:"total_count,omitempty"`
	HasMore     bool `json:"has_more"`
}

// ProductPage is the result of fetching one page of the catalog, live or
// reconstructed from cache.
type ProductPage struct {
	Products  []Product `json:"products"`
	Meta      PageMeta  `json:"meta"`
	FetchedAt time.Time `json:"fetched_at"`

	// Stale is set when the page was served from a cache entry older than
	// the staleness threshold. Degraded freshness, not an error.
	Stale bool `json:"-"`
}

// ProductStats is the aggregate view behind the dashboard.
type ProductStats struct {
	TotalProducts int     `json:"total_products"`
	TotalStock    int     `json:"total_stock"`
	TotalValue    float64 `json:"total_value"`
	LowStockCount int     `json:"low_stock_count"`
}

// NewProduct is the payload for creating a product.
type NewProduct struct {
	Name     string
	SKU      string
	Price    float64
	Quantity int
}

// ============================================================================
// Stock & sales
// ============================================================================

// StockEntry is one stock movement for a product.
type StockEntry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// Sale is a recorded sale line.
type Sale struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	Total       float64   `json:"total"`
	SoldAt      time.Time `json:"sold_at"`
}

// ============================================================================
// Account
// ============================================================================

// Profile is the current user's account record.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ============================================================================
// Messaging
// ============================================================================

// Conversation is a chat thread between the current user and a peer.
type Conversation struct {
	ID            string   `json:"id"`
	Title         string   `json:"title,omitempty"`
	PeerID        string   `json:"peer_id,omitempty"`
	LastMessage   *Message `json:"last_message,omitempty"`
	UnreadCount   int      `json:"unread_count"`
	LastMessageAt string   `json:"last_message_at,omitempty"`
}

// Message is a single chat message.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Body           string `json:"body"`
	SenderID       string `json:"sender_id"`
	ClientID       string `json:"client_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ============================================================================
// Businesses & invites
// ============================================================================

// Business is a workspace a user owns or has joined.
type Business struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id,omitempty"`
}

// BusinessList groups businesses by relationship to the current user.
type BusinessList struct {
	Owned  []Business `json:"owned"`
	Joined []Business `json:"joined"`
}

// Invite is a join code for a business.
type Invite struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Code       string `json:"code"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// UserSummary is a search hit from the user directory.
type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ============================================================================
// Wire envelopes
// ============================================================================

// resource is a JSON:API-style record: {"id": ..., "type": ..., "attributes": {...}}.
type resource struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

// decodeAttributes unmarshals a resource's attributes and backfills the id.
func decodeAttributes[T any](r resource, setID func(*T, string)) (T, error) {
	var v T
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &v); err != nil {
			return v, err
		}
	}
	if setID != nil {
		setID(&v, r.ID)
	}
	return v, nil
}

// productsEnvelope is the shape of GET /products:
// {"products": {"data": [...]}, "meta": {...}}.
type productsEnvelope struct {
	Products struct {
		Data []resource `json:"data"`
	} `json:"products"`
	Meta json.RawMessage `json:"meta"`
}

// singleEnvelope is the shape of single-record responses: {"data": {...}}.
type singleEnvelope struct {
	Data resource `json:"data"`
}

// listEnvelope is the shape of plain list responses: {"data": [...]}.
type listEnvelope struct {
	Data []resource `json:"data"`
}

// parsePageMeta decodes pagination metadata defensively. The backend has
// shipped non-numeric pages and missing flags before; anything that does not
// parse collapses to "no more pages" rather than failing the fetch.
func parsePageMeta(raw json.RawMessage, requestedPage int) PageMeta {
	meta := PageMeta{CurrentPage: requestedPage}
	if len(raw) == 0 {
		return meta
	}

	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return meta
	}

	if n, ok := looseInt(loose["current_page"]); ok && n > 0 {
		meta.CurrentPage = n
	}
	if n, ok := looseInt(loose["total_pages"]); ok {
		meta.TotalPages = n
	}
	if n, ok := looseInt(loose["total_count"]); ok {
		meta.TotalCount = n
	}

	if b, ok := looseBool(loose["has_more"]); ok {
		meta.HasMore = b
	} else if meta.TotalPages > 0 {
		meta.HasMore = meta.CurrentPage < meta.TotalPages
	}
	return meta
}

// looseInt accepts JSON numbers and numeric strings.
func looseInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}

func looseBool(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	return false, false
}
