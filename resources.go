package stockx

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Products
// ============================================================================

// ProductsClient talks to the product endpoints directly, with no caching.
// Most callers should go through Catalog, which layers the offline fallback
// tiers on top of this client.
type ProductsClient struct{ c *Client }

// List fetches one page of the catalog. A nil page with a nil error means the
// gateway terminally handled the call (session expired).
func (p *ProductsClient) List(ctx context.Context, page, perPage int, query string) (*ProductPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if query != "" {
		q.Set("query", query)
	}

	data, err := p.c.do(ctx, "GET", "/api/v1/products", nil, q)
	if err != nil || data == nil {
		return nil, err
	}

	env, err := decodeJSON[productsEnvelope](data)
	if err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(env.Products.Data))
	for _, r := range env.Products.Data {
		product, err := decodeAttributes[Product](r, func(pr *Product, id string) {
			if pr.ID == "" {
				pr.ID = id
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		products = append(products, product)
	}

	return &ProductPage{
		Products:  products,
		Meta:      parsePageMeta(env.Meta, page),
		FetchedAt: time.Now(),
	}, nil
}

// Search runs a non-paginated catalog search returning the full result set.
func (p *ProductsClient) Search(ctx context.Context, query string) ([]Product, error) {
	page, err := p.List(ctx, 1, 0, query)
	if err != nil || page == nil {
		return nil, err
	}
	return page.Products, nil
}

// Stats fetches the aggregate product statistics.
func (p *ProductsClient) Stats(ctx context.Context) (*ProductStats, error) {
	data, err := p.c.do(ctx, "GET", "/api/v1/products/stats", nil, nil)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeJSON[ProductStats](data)
}

// Create adds a product, optionally with an image. The form field layout
// follows the backend's nested-attribute convention.
func (p *ProductsClient) Create(ctx context.Context, product NewProduct, image []byte) (*Product, error) {
	data, err := p.c.doMultipart(ctx, "POST", "/api/v1/products", func(w *multipart.Writer) error {
		if err := w.WriteField("product[name]", product.Name); err != nil {
			return err
		}
		if err := w.WriteField("product[sku]", product.SKU); err != nil {
			return err
		}
		if err := w.WriteField("product[price]", strconv.FormatFloat(product.Price, 'f', -1, 64)); err != nil {
			return err
		}
		if err := w.WriteField("product[quantity]", strconv.Itoa(product.Quantity)); err != nil {
			return err
		}
		if len(image) > 0 {
			part, err := w.CreateFormFile("product[image]", "product.jpg")
			if err != nil {
				return err
			}
			if _, err := part.Write(image); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, err
	}

	env, err := decodeJSON[singleEnvelope](data)
	if err != nil {
		return nil, err
	}
	created, err := decodeAttributes[Product](env.Data, func(pr *Product, id string) {
		if pr.ID == "" {
			pr.ID = id
		}
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// ============================================================================
// Stocks
// ============================================================================

// StocksClient manages per-product stock movements.
type StocksClient struct{ c *Client }

// History lists the stock movements for a product, newest first.
func (s *StocksClient) History(ctx context.Context, productID string) ([]StockEntry, error) {
	data, err := s.c.do(ctx, "GET", "/api/v1/products/"+productID+"/stocks", nil, nil)
	if err != nil || data == nil {
		return nil, err
	}
	env, err := decodeJSON[listEnvelope](data)
	if err != nil {
		return nil, err
	}
	entries := make([]StockEntry, 0, len(env.Data))
	for _, r := range env.Data {
		entry, err := decodeAttributes[StockEntry](r, func(e *StockEntry, id string) {
			if e.ID == "" {
				e.ID = id
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to decode stock entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Add records a stock movement for a product.
func (s *StocksClient) Add(ctx context.Context, productID string, quantity int) error {
	body := map[string]any{"stock": map[string]any{"quantity": quantity}}
	_, err := s.c.do(ctx, "POST", "/api/v1/products/"+productID+"/stocks", body, nil)
	return err
}

// ============================================================================
// Sales
// ============================================================================

// SalesClient reads the sales log.
type SalesClient struct{ c *Client }

// Recent lists the most recent sales.
func (s *SalesClient) Recent(ctx context.Context) ([]Sale, error) {
	data, err := s.c.do(ctx, "GET", "/api/v1/sales/recent", nil, nil)
	if err != nil || data == nil {
		return nil, err
	}
	decoded, err := decodeJSON[struct {
		Sales []Sale `json:"sales"`
	}](data)
	if err != nil {
		return nil, err
	}
	return decoded.Sales, nil
}

// ============================================================================
// Account
// ============================================================================

// AccountClient manages the current user's account.
type AccountClient struct{ c *Client }

// UploadAvatar replaces the user's avatar image.
func (a *AccountClient) UploadAvatar(ctx context.Context, image []byte) error {
	_, err := a.c.doMultipart(ctx, "PUT", "/api/v1/me/avatar", func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("avatar", "avatar.jpg")
		if err != nil {
			return err
		}
		_, err = part.Write(image)
		return err
	})
	return err
}

// ============================================================================
// Chat
// ============================================================================

// ChatClient provides HTTP-polling access to in-app messaging. Delivery is
// best effort; Realtime layers optional push events on top.
type ChatClient struct{ c *Client }

// Conversations lists the current user's conversations.
func (ch *ChatClient) Conversations(ctx context.Context) ([]Conversation, error) {
	data, err := ch.c.do(ctx, "GET", "/api/v1/conversations", nil, nil)
	if err != nil || data == nil {
		return nil, err
	}
	decoded, err := decodeJSON[struct {
		Conversations []Conversation `json:"conversations"`
	}](data)
	if err != nil {
		return nil, err
	}
	return decoded.Conversations, nil
}

// Messages lists the messages of a conversation, oldest first.
func (ch *ChatClient) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	data, err := ch.c.do(ctx, "GET", "/api/v1/conversations/"+conversationID+"/messages", nil, nil)
	if err != nil || data == nil {
		return nil, err
	}
	decoded, err := decodeJSON[struct {
		Messages []Message `json:"messages"`
	}](data)
	if err != nil {
		return nil, err
	}
	return decoded.Messages, nil
}

// Send posts a message. Each send carries a generated client id so a retried
// request cannot create a duplicate on the server.
func (ch *ChatClient) Send(ctx context.Context, conversationID, body string) (*Message, error) {
	payload := map[string]any{
		"message": map[string]any{
			"body":      body,
			"client_id": uuid.NewString(),
		},
	}
	data, err := ch.c.do(ctx, "POST", "/api/v1/conversations/"+conversationID+"/messages", payload, nil)
	if err != nil || data == nil {
		return nil, err
	}
	decoded, err := decodeJSON[struct {
		Message Message `json:"message"`
	}](data)
	if err != nil {
		return nil, err
	}
	return &decoded.Message, nil
}

// SendTyping reports a typing indicator to a peer. Typing status is fire and
// forget: failures are logged, never surfaced.
func (ch *ChatClient) SendTyping(ctx context.Context, receiverID string) {
	body := map[string]any{"receiver_id": receiverID}
	if _, err := ch.c.do(ctx, "POST", "/api/v1/typing_status", body, nil); err != nil {
		ch.c.logger.Debug("typing status failed", "error", err)
	}
}

// ============================================================================
// Businesses & invites
// ============================================================================

// BusinessesClient manages businesses and invite codes.
type BusinessesClient struct{ c *Client }

// Create registers a new business owned by the current user.
func (b *BusinessesClient) Create(ctx context.Context, name string) (*Business, error) {
	data, err := b.c.do(ctx, "POST", "/api/v1/businesses", map[string]any{"name": name}, nil)
	if err != nil || data == nil {
		return nil, err
	}
	decoded, err := decodeJSON[struct {
		Business Business `json:"business"`
	}](data)
	if err != nil {
		return nil, err
	}
	return &decoded.Business, nil
}

// List returns owned and joined businesses. On failure it returns an empty
// list alongside the error so screens can always render.
func (b *BusinessesClient) List(ctx context.Context) (*BusinessList, error) {
	empty := &BusinessList{Owned: []Business{}, Joined: []Business{}}
	data, err := b.c.do(ctx, "GET", "/api/v1/businesses", nil, nil)
	if err != nil || data == nil {
		return empty, err
	}
	list, err := decodeJSON[BusinessList](data)
	if err != nil {
		return empty, err
	}
	if list.Owned == nil {
		list.Owned = []Business{}
	}
	if list.Joined == nil {
		list.Joined = []Business{}
	}
	return list, nil
}

// Invite generates an invite code for a business.
func (b *BusinessesClient) Invite(ctx context.Context, businessID string) (*Invite, error) {
	body := map[string]any{"business_id": businessID}
	data, err := b.c.do(ctx, "POST", "/api/v1/invites", body, nil)
	if err != nil || data == nil {
		return nil, err
	}
	decoded, err := decodeJSON[struct {
		Invite Invite `json:"invite"`
	}](data)
	if err != nil {
		return nil, err
	}
	return &decoded.Invite, nil
}

// Join accepts an invite code.
func (b *BusinessesClient) Join(ctx context.Context, code string) (*Business, error) {
	data, err := b.c.do(ctx, "POST", "/api/v1/invites/accept", map[string]any{"code": code}, nil)
	if err != nil || data == nil {
		return nil, err
	}
	decoded, err := decodeJSON[struct {
		Business Business `json:"business"`
	}](data)
	if err != nil {
		return nil, err
	}
	return &decoded.Business, nil
}

// ============================================================================
// Users
// ============================================================================

// UsersClient searches the user directory.
type UsersClient struct{ c *Client }

// Search looks up users by name or email. Failures degrade to an empty
// result; directory search is never load-bearing.
func (u *UsersClient) Search(ctx context.Context, query string) []UserSummary {
	q := url.Values{}
	q.Set("q", query)
	data, err := u.c.do(ctx, "GET", "/api/v1/users/search", nil, q)
	if err != nil || data == nil {
		return []UserSummary{}
	}
	decoded, err := decodeJSON[struct {
		Users []UserSummary `json:"users"`
	}](data)
	if err != nil || decoded.Users == nil {
		return []UserSummary{}
	}
	return decoded.Users
}
