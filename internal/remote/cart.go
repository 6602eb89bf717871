package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/go_storefront/internal/domain"
)

type itemListResponse struct {
	Items []domain.CartLine `json:"items"`
}

// AddCartItemRequest is the wire shape of POST /cart/items.
type AddCartItemRequest struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// FetchCart returns the account cart. A 404 means the user has no cart yet
// and is treated as empty, not as an error.
func (c *Client) FetchCart(ctx context.Context) ([]domain.CartLine, error) {
	data, err := c.do(ctx, http.MethodGet, "/cart", nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch cart failed: %w", err)
	}
	return decodeItems(data)
}

func (c *Client) AddCartItem(ctx context.Context, req AddCartItemRequest) ([]domain.CartLine, error) {
	data, err := c.do(ctx, http.MethodPost, "/cart/items", nil, req)
	if err != nil {
		return nil, fmt.Errorf("add cart item failed: %w", err)
	}
	return decodeItems(data)
}

func (c *Client) UpdateCartItem(ctx context.Context, itemID string, quantity int) ([]domain.CartLine, error) {
	data, err := c.do(ctx, http.MethodPut, "/cart/items/"+itemID, nil, updateQuantityRequest{Quantity: quantity})
	if err != nil {
		return nil, fmt.Errorf("update cart item failed: %w", err)
	}
	return decodeItems(data)
}

func (c *Client) RemoveCartItem(ctx context.Context, itemID string) ([]domain.CartLine, error) {
	data, err := c.do(ctx, http.MethodDelete, "/cart/items/"+itemID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("remove cart item failed: %w", err)
	}
	return decodeItems(data)
}

func (c *Client) ClearCart(ctx context.Context) ([]domain.CartLine, error) {
	data, err := c.do(ctx, http.MethodDelete, "/cart", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("clear cart failed: %w", err)
	}
	return decodeItems(data)
}

func decodeItems(data []byte) ([]domain.CartLine, error) {
	var resp itemListResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return resp.Items, nil
}
