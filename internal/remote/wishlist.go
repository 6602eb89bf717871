package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/go_storefront/internal/domain"
)

type wishlistResponse struct {
	Items []domain.WishlistLine `json:"items"`
}

// AddWishlistItemRequest is the wire shape of POST /wishlist/items.
// Wishlist entries are keyed by product only, no variant.
type AddWishlistItemRequest struct {
	ProductID int64 `json:"productId"`
}

// FetchWishlist returns the account wishlist; 404 is an empty wishlist.
func (c *Client) FetchWishlist(ctx context.Context) ([]domain.WishlistLine, error) {
	data, err := c.do(ctx, http.MethodGet, "/wishlist", nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch wishlist failed: %w", err)
	}
	return decodeWishlist(data)
}

func (c *Client) AddWishlistItem(ctx context.Context, productID int64) ([]domain.WishlistLine, error) {
	data, err := c.do(ctx, http.MethodPost, "/wishlist/items", nil, AddWishlistItemRequest{ProductID: productID})
	if err != nil {
		return nil, fmt.Errorf("add wishlist item failed: %w", err)
	}
	return decodeWishlist(data)
}

func (c *Client) RemoveWishlistItem(ctx context.Context, itemID string) ([]domain.WishlistLine, error) {
	data, err := c.do(ctx, http.MethodDelete, "/wishlist/items/"+itemID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("remove wishlist item failed: %w", err)
	}
	return decodeWishlist(data)
}

func (c *Client) ClearWishlist(ctx context.Context) ([]domain.WishlistLine, error) {
	data, err := c.do(ctx, http.MethodDelete, "/wishlist", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("clear wishlist failed: %w", err)
	}
	return decodeWishlist(data)
}

func decodeWishlist(data []byte) ([]domain.WishlistLine, error) {
	var resp wishlistResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal wishlist failed: %w", err)
	}
	return resp.Items, nil
}
