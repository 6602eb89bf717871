package remote

import (
	"context"

	"github.com/fjod/go_storefront/internal/domain"
)

// CartResource adapts the client to the reconciliation engine's cart port.
type CartResource struct {
	client *Client
}

func NewCartResource(c *Client) *CartResource {
	return &CartResource{client: c}
}

func (r *CartResource) Fetch(ctx context.Context) ([]domain.CartLine, error) {
	return r.client.FetchCart(ctx)
}

func (r *CartResource) Add(ctx context.Context, spec domain.AddItemSpec) ([]domain.CartLine, error) {
	return r.client.AddCartItem(ctx, AddCartItemRequest{
		ProductID: spec.ProductID,
		Quantity:  spec.Quantity,
		Size:      spec.Variant.Size,
		Color:     spec.Variant.Color,
	})
}

func (r *CartResource) Update(ctx context.Context, itemID string, quantity int) ([]domain.CartLine, error) {
	return r.client.UpdateCartItem(ctx, itemID, quantity)
}

func (r *CartResource) Remove(ctx context.Context, itemID string) ([]domain.CartLine, error) {
	return r.client.RemoveCartItem(ctx, itemID)
}

func (r *CartResource) Clear(ctx context.Context) ([]domain.CartLine, error) {
	return r.client.ClearCart(ctx)
}

// WishlistResource adapts the client to the engine's wishlist port.
type WishlistResource struct {
	client *Client
}

func NewWishlistResource(c *Client) *WishlistResource {
	return &WishlistResource{client: c}
}

func (r *WishlistResource) Fetch(ctx context.Context) ([]domain.WishlistLine, error) {
	return r.client.FetchWishlist(ctx)
}

func (r *WishlistResource) Add(ctx context.Context, productID int64) ([]domain.WishlistLine, error) {
	return r.client.AddWishlistItem(ctx, productID)
}

func (r *WishlistResource) Remove(ctx context.Context, itemID string) ([]domain.WishlistLine, error) {
	return r.client.RemoveWishlistItem(ctx, itemID)
}

func (r *WishlistResource) Clear(ctx context.Context) ([]domain.WishlistLine, error) {
	return r.client.ClearWishlist(ctx)
}

// Validator adapts coupon validation to the engine's port, converting the
// backend verdict into an applied coupon.
type Validator struct {
	client *Client
}

func NewValidator(c *Client) *Validator {
	return &Validator{client: c}
}

func (v *Validator) Validate(ctx context.Context, code string, cartAmount int64, products []int64) (*domain.AppliedCoupon, error) {
	verdict, err := v.client.ValidateCoupon(ctx, code, cartAmount, products)
	if err != nil {
		return nil, err
	}

	coupon := verdict.Coupon
	return &domain.AppliedCoupon{
		Code:   coupon.Code,
		Type:   coupon.Type,
		Value:  coupon.Value,
		Source: &coupon,
	}, nil
}
