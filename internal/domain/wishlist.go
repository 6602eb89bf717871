package domain

import "time"

// WishlistLine is a single product entry in a wishlist replica.
// Invariant: at most one line per ProductID per replica (set semantics).
type WishlistLine struct {
	ID        string          `json:"id"`
	ProductID int64           `json:"productId"`
	Snapshot  ProductSnapshot `json:"productSnapshot"`
	AddedAt   time.Time       `json:"addedAt"`
}
