package domain

import "fmt"

// Variant holds the optional size/color selection for a cart line.
// Two lines with the same product but different variants are distinct.
type Variant struct {
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

// ProductSnapshot is a denormalized copy of product display fields captured
// at add-time, so a cart or wishlist renders without re-fetching the product.
type ProductSnapshot struct {
	Title string `json:"title"`
	Image string `json:"image"`
	Slug  string `json:"slug"`
	Price int64  `json:"price"` // cents
}

// CartLine is a single product entry in a cart replica.
// Invariant: Quantity >= 1; a line that would drop to zero is removed, never stored.
type CartLine struct {
	ID        string          `json:"id"`
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice int64           `json:"unitPrice"` // cents
	Variant   Variant         `json:"variant"`
	Snapshot  ProductSnapshot `json:"productSnapshot"`
}

// LineKey identifies a cart line across replicas. Matching during merge and
// duplicate-add suppression is by this key, not by replica-local line IDs.
type LineKey struct {
	ProductID int64
	Size      string
	Color     string
}

func (k LineKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.ProductID, k.Size, k.Color)
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Size: l.Variant.Size, Color: l.Variant.Color}
}

// AddItemSpec describes an item to add to a cart replica.
type AddItemSpec struct {
	ProductID int64
	Quantity  int
	UnitPrice int64
	Variant   Variant
	Snapshot  ProductSnapshot
}

func (s AddItemSpec) Key() LineKey {
	return LineKey{ProductID: s.ProductID, Size: s.Variant.Size, Color: s.Variant.Color}
}
