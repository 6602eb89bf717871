// Package localstore holds the guest replica: browser-session-scoped cart and
// wishlist state that never touches the network. All operations are
// synchronous, total and idempotent under their stated semantics.
package localstore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/go_storefront/internal/domain"
)

// Store implements the guest replica with in-memory storage.
type Store struct {
	mu   sync.RWMutex
	cart []domain.CartLine
	wish []domain.WishlistLine
}

func NewStore() *Store {
	return &Store{}
}

// AddOrIncrement adds the item to the guest cart. Adding the same
// (productID, size, color) twice increments quantity rather than
// duplicating the line. A spec with quantity < 1 is ignored.
func (s *Store) AddOrIncrement(spec domain.AddItemSpec) domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec.Quantity < 1 {
		return domain.CartLine{}
	}

	key := spec.Key()
	for i := range s.cart {
		if s.cart[i].Key() == key {
			s.cart[i].Quantity += spec.Quantity
			return s.cart[i]
		}
	}

	line := domain.CartLine{
		ID:        uuid.New().String(),
		ProductID: spec.ProductID,
		Quantity:  spec.Quantity,
		UnitPrice: spec.UnitPrice,
		Variant:   spec.Variant,
		Snapshot:  spec.Snapshot,
	}
	s.cart = append(s.cart, line)
	return line
}

// SetQuantity sets the quantity of a line; quantity <= 0 removes the line.
// Unknown line IDs are a no-op.
func (s *Store) SetQuantity(lineID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cart {
		if s.cart[i].ID != lineID {
			continue
		}
		if quantity <= 0 {
			s.cart = append(s.cart[:i], s.cart[i+1:]...)
		} else {
			s.cart[i].Quantity = quantity
		}
		return
	}
}

// Remove deletes a line by ID. Unknown IDs are a no-op.
func (s *Store) Remove(lineID string) {
	s.SetQuantity(lineID, 0)
}

// ClearCart drops all guest cart lines.
func (s *Store) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = nil
}

// CartLines returns a copy of the guest cart.
func (s *Store) CartLines() []domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CartLine, len(s.cart))
	copy(out, s.cart)
	return out
}

// ToggleWishlist adds the product to the guest wishlist if absent, removes it
// if present. Returns true when the product is in the wishlist afterwards.
// Toggling twice returns to the original state.
func (s *Store) ToggleWishlist(productID int64, snapshot domain.ProductSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.wish {
		if s.wish[i].ProductID == productID {
			s.wish = append(s.wish[:i], s.wish[i+1:]...)
			return false
		}
	}

	s.wish = append(s.wish, domain.WishlistLine{
		ID:        uuid.New().String(),
		ProductID: productID,
		Snapshot:  snapshot,
		AddedAt:   time.Now(),
	})
	return true
}

// ClearWishlist drops all guest wishlist lines.
func (s *Store) ClearWishlist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wish = nil
}

// WishlistLines returns a copy of the guest wishlist.
func (s *Store) WishlistLines() []domain.WishlistLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.WishlistLine, len(s.wish))
	copy(out, s.wish)
	return out
}
