package reconcile

import (
	"context"

	"github.com/fjod/go_storefront/internal/domain"
)

// AddItem adds an item to the active replica. Before issuing any add, the
// engine searches the active replica for a line with the same
// (productID, size, color) key and converts the add into a quantity
// increment instead, so the same product never produces duplicate lines.
func (e *Engine) AddItem(ctx context.Context, spec domain.AddItemSpec) Result {
	if spec.ProductID <= 0 {
		return fail("invalid product")
	}
	if spec.Quantity < 1 {
		return fail("quantity must be at least 1")
	}

	e.mu.Lock()
	if e.mode == domain.ModeGuest {
		e.mu.Unlock()
		e.guest.AddOrIncrement(spec)
		return success()
	}
	if e.cartMerge.status == domain.MergePending {
		e.enqueueLocked(domain.CollectionCart, func(ctx context.Context) Result {
			return e.AddItem(ctx, spec)
		})
		e.mu.Unlock()
		return success()
	}

	// duplicate-add suppression against the account replica
	var existing *domain.CartLine
	for i := range e.accountCart {
		if e.accountCart[i].Key() == spec.Key() {
			existing = &e.accountCart[i]
			break
		}
	}

	prev := e.accountCart
	var call func(ctx context.Context) ([]domain.CartLine, error)
	if existing != nil {
		newQty := existing.Quantity + spec.Quantity
		e.accountCart = withQuantity(prev, existing.ID, newQty)
		id := existing.ID
		call = func(ctx context.Context) ([]domain.CartLine, error) {
			return e.remoteCart.Update(ctx, id, newQty)
		}
	} else {
		e.accountCart = append(copyLines(prev), domain.CartLine{
			ID:        "pending-" + spec.Key().String(),
			ProductID: spec.ProductID,
			Quantity:  spec.Quantity,
			UnitPrice: spec.UnitPrice,
			Variant:   spec.Variant,
			Snapshot:  spec.Snapshot,
		})
		call = func(ctx context.Context) ([]domain.CartLine, error) {
			return e.remoteCart.Add(ctx, spec)
		}
	}
	e.mu.Unlock()

	return e.commitAccountCart(ctx, prev, call)
}

// UpdateQuantity sets the quantity of a line in the active replica.
// A quantity <= 0 removes the line instead; it is never stored.
func (e *Engine) UpdateQuantity(ctx context.Context, lineID string, quantity int) Result {
	if quantity <= 0 {
		return e.RemoveItem(ctx, lineID)
	}

	e.mu.Lock()
	if e.mode == domain.ModeGuest {
		e.mu.Unlock()
		e.guest.SetQuantity(lineID, quantity)
		return success()
	}
	if e.cartMerge.status == domain.MergePending {
		e.enqueueLocked(domain.CollectionCart, func(ctx context.Context) Result {
			return e.UpdateQuantity(ctx, lineID, quantity)
		})
		e.mu.Unlock()
		return success()
	}

	prev := e.accountCart
	e.accountCart = withQuantity(prev, lineID, quantity)
	e.mu.Unlock()

	return e.commitAccountCart(ctx, prev, func(ctx context.Context) ([]domain.CartLine, error) {
		return e.remoteCart.Update(ctx, lineID, quantity)
	})
}

// RemoveItem removes a line from the active replica.
func (e *Engine) RemoveItem(ctx context.Context, lineID string) Result {
	e.mu.Lock()
	if e.mode == domain.ModeGuest {
		e.mu.Unlock()
		e.guest.Remove(lineID)
		return success()
	}
	if e.cartMerge.status == domain.MergePending {
		e.enqueueLocked(domain.CollectionCart, func(ctx context.Context) Result {
			return e.RemoveItem(ctx, lineID)
		})
		e.mu.Unlock()
		return success()
	}

	prev := e.accountCart
	e.accountCart = withoutLine(prev, lineID)
	e.mu.Unlock()

	return e.commitAccountCart(ctx, prev, func(ctx context.Context) ([]domain.CartLine, error) {
		return e.remoteCart.Remove(ctx, lineID)
	})
}

// Clear empties the active cart replica.
func (e *Engine) Clear(ctx context.Context) Result {
	e.mu.Lock()
	if e.mode == domain.ModeGuest {
		e.mu.Unlock()
		e.guest.ClearCart()
		return success()
	}
	if e.cartMerge.status == domain.MergePending {
		e.enqueueLocked(domain.CollectionCart, func(ctx context.Context) Result {
			return e.Clear(ctx)
		})
		e.mu.Unlock()
		return success()
	}

	prev := e.accountCart
	e.accountCart = nil
	e.mu.Unlock()

	return e.commitAccountCart(ctx, prev, func(ctx context.Context) ([]domain.CartLine, error) {
		return e.remoteCart.Clear(ctx)
	})
}

// ToggleWishlist flips wishlist membership for a product in the active
// replica. Toggling twice returns to the original state.
func (e *Engine) ToggleWishlist(ctx context.Context, productID int64, snapshot domain.ProductSnapshot) Result {
	if productID <= 0 {
		return fail("invalid product")
	}

	e.mu.Lock()
	if e.mode == domain.ModeGuest {
		e.mu.Unlock()
		e.guest.ToggleWishlist(productID, snapshot)
		return success()
	}
	if e.wishMerge.status == domain.MergePending {
		e.enqueueLocked(domain.CollectionWishlist, func(ctx context.Context) Result {
			return e.ToggleWishlist(ctx, productID, snapshot)
		})
		e.mu.Unlock()
		return success()
	}

	var existingID string
	for _, l := range e.accountWish {
		if l.ProductID == productID {
			existingID = l.ID
			break
		}
	}
	prev := e.accountWish
	e.mu.Unlock()

	var fresh []domain.WishlistLine
	var err error
	if existingID != "" {
		fresh, err = e.remoteWish.Remove(ctx, existingID)
	} else {
		fresh, err = e.remoteWish.Add(ctx, productID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.accountWish = prev
		e.log.WithError(err).Warn("wishlist toggle failed")
		return fail(userMessage(err))
	}
	e.accountWish = fresh
	return success()
}

// commitAccountCart finishes an optimistic account-cart mutation: run the
// remote call and adopt its normalized item list, or restore the retained
// prior value verbatim on failure.
func (e *Engine) commitAccountCart(ctx context.Context, prev []domain.CartLine, call func(ctx context.Context) ([]domain.CartLine, error)) Result {
	fresh, err := call(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.accountCart = prev
		e.log.WithError(err).Warn("account cart mutation failed")
		return fail(userMessage(err))
	}
	e.accountCart = fresh
	return success()
}

// enqueueLocked queues a mutation issued while its collection is merging.
// Queued mutations replay in arrival order after the merge commits.
// Callers hold e.mu.
func (e *Engine) enqueueLocked(c domain.Collection, apply func(ctx context.Context) Result) {
	e.queue = append(e.queue, queuedMutation{collection: c, apply: apply})
}

// replayQueue drains mutations queued for a collection during merge.
func (e *Engine) replayQueue(ctx context.Context, c domain.Collection) {
	e.mu.Lock()
	var mine, rest []queuedMutation
	for _, q := range e.queue {
		if q.collection == c {
			mine = append(mine, q)
		} else {
			rest = append(rest, q)
		}
	}
	e.queue = rest
	e.mu.Unlock()

	for _, q := range mine {
		if res := q.apply(ctx); !res.OK {
			e.log.WithField("collection", c).WithField("message", res.Message).
				Warn("queued mutation failed after merge")
		}
	}
}

func copyLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out
}

func withQuantity(lines []domain.CartLine, lineID string, quantity int) []domain.CartLine {
	out := copyLines(lines)
	for i := range out {
		if out[i].ID == lineID {
			out[i].Quantity = quantity
		}
	}
	return out
}

func withoutLine(lines []domain.CartLine, lineID string) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.ID != lineID {
			out = append(out, l)
		}
	}
	return out
}
