package reconcile

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/retry"
)

// SignalAuthReady tells the engine the authentication token has propagated
// and account loads may start. The merge load phase blocks on this signal
// instead of sleeping a fixed interval.
func (e *Engine) SignalAuthReady() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.authed {
		e.authed = true
		close(e.authReady)
	}
}

func (e *Engine) waitAuthReady(ctx context.Context) error {
	e.mu.Lock()
	ready := e.authReady
	e.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TransitionToAccount performs the Guest -> Account transition for both
// collections. An empty guest collection simply adopts the fetched account
// replica; a non-empty one goes through the merge protocol. The two
// collections proceed independently and concurrently.
func (e *Engine) TransitionToAccount(ctx context.Context) error {
	return e.transition(ctx, e.opts.LoadRetry)
}

// ManualMerge is the user-initiated retry after a failed automatic merge.
// It uses the wider retry budget and may re-enter a collection whose last
// attempt ended in Error; a collection already merged successfully is not
// merged again.
func (e *Engine) ManualMerge(ctx context.Context) Result {
	e.mu.Lock()
	if e.mode != domain.ModeAccount {
		e.mu.Unlock()
		return fail("sign in to sync your cart")
	}
	if e.cartMerge.status == domain.MergeError {
		e.cartMerge.status = domain.MergeIdle
	}
	if e.wishMerge.status == domain.MergeError {
		e.wishMerge.status = domain.MergeIdle
	}
	e.mu.Unlock()

	if err := e.transition(ctx, e.opts.ManualRetry); err != nil {
		return fail(userMessage(err))
	}
	return success()
}

// TeardownAccount implements the Account -> Guest transition on logout.
// The account replica is discarded from memory only; any guest leftover from
// before login stays untouched. Safe to call more than once, and it must run
// before the network logout call resolves so no stale account data shows.
func (e *Engine) TeardownAccount() {
	e.mu.Lock()
	defer e.mu.Unlock()

	// a merge still in flight belongs to the login session that just ended;
	// bumping the generation makes its commit a no-op when it lands
	e.gen++
	e.mode = domain.ModeGuest
	e.accountCart = nil
	e.accountWish = nil
	e.coupon = nil
	e.queue = nil
	e.cartMerge = mergeState{status: domain.MergeIdle}
	e.wishMerge = mergeState{status: domain.MergeIdle}
	if e.authed {
		e.authed = false
		e.authReady = make(chan struct{})
	}
}

// cartMergePlan is claimed under the same lock acquisition that flips the
// engine into account mode, so no mutation can slip between the mode flip and
// the pending flag. It pins the login session generation the merge belongs to.
type cartMergePlan struct {
	run   bool
	adopt bool
	gen   int
	guest []domain.CartLine
}

type wishlistMergePlan struct {
	run   bool
	adopt bool
	gen   int
	guest []domain.WishlistLine
}

// planCartMergeLocked marks the cart merge pending and captures everything the
// merge needs from the current state. Callers hold e.mu. A collection already
// merged or already pending yields a zero plan.
func (e *Engine) planCartMergeLocked() cartMergePlan {
	if e.cartMerge.merged || e.cartMerge.status == domain.MergePending {
		return cartMergePlan{}
	}
	guest := e.guest.CartLines()
	e.cartMerge.status = domain.MergePending
	return cartMergePlan{run: true, adopt: len(guest) == 0, gen: e.gen, guest: guest}
}

func (e *Engine) planWishlistMergeLocked() wishlistMergePlan {
	if e.wishMerge.merged || e.wishMerge.status == domain.MergePending {
		return wishlistMergePlan{}
	}
	guest := e.guest.WishlistLines()
	e.wishMerge.status = domain.MergePending
	return wishlistMergePlan{run: true, adopt: len(guest) == 0, gen: e.gen, guest: guest}
}

func (e *Engine) transition(ctx context.Context, policy retry.Policy) error {
	e.mu.Lock()
	e.mode = domain.ModeAccount
	cartPlan := e.planCartMergeLocked()
	wishPlan := e.planWishlistMergeLocked()
	e.mu.Unlock()

	if err := e.waitAuthReady(ctx); err != nil {
		if cartPlan.run {
			e.failMerge(domain.CollectionCart, cartPlan.gen, 0, err)
		}
		if wishPlan.run {
			e.failMerge(domain.CollectionWishlist, wishPlan.gen, 0, err)
		}
		return err
	}

	var g errgroup.Group
	g.Go(func() error { return e.syncCart(ctx, policy, cartPlan) })
	g.Go(func() error { return e.syncWishlist(ctx, policy, wishPlan) })
	return g.Wait()
}

// syncCart runs the per-collection single-flight guard around the cart
// merge; concurrent transition calls collapse into one attempt.
func (e *Engine) syncCart(ctx context.Context, policy retry.Policy, p cartMergePlan) error {
	_, err, _ := e.sfg.Do(string(domain.CollectionCart), func() (interface{}, error) {
		return nil, e.mergeCart(ctx, policy, p)
	})
	return err
}

func (e *Engine) syncWishlist(ctx context.Context, policy retry.Policy, p wishlistMergePlan) error {
	_, err, _ := e.sfg.Do(string(domain.CollectionWishlist), func() (interface{}, error) {
		return nil, e.mergeWishlist(ctx, policy, p)
	})
	return err
}

func (e *Engine) mergeCart(ctx context.Context, policy retry.Policy, p cartMergePlan) error {
	if !p.run {
		return nil
	}

	// Load phase
	account, err := e.loadAccountCart(ctx, policy)
	if err != nil {
		e.failMerge(domain.CollectionCart, p.gen, 0, err)
		return err
	}

	if p.adopt {
		// nothing to merge: the fetched account replica becomes authoritative
		e.mu.Lock()
		if e.gen != p.gen {
			e.mu.Unlock()
			return nil
		}
		e.accountCart = account
		e.cartMerge.status = domain.MergeIdle
		e.cartMerge.merged = true
		e.cartMerge.lastSyncedAt = time.Now()
		e.mu.Unlock()
		e.replayQueue(ctx, domain.CollectionCart)
		return nil
	}
	guestLines := p.guest

	// Diff phase: account lines by (productID, size, color)
	byKey := make(map[domain.LineKey]domain.CartLine, len(account))
	for _, l := range account {
		byKey[l.Key()] = l
	}

	// Resolve phase: conflicts resolve by maximum quantity, absences by add.
	// A guest quantity at or below the account's needs no operation, which is
	// what makes a re-run after partial failure skip work already applied.
	type plannedOp func(ctx context.Context) error
	var ops []plannedOp
	for _, gl := range guestLines {
		gl := gl
		if al, exists := byKey[gl.Key()]; exists {
			if gl.Quantity > al.Quantity {
				itemID := al.ID
				qty := gl.Quantity
				ops = append(ops, func(ctx context.Context) error {
					_, opErr := e.remoteCart.Update(ctx, itemID, qty)
					return opErr
				})
			}
			continue
		}
		ops = append(ops, func(ctx context.Context) error {
			_, opErr := e.remoteCart.Add(ctx, domain.AddItemSpec{
				ProductID: gl.ProductID,
				Quantity:  gl.Quantity,
				UnitPrice: gl.UnitPrice,
				Variant:   gl.Variant,
				Snapshot:  gl.Snapshot,
			})
			return opErr
		})
	}

	var succeeded atomic.Int32
	var g errgroup.Group
	for _, op := range ops {
		op := op
		g.Go(func() error {
			if opErr := op(ctx); opErr != nil {
				return opErr
			}
			succeeded.Add(1)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		// guest replica is preserved: the user never silently loses items
		e.failMerge(domain.CollectionCart, p.gen, int(succeeded.Load()), err)
		return fmt.Errorf("cart merge: %d/%d operations applied: %w", succeeded.Load(), len(ops), err)
	}

	// Commit phase: the refetched account replica becomes the source of truth
	fresh, err := e.loadAccountCart(ctx, policy)
	if err != nil {
		e.failMerge(domain.CollectionCart, p.gen, int(succeeded.Load()), err)
		return err
	}

	e.mu.Lock()
	if e.gen != p.gen {
		// the login session ended mid-merge; its result must not land, and
		// the guest replica stays intact for the next session
		e.mu.Unlock()
		return nil
	}
	e.accountCart = fresh
	e.cartMerge.status = domain.MergeSuccess
	e.cartMerge.merged = true
	e.cartMerge.succeededOps = len(ops)
	e.cartMerge.lastSyncedAt = time.Now()
	e.guest.ClearCart()
	e.mu.Unlock()

	e.replayQueue(ctx, domain.CollectionCart)
	e.log.WithField("operations", len(ops)).Info("cart merge committed")
	return nil
}

func (e *Engine) mergeWishlist(ctx context.Context, policy retry.Policy, p wishlistMergePlan) error {
	if !p.run {
		return nil
	}

	account, err := e.loadAccountWishlist(ctx, policy)
	if err != nil {
		e.failMerge(domain.CollectionWishlist, p.gen, 0, err)
		return err
	}

	if p.adopt {
		e.mu.Lock()
		if e.gen != p.gen {
			e.mu.Unlock()
			return nil
		}
		e.accountWish = account
		e.wishMerge.status = domain.MergeIdle
		e.wishMerge.merged = true
		e.wishMerge.lastSyncedAt = time.Now()
		e.mu.Unlock()
		e.replayQueue(ctx, domain.CollectionWishlist)
		return nil
	}
	guestLines := p.guest

	// union semantics: a product already present server-side needs no op
	present := make(map[int64]bool, len(account))
	for _, l := range account {
		present[l.ProductID] = true
	}

	var toAdd []int64
	for _, gl := range guestLines {
		if !present[gl.ProductID] {
			toAdd = append(toAdd, gl.ProductID)
		}
	}

	var succeeded atomic.Int32
	var g errgroup.Group
	for _, productID := range toAdd {
		productID := productID
		g.Go(func() error {
			if _, opErr := e.remoteWish.Add(ctx, productID); opErr != nil {
				return opErr
			}
			succeeded.Add(1)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		e.failMerge(domain.CollectionWishlist, p.gen, int(succeeded.Load()), err)
		return fmt.Errorf("wishlist merge: %d/%d operations applied: %w", succeeded.Load(), len(toAdd), err)
	}

	fresh, err := e.loadAccountWishlist(ctx, policy)
	if err != nil {
		e.failMerge(domain.CollectionWishlist, p.gen, int(succeeded.Load()), err)
		return err
	}

	e.mu.Lock()
	if e.gen != p.gen {
		e.mu.Unlock()
		return nil
	}
	e.accountWish = fresh
	e.wishMerge.status = domain.MergeSuccess
	e.wishMerge.merged = true
	e.wishMerge.succeededOps = len(toAdd)
	e.wishMerge.lastSyncedAt = time.Now()
	e.guest.ClearWishlist()
	e.mu.Unlock()

	e.replayQueue(ctx, domain.CollectionWishlist)
	e.log.WithField("operations", len(toAdd)).Info("wishlist merge committed")
	return nil
}

func (e *Engine) loadAccountCart(ctx context.Context, policy retry.Policy) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	err := policy.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		lines, fetchErr = e.remoteCart.Fetch(ctx)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("load account cart failed: %w", err)
	}
	return lines, nil
}

func (e *Engine) loadAccountWishlist(ctx context.Context, policy retry.Policy) ([]domain.WishlistLine, error) {
	var lines []domain.WishlistLine
	err := policy.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		lines, fetchErr = e.remoteWish.Fetch(ctx)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("load account wishlist failed: %w", err)
	}
	return lines, nil
}

func (e *Engine) failMerge(c domain.Collection, gen, succeededOps int, err error) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	s := e.state(c)
	s.status = domain.MergeError
	s.succeededOps = succeededOps
	e.mu.Unlock()
	e.log.WithError(err).WithField("collection", c).Warn("merge failed, guest replica preserved")

	// mutations queued while merging still apply; they route to the account
	// replica, which stays authoritative after a failed merge
	e.replayQueue(context.Background(), c)
}
