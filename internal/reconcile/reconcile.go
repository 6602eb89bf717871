// Package reconcile keeps the guest (local) and account (server) shopping
// replicas consistent across login/logout boundaries. Exactly one replica is
// authoritative at a time; mutations are routed to it, and on login the guest
// replica is merged into the account replica exactly once.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/pricing"
	"github.com/fjod/go_storefront/internal/remote"
	"github.com/fjod/go_storefront/internal/retry"
)

// RemoteCart is the server-held cart resource.
// Consumers define this interface, not the HTTP implementation.
type RemoteCart interface {
	Fetch(ctx context.Context) ([]domain.CartLine, error)
	Add(ctx context.Context, spec domain.AddItemSpec) ([]domain.CartLine, error)
	Update(ctx context.Context, itemID string, quantity int) ([]domain.CartLine, error)
	Remove(ctx context.Context, itemID string) ([]domain.CartLine, error)
	Clear(ctx context.Context) ([]domain.CartLine, error)
}

// RemoteWishlist is the server-held wishlist resource, keyed by product only.
type RemoteWishlist interface {
	Fetch(ctx context.Context) ([]domain.WishlistLine, error)
	Add(ctx context.Context, productID int64) ([]domain.WishlistLine, error)
	Remove(ctx context.Context, itemID string) ([]domain.WishlistLine, error)
	Clear(ctx context.Context) ([]domain.WishlistLine, error)
}

// CouponValidator checks a coupon code against the current cart.
type CouponValidator interface {
	Validate(ctx context.Context, code string, cartAmount int64, products []int64) (*domain.AppliedCoupon, error)
}

// GuestStore is the local replica; implemented by localstore.Store.
type GuestStore interface {
	AddOrIncrement(spec domain.AddItemSpec) domain.CartLine
	SetQuantity(lineID string, quantity int)
	Remove(lineID string)
	ClearCart()
	CartLines() []domain.CartLine
	ToggleWishlist(productID int64, snapshot domain.ProductSnapshot) bool
	ClearWishlist()
	WishlistLines() []domain.WishlistLine
}

// Result crosses the UI boundary. Writes never panic and never leak raw
// errors; Message is user-facing and empty on success.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func success() Result { return Result{OK: true} }

func fail(msg string) Result { return Result{OK: false, Message: msg} }

// Totals are the derived display values for the active cart replica.
type Totals struct {
	Subtotal   int64 `json:"subtotal"`
	Discount   int64 `json:"discount"`
	Shipping   int64 `json:"shipping"`
	Total      int64 `json:"total"`
	DisplayTax int64 `json:"displayTax"` // informational, not part of Total
}

type mergeState struct {
	status       domain.MergeStatus
	merged       bool // at-most-once per login session
	succeededOps int  // partial progress of the last failed attempt
	lastSyncedAt time.Time
}

type queuedMutation struct {
	collection domain.Collection
	apply      func(ctx context.Context) Result
}

// Options tune an engine instance.
type Options struct {
	Shipping    pricing.ShippingPolicy
	TaxRateBps  int64
	LoadRetry   retry.Policy // account load during automatic merge
	ManualRetry retry.Policy // user-initiated manual merge
}

// DefaultOptions mirror the storefront defaults: 3 load attempts with
// attempt*500ms backoff, 5 for a user-initiated merge.
func DefaultOptions() Options {
	return Options{
		Shipping:   pricing.ShippingPolicy{FreeAbove: 5000, FlatFee: 700},
		TaxRateBps: 1000,
		LoadRetry: retry.Policy{
			MaxAttempts: 3,
			Delay:       retry.Backoff(500 * time.Millisecond),
			Retryable:   remote.IsTransient,
		},
		ManualRetry: retry.Policy{
			MaxAttempts: 5,
			Delay:       retry.Backoff(500 * time.Millisecond),
			Retryable:   remote.IsTransient,
		},
	}
}

// Engine is the reconciliation engine for one browser session.
type Engine struct {
	remoteCart RemoteCart
	remoteWish RemoteWishlist
	validator  CouponValidator
	guest      GuestStore
	opts       Options
	log        logrus.FieldLogger

	sfg singleflight.Group // serializes merge per collection

	mu          sync.Mutex
	mode        domain.Mode
	gen         int // login session generation; bumped on teardown
	authReady   chan struct{}
	authed      bool
	accountCart []domain.CartLine
	accountWish []domain.WishlistLine
	coupon      *domain.AppliedCoupon
	cartMerge   mergeState
	wishMerge   mergeState
	queue       []queuedMutation
}

func NewEngine(cart RemoteCart, wish RemoteWishlist, validator CouponValidator, guest GuestStore, opts Options, log logrus.FieldLogger) *Engine {
	return &Engine{
		remoteCart: cart,
		remoteWish: wish,
		validator:  validator,
		guest:      guest,
		opts:       opts,
		log:        log,
		mode:       domain.ModeGuest,
		authReady:  make(chan struct{}),
		cartMerge:  mergeState{status: domain.MergeIdle},
		wishMerge:  mergeState{status: domain.MergeIdle},
	}
}

// Items returns the cart lines of the active replica.
func (e *Engine) Items() []domain.CartLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == domain.ModeAccount {
		out := make([]domain.CartLine, len(e.accountCart))
		copy(out, e.accountCart)
		return out
	}
	return e.guest.CartLines()
}

// Wishlist returns the wishlist lines of the active replica.
func (e *Engine) Wishlist() []domain.WishlistLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == domain.ModeAccount {
		out := make([]domain.WishlistLine, len(e.accountWish))
		copy(out, e.accountWish)
		return out
	}
	return e.guest.WishlistLines()
}

// TotalItems is the summed quantity across the active cart replica.
func (e *Engine) TotalItems() int {
	total := 0
	for _, l := range e.Items() {
		total += l.Quantity
	}
	return total
}

func (e *Engine) IsEmpty() bool {
	return len(e.Items()) == 0
}

// Totals derives the display values from the active replica and the applied
// coupon. DisplayTax is never folded into Total.
func (e *Engine) Totals() Totals {
	items := e.Items()

	e.mu.Lock()
	coupon := e.coupon
	e.mu.Unlock()

	subtotal := pricing.Subtotal(items)
	discount := pricing.Discount(subtotal, coupon)
	shipping := e.opts.Shipping.Fee(subtotal, coupon)
	return Totals{
		Subtotal:   subtotal,
		Discount:   discount,
		Shipping:   shipping,
		Total:      pricing.Total(subtotal, discount, shipping),
		DisplayTax: pricing.DisplayTax(subtotal, e.opts.TaxRateBps),
	}
}

// Mode reports which replica is currently authoritative.
func (e *Engine) Mode() domain.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// AppliedCoupon returns the session's coupon, nil when none is applied.
func (e *Engine) AppliedCoupon() *domain.AppliedCoupon {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coupon
}

// MergeStatus reports the merge lifecycle for one collection.
func (e *Engine) MergeStatus(c domain.Collection) domain.MergeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state(c).status
}

// MergeProgress additionally reports how many remote operations of the last
// failed attempt did succeed, for partial-progress reporting.
func (e *Engine) MergeProgress(c domain.Collection) (domain.MergeStatus, int, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state(c)
	return s.status, s.succeededOps, s.lastSyncedAt
}

// ResetMergeStatus returns a terminal merge status to Idle.
func (e *Engine) ResetMergeStatus(c domain.Collection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state(c)
	if s.status.IsTerminal() {
		s.status = domain.MergeIdle
	}
}

// state returns the merge state for a collection; callers hold e.mu.
func (e *Engine) state(c domain.Collection) *mergeState {
	if c == domain.CollectionWishlist {
		return &e.wishMerge
	}
	return &e.cartMerge
}

// userMessage translates an internal error into the string shown to the user.
func userMessage(err error) string {
	var ve *remote.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ce *remote.ConflictError
	if errors.As(err, &ce) {
		return ce.Message
	}
	if errors.Is(err, remote.ErrUnauthorized) {
		return "your session has expired, please sign in again"
	}
	if errors.Is(err, remote.ErrNotFound) {
		return "item no longer exists"
	}
	return "something went wrong talking to the store, please try again"
}
