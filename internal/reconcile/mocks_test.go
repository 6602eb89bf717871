package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/remote"
)

// mockRemoteCart is a server-side cart with configurable failures.
type mockRemoteCart struct {
	mu     sync.Mutex
	lines  []domain.CartLine
	nextID int

	fetchCalls  int
	addCalls    int
	updateCalls int
	removeCalls int
	clearCalls  int

	failFetches int           // fail this many fetches, then recover
	failAdds    map[int64]int // productID -> remaining add failures
	fetchGate   chan struct{} // when set, Fetch blocks until closed
	gateFrom    int           // gate only fetch calls numbered >= this (1-based)
}

func newMockRemoteCart() *mockRemoteCart {
	return &mockRemoteCart{failAdds: make(map[int64]int)}
}

func (m *mockRemoteCart) snapshot() []domain.CartLine {
	out := make([]domain.CartLine, len(m.lines))
	copy(out, m.lines)
	return out
}

func (m *mockRemoteCart) Fetch(ctx context.Context) ([]domain.CartLine, error) {
	m.mu.Lock()
	call := m.fetchCalls + 1
	gate := m.fetchGate
	gateFrom := m.gateFrom
	m.mu.Unlock()
	if gate != nil && call >= gateFrom {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if m.failFetches > 0 {
		m.failFetches--
		return nil, remote.ErrUnavailable
	}
	return m.snapshot(), nil
}

func (m *mockRemoteCart) Add(_ context.Context, spec domain.AddItemSpec) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if n := m.failAdds[spec.ProductID]; n > 0 {
		m.failAdds[spec.ProductID] = n - 1
		return nil, remote.ErrUnavailable
	}

	m.nextID++
	m.lines = append(m.lines, domain.CartLine{
		ID:        fmt.Sprintf("srv-%d", m.nextID),
		ProductID: spec.ProductID,
		Quantity:  spec.Quantity,
		UnitPrice: spec.UnitPrice,
		Variant:   spec.Variant,
		Snapshot:  spec.Snapshot,
	})
	return m.snapshot(), nil
}

func (m *mockRemoteCart) Update(_ context.Context, itemID string, quantity int) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	for i := range m.lines {
		if m.lines[i].ID == itemID {
			m.lines[i].Quantity = quantity
			return m.snapshot(), nil
		}
	}
	return nil, remote.ErrNotFound
}

func (m *mockRemoteCart) Remove(_ context.Context, itemID string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeCalls++
	for i := range m.lines {
		if m.lines[i].ID == itemID {
			m.lines = append(m.lines[:i], m.lines[i+1:]...)
			return m.snapshot(), nil
		}
	}
	return nil, remote.ErrNotFound
}

func (m *mockRemoteCart) Clear(context.Context) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	m.lines = nil
	return nil, nil
}

// mockRemoteWishlist is a server-side wishlist keyed by product.
type mockRemoteWishlist struct {
	mu     sync.Mutex
	lines  []domain.WishlistLine
	nextID int

	addCalls int
	failAdds map[int64]int
}

func newMockRemoteWishlist() *mockRemoteWishlist {
	return &mockRemoteWishlist{failAdds: make(map[int64]int)}
}

func (m *mockRemoteWishlist) snapshot() []domain.WishlistLine {
	out := make([]domain.WishlistLine, len(m.lines))
	copy(out, m.lines)
	return out
}

func (m *mockRemoteWishlist) Fetch(context.Context) ([]domain.WishlistLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(), nil
}

func (m *mockRemoteWishlist) Add(_ context.Context, productID int64) ([]domain.WishlistLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if n := m.failAdds[productID]; n > 0 {
		m.failAdds[productID] = n - 1
		return nil, remote.ErrUnavailable
	}
	for _, l := range m.lines {
		if l.ProductID == productID {
			return m.snapshot(), nil
		}
	}
	m.nextID++
	m.lines = append(m.lines, domain.WishlistLine{
		ID:        fmt.Sprintf("wsrv-%d", m.nextID),
		ProductID: productID,
	})
	return m.snapshot(), nil
}

func (m *mockRemoteWishlist) Remove(_ context.Context, itemID string) ([]domain.WishlistLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.lines {
		if m.lines[i].ID == itemID {
			m.lines = append(m.lines[:i], m.lines[i+1:]...)
			return m.snapshot(), nil
		}
	}
	return nil, remote.ErrNotFound
}

func (m *mockRemoteWishlist) Clear(context.Context) ([]domain.WishlistLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = nil
	return nil, nil
}

// mockValidator approves any code it knows about.
type mockValidator struct {
	mu      sync.Mutex
	coupons map[string]*domain.AppliedCoupon
	err     error
}

func newMockValidator() *mockValidator {
	return &mockValidator{coupons: make(map[string]*domain.AppliedCoupon)}
}

func (m *mockValidator) Validate(_ context.Context, code string, _ int64, _ []int64) (*domain.AppliedCoupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if c, ok := m.coupons[code]; ok {
		return c, nil
	}
	return nil, &remote.ValidationError{Message: "invalid coupon code"}
}

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}
