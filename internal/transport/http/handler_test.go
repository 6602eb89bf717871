package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/localstore"
	"github.com/fjod/go_storefront/internal/reconcile"
	"github.com/fjod/go_storefront/internal/remote"
	"github.com/fjod/go_storefront/internal/session"
)

type stubRemoteCart struct {
	mu    sync.Mutex
	lines []domain.CartLine
}

func (s *stubRemoteCart) snapshot() []domain.CartLine {
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *stubRemoteCart) Fetch(context.Context) ([]domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

func (s *stubRemoteCart) Add(_ context.Context, spec domain.AddItemSpec) ([]domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, domain.CartLine{
		ID:        uuid.New().String(),
		ProductID: spec.ProductID,
		Quantity:  spec.Quantity,
		UnitPrice: spec.UnitPrice,
		Variant:   spec.Variant,
		Snapshot:  spec.Snapshot,
	})
	return s.snapshot(), nil
}

func (s *stubRemoteCart) Update(_ context.Context, itemID string, quantity int) ([]domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.lines {
		if s.lines[i].ID == itemID {
			s.lines[i].Quantity = quantity
		}
	}
	return s.snapshot(), nil
}

func (s *stubRemoteCart) Remove(_ context.Context, itemID string) ([]domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.lines[:0]
	for _, l := range s.lines {
		if l.ID != itemID {
			kept = append(kept, l)
		}
	}
	s.lines = kept
	return s.snapshot(), nil
}

func (s *stubRemoteCart) Clear(context.Context) ([]domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	return nil, nil
}

type stubRemoteWishlist struct {
	mu    sync.Mutex
	lines []domain.WishlistLine
}

func (s *stubRemoteWishlist) snapshot() []domain.WishlistLine {
	out := make([]domain.WishlistLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *stubRemoteWishlist) Fetch(context.Context) ([]domain.WishlistLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

func (s *stubRemoteWishlist) Add(_ context.Context, productID int64) ([]domain.WishlistLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, domain.WishlistLine{
		ID:        uuid.New().String(),
		ProductID: productID,
		AddedAt:   time.Now(),
	})
	return s.snapshot(), nil
}

func (s *stubRemoteWishlist) Remove(_ context.Context, itemID string) ([]domain.WishlistLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.lines[:0]
	for _, l := range s.lines {
		if l.ID != itemID {
			kept = append(kept, l)
		}
	}
	s.lines = kept
	return s.snapshot(), nil
}

func (s *stubRemoteWishlist) Clear(context.Context) ([]domain.WishlistLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	return nil, nil
}

type stubValidator struct {
	coupons map[string]*domain.AppliedCoupon
}

func (v *stubValidator) Validate(_ context.Context, code string, _ int64, _ []int64) (*domain.AppliedCoupon, error) {
	if c, ok := v.coupons[code]; ok {
		return c, nil
	}
	return nil, &remote.ValidationError{Message: "invalid coupon code"}
}

type stubCatalog struct {
	coupons []domain.Coupon
	err     error
}

func (c *stubCatalog) Available(context.Context, int64, bool) ([]domain.Coupon, error) {
	return c.coupons, c.err
}

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type harness struct {
	handler *Handler
	router  http.Handler
	manager *session.Manager
	catalog *stubCatalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	validator := &stubValidator{coupons: map[string]*domain.AppliedCoupon{
		"SAVE10": {Code: "SAVE10", Type: domain.DiscountPercentage, Value: 10},
	}}
	factory := func(string) *session.Controller {
		opts := reconcile.DefaultOptions()
		opts.LoadRetry.Delay = nil
		opts.ManualRetry.Delay = nil
		engine := reconcile.NewEngine(&stubRemoteCart{}, &stubRemoteWishlist{}, validator, localstore.NewStore(), opts, testLog())
		return session.NewController(engine, nil, testLog())
	}
	manager := session.NewManager(factory, time.Minute, testLog())
	t.Cleanup(manager.Close)

	catalog := &stubCatalog{coupons: []domain.Coupon{{Code: "SAVE10"}}}
	handler := NewHandler(manager, catalog, 5*time.Second, testLog())
	return &harness{
		handler: handler,
		router:  NewRouter(handler, 5*time.Second),
		manager: manager,
		catalog: catalog,
	}
}

func (h *harness) do(t *testing.T, method, path, sessionID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) CartResponseDTO {
	t.Helper()
	var resp CartResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestAddItem_CreatesSessionAndReturnsCart(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/cart/items", "", AddItemRequestDTO{
		ProductID: 1, Quantity: 2, UnitPrice: 2000, Size: "M",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(SessionHeader))

	resp := decodeCart(t, rec)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.TotalItems)
	assert.Equal(t, int64(4000), resp.Totals.Subtotal)
	assert.Equal(t, string(domain.ModeGuest), resp.Mode)
}

func TestAddItem_SessionIsSticky(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/cart/items", "", AddItemRequestDTO{ProductID: 1, Quantity: 1, UnitPrice: 500})
	require.Equal(t, http.StatusCreated, rec.Code)
	sid := rec.Header().Get(SessionHeader)

	rec = h.do(t, "GET", "/api/v1/cart", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeCart(t, rec).Items, 1)

	// a different session sees an empty cart
	rec = h.do(t, "GET", "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Items)
}

func TestAddItem_Validation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/cart/items", "", AddItemRequestDTO{ProductID: 0, Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, "POST", "/api/v1/cart/items", "", AddItemRequestDTO{ProductID: 1, Quantity: 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest("POST", "/api/v1/cart/items", bytes.NewBufferString("not json"))
	rec2 := httptest.NewRecorder()
	h.router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/cart/items", "", AddItemRequestDTO{ProductID: 1, Quantity: 2, UnitPrice: 500})
	sid := rec.Header().Get(SessionHeader)
	itemID := decodeCart(t, rec).Items[0].ID

	rec = h.do(t, "PUT", "/api/v1/cart/items/"+itemID, sid, UpdateQuantityRequestDTO{Quantity: 7})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decodeCart(t, rec).Items[0].Quantity)

	rec = h.do(t, "DELETE", "/api/v1/cart/items/"+itemID, sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Items)
}

func TestApplyAndRemoveCoupon(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/cart/items", "", AddItemRequestDTO{ProductID: 1, Quantity: 5, UnitPrice: 2000})
	sid := rec.Header().Get(SessionHeader)

	rec = h.do(t, "POST", "/api/v1/cart/coupon", sid, CouponRequestDTO{Code: "SAVE10"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	require.NotNil(t, resp.Coupon)
	assert.Equal(t, int64(1000), resp.Totals.Discount)

	rec = h.do(t, "DELETE", "/api/v1/cart/coupon", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeCart(t, rec).Coupon)
}

func TestApplyCoupon_RejectedCodeIsUnprocessable(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/cart/items", "", AddItemRequestDTO{ProductID: 1, Quantity: 1, UnitPrice: 2000})
	sid := rec.Header().Get(SessionHeader)

	rec = h.do(t, "POST", "/api/v1/cart/coupon", sid, CouponRequestDTO{Code: "NOPE"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAvailableCoupons(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/v1/coupons/available", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Coupons []domain.Coupon `json:"coupons"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Coupons, 1)
}

func TestAvailableCoupons_BackendDown(t *testing.T) {
	h := newHarness(t)
	h.catalog.err = assert.AnError
	h.catalog.coupons = nil

	rec := h.do(t, "GET", "/api/v1/coupons/available", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestToggleWishlist(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/wishlist/42/toggle", "", ToggleWishlistRequestDTO{
		Snapshot: domain.ProductSnapshot{Title: "mug"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	sid := rec.Header().Get(SessionHeader)

	var resp WishlistResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Items, 1)

	rec = h.do(t, "POST", "/api/v1/wishlist/42/toggle", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = WishlistResponseDTO{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Items)
}

func TestToggleWishlist_BadProductID(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/wishlist/zero/toggle", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionEvent_LoginSwitchesToAccountMode(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/cart/items", "", AddItemRequestDTO{ProductID: 1, Quantity: 1, UnitPrice: 900})
	sid := rec.Header().Get(SessionHeader)

	rec = h.do(t, "POST", "/api/v1/session/events", sid, SessionEventRequestDTO{Event: "LOGIN_SUCCEEDED"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		got := h.do(t, "GET", "/api/v1/cart", sid, nil)
		resp := decodeCart(t, got)
		return resp.Mode == string(domain.ModeAccount) && resp.Merge.Status == "SUCCESS"
	}, 2*time.Second, 10*time.Millisecond)

	rec = h.do(t, "GET", "/api/v1/cart", sid, nil)
	assert.Len(t, decodeCart(t, rec).Items, 1)
}

func TestSessionEvent_UnknownEventRejected(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/session/events", "", SessionEventRequestDTO{Event: "PASSWORD_CHANGED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgeMerge_ResetsTerminalStatus(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "POST", "/api/v1/cart/items", "", AddItemRequestDTO{ProductID: 1, Quantity: 1, UnitPrice: 900})
	sid := rec.Header().Get(SessionHeader)

	rec = h.do(t, "POST", "/api/v1/session/events", sid, SessionEventRequestDTO{Event: "LOGIN_SUCCEEDED"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		got := h.do(t, "GET", "/api/v1/cart", sid, nil)
		return decodeCart(t, got).Merge.Status == "SUCCESS"
	}, 2*time.Second, 10*time.Millisecond)

	rec = h.do(t, "POST", "/api/v1/cart/merge/ack", sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IDLE", decodeCart(t, rec).Merge.Status)
}

func TestRequestID_EchoedBackUnchanged(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "client-abc")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, "client-abc", rec.Header().Get("X-Request-ID"))

	// an id is assigned when the caller sends none
	rec = h.do(t, "GET", "/healthz", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
