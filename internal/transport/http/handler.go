// Package http is the storefront's HTTP facade. Every route resolves the
// caller's session first; cart and wishlist state is per-session, never
// shared across sessions.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/reconcile"
	"github.com/fjod/go_storefront/internal/session"
)

// CouponCatalog lists coupons applicable to the current cart.
type CouponCatalog interface {
	Available(ctx context.Context, cartAmount int64, hasItems bool) ([]domain.Coupon, error)
}

type Handler struct {
	sessions *session.Manager
	catalog  CouponCatalog
	timeout  time.Duration
	log      logrus.FieldLogger
}

func NewHandler(sessions *session.Manager, catalog CouponCatalog, timeout time.Duration, log logrus.FieldLogger) *Handler {
	return &Handler{
		sessions: sessions,
		catalog:  catalog,
		timeout:  timeout,
		log:      log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64                  `json:"productId"`
	Quantity  int                    `json:"quantity"`
	UnitPrice int64                  `json:"unitPrice"`
	Size      string                 `json:"size,omitempty"`
	Color     string                 `json:"color,omitempty"`
	Snapshot  domain.ProductSnapshot `json:"snapshot"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CouponRequestDTO struct {
	Code string `json:"code"`
}

type ToggleWishlistRequestDTO struct {
	Snapshot domain.ProductSnapshot `json:"snapshot"`
}

type SessionEventRequestDTO struct {
	Event string `json:"event"`
}

type MergeStateDTO struct {
	Status       string    `json:"status"`
	SucceededOps int       `json:"succeededOps,omitempty"`
	LastSyncedAt time.Time `json:"lastSyncedAt,omitempty"`
}

type CartResponseDTO struct {
	Items      []domain.CartLine     `json:"items"`
	Totals     reconcile.Totals      `json:"totals"`
	TotalItems int                   `json:"totalItems"`
	Mode       string                `json:"mode"`
	Coupon     *domain.AppliedCoupon `json:"coupon,omitempty"`
	Merge      MergeStateDTO         `json:"merge"`
}

type WishlistResponseDTO struct {
	Items []domain.WishlistLine `json:"items"`
	Merge MergeStateDTO         `json:"merge"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	engine := engineFromContext(r.Context())
	respondJSON(w, http.StatusOK, h.cartResponse(engine))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	engine := engineFromContext(r.Context())
	res := engine.AddItem(ctx, domain.AddItemSpec{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Variant:   domain.Variant{Size: req.Size, Color: req.Color},
		Snapshot:  req.Snapshot,
	})
	if !res.OK {
		respondError(w, http.StatusUnprocessableEntity, "add_rejected", res.Message)
		return
	}
	respondJSON(w, http.StatusCreated, h.cartResponse(engine))
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	engine := engineFromContext(r.Context())
	res := engine.UpdateQuantity(ctx, itemID, req.Quantity)
	if !res.OK {
		respondError(w, http.StatusUnprocessableEntity, "update_rejected", res.Message)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse(engine))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item id is required")
		return
	}

	engine := engineFromContext(r.Context())
	res := engine.RemoveItem(ctx, itemID)
	if !res.OK {
		respondError(w, http.StatusUnprocessableEntity, "remove_rejected", res.Message)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse(engine))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	engine := engineFromContext(r.Context())
	res := engine.Clear(ctx)
	if !res.OK {
		respondError(w, http.StatusUnprocessableEntity, "clear_rejected", res.Message)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse(engine))
}

func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	engine := engineFromContext(r.Context())
	res := engine.ApplyCoupon(ctx, req.Code)
	if !res.OK {
		respondError(w, http.StatusUnprocessableEntity, "coupon_rejected", res.Message)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse(engine))
}

func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	engine := engineFromContext(r.Context())
	engine.RemoveCoupon()
	respondJSON(w, http.StatusOK, h.cartResponse(engine))
}

func (h *Handler) AvailableCoupons(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	engine := engineFromContext(r.Context())
	totals := engine.Totals()

	coupons, err := h.catalog.Available(ctx, totals.Subtotal, !engine.IsEmpty())
	if err != nil {
		h.log.WithError(err).Error("coupon catalog lookup failed")
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "coupons are unavailable right now")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"coupons": coupons})
}

func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	engine := engineFromContext(r.Context())
	respondJSON(w, http.StatusOK, h.wishlistResponse(engine))
}

func (h *Handler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productIDStr := chi.URLParam(r, "product_id")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	var req ToggleWishlistRequestDTO
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	engine := engineFromContext(r.Context())
	res := engine.ToggleWishlist(ctx, productID, req.Snapshot)
	if !res.OK {
		respondError(w, http.StatusUnprocessableEntity, "toggle_rejected", res.Message)
		return
	}
	respondJSON(w, http.StatusOK, h.wishlistResponse(engine))
}

func (h *Handler) RetryMerge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	engine := engineFromContext(r.Context())
	res := engine.ManualMerge(ctx)
	if !res.OK {
		respondError(w, http.StatusConflict, "merge_failed", res.Message)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse(engine))
}

// AcknowledgeMerge clears a terminal merge status once the UI has shown it.
func (h *Handler) AcknowledgeMerge(w http.ResponseWriter, r *http.Request) {
	engine := engineFromContext(r.Context())
	engine.ResetMergeStatus(domain.CollectionCart)
	engine.ResetMergeStatus(domain.CollectionWishlist)
	respondJSON(w, http.StatusOK, h.cartResponse(engine))
}

// SessionEvent is the HTTP entry for auth events; the Kafka poller is the
// other one. Both converge on the same per-session controller.
func (h *Handler) SessionEvent(w http.ResponseWriter, r *http.Request) {
	var req SessionEventRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	event := session.AuthEvent(req.Event)
	switch event {
	case session.LoginSucceeded, session.RegisterSucceeded, session.LogoutRequested:
	default:
		respondError(w, http.StatusBadRequest, "invalid_event", "unknown auth event")
		return
	}

	s := sessionFromContext(r.Context())
	s.Controller.Handle(event)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) cartResponse(engine *reconcile.Engine) CartResponseDTO {
	items := engine.Items()
	if items == nil {
		items = []domain.CartLine{}
	}
	return CartResponseDTO{
		Items:      items,
		Totals:     engine.Totals(),
		TotalItems: engine.TotalItems(),
		Mode:       string(engine.Mode()),
		Coupon:     engine.AppliedCoupon(),
		Merge:      mergeState(engine, domain.CollectionCart),
	}
}

func (h *Handler) wishlistResponse(engine *reconcile.Engine) WishlistResponseDTO {
	items := engine.Wishlist()
	if items == nil {
		items = []domain.WishlistLine{}
	}
	return WishlistResponseDTO{
		Items: items,
		Merge: mergeState(engine, domain.CollectionWishlist),
	}
}

func mergeState(engine *reconcile.Engine, c domain.Collection) MergeStateDTO {
	status, succeeded, syncedAt := engine.MergeProgress(c)
	return MergeStateDTO{
		Status:       status.String(),
		SucceededOps: succeeded,
		LastSyncedAt: syncedAt,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
