package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the storefront routes. Everything under /api/v1 is
// session-scoped; /healthz is not.
func NewRouter(h *Handler, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.SessionMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{item_id}", h.UpdateQuantity)
			r.Delete("/items/{item_id}", h.RemoveItem)
			r.Post("/coupon", h.ApplyCoupon)
			r.Delete("/coupon", h.RemoveCoupon)
			r.Post("/merge/retry", h.RetryMerge)
			r.Post("/merge/ack", h.AcknowledgeMerge)
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", h.GetWishlist)
			r.Post("/{product_id}/toggle", h.ToggleWishlist)
		})

		r.Get("/coupons/available", h.AvailableCoupons)
		r.Post("/session/events", h.SessionEvent)
	})

	return r
}
