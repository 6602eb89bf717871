package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/reconcile"
	"github.com/fjod/go_storefront/internal/session"
)

type contextKey string

const (
	sessionContextKey   contextKey = "storefront_session"
	requestIDContextKey contextKey = "request_id"
)

// SessionHeader identifies the browser session. The middleware echoes it back
// so a first-time caller learns its assigned id.
const SessionHeader = "X-Session-ID"

// SessionMiddleware resolves (or creates) the caller's session and stores it
// in the request context.
func (h *Handler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := h.sessions.GetOrCreate(r.Header.Get(SessionHeader))
		w.Header().Set(SessionHeader, s.ID)

		ctx := context.WithValue(r.Context(), sessionContextKey, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionContextKey).(*session.Session)
	return s
}

func engineFromContext(ctx context.Context) *reconcile.Engine {
	return sessionFromContext(ctx).Controller.Engine()
}
