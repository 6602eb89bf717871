package remote

import (
	"context"
	"sync"
)

// StaticToken is a fixed TokenSource with no refresh capability. A 401 with
// a static token stays a 401.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }

func (s StaticToken) Refresh(context.Context) error { return ErrUnauthorized }

// BearerToken is a mutable TokenSource. The auth layer sets the token on
// login; Refresh delegates to the configured callback, which returns the
// replacement token.
type BearerToken struct {
	mu      sync.RWMutex
	token   string
	refresh func(ctx context.Context) (string, error)
}

func NewBearerToken(refresh func(ctx context.Context) (string, error)) *BearerToken {
	return &BearerToken{refresh: refresh}
}

func (b *BearerToken) Token() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

func (b *BearerToken) Set(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

func (b *BearerToken) Refresh(ctx context.Context) error {
	b.mu.RLock()
	refresh := b.refresh
	b.mu.RUnlock()
	if refresh == nil {
		return ErrUnauthorized
	}

	token, err := refresh(ctx)
	if err != nil {
		return err
	}
	b.Set(token)
	return nil
}
