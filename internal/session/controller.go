// Package session reacts to authentication-state transitions and owns the
// per-session engine registry. The controller drives the reconciliation
// engine at trust-boundary crossings only; it performs no shopping logic.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fjod/go_storefront/internal/reconcile"
)

// AuthEvent is a trust-boundary crossing reported by the auth layer.
type AuthEvent string

const (
	LoginSucceeded    AuthEvent = "LOGIN_SUCCEEDED"
	RegisterSucceeded AuthEvent = "REGISTER_SUCCEEDED"
	LogoutRequested   AuthEvent = "LOGOUT_REQUESTED"
)

// Notifier carries user-visible progress notices (toasts) out of the
// background merge; it must not block.
type Notifier interface {
	Notify(message string)
}

// NopNotifier drops notices; used when no UI channel is attached.
type NopNotifier struct{}

func (NopNotifier) Notify(string) {}

// Controller sequences engine calls for auth events. Login and registration
// schedule a non-blocking account load plus merge; logout tears account
// state down synchronously so the UI never flashes stale account data.
type Controller struct {
	engine  *reconcile.Engine
	notify  Notifier
	log     logrus.FieldLogger
	timeout time.Duration

	wg sync.WaitGroup
}

func NewController(engine *reconcile.Engine, notify Notifier, log logrus.FieldLogger) *Controller {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Controller{
		engine:  engine,
		notify:  notify,
		log:     log,
		timeout: 30 * time.Second,
	}
}

// Engine exposes the session's reconciliation engine to the HTTP layer.
func (c *Controller) Engine() *reconcile.Engine {
	return c.engine
}

// Handle dispatches one auth event. It returns once the synchronous part of
// the handling is done; merge work continues in the background.
func (c *Controller) Handle(event AuthEvent) {
	switch event {
	case LoginSucceeded, RegisterSucceeded:
		// the token is propagated by the time the auth layer reports
		// success, so the engine's load phase may proceed
		c.engine.SignalAuthReady()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()

			if err := c.engine.TransitionToAccount(ctx); err != nil {
				c.log.WithError(err).Warn("account sync failed")
				c.notify.Notify("We couldn't sync your cart. Your items are safe, retry from the cart page.")
				return
			}
			c.notify.Notify("Your cart is synced.")
		}()

	case LogoutRequested:
		// teardown runs before (and regardless of) the network logout call
		c.engine.TeardownAccount()

	default:
		c.log.WithField("event", event).Warn("unknown auth event ignored")
	}
}

// Wait blocks until background sync work has finished. Tests use it; the
// HTTP layer never does.
func (c *Controller) Wait() {
	c.wg.Wait()
}
