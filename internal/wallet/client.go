package wallet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pitopup/pitopup/pkg/logger"
)

// PaymentRequest is what the caller wants the user to pay.
type PaymentRequest = PaymentData

// Client adapts the callback-driven SDK to blocking calls. One Client serves
// one user session.
type Client struct {
	logger *logger.Logger
	sdk    SDK
	config SDKConfig

	mu          sync.Mutex
	initialized bool
	user        *User

	onIncomplete IncompletePaymentHandler
	onOrphaned   OrphanedPaymentHandler
}

func NewClient(sdk SDK, config SDKConfig, logger *logger.Logger) *Client {
	return &Client{sdk: sdk, config: config, logger: logger}
}

// OnIncompletePayment registers an observer for incomplete payments reported
// during authentication. The payment is not reconciled.
func (c *Client) OnIncompletePayment(fn IncompletePaymentHandler) {
	c.mu.Lock()
	c.onIncomplete = fn
	c.mu.Unlock()
}

// OnOrphanedPayment registers an observer for approvals or completions that
// land after CreatePayment gave up waiting.
func (c *Client) OnOrphanedPayment(fn OrphanedPaymentHandler) {
	c.mu.Lock()
	c.onOrphaned = fn
	c.mu.Unlock()
}

func (c *Client) reportOrphaned(ref, paymentID string) {
	c.logger.Error("Wallet payment settled after it was abandoned", "ref", ref, "payment_id", paymentID)
	c.mu.Lock()
	observer := c.onOrphaned
	c.mu.Unlock()
	if observer != nil {
		observer(ref, paymentID)
	}
}

// Initialize configures the SDK once. A failed attempt may be retried.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Client) initializeLocked(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.sdk.Init(ctx, c.config); err != nil {
		return fmt.Errorf("%w: %v", ErrInitialization, err)
	}
	c.initialized = true
	c.logger.Debug("Wallet SDK initialized", "version", c.config.Version, "sandbox", c.config.Sandbox)
	return nil
}

// Authenticate signs the user in, initializing the SDK first if needed.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}

	user, err := c.sdk.Authenticate(ctx, creds, []string{ScopePayments, ScopeUsername}, c.handleIncomplete)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
	c.logger.Info("Wallet user authenticated", "uid", user.UID, "username", user.Username)

	u := *user
	return &u, nil
}

func (c *Client) handleIncomplete(payment IncompletePayment) {
	c.logger.Warn("Incomplete wallet payment found",
		"payment_id", payment.Identifier, "amount", payment.Amount, "memo", payment.Memo)

	c.mu.Lock()
	observer := c.onIncomplete
	c.mu.Unlock()
	if observer != nil {
		observer(payment)
	}
}

// User returns a copy of the authenticated identity, or nil.
func (c *Client) User() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Client) IsAuthenticated() bool {
	return c.User() != nil
}

type settlement struct {
	paymentID string
	err       error
	// abandoned marks the caller giving up rather than a wallet outcome.
	abandoned bool
}

// CreatePayment starts a wallet payment and blocks until the wallet approves,
// cancels or fails it. Exactly one outcome is reported; callbacks arriving
// after that are ignored. When ctx ends first the payment is abandoned: the
// SDK is told to forget it, and any approval that still lands is reported to
// the orphaned-payment observer.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (string, error) {
	if !c.IsAuthenticated() {
		return "", ErrNotAuthenticated
	}
	ref := req.Metadata[MetadataRef]

	done := make(chan settlement, 1)
	var once sync.Once
	var abandoned atomic.Bool
	settle := func(s settlement) bool {
		settled := false
		once.Do(func() {
			if s.abandoned {
				abandoned.Store(true)
			}
			done <- s
			settled = true
		})
		return settled
	}

	callbacks := PaymentCallbacks{
		OnReadyForServerApproval: func(paymentID string) {
			if settle(settlement{paymentID: paymentID}) {
				return
			}
			if abandoned.Load() {
				c.reportOrphaned(ref, paymentID)
				return
			}
			c.logger.Debug("Ignoring late wallet callback", "payment_id", paymentID)
		},
		OnReadyForServerCompletion: func(paymentID, txID string) {
			if abandoned.Load() {
				c.reportOrphaned(ref, paymentID)
				return
			}
			c.logger.Info("Wallet payment completed", "payment_id", paymentID, "txid", txID)
		},
		OnCancel: func(paymentID string) {
			if !settle(settlement{paymentID: paymentID, err: ErrPaymentCancelled}) {
				c.logger.Debug("Ignoring late wallet callback", "payment_id", paymentID)
			}
		},
		OnError: func(err error, paymentID string) {
			msg := "unknown error"
			if err != nil {
				msg = err.Error()
			}
			if !settle(settlement{paymentID: paymentID, err: &PaymentError{PaymentID: paymentID, Message: msg}}) {
				c.logger.Debug("Ignoring late wallet callback", "payment_id", paymentID)
			}
		},
	}

	if err := c.sdk.CreatePayment(ctx, req, callbacks); err != nil {
		return "", &PaymentError{Message: err.Error()}
	}

	select {
	case s := <-done:
		if s.err != nil {
			return "", s.err
		}
		return s.paymentID, nil
	case <-ctx.Done():
	}

	if !settle(settlement{err: ctx.Err(), abandoned: true}) {
		// The wallet settled while ctx was ending; report that outcome.
		s := <-done
		if s.err != nil {
			return "", s.err
		}
		return s.paymentID, nil
	}
	if a, ok := c.sdk.(Abandoner); ok {
		a.Abandon(ref)
	}
	c.logger.Warn("Wallet payment abandoned", "ref", ref, "error", ctx.Err())
	<-done
	return "", ctx.Err()
}

// Logout forgets the identity. The wallet's own session is left alone.
func (c *Client) Logout() {
	c.mu.Lock()
	c.user = nil
	c.mu.Unlock()
}
