package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pitopup/pitopup/pkg/logger"
)

type EventType string

const (
	EventApproval   EventType = "approval"
	EventCompletion EventType = "completion"
	EventCancel     EventType = "cancel"
	EventError      EventType = "error"
)

// Event is a wallet payment callback relayed by the client page.
type Event struct {
	Type      EventType `json:"type"`
	PaymentID string    `json:"paymentId"`
	TxID      string    `json:"txid,omitempty"`
	Message   string    `json:"message,omitempty"`
}

var (
	ErrNotInitialized   = errors.New("wallet SDK not initialized")
	ErrMissingReference = errors.New("payment metadata has no reference")
	ErrDuplicateRef     = errors.New("payment reference already in use")
	ErrUnknownEvent     = errors.New("unknown wallet event")
	ErrMissingPaymentID = errors.New("wallet event has no payment id")
	ErrTooManyParked    = errors.New("too many unmatched wallet events")
)

const (
	defaultPaymentTTL = time.Hour
	maxParkedRefs     = 256
	maxParkedPerRef   = 4
)

type bridgePayment struct {
	data      PaymentData
	callbacks PaymentCallbacks
	createdAt time.Time
}

type parkedEvents struct {
	events    []Event
	createdAt time.Time
}

// Bridge implements SDK on the server. The browser runs the real wallet SDK
// and posts each payment callback here with the payment's reference; the
// bridge performs server-side approval and completion against the Platform
// and feeds the outcome to the registered callbacks.
type Bridge struct {
	logger   *logger.Logger
	platform Platform
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	config   *SDKConfig
	payments map[string]*bridgePayment
	// parked holds events that arrived before their payment was registered.
	parked map[string]*parkedEvents
	// abandoned holds refs whose caller stopped waiting, with the time it did.
	abandoned map[string]time.Time
}

func NewBridge(platform Platform, logger *logger.Logger) *Bridge {
	return &Bridge{
		logger:    logger,
		platform:  platform,
		ttl:       defaultPaymentTTL,
		now:       time.Now,
		payments:  make(map[string]*bridgePayment),
		parked:    make(map[string]*parkedEvents),
		abandoned: make(map[string]time.Time),
	}
}

func (b *Bridge) Init(_ context.Context, cfg SDKConfig) error {
	if cfg.Version == "" {
		return errors.New("sdk version is required")
	}
	b.mu.Lock()
	b.config = &cfg
	b.mu.Unlock()
	b.logger.Info("Wallet bridge initialized", "version", cfg.Version, "sandbox", cfg.Sandbox)
	return nil
}

func (b *Bridge) Authenticate(ctx context.Context, creds Credentials, scopes []string, onIncomplete IncompletePaymentHandler) (*User, error) {
	b.mu.Lock()
	initialized := b.config != nil
	b.mu.Unlock()
	if !initialized {
		return nil, ErrNotInitialized
	}
	if creds.AccessToken == "" {
		return nil, errors.New("access token is required")
	}

	me, err := b.platform.Me(ctx, creds.AccessToken)
	if err != nil {
		return nil, err
	}
	if me.UID == "" {
		return nil, errors.New("platform returned no user id")
	}

	// Older tokens come back without a scope list; only check when present.
	if granted := me.Credentials.Scopes; len(granted) > 0 {
		set := make(map[string]struct{}, len(granted))
		for _, s := range granted {
			set[s] = struct{}{}
		}
		for _, s := range scopes {
			if _, ok := set[s]; !ok {
				return nil, fmt.Errorf("scope %q not granted", s)
			}
		}
	}

	if creds.IncompletePayment != nil && onIncomplete != nil {
		onIncomplete(*creds.IncompletePayment)
	}

	return &User{UID: me.UID, Username: me.Username, AccessToken: creds.AccessToken}, nil
}

// CreatePayment registers callbacks under the payment's reference and
// replays any events that arrived early.
func (b *Bridge) CreatePayment(ctx context.Context, data PaymentData, callbacks PaymentCallbacks) error {
	ref := data.Metadata[MetadataRef]
	if ref == "" {
		return ErrMissingReference
	}

	b.mu.Lock()
	if b.config == nil {
		b.mu.Unlock()
		return ErrNotInitialized
	}
	b.sweepLocked()
	_, abandoned := b.abandoned[ref]
	if _, exists := b.payments[ref]; exists || abandoned {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateRef, ref)
	}
	p := &bridgePayment{data: data, callbacks: callbacks, createdAt: b.now()}
	b.payments[ref] = p
	var early []Event
	if parked, ok := b.parked[ref]; ok {
		early = parked.events
		delete(b.parked, ref)
	}
	b.mu.Unlock()

	b.logger.Debug("Wallet payment registered", "ref", ref, "amount", data.Amount)
	for _, ev := range early {
		if err := b.deliver(ctx, ref, p, ev); err != nil {
			b.logger.Warn("Replaying parked wallet event failed", "ref", ref, "event", ev.Type, "error", err)
		}
	}
	return nil
}

// Pending returns the payment registered under ref so the client page can
// hand the same amount, memo and metadata to the wallet.
func (b *Bridge) Pending(ref string) (PaymentData, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.payments[ref]
	if !ok {
		return PaymentData{}, false
	}
	return p.data, true
}

// Abandon forgets the payment registered under ref. Approvals and
// completions relayed for it afterwards fail with ErrPaymentAbandoned.
func (b *Bridge) Abandon(ref string) {
	b.mu.Lock()
	delete(b.payments, ref)
	delete(b.parked, ref)
	b.abandoned[ref] = b.now()
	b.mu.Unlock()
	b.logger.Warn("Wallet payment abandoned", "ref", ref)
}

// Dispatch routes a relayed wallet event to the payment registered under ref.
// Events for unknown references are parked until the payment registers.
func (b *Bridge) Dispatch(ctx context.Context, ref string, ev Event) error {
	switch ev.Type {
	case EventApproval, EventCompletion, EventCancel, EventError:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	b.mu.Lock()
	if _, gone := b.abandoned[ref]; gone {
		b.mu.Unlock()
		switch ev.Type {
		case EventApproval, EventCompletion:
			b.logger.Error("Wallet event for abandoned payment", "ref", ref, "event", ev.Type, "payment_id", ev.PaymentID)
			return fmt.Errorf("%w: %s", ErrPaymentAbandoned, ref)
		}
		return nil
	}
	p, ok := b.payments[ref]
	if !ok {
		err := b.parkLocked(ref, ev)
		b.mu.Unlock()
		if err == nil {
			b.logger.Debug("Parked wallet event", "ref", ref, "event", ev.Type)
		}
		return err
	}
	b.mu.Unlock()

	return b.deliver(ctx, ref, p, ev)
}

func (b *Bridge) deliver(ctx context.Context, ref string, p *bridgePayment, ev Event) error {
	switch ev.Type {
	case EventApproval:
		if ev.PaymentID == "" {
			return ErrMissingPaymentID
		}
		if err := b.verify(ctx, ref, p, ev.PaymentID); err != nil {
			b.finish(ref)
			p.callbacks.OnError(err, ev.PaymentID)
			return err
		}
		if !b.registered(ref, p) {
			return fmt.Errorf("%w: %s", ErrPaymentAbandoned, ref)
		}
		if err := b.platform.ApprovePayment(ctx, ev.PaymentID); err != nil {
			b.finish(ref)
			p.callbacks.OnError(fmt.Errorf("server approval failed: %w", err), ev.PaymentID)
			return err
		}
		p.callbacks.OnReadyForServerApproval(ev.PaymentID)

	case EventCompletion:
		if ev.PaymentID == "" {
			return ErrMissingPaymentID
		}
		if err := b.platform.CompletePayment(ctx, ev.PaymentID, ev.TxID); err != nil {
			b.logger.Error("Server completion failed", "ref", ref, "payment_id", ev.PaymentID, "error", err)
			return err
		}
		b.finish(ref)
		p.callbacks.OnReadyForServerCompletion(ev.PaymentID, ev.TxID)

	case EventCancel:
		b.finish(ref)
		p.callbacks.OnCancel(ev.PaymentID)

	case EventError:
		b.finish(ref)
		msg := ev.Message
		if msg == "" {
			msg = "wallet reported an error"
		}
		p.callbacks.OnError(errors.New(msg), ev.PaymentID)
	}
	return nil
}

// verify checks that the wallet payment offered for approval is the one
// registered under ref: same reference and same amount.
func (b *Bridge) verify(ctx context.Context, ref string, p *bridgePayment, paymentID string) error {
	payment, err := b.platform.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("failed to fetch payment %s: %w", paymentID, err)
	}
	if got := payment.Ref(); got != ref {
		b.logger.Warn("Wallet payment reference mismatch", "ref", ref, "payment_id", paymentID, "payment_ref", got)
		return fmt.Errorf("%w: payment %s belongs to %q", ErrPaymentMismatch, paymentID, got)
	}
	if !payment.Amount.Equal(p.data.Amount) {
		b.logger.Warn("Wallet payment amount mismatch", "ref", ref, "payment_id", paymentID,
			"amount", payment.Amount, "expected", p.data.Amount)
		return fmt.Errorf("%w: amount %s, expected %s", ErrPaymentMismatch, payment.Amount, p.data.Amount)
	}
	return nil
}

func (b *Bridge) registered(ref string, p *bridgePayment) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.payments[ref] == p
}

func (b *Bridge) finish(ref string) {
	b.mu.Lock()
	delete(b.payments, ref)
	b.mu.Unlock()
}

func (b *Bridge) parkLocked(ref string, ev Event) error {
	b.sweepLocked()
	parked, ok := b.parked[ref]
	if !ok {
		if len(b.parked) >= maxParkedRefs {
			return ErrTooManyParked
		}
		parked = &parkedEvents{createdAt: b.now()}
		b.parked[ref] = parked
	}
	if len(parked.events) >= maxParkedPerRef {
		return ErrTooManyParked
	}
	parked.events = append(parked.events, ev)
	return nil
}

// sweepLocked drops payments and parked events older than the TTL.
func (b *Bridge) sweepLocked() {
	cutoff := b.now().Add(-b.ttl)
	for ref, p := range b.payments {
		if p.createdAt.Before(cutoff) {
			delete(b.payments, ref)
		}
	}
	for ref, p := range b.parked {
		if p.createdAt.Before(cutoff) {
			delete(b.parked, ref)
		}
	}
	for ref, at := range b.abandoned {
		if at.Before(cutoff) {
			delete(b.abandoned, ref)
		}
	}
}
