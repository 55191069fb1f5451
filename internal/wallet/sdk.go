package wallet

import (
	"context"

	"github.com/shopspring/decimal"
)

// Scopes requested on authentication.
const (
	ScopePayments = "payments"
	ScopeUsername = "username"
)

// MetadataRef is the payment metadata key that correlates SDK callbacks
// with the payment that produced them.
const MetadataRef = "ref"

// SDKConfig configures the wallet SDK.
type SDKConfig struct {
	Version string
	Sandbox bool
}

// User is an authenticated wallet identity.
type User struct {
	UID         string `json:"uid"`
	Username    string `json:"username"`
	AccessToken string `json:"-"`
}

// IncompletePayment is a payment the wallet reports as left unfinished by an
// earlier session.
type IncompletePayment struct {
	Identifier string            `json:"identifier"`
	Amount     decimal.Decimal   `json:"amount"`
	Memo       string            `json:"memo"`
	TxID       string            `json:"txid,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IncompletePaymentHandler is invoked by the SDK when it finds an incomplete payment.
type IncompletePaymentHandler func(payment IncompletePayment)

// Credentials are what the client side hands over after the wallet's own
// sign-in: the user's access token and any incomplete payment it reported.
type Credentials struct {
	AccessToken       string             `json:"accessToken"`
	IncompletePayment *IncompletePayment `json:"incompletePayment,omitempty"`
}

// PaymentData is submitted to the wallet to start a payment.
type PaymentData struct {
	Amount   decimal.Decimal   `json:"amount"`
	Memo     string            `json:"memo"`
	Metadata map[string]string `json:"metadata"`
}

// PaymentCallbacks receive the wallet's asynchronous payment events.
type PaymentCallbacks struct {
	OnReadyForServerApproval   func(paymentID string)
	OnReadyForServerCompletion func(paymentID, txID string)
	OnCancel                   func(paymentID string)
	OnError                    func(err error, paymentID string)
}

// SDK is the wallet boundary.
type SDK interface {
	Init(ctx context.Context, cfg SDKConfig) error
	Authenticate(ctx context.Context, creds Credentials, scopes []string, onIncomplete IncompletePaymentHandler) (*User, error)
	// CreatePayment starts a payment; its outcome arrives through callbacks.
	CreatePayment(ctx context.Context, data PaymentData, callbacks PaymentCallbacks) error
}

// Abandoner is implemented by SDKs that can forget a payment whose caller
// stopped waiting. Later approvals for ref must fail.
type Abandoner interface {
	Abandon(ref string)
}

// OrphanedPaymentHandler is told about a payment the wallet approved or
// completed after the caller had already given up on it.
type OrphanedPaymentHandler func(ref, paymentID string)
