package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pitopup/pitopup/internal/aggregator"
	"github.com/pitopup/pitopup/internal/wallet"
)

// Session is a connected wallet user.
type Session struct {
	User        wallet.User `json:"user"`
	ConnectedAt time.Time   `json:"connectedAt"`
}

// PurchaseRequest is a user's order for one plan.
type PurchaseRequest struct {
	PlanID      string `json:"planId"`
	PhoneNumber string `json:"phoneNumber"`
	// Reference routes the wallet callbacks of this purchase. The page picks
	// it so it can relay callbacks before the purchase returns.
	Reference string `json:"reference"`
}

// TopupWatch is the last observed status of the top-up a session watches.
type TopupWatch struct {
	TransactionID int64             `json:"transactionId"`
	Status        aggregator.Status `json:"status"`
	Error         string            `json:"error,omitempty"`
	CheckedAt     time.Time         `json:"checkedAt"`
}

type PiTopUpI interface {
	// Connect authenticates a wallet user and opens their ledger account.
	Connect(ctx context.Context, creds wallet.Credentials) (*Session, error)
	// Logout forgets the session and resets the user's ledger.
	Logout(userID string) error
	Session(userID string) (*Session, error)

	Plans(planType PlanType) []Plan
	// Purchase pays for a plan through the wallet, fulfils it and records it.
	Purchase(ctx context.Context, userID string, req PurchaseRequest) (*Transaction, error)

	Balance(userID string) (decimal.Decimal, error)
	Transactions(userID string) ([]*Transaction, error)
	Subscriptions(userID string) ([]*Subscription, error)
	ToggleAutoRenew(userID, subscriptionID string, autoRenew bool) (*Subscription, error)

	Operators(ctx context.Context, countryCode string) ([]aggregator.Operator, error)
	Operator(ctx context.Context, operatorID int64) (*aggregator.Operator, error)
	TopupStatus(ctx context.Context, transactionID int64) (*aggregator.Topup, error)
	WatchTopup(userID string, transactionID int64) error
	WatchedStatus(userID string) (*TopupWatch, error)

	// PendingPayment returns the wallet payment waiting under ref so the
	// client page can hand it to the wallet.
	PendingPayment(userID, ref string) (*wallet.PaymentData, error)
	// DispatchWalletEvent routes a wallet callback relayed by the client page.
	DispatchWalletEvent(ctx context.Context, ref string, ev wallet.Event) error

	// Close stops every background watch.
	Close()
}

type APIServer interface {
	Start()
	Shutdown() error
}
