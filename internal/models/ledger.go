package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionPeriod is how far a new subscription's renewal date lies in the future.
const SubscriptionPeriod = 30 * 24 * time.Hour

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Account holds the spendable token balance of a wallet user.
type Account struct {
	// UserID is the wallet uid.
	UserID string `json:"user_id" gorm:"column:user_id;primaryKey"`
	// Balance is the spendable amount in wallet tokens.
	Balance decimal.Decimal `json:"balance" gorm:"column:balance;type:numeric(20,8);not null"`
	// UpdatedAt is the Unix timestamp of the last balance change.
	UpdatedAt int64 `json:"updated_at" gorm:"column:updated_at"`
}

// Transaction is an entry in a user's purchase history. It is never
// mutated after creation.
type Transaction struct {
	ID     string `json:"id" gorm:"column:id;primaryKey"`
	UserID string `json:"-" gorm:"column:user_id;index;not null"`

	Type     PlanType          `json:"type" gorm:"column:type"`
	PlanName string            `json:"planName" gorm:"column:plan_name"`
	Amount   string            `json:"amount" gorm:"column:amount"`
	Price    decimal.Decimal   `json:"price" gorm:"column:price;type:numeric(20,8)"`
	Status   TransactionStatus `json:"status" gorm:"column:status"`

	Timestamp time.Time `json:"timestamp" gorm:"column:timestamp;index"`
	// TxHash is the settlement hash shown on the receipt.
	TxHash string `json:"txHash,omitempty" gorm:"column:tx_hash"`

	PhoneNumber string `json:"phoneNumber,omitempty" gorm:"column:phone_number"`
	// WalletPaymentID is the wallet-issued payment identifier.
	WalletPaymentID string `json:"walletPaymentId,omitempty" gorm:"column:wallet_payment_id;index"`
	// TopupTransactionID is the aggregator transaction id, zero when no
	// top-up was submitted.
	TopupTransactionID int64 `json:"topupTransactionId,omitempty" gorm:"column:topup_transaction_id"`
}

// Subscription is a recurring data plan. Only AutoRenew changes after creation.
type Subscription struct {
	ID     string `json:"id" gorm:"column:id;primaryKey"`
	UserID string `json:"-" gorm:"column:user_id;index;not null"`

	PlanID      string    `json:"planId" gorm:"column:plan_id"`
	PlanName    string    `json:"planName" gorm:"column:plan_name"`
	Amount      string    `json:"amount" gorm:"column:amount"`
	RenewalDate time.Time `json:"renewalDate" gorm:"column:renewal_date"`
	IsActive    bool      `json:"isActive" gorm:"column:is_active"`
	AutoRenew   bool      `json:"autoRenew" gorm:"column:auto_renew"`
}

// Purchase is the unit written atomically by Repository.RecordPurchase:
// the debit of Transaction.Price, the transaction itself and, for data
// plans, the new subscription.
type Purchase struct {
	Transaction  *Transaction
	Subscription *Subscription
}
