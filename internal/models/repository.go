package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInsufficientFunds    = errors.New("insufficient balance")
)

// Repository is the ledger: balances, purchase history and subscriptions
// per wallet user.
type Repository interface {
	// OpenAccount returns the user's account, creating it with the initial
	// balance when absent. created reports whether it was just created.
	OpenAccount(userID string, initial decimal.Decimal) (account *Account, created bool, err error)
	GetBalance(userID string) (decimal.Decimal, error)

	// RecordPurchase debits the transaction price and stores the transaction
	// and optional subscription in one step. It fails with
	// ErrInsufficientFunds, writing nothing, when the balance is too low.
	RecordPurchase(purchase *Purchase) error
	// SeedHistory stores pre-existing transactions and subscriptions without
	// touching the balance.
	SeedHistory(userID string, transactions []*Transaction, subscriptions []*Subscription) error

	// GetTransactions returns the user's transactions, newest first.
	GetTransactions(userID string) ([]*Transaction, error)
	// GetSubscriptions returns the user's subscriptions, newest first.
	GetSubscriptions(userID string) ([]*Subscription, error)
	SetAutoRenew(userID, subscriptionID string, autoRenew bool) (*Subscription, error)

	// ResetAccount drops the account with its history.
	ResetAccount(userID string) error
	Close() error
}
