package repository

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/pkg/logger"
)

// MemoryDB keeps the ledger in process memory.
type MemoryDB struct {
	logger *logger.Logger

	mu            sync.RWMutex
	accounts      map[string]*models.Account
	transactions  map[string][]*models.Transaction
	subscriptions map[string][]*models.Subscription
}

func NewMemoryDB(logger *logger.Logger) *MemoryDB {
	return &MemoryDB{
		logger:        logger,
		accounts:      make(map[string]*models.Account),
		transactions:  make(map[string][]*models.Transaction),
		subscriptions: make(map[string][]*models.Subscription),
	}
}

func (db *MemoryDB) OpenAccount(userID string, initial decimal.Decimal) (*models.Account, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if acc, ok := db.accounts[userID]; ok {
		a := *acc
		return &a, false, nil
	}
	acc := &models.Account{UserID: userID, Balance: initial, UpdatedAt: time.Now().Unix()}
	db.accounts[userID] = acc
	a := *acc
	return &a, true, nil
}

func (db *MemoryDB) GetBalance(userID string) (decimal.Decimal, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	acc, ok := db.accounts[userID]
	if !ok {
		return decimal.Zero, models.ErrAccountNotFound
	}
	return acc.Balance, nil
}

func (db *MemoryDB) RecordPurchase(p *models.Purchase) error {
	if err := validatePurchase(p); err != nil {
		return err
	}
	userID := p.Transaction.UserID

	db.mu.Lock()
	defer db.mu.Unlock()

	acc, ok := db.accounts[userID]
	if !ok {
		return models.ErrAccountNotFound
	}
	if acc.Balance.LessThan(p.Transaction.Price) {
		return models.ErrInsufficientFunds
	}

	acc.Balance = acc.Balance.Sub(p.Transaction.Price)
	acc.UpdatedAt = time.Now().Unix()
	tx := *p.Transaction
	db.transactions[userID] = append(db.transactions[userID], &tx)
	if p.Subscription != nil {
		sub := *p.Subscription
		db.subscriptions[userID] = append(db.subscriptions[userID], &sub)
	}
	return nil
}

func (db *MemoryDB) SeedHistory(userID string, transactions []*models.Transaction, subscriptions []*models.Subscription) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, t := range transactions {
		tx := *t
		tx.UserID = userID
		db.transactions[userID] = append(db.transactions[userID], &tx)
	}
	for _, s := range subscriptions {
		sub := *s
		sub.UserID = userID
		db.subscriptions[userID] = append(db.subscriptions[userID], &sub)
	}
	return nil
}

func (db *MemoryDB) GetTransactions(userID string) ([]*models.Transaction, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*models.Transaction, 0, len(db.transactions[userID]))
	for _, t := range db.transactions[userID] {
		tx := *t
		out = append(out, &tx)
	}
	sortTransactions(out)
	return out, nil
}

func (db *MemoryDB) GetSubscriptions(userID string) ([]*models.Subscription, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*models.Subscription, 0, len(db.subscriptions[userID]))
	for _, s := range db.subscriptions[userID] {
		sub := *s
		out = append(out, &sub)
	}
	sortSubscriptions(out)
	return out, nil
}

func (db *MemoryDB) SetAutoRenew(userID, subscriptionID string, autoRenew bool) (*models.Subscription, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, s := range db.subscriptions[userID] {
		if s.ID == subscriptionID {
			s.AutoRenew = autoRenew
			sub := *s
			return &sub, nil
		}
	}
	return nil, models.ErrSubscriptionNotFound
}

func (db *MemoryDB) ResetAccount(userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.accounts, userID)
	delete(db.transactions, userID)
	delete(db.subscriptions, userID)
	return nil
}

func (db *MemoryDB) Close() error {
	return nil
}
