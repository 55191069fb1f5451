package repository

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/shopspring/decimal"

	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/pkg/logger"
)

var (
	accountsBucket      = []byte("accounts")
	transactionsBucket  = []byte("transactions")
	subscriptionsBucket = []byte("subscriptions")
)

// BoltDB keeps the ledger in an embedded bolt file. Transactions and
// subscriptions live in one nested bucket per user.
type BoltDB struct {
	logger *logger.Logger
	db     *bolt.DB
}

func NewBoltDB(path string, logger *logger.Logger) (*BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt ledger: %s", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{accountsBucket, transactionsBucket, subscriptionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger buckets: %s", err)
	}

	logger.Info("Opened bolt ledger", "path", path)
	return &BoltDB{db: db, logger: logger}, nil
}

func (s *BoltDB) Close() error {
	return s.db.Close()
}

func (s *BoltDB) OpenAccount(userID string, initial decimal.Decimal) (*models.Account, bool, error) {
	var result models.Account
	created := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(accountsBucket)
		if existing := b.Get([]byte(userID)); existing != nil {
			return json.Unmarshal(existing, &result)
		}

		result = models.Account{UserID: userID, Balance: initial, UpdatedAt: time.Now().Unix()}
		created = true
		return putJSON(b, userID, &result)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to open account: %s", err)
	}
	return &result, created, nil
}

func (s *BoltDB) GetBalance(userID string) (decimal.Decimal, error) {
	var acc models.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(accountsBucket).Get([]byte(userID))
		if v == nil {
			return models.ErrAccountNotFound
		}
		return json.Unmarshal(v, &acc)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (s *BoltDB) RecordPurchase(p *models.Purchase) error {
	if err := validatePurchase(p); err != nil {
		return err
	}
	userID := p.Transaction.UserID

	return s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(accountsBucket)
		v := accounts.Get([]byte(userID))
		if v == nil {
			return models.ErrAccountNotFound
		}
		var acc models.Account
		if err := json.Unmarshal(v, &acc); err != nil {
			return err
		}
		if acc.Balance.LessThan(p.Transaction.Price) {
			return models.ErrInsufficientFunds
		}

		acc.Balance = acc.Balance.Sub(p.Transaction.Price)
		acc.UpdatedAt = time.Now().Unix()
		if err := putJSON(accounts, userID, &acc); err != nil {
			return err
		}

		txs, err := userBucket(tx, transactionsBucket, userID)
		if err != nil {
			return err
		}
		if err := putJSON(txs, p.Transaction.ID, p.Transaction); err != nil {
			return err
		}

		if p.Subscription != nil {
			subs, err := userBucket(tx, subscriptionsBucket, userID)
			if err != nil {
				return err
			}
			return putJSON(subs, p.Subscription.ID, p.Subscription)
		}
		return nil
	})
}

func (s *BoltDB) SeedHistory(userID string, transactions []*models.Transaction, subscriptions []*models.Subscription) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		txs, err := userBucket(tx, transactionsBucket, userID)
		if err != nil {
			return err
		}
		for _, t := range transactions {
			rec := *t
			rec.UserID = userID
			if err := putJSON(txs, rec.ID, &rec); err != nil {
				return err
			}
		}

		subs, err := userBucket(tx, subscriptionsBucket, userID)
		if err != nil {
			return err
		}
		for _, sub := range subscriptions {
			rec := *sub
			rec.UserID = userID
			if err := putJSON(subs, rec.ID, &rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to seed history: %s", err)
	}
	return nil
}

func (s *BoltDB) GetTransactions(userID string) ([]*models.Transaction, error) {
	out := []*models.Transaction{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(transactionsBucket).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var t models.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, &t)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %s", err)
	}
	sortTransactions(out)
	return out, nil
}

func (s *BoltDB) GetSubscriptions(userID string) ([]*models.Subscription, error) {
	out := []*models.Subscription{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(subscriptionsBucket).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var sub models.Subscription
			if err := json.Unmarshal(v, &sub); err != nil {
				return err
			}
			out = append(out, &sub)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriptions: %s", err)
	}
	sortSubscriptions(out)
	return out, nil
}

func (s *BoltDB) SetAutoRenew(userID, subscriptionID string, autoRenew bool) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(subscriptionsBucket).Bucket([]byte(userID))
		if b == nil {
			return models.ErrSubscriptionNotFound
		}
		v := b.Get([]byte(subscriptionID))
		if v == nil {
			return models.ErrSubscriptionNotFound
		}
		if err := json.Unmarshal(v, &sub); err != nil {
			return err
		}
		sub.AutoRenew = autoRenew
		return putJSON(b, subscriptionID, &sub)
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *BoltDB) ResetAccount(userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(accountsBucket).Delete([]byte(userID)); err != nil {
			return err
		}
		for _, name := range [][]byte{transactionsBucket, subscriptionsBucket} {
			parent := tx.Bucket(name)
			if parent.Bucket([]byte(userID)) == nil {
				continue
			}
			if err := parent.DeleteBucket([]byte(userID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func userBucket(tx *bolt.Tx, parent []byte, userID string) (*bolt.Bucket, error) {
	return tx.Bucket(parent).CreateBucketIfNotExists([]byte(userID))
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}
