package repository

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/pkg/logger"
)

type ledgerFactory func(t *testing.T) models.Repository

func ledgers() map[string]ledgerFactory {
	return map[string]ledgerFactory{
		"memory": func(t *testing.T) models.Repository {
			return NewMemoryDB(logger.NewNop())
		},
		"bolt": func(t *testing.T) models.Repository {
			t.Helper()
			db, err := NewBoltDB(filepath.Join(t.TempDir(), "ledger.db"), logger.NewNop())
			if err != nil {
				t.Fatalf("failed to open bolt ledger: %v", err)
			}
			t.Cleanup(func() { db.Close() })
			return db
		},
	}
}

func forEachLedger(t *testing.T, fn func(t *testing.T, repo models.Repository)) {
	for name, factory := range ledgers() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func newTx(user, id string, price string, at time.Time) *models.Transaction {
	return &models.Transaction{
		ID:        id,
		UserID:    user,
		Type:      models.PlanTypeAirtime,
		PlanName:  "Basic Airtime",
		Amount:    "$10",
		Price:     decimal.RequireFromString(price),
		Status:    models.TransactionCompleted,
		Timestamp: at,
	}
}

func TestOpenAccountIsIdempotent(t *testing.T) {
	forEachLedger(t, func(t *testing.T, repo models.Repository) {
		first, created, err := repo.OpenAccount("u1", decimal.RequireFromString("127.45"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !created {
			t.Fatal("expected created=true on first open")
		}
		if !first.Balance.Equal(decimal.RequireFromString("127.45")) {
			t.Fatalf("balance = %s", first.Balance)
		}

		second, created, err := repo.OpenAccount("u1", decimal.NewFromInt(999))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created {
			t.Fatal("expected created=false on second open")
		}
		if !second.Balance.Equal(first.Balance) {
			t.Fatalf("second open changed balance to %s", second.Balance)
		}
	})
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	forEachLedger(t, func(t *testing.T, repo models.Repository) {
		if _, err := repo.GetBalance("nobody"); !errors.Is(err, models.ErrAccountNotFound) {
			t.Fatalf("err = %v, want ErrAccountNotFound", err)
		}
	})
}

func TestRecordPurchaseDebitsAndStores(t *testing.T) {
	forEachLedger(t, func(t *testing.T, repo models.Repository) {
		if _, _, err := repo.OpenAccount("u1", decimal.NewFromInt(20)); err != nil {
			t.Fatal(err)
		}
		now := time.Now().UTC().Truncate(time.Second)
		sub := &models.Subscription{
			ID:          "sub-a",
			UserID:      "u1",
			PlanID:      "data-1",
			PlanName:    "Basic Data",
			Amount:      "1GB",
			RenewalDate: now.Add(models.SubscriptionPeriod),
			IsActive:    true,
			AutoRenew:   true,
		}
		err := repo.RecordPurchase(&models.Purchase{
			Transaction:  newTx("u1", "tx-a", "12.5", now),
			Subscription: sub,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		bal, err := repo.GetBalance("u1")
		if err != nil {
			t.Fatal(err)
		}
		if !bal.Equal(decimal.RequireFromString("7.5")) {
			t.Errorf("balance = %s, want 7.5", bal)
		}

		txs, err := repo.GetTransactions("u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(txs) != 1 || txs[0].ID != "tx-a" {
			t.Fatalf("transactions = %+v", txs)
		}

		subs, err := repo.GetSubscriptions("u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(subs) != 1 {
			t.Fatalf("got %d subscriptions, want 1", len(subs))
		}
		if diff := cmp.Diff(sub.PlanID, subs[0].PlanID); diff != "" {
			t.Errorf("plan id (-want +got):\n%s", diff)
		}
		if !subs[0].RenewalDate.Equal(sub.RenewalDate) {
			t.Errorf("renewal date = %v, want %v", subs[0].RenewalDate, sub.RenewalDate)
		}
	})
}

func TestRecordPurchaseInsufficientFundsWritesNothing(t *testing.T) {
	forEachLedger(t, func(t *testing.T, repo models.Repository) {
		if _, _, err := repo.OpenAccount("u1", decimal.NewFromInt(5)); err != nil {
			t.Fatal(err)
		}
		err := repo.RecordPurchase(&models.Purchase{Transaction: newTx("u1", "tx-a", "5.01", time.Now())})
		if !errors.Is(err, models.ErrInsufficientFunds) {
			t.Fatalf("err = %v, want ErrInsufficientFunds", err)
		}

		bal, _ := repo.GetBalance("u1")
		if !bal.Equal(decimal.NewFromInt(5)) {
			t.Errorf("balance changed to %s", bal)
		}
		txs, _ := repo.GetTransactions("u1")
		if len(txs) != 0 {
			t.Errorf("got %d transactions after a rejected purchase", len(txs))
		}
	})
}

func TestRecordPurchaseExactBalance(t *testing.T) {
	forEachLedger(t, func(t *testing.T, repo models.Repository) {
		if _, _, err := repo.OpenAccount("u1", decimal.NewFromInt(5)); err != nil {
			t.Fatal(err)
		}
		if err := repo.RecordPurchase(&models.Purchase{Transaction: newTx("u1", "tx-a", "5", time.Now())}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		bal, _ := repo.GetBalance("u1")
		if !bal.IsZero() {
			t.Errorf("balance = %s, want 0", bal)
		}
	})
}

func TestRecordPurchaseConcurrentNeverOverdraws(t *testing.T) {
	forEachLedger(t, func(t *testing.T, repo models.Repository) {
		if _, _, err := repo.OpenAccount("u1", decimal.NewFromInt(10)); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		ok := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.RecordPurchase(&models.Purchase{Transaction: newTx("u1", fmt.Sprintf("tx-%d", i), "3", time.Now())})
				if err == nil {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		if ok != 3 {
			t.Errorf("%d purchases succeeded, want 3", ok)
		}
		bal, _ := repo.GetBalance("u1")
		if !bal.Equal(decimal.NewFromInt(1)) {
			t.Errorf("balance = %s, want 1", bal)
		}
	})
}

func TestTransactionsNewestFirst(t *testing.T) {
	forEachLedger(t, func(t *testing.T, repo models.Repository) {
		base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		err := repo.SeedHistory("u1", []*models.Transaction{
			newTx("", "tx-1", "5", base),
			newTx("", "tx-3", "5", base.Add(2*time.Hour)),
			newTx("", "tx-2", "5", base.Add(time.Hour)),
		}, nil)
		if err != nil {
			t.Fatal(err)
		}

		txs, err := repo.GetTransactions("u1")
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, tx := range txs {
			ids = append(ids, tx.ID)
		}
		if diff := cmp.Diff([]string{"tx-3", "tx-2", "tx-1"}, ids); diff != "" {
			t.Errorf("order (-want +got):\n%s", diff)
		}
	})
}

func TestSetAutoRenew(t *testing.T) {
	forEachLedger(t, func(t *testing.T, repo models.Repository) {
		err := repo.SeedHistory("u1", nil, []*models.Subscription{{
			ID:          "sub-1",
			PlanID:      "data-2",
			PlanName:    "Standard Data",
			Amount:      "3GB",
			RenewalDate: time.Now().Add(24 * time.Hour),
			IsActive:    true,
			AutoRenew:   true,
		}})
		if err != nil {
			t.Fatal(err)
		}

		sub, err := repo.SetAutoRenew("u1", "sub-1", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sub.AutoRenew {
			t.Error("returned subscription still auto-renews")
		}
		subs, _ := repo.GetSubscriptions("u1")
		if len(subs) != 1 || subs[0].AutoRenew {
			t.Errorf("stored subscription = %+v", subs)
		}

		if _, err := repo.SetAutoRenew("u1", "missing", true); !errors.Is(err, models.ErrSubscriptionNotFound) {
			t.Errorf("err = %v, want ErrSubscriptionNotFound", err)
		}
		if _, err := repo.SetAutoRenew("u2", "sub-1", true); !errors.Is(err, models.ErrSubscriptionNotFound) {
			t.Errorf("other user's subscription: err = %v, want ErrSubscriptionNotFound", err)
		}
	})
}

func TestResetAccount(t *testing.T) {
	forEachLedger(t, func(t *testing.T, repo models.Repository) {
		if _, _, err := repo.OpenAccount("u1", decimal.NewFromInt(10)); err != nil {
			t.Fatal(err)
		}
		if err := repo.RecordPurchase(&models.Purchase{Transaction: newTx("u1", "tx-a", "4", time.Now())}); err != nil {
			t.Fatal(err)
		}
		if err := repo.ResetAccount("u1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := repo.GetBalance("u1"); !errors.Is(err, models.ErrAccountNotFound) {
			t.Errorf("err = %v, want ErrAccountNotFound", err)
		}
		txs, _ := repo.GetTransactions("u1")
		if len(txs) != 0 {
			t.Errorf("got %d transactions after reset", len(txs))
		}

		acc, created, err := repo.OpenAccount("u1", decimal.NewFromInt(10))
		if err != nil || !created || !acc.Balance.Equal(decimal.NewFromInt(10)) {
			t.Errorf("reopen = %+v created=%v err=%v", acc, created, err)
		}
	})
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := NewBoltDB(path, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := db.OpenAccount("u1", decimal.NewFromInt(10)); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordPurchase(&models.Purchase{Transaction: newTx("u1", "tx-a", "2.5", time.Now())}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = NewBoltDB(path, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	bal, err := db.GetBalance("u1")
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("balance after reopen = %s, want 7.5", bal)
	}
	txs, _ := db.GetTransactions("u1")
	if len(txs) != 1 {
		t.Errorf("got %d transactions after reopen, want 1", len(txs))
	}
}
