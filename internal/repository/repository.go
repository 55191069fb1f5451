package repository

import (
	"fmt"
	"sort"

	"github.com/pitopup/pitopup/internal/config"
	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/pkg/logger"
)

// Open returns the ledger selected by cfg.LedgerDriver.
func Open(cfg *config.Config, logger *logger.Logger) (models.Repository, error) {
	switch cfg.LedgerDriver {
	case config.LedgerMemory, "":
		logger.Info("Using in-memory ledger; balances reset on restart")
		return NewMemoryDB(logger), nil
	case config.LedgerBolt:
		return NewBoltDB(cfg.BoltPath, logger)
	case config.LedgerPostgres:
		return NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, logger)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.LedgerDriver)
	}
}

func validatePurchase(p *models.Purchase) error {
	if p == nil || p.Transaction == nil {
		return fmt.Errorf("purchase has no transaction")
	}
	if p.Transaction.UserID == "" || p.Transaction.ID == "" {
		return fmt.Errorf("transaction needs an id and a user id")
	}
	if p.Subscription != nil && p.Subscription.UserID != p.Transaction.UserID {
		return fmt.Errorf("subscription belongs to a different user")
	}
	return nil
}

func sortTransactions(txs []*models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
}

func sortSubscriptions(subs []*models.Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].RenewalDate.After(subs[j].RenewalDate)
	})
}
