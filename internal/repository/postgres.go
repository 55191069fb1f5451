package repository

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/pkg/logger"
)

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (models.Repository, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Suppress "record not found" noise; lookups report it as a domain error.
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	if err := db.AutoMigrate(&models.Account{}, &models.Transaction{}, &models.Subscription{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db, logger: logger}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

func (db *PostgresDB) OpenAccount(userID string, initial decimal.Decimal) (*models.Account, bool, error) {
	account := models.Account{UserID: userID, Balance: initial, UpdatedAt: time.Now().Unix()}
	res := db.Conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&account)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to open account: %s", res.Error)
	}
	if res.RowsAffected == 1 {
		return &account, true, nil
	}

	var existing models.Account
	if err := db.Conn.Where("user_id = ?", userID).First(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("failed to get account: %s", err)
	}
	return &existing, false, nil
}

func (db *PostgresDB) GetBalance(userID string) (decimal.Decimal, error) {
	var account models.Account
	if err := db.Conn.Where("user_id = ?", userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, models.ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %s", err)
	}
	return account.Balance, nil
}

func (db *PostgresDB) RecordPurchase(p *models.Purchase) error {
	if err := validatePurchase(p); err != nil {
		return err
	}
	userID := p.Transaction.UserID
	price := p.Transaction.Price

	db.logger.Debug("Recording purchase", "user", userID, "transaction", p.Transaction.ID, "price", price.String())
	return db.Conn.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Account{}).
			Where("user_id = ? AND balance >= ?", userID, price).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance - ?", price),
				"updated_at": time.Now().Unix(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to debit account: %s", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Account{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check account: %s", err)
			}
			if count == 0 {
				return models.ErrAccountNotFound
			}
			return models.ErrInsufficientFunds
		}

		if err := tx.Create(p.Transaction).Error; err != nil {
			return fmt.Errorf("failed to add transaction: %s", err)
		}
		if p.Subscription != nil {
			if err := tx.Create(p.Subscription).Error; err != nil {
				return fmt.Errorf("failed to add subscription: %s", err)
			}
		}
		return nil
	})
}

func (db *PostgresDB) SeedHistory(userID string, transactions []*models.Transaction, subscriptions []*models.Subscription) error {
	return db.Conn.Transaction(func(tx *gorm.DB) error {
		for _, t := range transactions {
			rec := *t
			rec.UserID = userID
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
				return fmt.Errorf("failed to seed transaction: %s", err)
			}
		}
		for _, s := range subscriptions {
			rec := *s
			rec.UserID = userID
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
				return fmt.Errorf("failed to seed subscription: %s", err)
			}
		}
		return nil
	})
}

func (db *PostgresDB) GetTransactions(userID string) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	if err := db.Conn.Where("user_id = ?", userID).Order("timestamp desc").Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to get transactions: %s", err)
	}
	return transactions, nil
}

func (db *PostgresDB) GetSubscriptions(userID string) ([]*models.Subscription, error) {
	var subscriptions []*models.Subscription
	if err := db.Conn.Where("user_id = ?", userID).Order("renewal_date desc").Find(&subscriptions).Error; err != nil {
		return nil, fmt.Errorf("failed to get subscriptions: %s", err)
	}
	return subscriptions, nil
}

func (db *PostgresDB) SetAutoRenew(userID, subscriptionID string, autoRenew bool) (*models.Subscription, error) {
	var sub models.Subscription
	if err := db.Conn.Where("id = ? AND user_id = ?", subscriptionID, userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %s", err)
	}

	sub.AutoRenew = autoRenew
	if err := db.Conn.Model(&sub).Update("auto_renew", autoRenew).Error; err != nil {
		return nil, fmt.Errorf("failed to update auto-renew: %s", err)
	}
	return &sub, nil
}

func (db *PostgresDB) ResetAccount(userID string) error {
	return db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.Subscription{}).Error; err != nil {
			return fmt.Errorf("failed to remove subscriptions: %s", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Transaction{}).Error; err != nil {
			return fmt.Errorf("failed to remove transactions: %s", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Account{}).Error; err != nil {
			return fmt.Errorf("failed to remove account: %s", err)
		}
		return nil
	})
}
