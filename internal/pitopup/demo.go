package pitopup

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pitopup/pitopup/internal/models"
)

// demoHistory is the sample history given to new accounts when demo data
// is enabled. Ids are fresh per call so accounts never share rows.
func demoHistory() ([]*models.Transaction, []*models.Subscription) {
	transactions := []*models.Transaction{
		{
			ID:        uuid.NewString(),
			Type:      models.PlanTypeData,
			PlanName:  "5GB Data",
			Amount:    "5GB",
			Price:     decimal.NewFromInt(12),
			Status:    models.TransactionCompleted,
			Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			TxHash:    "0x1234567890abcdef1234567890abcdef12345678",
		},
		{
			ID:        uuid.NewString(),
			Type:      models.PlanTypeAirtime,
			PlanName:  "$10 Airtime",
			Amount:    "$10.00",
			Price:     decimal.NewFromInt(5),
			Status:    models.TransactionCompleted,
			Timestamp: time.Date(2024, 1, 14, 15, 45, 0, 0, time.UTC),
			TxHash:    "0xabcdef1234567890abcdef1234567890abcdef12",
		},
		{
			ID:        uuid.NewString(),
			Type:      models.PlanTypeData,
			PlanName:  "1GB Data",
			Amount:    "1GB",
			Price:     decimal.NewFromInt(3),
			Status:    models.TransactionPending,
			Timestamp: time.Date(2024, 1, 13, 9, 15, 0, 0, time.UTC),
		},
	}

	subscriptions := []*models.Subscription{
		{
			ID:          uuid.NewString(),
			PlanID:      "data-2",
			PlanName:    "5GB Data",
			Amount:      "5GB",
			RenewalDate: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
			IsActive:    true,
			AutoRenew:   true,
		},
		{
			ID:          uuid.NewString(),
			PlanID:      "airtime-2",
			PlanName:    "$10 Airtime",
			Amount:      "$10.00",
			RenewalDate: time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC),
			IsActive:    false,
			AutoRenew:   false,
		},
	}
	return transactions, subscriptions
}
