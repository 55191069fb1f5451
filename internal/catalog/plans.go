package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/pitopup/pitopup/internal/models"
)

const monthly = "30 days"

func defaultPlans() []models.Plan {
	return []models.Plan{
		{ID: "airtime-1", Type: models.PlanTypeAirtime, Name: "$5 Airtime", Amount: "$5.00", Price: decimal.RequireFromString("2.5"), Description: "Perfect for emergency calls"},
		{ID: "airtime-2", Type: models.PlanTypeAirtime, Name: "$10 Airtime", Amount: "$10.00", Price: decimal.RequireFromString("5.0"), Popular: true, Description: "Most popular airtime option"},
		{ID: "airtime-3", Type: models.PlanTypeAirtime, Name: "$20 Airtime", Amount: "$20.00", Price: decimal.RequireFromString("9.5"), Description: "Great value for heavy users"},
		{ID: "airtime-4", Type: models.PlanTypeAirtime, Name: "$50 Airtime", Amount: "$50.00", Price: decimal.RequireFromString("22.0"), Description: "Maximum airtime bundle"},

		{ID: "data-1", Type: models.PlanTypeData, Name: "1GB Data", Amount: "1GB", Price: decimal.RequireFromString("3.0"), Duration: monthly, Description: "Light browsing and messaging"},
		{ID: "data-2", Type: models.PlanTypeData, Name: "5GB Data", Amount: "5GB", Price: decimal.RequireFromString("12.0"), Duration: monthly, Popular: true, Description: "Perfect for social media"},
		{ID: "data-3", Type: models.PlanTypeData, Name: "10GB Data", Amount: "10GB", Price: decimal.RequireFromString("20.0"), Duration: monthly, Description: "Stream videos and music"},
		{ID: "data-4", Type: models.PlanTypeData, Name: "50GB Data", Amount: "50GB", Price: decimal.RequireFromString("85.0"), Duration: monthly, Description: "Unlimited browsing experience"},
	}
}
