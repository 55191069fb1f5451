package models

import "github.com/shopspring/decimal"

// PlanType is the category of a plan.
type PlanType string

const (
	PlanTypeAirtime PlanType = "airtime"
	PlanTypeData    PlanType = "data"
)

// Valid reports whether t is a known plan category.
func (t PlanType) Valid() bool {
	return t == PlanTypeAirtime || t == PlanTypeData
}

// Plan is a purchasable airtime or data product. Plans are immutable.
type Plan struct {
	// ID is the catalog identifier, e.g. "airtime-2".
	ID string `json:"id"`
	// Type is the plan category.
	Type PlanType `json:"type"`
	// Name is the display name.
	Name string `json:"name"`
	// Amount is the face amount shown to the user ("$10.00", "5GB").
	Amount string `json:"amount"`
	// Price is the cost in wallet tokens.
	Price decimal.Decimal `json:"price"`
	// Duration is set for data plans only.
	Duration string `json:"duration,omitempty"`
	// Popular marks the plan as highlighted.
	Popular bool `json:"popular,omitempty"`
	// Description is a short marketing line.
	Description string `json:"description"`
}
