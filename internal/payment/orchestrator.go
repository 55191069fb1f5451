package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pitopup/pitopup/internal/aggregator"
	"github.com/pitopup/pitopup/internal/exchange"
	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/internal/wallet"
	"github.com/pitopup/pitopup/pkg/logger"
)

var (
	ErrInsufficientFunds = models.ErrInsufficientFunds
	ErrNotAuthenticated  = wallet.ErrNotAuthenticated
	ErrNoOperator        = errors.New("no operators available for this number")
	ErrUnknownPlanType   = errors.New("unknown plan type")
)

// FulfilmentError reports a top-up failure after the wallet payment was
// approved. The wallet payment is not reversed.
type FulfilmentError struct {
	WalletPaymentID string
	Err             error
}

func (e *FulfilmentError) Error() string {
	return fmt.Sprintf("top-up failed after wallet payment %s: %v", e.WalletPaymentID, e.Err)
}

func (e *FulfilmentError) Unwrap() error { return e.Err }

// WalletClient is the part of wallet.Client the orchestrator needs.
type WalletClient interface {
	IsAuthenticated() bool
	CreatePayment(ctx context.Context, req wallet.PaymentRequest) (string, error)
}

// Aggregator is the part of aggregator.Client the orchestrator needs.
type Aggregator interface {
	ListOperators(ctx context.Context, countryCode string) ([]aggregator.Operator, error)
	SubmitTopup(ctx context.Context, req aggregator.TopupRequest) (*aggregator.Topup, error)
}

// Request is one purchase attempt.
type Request struct {
	Plan        models.Plan
	PhoneNumber string
	// Balance is the user's spendable balance at confirmation time.
	Balance decimal.Decimal
	// Reference correlates the wallet's callbacks with this attempt.
	Reference string
}

// Result of a successful purchase.
type Result struct {
	WalletPaymentID string
	// Topup is nil for data plans, which are not sent to the aggregator.
	Topup *aggregator.Topup
	// Operator is the operator the top-up was submitted to.
	Operator *aggregator.Operator
	// FulfilmentPending is set when the plan was paid but not delivered.
	FulfilmentPending bool
}

// Orchestrator runs a purchase: validate, take the wallet payment, fulfil.
// It never writes ledger state.
type Orchestrator struct {
	logger     *logger.Logger
	wallet     WalletClient
	aggregator Aggregator
	rates      exchange.Provider
	country    string
}

func NewOrchestrator(
	wallet WalletClient,
	aggregator Aggregator,
	rates exchange.Provider,
	country string,
	logger *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		wallet:     wallet,
		aggregator: aggregator,
		rates:      rates,
		country:    strings.ToUpper(country),
	}
}

// Memo is the wallet memo for a plan.
func Memo(plan models.Plan) string {
	if plan.Type == models.PlanTypeAirtime {
		return "Airtime top-up: " + plan.Name
	}
	return "Data top-up: " + plan.Name
}

func (o *Orchestrator) Purchase(ctx context.Context, req Request) (*Result, error) {
	plan := req.Plan
	if !o.wallet.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if req.Balance.LessThan(plan.Price) {
		return nil, ErrInsufficientFunds
	}
	if !plan.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlanType, plan.Type)
	}

	metadata := map[string]string{
		"planId":      plan.ID,
		"planType":    string(plan.Type),
		"phoneNumber": req.PhoneNumber,
		"amount":      plan.Amount,
	}
	if req.Reference != "" {
		metadata[wallet.MetadataRef] = req.Reference
	}

	paymentID, err := o.wallet.CreatePayment(ctx, wallet.PaymentRequest{
		Amount:   plan.Price,
		Memo:     Memo(plan),
		Metadata: metadata,
	})
	if err != nil {
		o.logger.Info("Wallet payment not approved", "plan_id", plan.ID, "error", err)
		return nil, err
	}
	o.logger.Info("Wallet payment approved", "plan_id", plan.ID, "payment_id", paymentID)

	result := &Result{WalletPaymentID: paymentID}
	switch plan.Type {
	case models.PlanTypeAirtime:
		operator, topup, err := o.fulfilAirtime(ctx, plan, req.PhoneNumber, paymentID)
		if err != nil {
			o.logger.Error("Airtime fulfilment failed after wallet payment",
				"payment_id", paymentID, "plan_id", plan.ID, "error", err)
			return result, &FulfilmentError{WalletPaymentID: paymentID, Err: err}
		}
		result.Operator = operator
		result.Topup = topup
	case models.PlanTypeData:
		// TODO: submit data bundles once an aggregator data product is wired.
		result.FulfilmentPending = true
		o.logger.Warn("Data plan paid but not fulfilled", "payment_id", paymentID, "plan_id", plan.ID)
	}
	return result, nil
}

// fulfilAirtime always targets the first operator the aggregator lists for
// the configured country; the recipient's actual carrier is not detected.
func (o *Orchestrator) fulfilAirtime(ctx context.Context, plan models.Plan, phoneNumber, paymentID string) (*aggregator.Operator, *aggregator.Topup, error) {
	phone := aggregator.NormalizePhoneNumber(phoneNumber)

	operators, err := o.aggregator.ListOperators(ctx, o.country)
	if err != nil {
		return nil, nil, err
	}
	if len(operators) == 0 {
		return nil, nil, ErrNoOperator
	}
	operator := operators[0]

	amount, err := o.rates.Convert(ctx, plan.Price)
	if err != nil {
		return nil, nil, fmt.Errorf("convert price: %w", err)
	}

	topup, err := o.aggregator.SubmitTopup(ctx, aggregator.TopupRequest{
		OperatorID:       operator.ID,
		Amount:           amount,
		UseLocalAmount:   false,
		CustomIdentifier: paymentID,
		RecipientPhone:   phone,
	})
	if err != nil {
		return nil, nil, err
	}
	return &operator, topup, nil
}
