package aggregator

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Status of a submitted top-up.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no further status change is expected.
func (s Status) IsTerminal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

type DenominationType string

const (
	DenominationFixed DenominationType = "FIXED"
	DenominationRange DenominationType = "RANGE"
)

type Country struct {
	IsoName string `json:"isoName"`
	Name    string `json:"name"`
}

// Operator is a mobile carrier known to the aggregator.
type Operator struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	Country          Country           `json:"country"`
	DenominationType DenominationType  `json:"denominationType"`
	FixedAmounts     []decimal.Decimal `json:"fixedAmounts,omitempty"`
	MinAmount        *decimal.Decimal  `json:"minAmount,omitempty"`
	MaxAmount        *decimal.Decimal  `json:"maxAmount,omitempty"`
	LogoURLs         []string          `json:"logoUrls,omitempty"`
	SuggestedAmounts []decimal.Decimal `json:"suggestedAmounts,omitempty"`
}

// Phone is a recipient number split into country calling code and
// subscriber number.
type Phone struct {
	CountryCode string `json:"countryCode"`
	Number      string `json:"number"`
}

// TopupRequest is the body of POST /topups.
type TopupRequest struct {
	OperatorID int64
	Amount     decimal.Decimal
	// UseLocalAmount selects whether Amount is in the operator's local
	// currency instead of the account currency.
	UseLocalAmount bool
	// CustomIdentifier correlates the top-up with the wallet payment.
	CustomIdentifier string
	RecipientPhone   Phone
	SenderPhone      *Phone
}

// MarshalJSON sends Amount as a JSON number.
func (r TopupRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OperatorID       int64       `json:"operatorId"`
		Amount           json.Number `json:"amount"`
		UseLocalAmount   bool        `json:"useLocalAmount"`
		CustomIdentifier string      `json:"customIdentifier"`
		RecipientPhone   Phone       `json:"recipientPhone"`
		SenderPhone      *Phone      `json:"senderPhone,omitempty"`
	}{
		OperatorID:       r.OperatorID,
		Amount:           json.Number(r.Amount.String()),
		UseLocalAmount:   r.UseLocalAmount,
		CustomIdentifier: r.CustomIdentifier,
		RecipientPhone:   r.RecipientPhone,
		SenderPhone:      r.SenderPhone,
	})
}

// Topup is the aggregator's transaction record.
type Topup struct {
	TransactionID               int64           `json:"transactionId"`
	Status                      Status          `json:"status"`
	OperatorTransactionID       string          `json:"operatorTransactionId,omitempty"`
	CustomIdentifier            string          `json:"customIdentifier"`
	RecipientPhone              string          `json:"recipientPhone"`
	CountryCode                 string          `json:"countryCode"`
	OperatorID                  int64           `json:"operatorId"`
	OperatorName                string          `json:"operatorName"`
	Discount                    decimal.Decimal `json:"discount"`
	DiscountCurrencyCode        string          `json:"discountCurrencyCode"`
	RequestedAmount             decimal.Decimal `json:"requestedAmount"`
	RequestedAmountCurrencyCode string          `json:"requestedAmountCurrencyCode"`
	DeliveredAmount             decimal.Decimal `json:"deliveredAmount"`
	DeliveredAmountCurrencyCode string          `json:"deliveredAmountCurrencyCode"`
	TransactionDate             string          `json:"transactionDate"`
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Audience     string `json:"audience"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

type errorResponse struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}
