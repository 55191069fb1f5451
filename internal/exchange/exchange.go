package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Provider converts an amount of wallet tokens into the aggregator's
// settlement currency.
type Provider interface {
	Convert(ctx context.Context, tokens decimal.Decimal) (decimal.Decimal, error)
}

// Fixed applies a constant multiplicative rate.
type Fixed struct {
	rate decimal.Decimal
}

func NewFixed(rate decimal.Decimal) (*Fixed, error) {
	if !rate.IsPositive() {
		return nil, fmt.Errorf("exchange rate must be positive, got %s", rate)
	}
	return &Fixed{rate: rate}, nil
}

func (f *Fixed) Convert(_ context.Context, tokens decimal.Decimal) (decimal.Decimal, error) {
	return tokens.Mul(f.rate).Round(2), nil
}

func (f *Fixed) Rate() decimal.Decimal {
	return f.rate
}
