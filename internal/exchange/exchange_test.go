package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFixedConvert(t *testing.T) {
	f, err := NewFixed(decimal.NewFromInt(2))
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.Convert(context.Background(), decimal.RequireFromString("9.5"))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(decimal.NewFromInt(19)) {
		t.Errorf("Convert(9.5) = %s, want 19", got)
	}
}

func TestNewFixedRejectsNonPositive(t *testing.T) {
	if _, err := NewFixed(decimal.Zero); err == nil {
		t.Fatal("expected error for zero rate")
	}
}
