package wallet

import (
	"errors"
	"fmt"
)

var (
	ErrInitialization   = errors.New("wallet SDK initialization failed")
	ErrAuthentication   = errors.New("wallet authentication failed")
	ErrNotAuthenticated = errors.New("wallet user not authenticated")
	ErrPaymentCancelled = errors.New("payment was cancelled")
	// ErrPayment matches every *PaymentError.
	ErrPayment = errors.New("payment failed")
	// ErrPaymentAbandoned is returned for wallet events that arrive after the
	// server stopped waiting for their payment.
	ErrPaymentAbandoned = errors.New("payment was abandoned by the server")
	// ErrPaymentMismatch is returned when the wallet payment offered for
	// approval is not the one that was registered.
	ErrPaymentMismatch = errors.New("wallet payment does not match the order")
)

// PaymentError carries the wallet's failure message for a payment.
type PaymentError struct {
	PaymentID string
	Message   string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment failed: %s", e.Message)
}

func (e *PaymentError) Is(target error) bool { return target == ErrPayment }
