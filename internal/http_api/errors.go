package http_api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pitopup/pitopup/internal/aggregator"
	"github.com/pitopup/pitopup/internal/catalog"
	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/internal/payment"
	"github.com/pitopup/pitopup/internal/pitopup"
	"github.com/pitopup/pitopup/internal/wallet"
)

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	var fulfilment *payment.FulfilmentError
	var request *aggregator.RequestError

	switch {
	case errors.Is(err, pitopup.ErrNotRecorded):
		return http.StatusInternalServerError

	case errors.As(err, &fulfilment):
		return http.StatusBadGateway

	case errors.Is(err, pitopup.ErrInvalidPhoneNumber),
		errors.Is(err, pitopup.ErrInvalidReference),
		errors.Is(err, pitopup.ErrInvalidCountry),
		errors.Is(err, payment.ErrUnknownPlanType),
		errors.Is(err, wallet.ErrMissingReference),
		errors.Is(err, wallet.ErrUnknownEvent),
		errors.Is(err, wallet.ErrMissingPaymentID),
		errors.Is(err, wallet.ErrPaymentMismatch):
		return http.StatusBadRequest

	case errors.Is(err, wallet.ErrPaymentAbandoned):
		return http.StatusGone

	case errors.Is(err, pitopup.ErrSessionNotFound),
		errors.Is(err, wallet.ErrNotAuthenticated),
		errors.Is(err, wallet.ErrAuthentication):
		return http.StatusUnauthorized

	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusPaymentRequired

	case errors.Is(err, catalog.ErrPlanNotFound),
		errors.Is(err, models.ErrSubscriptionNotFound),
		errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, pitopup.ErrPaymentNotFound):
		return http.StatusNotFound

	case errors.Is(err, pitopup.ErrPurchaseInProgress),
		errors.Is(err, wallet.ErrDuplicateRef):
		return http.StatusConflict

	case errors.Is(err, wallet.ErrPaymentCancelled),
		errors.Is(err, wallet.ErrPayment):
		return http.StatusUnprocessableEntity

	case errors.Is(err, wallet.ErrTooManyParked):
		return http.StatusTooManyRequests

	case errors.As(err, &request) && request.StatusCode == http.StatusNotFound:
		return http.StatusNotFound

	case errors.Is(err, aggregator.ErrAuth),
		errors.Is(err, aggregator.ErrRequest),
		errors.Is(err, payment.ErrNoOperator),
		errors.Is(err, wallet.ErrInitialization):
		return http.StatusBadGateway

	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as the standard error body.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "status", status, "error", err)
	} else {
		s.logger.Debug("Request rejected", "method", c.Request.Method, "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func (s *HTTPServer) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}
