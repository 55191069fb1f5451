package http_api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/internal/wallet"
)

// WalletAuthRequest is the body of POST /auth/wallet: what the page got
// back from the wallet's own sign-in.
type WalletAuthRequest struct {
	AccessToken       string                    `json:"accessToken" binding:"required"`
	IncompletePayment *wallet.IncompletePayment `json:"incompletePayment"`
}

// WalletAuthResponse carries the session token for subsequent calls.
type WalletAuthResponse struct {
	Success   bool        `json:"success"`
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expires_at"`
	User      wallet.User `json:"user"`
}

// PurchaseRequest is the body of POST /purchases.
type PurchaseRequest struct {
	PlanID      string `json:"planId" binding:"required"`
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Reference   string `json:"reference" binding:"required"`
}

// AutoRenewRequest is the body of PUT /subscriptions/:id/auto-renew.
type AutoRenewRequest struct {
	AutoRenew *bool `json:"autoRenew" binding:"required"`
}

// WalletEventRequest is a wallet callback relayed by the page.
type WalletEventRequest struct {
	Type      wallet.EventType `json:"type" binding:"required,oneof=approval completion cancel error"`
	PaymentID string           `json:"paymentId"`
	TxID      string           `json:"txid"`
	Message   string           `json:"message"`
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  "ok",
	})
}

// plans lists the catalog, optionally filtered by ?type=airtime|data.
func (s *HTTPServer) plans(c *gin.Context) {
	planType := models.PlanType(strings.ToLower(c.Query("type")))
	if planType != "" && !planType.Valid() {
		s.badRequest(c, "Invalid plan type: "+string(planType))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"plans":   s.app.Plans(planType),
	})
}

// authWallet verifies the wallet sign-in and issues a session token.
func (s *HTTPServer) authWallet(c *gin.Context) {
	var req WalletAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	session, err := s.app.Connect(c.Request.Context(), wallet.Credentials{
		AccessToken:       req.AccessToken,
		IncompletePayment: req.IncompletePayment,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	token, expiresAt, err := s.tokens.Issue(session.User.UID, session.User.Username)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, WalletAuthResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		User:      session.User,
	})
}

// walletCallback receives the wallet's payment callbacks from the page.
func (s *HTTPServer) walletCallback(c *gin.Context) {
	var req WalletEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ev := wallet.Event{Type: req.Type, PaymentID: req.PaymentID, TxID: req.TxID, Message: req.Message}
	if err := s.app.DispatchWalletEvent(c.Request.Context(), c.Param("ref"), ev); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) logout(c *gin.Context) {
	if err := s.app.Logout(currentUser(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) me(c *gin.Context) {
	session, err := s.app.Session(currentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": session,
	})
}

func (s *HTTPServer) balance(c *gin.Context) {
	balance, err := s.app.Balance(currentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": balance,
	})
}

func (s *HTTPServer) pendingPayment(c *gin.Context) {
	data, err := s.app.PendingPayment(currentUser(c), c.Param("ref"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"payment": data,
	})
}

// purchase blocks until the wallet payment settles and the plan is fulfilled.
func (s *HTTPServer) purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	tx, err := s.app.Purchase(c.Request.Context(), currentUser(c), models.PurchaseRequest{
		PlanID:      req.PlanID,
		PhoneNumber: req.PhoneNumber,
		Reference:   req.Reference,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"transaction": tx,
	})
}

func (s *HTTPServer) transactions(c *gin.Context) {
	txs, err := s.app.Transactions(currentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"transactions": txs,
	})
}

func (s *HTTPServer) subscriptions(c *gin.Context) {
	subs, err := s.app.Subscriptions(currentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"subscriptions": subs,
	})
}

func (s *HTTPServer) setAutoRenew(c *gin.Context) {
	var req AutoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	sub, err := s.app.ToggleAutoRenew(currentUser(c), c.Param("id"), *req.AutoRenew)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"subscription": sub,
	})
}

func (s *HTTPServer) operators(c *gin.Context) {
	ops, err := s.app.Operators(c.Request.Context(), c.Query("country"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"operators": ops,
	})
}

func (s *HTTPServer) operator(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	op, err := s.app.Operator(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"operator": op,
	})
}

func (s *HTTPServer) topupStatus(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	topup, err := s.app.TopupStatus(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"topup":   topup,
	})
}

func (s *HTTPServer) watchTopup(c *gin.Context) {
	id, ok := s.int64Param(c, "id")
	if !ok {
		return
	}
	if err := s.app.WatchTopup(currentUser(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":        true,
		"transaction_id": id,
	})
}

func (s *HTTPServer) watchedTopup(c *gin.Context) {
	watch, err := s.app.WatchedStatus(currentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"watch":   watch,
	})
}

// int64Param parses a positive numeric path parameter, answering 400 otherwise.
func (s *HTTPServer) int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		s.badRequest(c, "Invalid "+name+": "+c.Param(name))
		return 0, false
	}
	return id, true
}
