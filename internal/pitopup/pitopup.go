package pitopup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/core-coin/go-core/v2/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/pitopup/pitopup/internal/aggregator"
	"github.com/pitopup/pitopup/internal/catalog"
	"github.com/pitopup/pitopup/internal/config"
	"github.com/pitopup/pitopup/internal/exchange"
	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/internal/payment"
	"github.com/pitopup/pitopup/internal/poller"
	"github.com/pitopup/pitopup/internal/wallet"
	"github.com/pitopup/pitopup/pkg/logger"
	"github.com/pitopup/pitopup/pkg/validation"
)

var (
	ErrSessionNotFound    = errors.New("no wallet session for this user")
	ErrPurchaseInProgress = errors.New("a purchase is already in progress")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
	ErrInvalidReference   = errors.New("invalid payment reference")
	ErrInvalidCountry     = errors.New("invalid country code")
	ErrNotRecorded        = errors.New("payment taken but purchase not recorded")
	ErrPaymentNotFound    = errors.New("no pending wallet payment for this reference")
)

// WalletBridge is the server side of the wallet SDK.
type WalletBridge interface {
	wallet.SDK
	Pending(ref string) (wallet.PaymentData, bool)
	Dispatch(ctx context.Context, ref string, ev wallet.Event) error
}

// Aggregator is the telecom aggregator API.
type Aggregator interface {
	payment.Aggregator
	poller.StatusChecker
}

// OperatorDirectory serves operator lookups, usually from a cache.
type OperatorDirectory interface {
	Operators(ctx context.Context, countryCode string) ([]aggregator.Operator, error)
	Operator(ctx context.Context, operatorID int64) (*aggregator.Operator, error)
}

type session struct {
	info         models.Session
	wallet       *wallet.Client
	orchestrator *payment.Orchestrator
	poller       *poller.Poller

	// purchasing gates the session to one purchase at a time.
	purchasing atomic.Bool

	mu    sync.Mutex
	watch *models.TopupWatch
	// pendingRef is the reference of the purchase in flight, if any.
	pendingRef string
}

// PiTopUp serves all business logic: wallet sessions, purchases and the
// per-user ledger.
type PiTopUp struct {
	logger *logger.Logger
	config *config.Config

	repo        models.Repository
	catalog     *catalog.Catalog
	bridge      WalletBridge
	aggregator  Aggregator
	directory   OperatorDirectory
	rates       exchange.Provider
	notificator models.NotificationService

	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewPiTopUp(
	repo models.Repository,
	catalog *catalog.Catalog,
	bridge WalletBridge,
	aggregator Aggregator,
	directory OperatorDirectory,
	rates exchange.Provider,
	notificator models.NotificationService,
	logger *logger.Logger,
	config *config.Config,
) models.PiTopUpI {
	return &PiTopUp{
		logger:      logger,
		config:      config,
		repo:        repo,
		catalog:     catalog,
		bridge:      bridge,
		aggregator:  aggregator,
		directory:   directory,
		rates:       rates,
		notificator: notificator,
		now:         time.Now,
		sessions:    make(map[string]*session),
	}
}

func (p *PiTopUp) Connect(ctx context.Context, creds wallet.Credentials) (*models.Session, error) {
	client := wallet.NewClient(p.bridge, wallet.SDKConfig{
		Version: p.config.PiSDKVersion,
		Sandbox: p.config.PiSandbox,
	}, p.logger)
	client.OnIncompletePayment(p.alertIncompletePayment)

	user, err := client.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	client.OnOrphanedPayment(func(ref, paymentID string) {
		p.alertOrphanedPayment(user.UID, ref, paymentID, "")
	})

	account, created, err := p.repo.OpenAccount(user.UID, p.config.InitialBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to open account: %w", err)
	}
	if created && p.config.SeedDemoData {
		txs, subs := demoHistory()
		if err := p.repo.SeedHistory(user.UID, txs, subs); err != nil {
			p.logger.Error("Failed to seed demo history", "user", user.UID, "error", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.sessions[user.UID]; ok {
		p.logger.Debug("Reusing wallet session", "user", user.UID)
		info := existing.info
		return &info, nil
	}

	s := &session{
		info:   models.Session{User: *user, ConnectedAt: p.now()},
		wallet: client,
	}
	s.orchestrator = payment.NewOrchestrator(client, p.aggregator, p.rates, p.config.TopupCountry, p.logger.With("user", user.UID))
	s.poller = poller.New(p.aggregator, p.config.StatusPollInterval, p.statusObserver(user.UID, s), p.logger)
	p.sessions[user.UID] = s

	p.logger.Info("Wallet user connected", "user", user.UID, "username", user.Username, "balance", account.Balance.String())
	info := s.info
	return &info, nil
}

func (p *PiTopUp) Logout(userID string) error {
	p.mu.Lock()
	s, ok := p.sessions[userID]
	delete(p.sessions, userID)
	p.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.wallet.Logout()
	s.poller.Close()
	if err := p.repo.ResetAccount(userID); err != nil {
		return fmt.Errorf("failed to reset account: %w", err)
	}
	p.logger.Info("Wallet user logged out", "user", userID)
	return nil
}

func (p *PiTopUp) Session(userID string) (*models.Session, error) {
	s, err := p.session(userID)
	if err != nil {
		return nil, err
	}
	info := s.info
	return &info, nil
}

func (p *PiTopUp) session(userID string) (*session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (p *PiTopUp) Plans(planType models.PlanType) []models.Plan {
	if planType == "" {
		return p.catalog.All()
	}
	return p.catalog.ByType(planType)
}

func (p *PiTopUp) Purchase(ctx context.Context, userID string, req models.PurchaseRequest) (*models.Transaction, error) {
	s, err := p.session(userID)
	if err != nil {
		return nil, err
	}
	if !s.purchasing.CompareAndSwap(false, true) {
		return nil, ErrPurchaseInProgress
	}
	defer s.purchasing.Store(false)

	plan, err := p.catalog.Find(req.PlanID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePhoneNumber(req.PhoneNumber); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhoneNumber, err)
	}
	ref := req.Reference
	if err := validation.ValidateReference(ref); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	balance, err := p.repo.GetBalance(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	s.setPendingRef(ref)
	defer s.setPendingRef("")

	result, err := s.orchestrator.Purchase(ctx, payment.Request{
		Plan:        plan,
		PhoneNumber: req.PhoneNumber,
		Balance:     balance,
		Reference:   ref,
	})
	if err != nil {
		var fe *payment.FulfilmentError
		if errors.As(err, &fe) {
			p.sendAlert(&models.Alert{
				Kind:    models.AlertFulfilmentFailed,
				UserID:  userID,
				Message: "Wallet payment taken but top-up failed: " + fe.Err.Error(),
				Fields: map[string]string{
					"payment_id": fe.WalletPaymentID,
					"plan_id":    plan.ID,
					"phone":      req.PhoneNumber,
				},
			})
		}
		return nil, err
	}

	now := p.now()
	tx := &models.Transaction{
		ID:              uuid.NewString(),
		UserID:          userID,
		Type:            plan.Type,
		PlanName:        plan.Name,
		Amount:          plan.Amount,
		Price:           plan.Price,
		Status:          models.TransactionCompleted,
		Timestamp:       now,
		PhoneNumber:     req.PhoneNumber,
		WalletPaymentID: result.WalletPaymentID,
	}
	if result.Topup != nil {
		tx.TopupTransactionID = result.Topup.TransactionID
	}
	tx.TxHash = settlementHash(result.WalletPaymentID, tx.TopupTransactionID)

	purchase := &models.Purchase{Transaction: tx}
	if plan.Type == models.PlanTypeData {
		purchase.Subscription = &models.Subscription{
			ID:          uuid.NewString(),
			UserID:      userID,
			PlanID:      plan.ID,
			PlanName:    plan.Name,
			Amount:      plan.Amount,
			RenewalDate: now.Add(models.SubscriptionPeriod),
			IsActive:    true,
			AutoRenew:   true,
		}
	}

	if err := p.repo.RecordPurchase(purchase); err != nil {
		p.sendAlert(&models.Alert{
			Kind:    models.AlertFulfilmentFailed,
			UserID:  userID,
			Message: "Purchase paid but not recorded: " + err.Error(),
			Fields: map[string]string{
				"payment_id": result.WalletPaymentID,
				"plan_id":    plan.ID,
			},
		})
		return nil, fmt.Errorf("%w: %w", ErrNotRecorded, err)
	}

	if result.Topup != nil {
		p.startWatch(s, result.Topup.TransactionID)
	}
	if result.FulfilmentPending {
		p.logger.Warn("Data plan recorded without delivery", "user", userID, "plan_id", plan.ID, "payment_id", result.WalletPaymentID)
	}

	p.logger.Info("Purchase recorded",
		"user", userID, "transaction", tx.ID, "plan_id", plan.ID,
		"payment_id", result.WalletPaymentID, "topup_id", tx.TopupTransactionID)
	out := *tx
	return &out, nil
}

func (p *PiTopUp) Balance(userID string) (decimal.Decimal, error) {
	if _, err := p.session(userID); err != nil {
		return decimal.Zero, err
	}
	return p.repo.GetBalance(userID)
}

func (p *PiTopUp) Transactions(userID string) ([]*models.Transaction, error) {
	if _, err := p.session(userID); err != nil {
		return nil, err
	}
	return p.repo.GetTransactions(userID)
}

func (p *PiTopUp) Subscriptions(userID string) ([]*models.Subscription, error) {
	if _, err := p.session(userID); err != nil {
		return nil, err
	}
	return p.repo.GetSubscriptions(userID)
}

func (p *PiTopUp) ToggleAutoRenew(userID, subscriptionID string, autoRenew bool) (*models.Subscription, error) {
	if _, err := p.session(userID); err != nil {
		return nil, err
	}
	sub, err := p.repo.SetAutoRenew(userID, subscriptionID, autoRenew)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Subscription auto-renew changed", "user", userID, "subscription", subscriptionID, "auto_renew", autoRenew)
	return sub, nil
}

func (p *PiTopUp) Operators(ctx context.Context, countryCode string) ([]aggregator.Operator, error) {
	if countryCode == "" {
		countryCode = p.config.TopupCountry
	}
	country, err := validation.ValidateAndNormalizeCountryCode(countryCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCountry, err)
	}
	return p.directory.Operators(ctx, country)
}

func (p *PiTopUp) Operator(ctx context.Context, operatorID int64) (*aggregator.Operator, error) {
	return p.directory.Operator(ctx, operatorID)
}

func (p *PiTopUp) TopupStatus(ctx context.Context, transactionID int64) (*aggregator.Topup, error) {
	return p.aggregator.GetTopupStatus(ctx, transactionID)
}

func (p *PiTopUp) WatchTopup(userID string, transactionID int64) error {
	s, err := p.session(userID)
	if err != nil {
		return err
	}
	p.startWatch(s, transactionID)
	return nil
}

func (p *PiTopUp) WatchedStatus(userID string) (*models.TopupWatch, error) {
	s, err := p.session(userID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch == nil {
		return nil, nil
	}
	w := *s.watch
	return &w, nil
}

// PendingPayment returns the wallet payment of the caller's purchase in
// flight. References of other sessions are reported as not found.
func (p *PiTopUp) PendingPayment(userID, ref string) (*wallet.PaymentData, error) {
	if err := validation.ValidateReference(ref); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	s, err := p.session(userID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	owned := s.pendingRef == ref
	s.mu.Unlock()
	if !owned {
		return nil, ErrPaymentNotFound
	}
	data, ok := p.bridge.Pending(ref)
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &data, nil
}

func (p *PiTopUp) DispatchWalletEvent(ctx context.Context, ref string, ev wallet.Event) error {
	if err := validation.ValidateReference(ref); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	err := p.bridge.Dispatch(ctx, ref, ev)
	if errors.Is(err, wallet.ErrPaymentAbandoned) {
		p.alertOrphanedPayment("", ref, ev.PaymentID, string(ev.Type))
	}
	return err
}

func (p *PiTopUp) Close() {
	p.mu.Lock()
	sessions := make([]*session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, s := range sessions {
		s.poller.Close()
	}
}

func (s *session) setPendingRef(ref string) {
	s.mu.Lock()
	s.pendingRef = ref
	s.mu.Unlock()
}

func (p *PiTopUp) startWatch(s *session, transactionID int64) {
	s.mu.Lock()
	s.watch = &models.TopupWatch{TransactionID: transactionID, Status: aggregator.StatusPending, CheckedAt: p.now()}
	s.mu.Unlock()
	s.poller.Watch(transactionID)
}

func (p *PiTopUp) statusObserver(userID string, s *session) poller.Callback {
	return func(transactionID int64, status aggregator.Status, err error) {
		s.mu.Lock()
		if s.watch != nil && s.watch.TransactionID != transactionID {
			s.mu.Unlock()
			return
		}
		w := &models.TopupWatch{TransactionID: transactionID, Status: status, CheckedAt: p.now()}
		if err != nil {
			w.Error = err.Error()
		}
		s.watch = w
		s.mu.Unlock()

		if !status.IsTerminal() {
			return
		}
		p.logger.Info("Top-up settled", "user", userID, "topup_id", transactionID, "status", status)
		alert := &models.Alert{
			Kind:    models.AlertTopupSettled,
			UserID:  userID,
			Message: fmt.Sprintf("Top-up %d is %s", transactionID, status),
			Fields:  map[string]string{"topup_id": fmt.Sprint(transactionID)},
		}
		if err != nil {
			alert.Fields["check_error"] = err.Error()
		}
		p.sendAlert(alert)
	}
}

func (p *PiTopUp) alertIncompletePayment(payment wallet.IncompletePayment) {
	fields := map[string]string{
		"payment_id": payment.Identifier,
		"amount":     payment.Amount.String(),
	}
	if payment.TxID != "" {
		fields["txid"] = payment.TxID
	}
	p.sendAlert(&models.Alert{
		Kind:    models.AlertIncompletePayment,
		Message: "Wallet reported an incomplete payment: " + payment.Memo,
		Fields:  fields,
	})
}

func (p *PiTopUp) alertOrphanedPayment(userID, ref, paymentID, event string) {
	fields := map[string]string{
		"ref":        ref,
		"payment_id": paymentID,
	}
	if event != "" {
		fields["event"] = event
	}
	p.sendAlert(&models.Alert{
		Kind:    models.AlertOrphanedPayment,
		UserID:  userID,
		Message: "Wallet payment reached the server after the purchase was abandoned",
		Fields:  fields,
	})
}

func (p *PiTopUp) sendAlert(alert *models.Alert) {
	if p.notificator == nil {
		return
	}
	p.notificator.SendAlert(alert)
}

// settlementHash is the receipt hash of a purchase, derived from the wallet
// payment id and the top-up id.
func settlementHash(paymentID string, topupID int64) string {
	sum := sha3.Sum256([]byte(fmt.Sprintf("%s|%d", paymentID, topupID)))
	return common.BytesToHash(sum[:]).Hex()
}
