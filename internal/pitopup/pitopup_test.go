package pitopup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/pitopup/pitopup/internal/aggregator"
	"github.com/pitopup/pitopup/internal/catalog"
	"github.com/pitopup/pitopup/internal/config"
	"github.com/pitopup/pitopup/internal/exchange"
	"github.com/pitopup/pitopup/internal/models"
	"github.com/pitopup/pitopup/internal/payment"
	"github.com/pitopup/pitopup/internal/repository"
	"github.com/pitopup/pitopup/internal/wallet"
	"github.com/pitopup/pitopup/pkg/logger"
)

type fakeBridge struct {
	mu       sync.Mutex
	users    map[string]wallet.User
	outcome  string // "approve", "cancel" or "hang"
	payments []wallet.PaymentData
	events   []wallet.Event
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		users: map[string]wallet.User{
			"token-alice": {UID: "uid-alice", Username: "alice"},
			"token-bob":   {UID: "uid-bob", Username: "bob"},
		},
		outcome: "approve",
	}
}

func (f *fakeBridge) Init(context.Context, wallet.SDKConfig) error { return nil }

func (f *fakeBridge) Authenticate(_ context.Context, creds wallet.Credentials, _ []string, onIncomplete wallet.IncompletePaymentHandler) (*wallet.User, error) {
	u, ok := f.users[creds.AccessToken]
	if !ok {
		return nil, errors.New("invalid token")
	}
	if creds.IncompletePayment != nil {
		onIncomplete(*creds.IncompletePayment)
	}
	u.AccessToken = creds.AccessToken
	return &u, nil
}

func (f *fakeBridge) CreatePayment(_ context.Context, data wallet.PaymentData, cb wallet.PaymentCallbacks) error {
	f.mu.Lock()
	f.payments = append(f.payments, data)
	outcome := f.outcome
	f.mu.Unlock()

	id := "pay-" + data.Metadata[wallet.MetadataRef]
	switch outcome {
	case "approve":
		cb.OnReadyForServerApproval(id)
	case "cancel":
		cb.OnCancel(id)
	}
	return nil
}

func (f *fakeBridge) Pending(ref string) (wallet.PaymentData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.Metadata[wallet.MetadataRef] == ref {
			return p, true
		}
	}
	return wallet.PaymentData{}, false
}

func (f *fakeBridge) Dispatch(_ context.Context, _ string, ev wallet.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeBridge) paymentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments)
}

type fakeAggregator struct {
	mu        sync.Mutex
	submitErr error
	submitted []aggregator.TopupRequest
	status    aggregator.Status
}

func (f *fakeAggregator) ListOperators(context.Context, string) ([]aggregator.Operator, error) {
	return []aggregator.Operator{{ID: 341, Name: "AT&T US"}}, nil
}

func (f *fakeAggregator) SubmitTopup(_ context.Context, req aggregator.TopupRequest) (*aggregator.Topup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return &aggregator.Topup{TransactionID: 4711, Status: aggregator.StatusPending}, nil
}

func (f *fakeAggregator) GetTopupStatus(_ context.Context, id int64) (*aggregator.Topup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &aggregator.Topup{TransactionID: id, Status: f.status}, nil
}

func (f *fakeAggregator) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type fakeDirectory struct{}

func (fakeDirectory) Operators(_ context.Context, country string) ([]aggregator.Operator, error) {
	return []aggregator.Operator{{ID: 1, Name: "Carrier " + country}}, nil
}

func (fakeDirectory) Operator(_ context.Context, id int64) (*aggregator.Operator, error) {
	return &aggregator.Operator{ID: id}, nil
}

type recordingNotificator struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (r *recordingNotificator) SendAlert(a *models.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingNotificator) kinds() []models.AlertKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AlertKind
	for _, a := range r.alerts {
		out = append(out, a.Kind)
	}
	return out
}

type testEnv struct {
	app    *PiTopUp
	bridge *fakeBridge
	agg    *fakeAggregator
	alerts *recordingNotificator
	repo   models.Repository
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{
		PiSDKVersion:       "2.0",
		PiSandbox:          true,
		TopupCountry:       "US",
		InitialBalance:     decimal.RequireFromString("127.45"),
		StatusPollInterval: 5 * time.Millisecond,
	}
	for _, m := range mutate {
		m(cfg)
	}
	rates, err := exchange.NewFixed(decimal.NewFromInt(2))
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		bridge: newFakeBridge(),
		agg:    &fakeAggregator{status: aggregator.StatusSuccessful},
		alerts: &recordingNotificator{},
		repo:   repository.NewMemoryDB(logger.NewNop()),
	}
	env.app = NewPiTopUp(env.repo, catalog.Default(), env.bridge, env.agg, fakeDirectory{}, rates, env.alerts, logger.NewNop(), cfg).(*PiTopUp)
	t.Cleanup(env.app.Close)
	return env
}

func (e *testEnv) connect(t *testing.T, token string) *models.Session {
	t.Helper()
	s, err := e.app.Connect(context.Background(), wallet.Credentials{AccessToken: token})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s
}

func TestConnectOpensAccount(t *testing.T) {
	env := newTestEnv(t)
	s := env.connect(t, "token-alice")

	if s.User.UID != "uid-alice" || s.User.Username != "alice" {
		t.Fatalf("session user = %+v", s.User)
	}
	bal, err := env.app.Balance("uid-alice")
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(decimal.RequireFromString("127.45")) {
		t.Errorf("balance = %s, want 127.45", bal)
	}
	txs, _ := env.app.Transactions("uid-alice")
	if len(txs) != 0 {
		t.Errorf("got %d transactions without demo data", len(txs))
	}
}

func TestConnectTwiceKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	first := env.connect(t, "token-alice")
	second := env.connect(t, "token-alice")
	if !first.ConnectedAt.Equal(second.ConnectedAt) {
		t.Error("second connect replaced the session")
	}
}

func TestConnectSeedsDemoHistory(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.SeedDemoData = true })
	env.connect(t, "token-alice")

	txs, err := env.app.Transactions("uid-alice")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tx := range txs {
		names = append(names, tx.PlanName)
	}
	if diff := cmp.Diff([]string{"5GB Data", "$10 Airtime", "1GB Data"}, names); diff != "" {
		t.Errorf("demo transactions (-want +got):\n%s", diff)
	}
	subs, _ := env.app.Subscriptions("uid-alice")
	if len(subs) != 2 {
		t.Errorf("got %d demo subscriptions, want 2", len(subs))
	}
}

func TestConnectRejectsUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.Connect(context.Background(), wallet.Credentials{AccessToken: "nope"})
	if !errors.Is(err, wallet.ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
}

func TestConnectAlertsIncompletePayment(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.Connect(context.Background(), wallet.Credentials{
		AccessToken: "token-alice",
		IncompletePayment: &wallet.IncompletePayment{
			Identifier: "pay-old",
			Amount:     decimal.NewFromInt(5),
			Memo:       "Airtime top-up: $10 Airtime",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]models.AlertKind{models.AlertIncompletePayment}, env.alerts.kinds()); diff != "" {
		t.Errorf("alerts (-want +got):\n%s", diff)
	}
}

func TestPurchaseAirtime(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "token-alice")

	tx, err := env.app.Purchase(context.Background(), "uid-alice", models.PurchaseRequest{
		PlanID:      "airtime-2",
		PhoneNumber: "(555) 123-4567",
		Reference:   "ref-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.Status != models.TransactionCompleted || tx.PlanName != "$10 Airtime" {
		t.Errorf("transaction = %+v", tx)
	}
	if tx.WalletPaymentID != "pay-ref-1" || tx.TopupTransactionID != 4711 {
		t.Errorf("correlation ids = %q / %d", tx.WalletPaymentID, tx.TopupTransactionID)
	}
	if !strings.HasPrefix(tx.TxHash, "0x") || len(tx.TxHash) != 66 {
		t.Errorf("tx hash = %q", tx.TxHash)
	}

	bal, _ := env.app.Balance("uid-alice")
	if !bal.Equal(decimal.RequireFromString("122.45")) {
		t.Errorf("balance = %s, want 122.45", bal)
	}
	if n := env.agg.submitCount(); n != 1 {
		t.Fatalf("submitted %d top-ups, want 1", n)
	}
	if got := env.agg.submitted[0].Amount; !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("top-up amount = %s, want 10", got)
	}
	subs, _ := env.app.Subscriptions("uid-alice")
	if len(subs) != 0 {
		t.Errorf("airtime created %d subscriptions", len(subs))
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		w, err := env.app.WatchedStatus("uid-alice")
		if err != nil {
			t.Fatal(err)
		}
		if w != nil && w.Status == aggregator.StatusSuccessful {
			if w.TransactionID != 4711 {
				t.Errorf("watched %d, want 4711", w.TransactionID)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("watched status = %+v, want SUCCESSFUL", w)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPurchaseDataCreatesSubscription(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env.app.now = func() time.Time { return now }
	env.connect(t, "token-alice")

	tx, err := env.app.Purchase(context.Background(), "uid-alice", models.PurchaseRequest{
		PlanID:      "data-2",
		PhoneNumber: "5551234567",
		Reference:   "ref-2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.TopupTransactionID != 0 {
		t.Errorf("data plan has top-up id %d", tx.TopupTransactionID)
	}
	if env.agg.submitCount() != 0 {
		t.Error("data plan was sent to the aggregator")
	}

	subs, err := env.app.Subscriptions("uid-alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(subs))
	}
	sub := subs[0]
	if sub.PlanID != "data-2" || !sub.IsActive || !sub.AutoRenew {
		t.Errorf("subscription = %+v", sub)
	}
	if !sub.RenewalDate.Equal(now.Add(30 * 24 * time.Hour)) {
		t.Errorf("renewal date = %v", sub.RenewalDate)
	}

	bal, _ := env.app.Balance("uid-alice")
	if !bal.Equal(decimal.RequireFromString("115.45")) {
		t.Errorf("balance = %s, want 115.45", bal)
	}
	if w, _ := env.app.WatchedStatus("uid-alice"); w != nil {
		t.Errorf("data plan started a watch: %+v", w)
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.InitialBalance = decimal.NewFromInt(50) })
	env.connect(t, "token-alice")

	_, err := env.app.Purchase(context.Background(), "uid-alice", models.PurchaseRequest{PlanID: "data-4", PhoneNumber: "5551234567", Reference: "ref-101"})
	if !errors.Is(err, payment.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if env.bridge.paymentCount() != 0 {
		t.Error("wallet payment started despite insufficient funds")
	}
	bal, _ := env.app.Balance("uid-alice")
	if !bal.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balance = %s", bal)
	}
}

func TestPurchaseValidation(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "token-alice")

	tests := []struct {
		name string
		req  models.PurchaseRequest
		want error
	}{
		{"short phone", models.PurchaseRequest{PlanID: "airtime-1", PhoneNumber: "555-1234", Reference: "ref-102"}, ErrInvalidPhoneNumber},
		{"unknown plan", models.PurchaseRequest{PlanID: "airtime-9", PhoneNumber: "5551234567", Reference: "ref-103"}, catalog.ErrPlanNotFound},
		{"missing reference", models.PurchaseRequest{PlanID: "airtime-1", PhoneNumber: "5551234567"}, ErrInvalidReference},
		{"bad reference", models.PurchaseRequest{PlanID: "airtime-1", PhoneNumber: "5551234567", Reference: "a b"}, ErrInvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.app.Purchase(context.Background(), "uid-alice", tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if env.bridge.paymentCount() != 0 {
		t.Error("invalid requests reached the wallet")
	}
}

func TestPurchaseCancelled(t *testing.T) {
	env := newTestEnv(t)
	env.bridge.outcome = "cancel"
	env.connect(t, "token-alice")

	_, err := env.app.Purchase(context.Background(), "uid-alice", models.PurchaseRequest{PlanID: "airtime-1", PhoneNumber: "5551234567", Reference: "ref-104"})
	if !errors.Is(err, wallet.ErrPaymentCancelled) {
		t.Fatalf("err = %v, want ErrPaymentCancelled", err)
	}
	txs, _ := env.app.Transactions("uid-alice")
	if len(txs) != 0 {
		t.Errorf("cancelled purchase recorded %d transactions", len(txs))
	}
}

func TestPurchaseInProgress(t *testing.T) {
	env := newTestEnv(t)
	env.bridge.outcome = "hang"
	env.connect(t, "token-alice")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := env.app.Purchase(ctx, "uid-alice", models.PurchaseRequest{PlanID: "airtime-1", PhoneNumber: "5551234567", Reference: "ref-105"})
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for env.bridge.paymentCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first purchase never reached the wallet")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := env.app.Purchase(context.Background(), "uid-alice", models.PurchaseRequest{PlanID: "airtime-1", PhoneNumber: "5551234567", Reference: "ref-106"})
	if !errors.Is(err, ErrPurchaseInProgress) {
		t.Errorf("err = %v, want ErrPurchaseInProgress", err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("first purchase err = %v, want context.Canceled", err)
	}

	env.bridge.mu.Lock()
	env.bridge.outcome = "approve"
	env.bridge.mu.Unlock()
	if _, err := env.app.Purchase(context.Background(), "uid-alice", models.PurchaseRequest{PlanID: "airtime-1", PhoneNumber: "5551234567", Reference: "ref-107"}); err != nil {
		t.Errorf("purchase after the gate reopened: %v", err)
	}
}

func TestPurchaseFulfilmentFailureAlerts(t *testing.T) {
	env := newTestEnv(t)
	env.agg.submitErr = &aggregator.RequestError{Method: "POST", Path: "/topups", StatusCode: 400, Message: "invalid phone"}
	env.connect(t, "token-alice")

	_, err := env.app.Purchase(context.Background(), "uid-alice", models.PurchaseRequest{PlanID: "airtime-1", PhoneNumber: "5551234567", Reference: "ref-9"})
	var fe *payment.FulfilmentError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FulfilmentError", err)
	}
	if fe.WalletPaymentID != "pay-ref-9" {
		t.Errorf("payment id = %q", fe.WalletPaymentID)
	}
	if !errors.Is(err, aggregator.ErrRequest) {
		t.Error("fulfilment error does not wrap the aggregator error")
	}

	if diff := cmp.Diff([]models.AlertKind{models.AlertFulfilmentFailed}, env.alerts.kinds()); diff != "" {
		t.Errorf("alerts (-want +got):\n%s", diff)
	}
	bal, _ := env.app.Balance("uid-alice")
	if !bal.Equal(decimal.RequireFromString("127.45")) {
		t.Errorf("balance = %s, want unchanged", bal)
	}
}

func TestLogoutResetsLedger(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "token-alice")
	if _, err := env.app.Purchase(context.Background(), "uid-alice", models.PurchaseRequest{PlanID: "airtime-1", PhoneNumber: "5551234567", Reference: "ref-108"}); err != nil {
		t.Fatal(err)
	}

	if err := env.app.Logout("uid-alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.app.Balance("uid-alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
	if err := env.app.Logout("uid-alice"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second logout err = %v, want ErrSessionNotFound", err)
	}

	env.connect(t, "token-alice")
	bal, _ := env.app.Balance("uid-alice")
	if !bal.Equal(decimal.RequireFromString("127.45")) {
		t.Errorf("balance after reconnect = %s, want 127.45", bal)
	}
	txs, _ := env.app.Transactions("uid-alice")
	if len(txs) != 0 {
		t.Errorf("history survived logout: %d transactions", len(txs))
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "token-alice")
	env.connect(t, "token-bob")

	if _, err := env.app.Purchase(context.Background(), "uid-alice", models.PurchaseRequest{PlanID: "airtime-4", PhoneNumber: "5551234567", Reference: "ref-109"}); err != nil {
		t.Fatal(err)
	}
	bal, _ := env.app.Balance("uid-bob")
	if !bal.Equal(decimal.RequireFromString("127.45")) {
		t.Errorf("bob's balance = %s", bal)
	}
}

func TestToggleAutoRenew(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "token-alice")
	if _, err := env.app.Purchase(context.Background(), "uid-alice", models.PurchaseRequest{PlanID: "data-1", PhoneNumber: "5551234567", Reference: "ref-110"}); err != nil {
		t.Fatal(err)
	}
	subs, _ := env.app.Subscriptions("uid-alice")

	sub, err := env.app.ToggleAutoRenew("uid-alice", subs[0].ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if sub.AutoRenew {
		t.Error("auto-renew still on")
	}
	if _, err := env.app.ToggleAutoRenew("uid-alice", "missing", true); !errors.Is(err, models.ErrSubscriptionNotFound) {
		t.Errorf("err = %v, want ErrSubscriptionNotFound", err)
	}
}

func TestWatchTopupReportsTerminalStatus(t *testing.T) {
	env := newTestEnv(t)
	env.agg.status = aggregator.StatusFailed
	env.connect(t, "token-alice")

	if err := env.app.WatchTopup("uid-alice", 99); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		w, _ := env.app.WatchedStatus("uid-alice")
		if w != nil && w.Status == aggregator.StatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("watched status = %+v, want FAILED", w)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if diff := cmp.Diff([]models.AlertKind{models.AlertTopupSettled}, env.alerts.kinds()); diff != "" {
		t.Errorf("alerts (-want +got):\n%s", diff)
	}
}

func TestOperatorsValidatesCountry(t *testing.T) {
	env := newTestEnv(t)

	ops, err := env.app.Operators(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if ops[0].Name != "Carrier US" {
		t.Errorf("default country not used: %+v", ops)
	}
	if _, err := env.app.Operators(context.Background(), "USA"); !errors.Is(err, ErrInvalidCountry) {
		t.Errorf("err = %v, want ErrInvalidCountry", err)
	}
}

func TestDispatchWalletEvent(t *testing.T) {
	env := newTestEnv(t)
	ev := wallet.Event{Type: wallet.EventApproval, PaymentID: "pay-1"}
	if err := env.app.DispatchWalletEvent(context.Background(), "ref-1", ev); err != nil {
		t.Fatal(err)
	}
	if err := env.app.DispatchWalletEvent(context.Background(), "bad ref", ev); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("err = %v, want ErrInvalidReference", err)
	}
	if len(env.bridge.events) != 1 {
		t.Errorf("bridge got %d events, want 1", len(env.bridge.events))
	}
}

func TestPendingPaymentIsScopedToSession(t *testing.T) {
	env := newTestEnv(t)
	env.bridge.outcome = "hang"
	env.connect(t, "token-alice")
	env.connect(t, "token-bob")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := env.app.Purchase(ctx, "uid-alice", models.PurchaseRequest{PlanID: "airtime-3", PhoneNumber: "5551234567", Reference: "ref-p"})
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for env.bridge.paymentCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("purchase never reached the wallet")
		}
		time.Sleep(time.Millisecond)
	}

	data, err := env.app.PendingPayment("uid-alice", "ref-p")
	if err != nil {
		t.Fatal(err)
	}
	if data.Memo != "Airtime top-up: $20 Airtime" || !data.Amount.Equal(decimal.RequireFromString("9.5")) {
		t.Errorf("pending payment = %+v", data)
	}
	if _, err := env.app.PendingPayment("uid-bob", "ref-p"); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("other session err = %v, want ErrPaymentNotFound", err)
	}
	if _, err := env.app.PendingPayment("uid-alice", "ref-missing"); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("unknown ref err = %v, want ErrPaymentNotFound", err)
	}
	if _, err := env.app.PendingPayment("uid-carol", "ref-p"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("no session err = %v, want ErrSessionNotFound", err)
	}

	cancel()
	<-done
	if _, err := env.app.PendingPayment("uid-alice", "ref-p"); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("after purchase err = %v, want ErrPaymentNotFound", err)
	}
}

type stubPlatform struct {
	mu       sync.Mutex
	approved []string
}

func (s *stubPlatform) Me(_ context.Context, accessToken string) (*wallet.PlatformUser, error) {
	return &wallet.PlatformUser{UID: "uid-" + strings.TrimPrefix(accessToken, "token-"), Username: "pioneer"}, nil
}

func (s *stubPlatform) GetPayment(_ context.Context, paymentID string) (*wallet.PlatformPayment, error) {
	return nil, errors.New("platform GET /v2/payments returned 404")
}

func (s *stubPlatform) ApprovePayment(_ context.Context, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved = append(s.approved, paymentID)
	return nil
}

func (s *stubPlatform) CompletePayment(context.Context, string, string) error { return nil }

func TestAbandonedPurchaseRefusesLateApproval(t *testing.T) {
	env := newTestEnv(t)
	platform := &stubPlatform{}
	env.app.bridge = wallet.NewBridge(platform, logger.NewNop())
	env.connect(t, "token-alice")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := env.app.Purchase(ctx, "uid-alice", models.PurchaseRequest{PlanID: "airtime-1", PhoneNumber: "5551234567", Reference: "ref-gone"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("purchase err = %v, want deadline exceeded", err)
	}

	bg := context.Background()
	err = env.app.DispatchWalletEvent(bg, "ref-gone", wallet.Event{Type: wallet.EventApproval, PaymentID: "pay-late"})
	if !errors.Is(err, wallet.ErrPaymentAbandoned) {
		t.Fatalf("approval err = %v, want ErrPaymentAbandoned", err)
	}
	err = env.app.DispatchWalletEvent(bg, "ref-gone", wallet.Event{Type: wallet.EventApproval, PaymentID: "pay-late"})
	if !errors.Is(err, wallet.ErrPaymentAbandoned) {
		t.Fatalf("repeated approval err = %v, want ErrPaymentAbandoned", err)
	}

	platform.mu.Lock()
	approved := platform.approved
	platform.mu.Unlock()
	if len(approved) != 0 {
		t.Errorf("approved %v after abandonment", approved)
	}
	want := []models.AlertKind{models.AlertOrphanedPayment, models.AlertOrphanedPayment}
	if diff := cmp.Diff(want, env.alerts.kinds()); diff != "" {
		t.Errorf("alerts (-want +got):\n%s", diff)
	}
	txs, _ := env.app.Transactions("uid-alice")
	if len(txs) != 0 {
		t.Errorf("abandoned purchase recorded %d transactions", len(txs))
	}
	bal, _ := env.app.Balance("uid-alice")
	if !bal.Equal(decimal.RequireFromString("127.45")) {
		t.Errorf("balance = %s, want unchanged", bal)
	}
}

func TestSettlementHashIsDeterministic(t *testing.T) {
	a := settlementHash("pay-1", 4711)
	if a != settlementHash("pay-1", 4711) {
		t.Error("hash not deterministic")
	}
	if a == settlementHash("pay-1", 4712) {
		t.Error("different top-ups share a hash")
	}
}
