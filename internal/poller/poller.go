package poller

import (
	"context"
	"sync"
	"time"

	"github.com/pitopup/pitopup/internal/aggregator"
	"github.com/pitopup/pitopup/pkg/logger"
)

// DefaultInterval between status checks.
const DefaultInterval = 10 * time.Second

// StatusChecker fetches the current state of a top-up.
type StatusChecker interface {
	GetTopupStatus(ctx context.Context, transactionID int64) (*aggregator.Topup, error)
}

// Callback receives every observed status. err is set when the check itself
// failed, in which case status is FAILED. It runs with the poller locked and
// must not call back into the Poller.
type Callback func(transactionID int64, status aggregator.Status, err error)

// Poller watches one top-up at a time: it checks immediately, then on every
// interval while the status stays PENDING.
type Poller struct {
	logger   *logger.Logger
	checker  StatusChecker
	interval time.Duration
	onStatus Callback

	mu       sync.Mutex
	cancel   context.CancelFunc
	watching int64
	// gen identifies the current watch so a finished one cannot clear its successor.
	gen uint64
	wg  sync.WaitGroup
}

func New(checker StatusChecker, interval time.Duration, onStatus Callback, logger *logger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		logger:   logger,
		checker:  checker,
		interval: interval,
		onStatus: onStatus,
	}
}

// Watch starts watching transactionID, cancelling any previous watch.
func (p *Poller) Watch(transactionID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.watching = transactionID
	p.gen++
	gen := p.gen

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, gen, transactionID)
		p.clear(gen)
	}()
}

// Watching returns the transaction being watched, if any.
func (p *Poller) Watching() (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watching, p.cancel != nil
}

// Stop cancels the current watch without waiting for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.watching = 0
	}
}

// Close stops watching and waits for the background check to return.
func (p *Poller) Close() {
	p.Stop()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, gen uint64, transactionID int64) {
	if !p.check(ctx, gen, transactionID) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !p.check(ctx, gen, transactionID) {
				return
			}
		case <-ctx.Done():
			p.logger.Debug("Top-up watch cancelled", "transaction_id", transactionID)
			return
		}
	}
}

// check reports whether polling should continue. A result that comes back
// after the watch was replaced or stopped is dropped.
func (p *Poller) check(ctx context.Context, gen uint64, transactionID int64) bool {
	topup, err := p.checker.GetTopupStatus(ctx, transactionID)

	status := aggregator.StatusFailed
	if err == nil {
		status = topup.Status
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen || ctx.Err() != nil {
		p.logger.Debug("Dropping stale top-up status", "transaction_id", transactionID, "status", status)
		return false
	}
	if err != nil {
		p.logger.Warn("Top-up status check failed", "transaction_id", transactionID, "error", err)
	}
	if p.onStatus != nil {
		p.onStatus(transactionID, status, err)
	}
	return err == nil && status == aggregator.StatusPending
}

// clear resets the watch state if gen is still the current watch.
func (p *Poller) clear(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen && p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.watching = 0
	}
}
