package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pitopup/pitopup/internal/aggregator"
	"github.com/pitopup/pitopup/pkg/logger"
)

const (
	// DefaultRefreshInterval between full directory refreshes.
	DefaultRefreshInterval = 1 * time.Hour
	// maxConcurrent limits parallel country fetches.
	maxConcurrent = 4
)

// Source lists and looks up operators.
type Source interface {
	ListOperators(ctx context.Context, countryCode string) ([]aggregator.Operator, error)
	GetOperator(ctx context.Context, operatorID int64) (*aggregator.Operator, error)
}

// Service keeps an in-memory copy of the operator directory for a fixed set
// of countries. Lookups for countries outside the set go to the source
// and are cached until the next refresh.
type Service struct {
	logger    *logger.Logger
	source    Source
	countries []string
	interval  time.Duration

	// In-memory cache
	byCountry  map[string][]aggregator.Operator
	byID       map[int64]aggregator.Operator
	refreshed  time.Time
	cacheMutex sync.RWMutex

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(source Source, countries []string, interval time.Duration, logger *logger.Logger) *Service {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	normalized := make([]string, 0, len(countries))
	for _, c := range countries {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			normalized = append(normalized, c)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		logger:    logger,
		source:    source,
		countries: normalized,
		interval:  interval,
		byCountry: make(map[string][]aggregator.Operator),
		byID:      make(map[int64]aggregator.Operator),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Refresh fetches every configured country and replaces the cache. A
// country that fails keeps its previous entries.
func (s *Service) Refresh(ctx context.Context) error {
	s.logger.Info("Refreshing operator directory", "countries", s.countries)

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	fetched := make(map[string][]aggregator.Operator, len(s.countries))
	var failed []string

	for _, country := range s.countries {
		wg.Add(1)
		sem <- struct{}{}

		go func(country string) {
			defer wg.Done()
			defer func() { <-sem }()

			operators, err := s.source.ListOperators(ctx, country)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error("Failed to fetch operators", "country", country, "error", err)
				failed = append(failed, country)
				return
			}
			fetched[country] = operators
		}(country)
	}
	wg.Wait()

	s.cacheMutex.Lock()
	for country, operators := range fetched {
		s.storeLocked(country, operators)
	}
	s.refreshed = time.Now()
	s.cacheMutex.Unlock()

	s.logger.Info(fmt.Sprintf("Cached operators for %d countries", len(fetched)))
	if len(failed) > 0 && len(fetched) == 0 {
		return fmt.Errorf("failed to fetch operators for %s", strings.Join(failed, ", "))
	}
	return nil
}

func (s *Service) storeLocked(country string, operators []aggregator.Operator) {
	for _, old := range s.byCountry[country] {
		delete(s.byID, old.ID)
	}
	s.byCountry[country] = operators
	for _, op := range operators {
		s.byID[op.ID] = op
	}
}

// Operators returns the operators of a country, from cache when possible.
func (s *Service) Operators(ctx context.Context, country string) ([]aggregator.Operator, error) {
	country = strings.ToUpper(strings.TrimSpace(country))

	s.cacheMutex.RLock()
	cached, ok := s.byCountry[country]
	s.cacheMutex.RUnlock()
	if ok {
		out := make([]aggregator.Operator, len(cached))
		copy(out, cached)
		return out, nil
	}

	operators, err := s.source.ListOperators(ctx, country)
	if err != nil {
		return nil, err
	}
	s.cacheMutex.Lock()
	s.storeLocked(country, operators)
	s.cacheMutex.Unlock()

	out := make([]aggregator.Operator, len(operators))
	copy(out, operators)
	return out, nil
}

// Operator returns one operator by id, from cache when possible.
func (s *Service) Operator(ctx context.Context, id int64) (*aggregator.Operator, error) {
	s.cacheMutex.RLock()
	op, ok := s.byID[id]
	s.cacheMutex.RUnlock()
	if ok {
		return &op, nil
	}
	return s.source.GetOperator(ctx, id)
}

// LastRefresh reports when the directory was last refreshed.
func (s *Service) LastRefresh() time.Time {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()
	return s.refreshed
}

// StartPeriodicUpdate loads the directory, retrying with backoff, then
// refreshes it on every interval until Stop.
func (s *Service) StartPeriodicUpdate() {
	if len(s.countries) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		backoff := 5 * time.Second
		maxBackoff := 5 * time.Minute

		for {
			if err := s.Refresh(s.ctx); err != nil {
				s.logger.Error("Failed to load operator directory, retrying...", "error", err, "retry_in", backoff)

				select {
				case <-time.After(backoff):
					backoff = backoff * 2
					if backoff > maxBackoff {
						backoff = maxBackoff
					}
					continue
				case <-s.ctx.Done():
					s.logger.Info("Operator directory stopped during initial load")
					return
				}
			}
			s.logger.Info("Loaded operator directory")
			break
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Refresh(s.ctx); err != nil {
					s.logger.Error("Failed to refresh operator directory", "error", err)
				}
			case <-s.ctx.Done():
				s.logger.Info("Operator directory periodic update stopped")
				return
			}
		}
	}()
}

func (s *Service) Stop() {
	s.logger.Info("Stopping operator directory")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Operator directory stopped")
}
