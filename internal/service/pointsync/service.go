package pointsync

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jmehdipour/loyalty-gateway/internal/logger"
	"github.com/jmehdipour/loyalty-gateway/internal/metrics"
	"github.com/jmehdipour/loyalty-gateway/internal/model"
)

var ErrRunning = errors.New("pointsync: already running")

// BalanceSource is the loyalty backend as seen by the poller.
type BalanceSource interface {
	ListBalances(ctx context.Context) ([]model.CustomerBalance, error)
	FindByCode(ctx context.Context, code string) (model.Customer, error)
}

// Reconciler pushes a balance to the customer's wallet pass.
type Reconciler interface {
	Reconcile(ctx context.Context, cb model.CustomerBalance) error
}

// Notifier tells connected clients about a new balance.
type Notifier interface {
	NotifyPoints(ctx context.Context, code string, points int64) error
}

type Options struct {
	Interval time.Duration
	Workers  int
	Clock    clockwork.Clock

	// CachedLookups lets Lookup answer from the last pushed balance. Only
	// set it where this Service runs the poller.
	CachedLookups bool
}

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	Fetched int
	Changed int
	Failed  int
}

const stripes = 64

// Service polls balances, diffs them against the last pushed value and fans
// changes out to the wallet and live clients.
type Service struct {
	source BalanceSource
	wallet Reconciler
	notify Notifier

	interval time.Duration
	workers  int
	clock    clockwork.Clock
	cached   bool
	log      *zap.Logger

	mu    sync.RWMutex
	known map[string]model.WalletPassState

	locks [stripes]sync.Mutex
	cycle sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(source BalanceSource, wallet Reconciler, notify Notifier, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Service{
		source:   source,
		wallet:   wallet,
		notify:   notify,
		interval: opts.Interval,
		workers:  opts.Workers,
		clock:    opts.Clock,
		cached:   opts.CachedLookups,
		log:      logger.Named("pointsync"),
		known:    make(map[string]model.WalletPassState),
	}
}

// Start runs one cycle right away and then one per interval until Stop or ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.Info("balance poller started", zap.Duration("interval", s.interval), zap.Int("workers", s.workers))
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle.
func (s *Service) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("balance poller stopped")
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	_, _ = s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_, _ = s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single fetch/diff/reconcile/notify pass. A fetch failure
// skips the pass without touching recorded state.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	var rep CycleReport
	balances, err := s.source.ListBalances(ctx)
	if err != nil {
		metrics.PollCycles.WithLabelValues("fetch_failed").Inc()
		s.log.Warn("balance fetch failed; skipping cycle", zap.Error(err))
		return rep, fmt.Errorf("list balances: %w", err)
	}
	rep.Fetched = len(balances)

	changed := make([]model.CustomerBalance, 0)
	for _, cb := range balances {
		if cb.Code == "" {
			continue
		}
		if s.differs(cb) {
			changed = append(changed, cb)
		}
	}
	rep.Changed = len(changed)

	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		jobs   = make(chan model.CustomerBalance)
	)
	workers := min(s.workers, len(changed))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cb := range jobs {
				if err := s.push(ctx, cb, false); err != nil {
					failMu.Lock()
					rep.Failed++
					failMu.Unlock()
				}
			}
		}()
	}
	for _, cb := range changed {
		jobs <- cb
	}
	close(jobs)
	wg.Wait()

	metrics.PollCycles.WithLabelValues("ok").Inc()
	if rep.Changed > 0 {
		s.log.Info("poll cycle done",
			zap.Int("fetched", rep.Fetched),
			zap.Int("changed", rep.Changed),
			zap.Int("failed", rep.Failed))
	}
	return rep, nil
}

// Apply pushes a manual balance for code without diffing.
func (s *Service) Apply(ctx context.Context, code string, points int64) error {
	return s.push(ctx, model.CustomerBalance{Code: code, Points: points}, true)
}

// Track records a balance that is already on the wallet pass, e.g. right
// after registration.
func (s *Service) Track(code string, points int64) {
	s.record(code, points)
}

// Known returns the last balance pushed for code.
func (s *Service) Known(code string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.known[code]
	return st.LastPushedBalance, ok
}

// Lookup answers from the last pushed balance and only asks the loyalty
// backend for codes the poller has not seen yet.
func (s *Service) Lookup(ctx context.Context, code string) (int64, error) {
	if points, ok := s.Known(code); ok && s.cached {
		metrics.BalanceLookups.WithLabelValues("cached").Inc()
		return points, nil
	}
	metrics.BalanceLookups.WithLabelValues("backend").Inc()
	c, err := s.source.FindByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	return c.Points, nil
}

func (s *Service) differs(cb model.CustomerBalance) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prev, ok := s.known[cb.Code]
	return !ok || prev.LastPushedBalance != cb.Points
}

func (s *Service) record(code string, points int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[code] = model.WalletPassState{CustomerCode: code, LastPushedBalance: points}
}

func (s *Service) stripe(code string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return &s.locks[h.Sum32()%stripes]
}

// push reconciles then notifies. The balance is recorded only when the
// wallet accepted it; clients are notified either way.
func (s *Service) push(ctx context.Context, cb model.CustomerBalance, force bool) error {
	l := s.stripe(cb.Code)
	l.Lock()
	defer l.Unlock()

	if !force && !s.differs(cb) {
		return nil
	}
	metrics.BalanceChanges.Inc()

	err := s.wallet.Reconcile(ctx, cb)
	if err != nil {
		s.log.Warn("wallet reconcile failed",
			zap.String("code", cb.Code), zap.Int64("points", cb.Points), zap.Error(err))
	} else {
		s.record(cb.Code, cb.Points)
	}

	if nerr := s.notify.NotifyPoints(ctx, cb.Code, cb.Points); nerr != nil {
		s.log.Warn("points notify failed", zap.String("code", cb.Code), zap.Error(nerr))
		if err == nil {
			err = nerr
		}
	}
	if err != nil {
		return fmt.Errorf("push %s: %w", cb.Code, err)
	}
	return nil
}
