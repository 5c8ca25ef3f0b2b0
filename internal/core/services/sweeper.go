package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

const (
	// DefaultFlowSweepInterval is how often expired pending flows are removed.
	DefaultFlowSweepInterval = 2 * time.Minute

	// DefaultCredentialSweepInterval is how often expired credentials are removed.
	DefaultCredentialSweepInterval = time.Hour
)

// Sweeper periodically removes expired pending flows and credentials.
// Flows and credentials run on separate intervals since flows live minutes
// and credentials live hours.
type Sweeper struct {
	store  driven.CredentialStore
	logger *slog.Logger
	now    func() time.Time

	flowInterval       time.Duration
	credentialInterval time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// SweeperConfig holds configuration for the sweeper.
type SweeperConfig struct {
	Store              driven.CredentialStore
	Logger             *slog.Logger
	FlowInterval       time.Duration // default: 2m
	CredentialInterval time.Duration // default: 1h
	Now                func() time.Time
}

// NewSweeper creates a new sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	flowInterval := cfg.FlowInterval
	if flowInterval <= 0 {
		flowInterval = DefaultFlowSweepInterval
	}

	credentialInterval := cfg.CredentialInterval
	if credentialInterval <= 0 {
		credentialInterval = DefaultCredentialSweepInterval
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Sweeper{
		store:              cfg.Store,
		logger:             logger,
		now:                now,
		flowInterval:       flowInterval,
		credentialInterval: credentialInterval,
	}
}

// Start begins the sweep loop.
// It runs until Stop is called or context is cancelled; a stopped or
// cancelled sweeper can be started again.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.stopCh = stopCh
	s.doneCh = doneCh
	s.mu.Unlock()

	s.logger.Info("sweeper starting",
		"flow_interval", s.flowInterval,
		"credential_interval", s.credentialInterval,
	)

	go s.run(ctx, stopCh, doneCh)

	return nil
}

// Stop gracefully stops the sweeper. It is safe to call concurrently and
// more than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.stopCh = nil
	close(stopCh)
	s.mu.Unlock()

	<-doneCh

	s.logger.Info("sweeper stopped")
}

// IsRunning reports whether the sweep loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SweepNow removes every expired flow and credential immediately.
func (s *Sweeper) SweepNow(ctx context.Context) {
	s.sweepFlows(ctx)
	s.sweepCredentials(ctx)
}

func (s *Sweeper) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	flowTicker := time.NewTicker(s.flowInterval)
	defer flowTicker.Stop()

	credentialTicker := time.NewTicker(s.credentialInterval)
	defer credentialTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled")
			s.mu.Lock()
			if s.stopCh == stopCh {
				s.running = false
				s.stopCh = nil
			}
			s.mu.Unlock()
			return
		case <-stopCh:
			return
		case <-flowTicker.C:
			s.sweepFlows(ctx)
		case <-credentialTicker.C:
			s.sweepCredentials(ctx)
		}
	}
}

func (s *Sweeper) sweepFlows(ctx context.Context) {
	n, err := s.store.SweepExpiredFlows(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to sweep expired flows", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("swept expired flows", "count", n)
		return
	}
	s.logger.Debug("no expired flows")
}

func (s *Sweeper) sweepCredentials(ctx context.Context) {
	n, err := s.store.SweepExpiredCredentials(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to sweep expired credentials", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("swept expired credentials", "count", n)
		return
	}
	s.logger.Debug("no expired credentials")
}
