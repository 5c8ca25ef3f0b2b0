package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// countingStore wraps a store and counts sweep calls
type countingStore struct {
	driven.CredentialStore
	flowSweeps       atomic.Int32
	credentialSweeps atomic.Int32
	sweepErr         error
}

func (c *countingStore) SweepExpiredFlows(ctx context.Context, now time.Time) (int, error) {
	c.flowSweeps.Add(1)
	if c.sweepErr != nil {
		return 0, c.sweepErr
	}
	return c.CredentialStore.SweepExpiredFlows(ctx, now)
}

func (c *countingStore) SweepExpiredCredentials(ctx context.Context, now time.Time) (int, error) {
	c.credentialSweeps.Add(1)
	if c.sweepErr != nil {
		return 0, c.sweepErr
	}
	return c.CredentialStore.SweepExpiredCredentials(ctx, now)
}

func TestNewSweeper_Defaults(t *testing.T) {
	s := NewSweeper(SweeperConfig{Store: memory.NewCredentialStore()})

	if s.flowInterval != DefaultFlowSweepInterval {
		t.Errorf("expected default flow interval, got %v", s.flowInterval)
	}
	if s.credentialInterval != DefaultCredentialSweepInterval {
		t.Errorf("expected default credential interval, got %v", s.credentialInterval)
	}
	if s.logger == nil {
		t.Error("expected default logger")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	s := NewSweeper(SweeperConfig{
		Store:        memory.NewCredentialStore(),
		Logger:       discardLogger(),
		FlowInterval: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("failed to start sweeper: %v", err)
	}

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		t.Error("expected sweeper to be running")
	}

	if err := s.Start(ctx); err != nil {
		t.Errorf("second start should not error: %v", err)
	}

	s.Stop()

	s.mu.RLock()
	running = s.running
	s.mu.RUnlock()
	if running {
		t.Error("expected sweeper to be stopped")
	}

	s.Stop()
}

func TestSweeper_ConcurrentStop(t *testing.T) {
	s := NewSweeper(SweeperConfig{
		Store:        memory.NewCredentialStore(),
		Logger:       discardLogger(),
		FlowInterval: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()

	if s.IsRunning() {
		t.Error("expected sweeper to be stopped")
	}
}

func TestSweeper_RestartAfterContextCancel(t *testing.T) {
	store := &countingStore{CredentialStore: memory.NewCredentialStore()}
	s := NewSweeper(SweeperConfig{
		Store:        store,
		Logger:       discardLogger(),
		FlowInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	_ = s.Start(ctx)
	cancel()

	deadline := time.Now().Add(time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Fatal("expected sweeper to stop after context cancel")
	}
	s.Stop()

	before := store.flowSweeps.Load()
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	_ = s.Start(ctx2)
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	if store.flowSweeps.Load() <= before {
		t.Error("expected restarted sweeper to sweep again")
	}
}

func TestSweeper_SweepNow(t *testing.T) {
	clock := newFakeClock()
	store := memory.NewCredentialStoreWithClock(clock.Now)
	ctx := context.Background()

	now := clock.Now()
	_ = store.PutPendingFlow(ctx, &domain.PendingFlow{State: "old", Provider: domain.ProviderTypeTwitter, CreatedAt: now, ExpiresAt: now.Add(time.Minute)})
	_ = store.PutPendingFlow(ctx, &domain.PendingFlow{State: "live", Provider: domain.ProviderTypeTwitter, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	_ = store.PutCredential(ctx, &domain.PlatformCredential{
		Provider: domain.ProviderTypeLinkedIn, ExternalUserID: "abc", AccessToken: "tok",
		IssuedAt: now, ExpiresAt: now.Add(time.Hour), RetainUntil: now.Add(30 * time.Minute),
	})

	clock.Advance(45 * time.Minute)

	s := NewSweeper(SweeperConfig{Store: store, Logger: discardLogger(), Now: clock.Now})
	s.SweepNow(ctx)

	flows, creds := store.Len()
	if flows != 1 {
		t.Errorf("expected 1 live flow, got %d", flows)
	}
	if creds != 0 {
		t.Errorf("expected expired credential to be swept, got %d", creds)
	}
	if _, err := store.TakePendingFlow(ctx, "live"); err != nil {
		t.Errorf("live flow should survive the sweep: %v", err)
	}
}

func TestSweeper_TicksBothIntervals(t *testing.T) {
	store := &countingStore{CredentialStore: memory.NewCredentialStore()}
	s := NewSweeper(SweeperConfig{
		Store:              store,
		Logger:             discardLogger(),
		FlowInterval:       10 * time.Millisecond,
		CredentialInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.Start(ctx)
	time.Sleep(150 * time.Millisecond)
	s.Stop()

	if store.flowSweeps.Load() < 2 {
		t.Errorf("expected repeated flow sweeps, got %d", store.flowSweeps.Load())
	}
	if store.credentialSweeps.Load() < 1 {
		t.Errorf("expected credential sweeps, got %d", store.credentialSweeps.Load())
	}
	if store.flowSweeps.Load() < store.credentialSweeps.Load() {
		t.Error("flows should be swept at least as often as credentials")
	}
}

func TestSweeper_ContinuesAfterError(t *testing.T) {
	store := &countingStore{CredentialStore: memory.NewCredentialStore(), sweepErr: errors.New("backend down")}
	s := NewSweeper(SweeperConfig{
		Store:        store,
		Logger:       discardLogger(),
		FlowInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	_ = s.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()
	s.Stop()

	if store.flowSweeps.Load() < 2 {
		t.Errorf("expected sweeps to continue after errors, got %d", store.flowSweeps.Load())
	}
}
