//go:build !integration

package sched

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"telegram-group-access/internal/config"
	"telegram-group-access/internal/usecase"
)

// stubReconcile counts invocations and can block to simulate a slow batch.
type stubReconcile struct {
	mu      sync.Mutex
	sweeps  int
	entered chan struct{} // receives once per sweep entry when set
	release chan struct{} // when set, SweepExpired blocks until closed
}

var _ usecase.ReconcileUseCase = (*stubReconcile)(nil)

func (s *stubReconcile) SweepExpired(ctx context.Context) (*usecase.SweepReport, error) {
	s.mu.Lock()
	s.sweeps++
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return &usecase.SweepReport{}, nil
}

func (s *stubReconcile) AuditUnpaid(ctx context.Context) (*usecase.AuditReport, error) {
	return &usecase.AuditReport{}, nil
}

func (s *stubReconcile) PollPayments(ctx context.Context) (*usecase.PollReport, error) {
	return &usecase.PollReport{}, nil
}

func (s *stubReconcile) SendExpiryReminders(ctx context.Context, daysBefore int) (int, error) {
	return 0, nil
}

func (s *stubReconcile) RemindStale(ctx context.Context) (int, error) { return 0, nil }

func (s *stubReconcile) sweepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

func newTestReconciler(t *testing.T, uc usecase.ReconcileUseCase) *Reconciler {
	t.Helper()
	log := zerolog.New(io.Discard)
	r, err := NewReconciler(uc, config.SchedulerConfig{Timezone: "UTC"}, &log)
	if err != nil {
		t.Fatalf("NewReconciler: %v", err)
	}
	return r
}

func TestReconciler_GuardCollapsesOverlappingTriggers(t *testing.T) {
	stub := &stubReconcile{entered: make(chan struct{}, 1), release: make(chan struct{})}
	r := newTestReconciler(t, stub)
	ctx := context.Background()

	go r.RunSweep(ctx) // blocks inside the stub
	<-stub.entered     // first trigger holds the guard now

	// Second trigger while the first is in flight: dropped, not queued.
	r.RunSweep(ctx)
	if got := stub.sweepCount(); got != 1 {
		t.Fatalf("sweeps = %d, want the overlapping trigger collapsed", got)
	}

	close(stub.release)
}

func TestReconciler_GuardReleasesAfterRun(t *testing.T) {
	stub := &stubReconcile{}
	r := newTestReconciler(t, stub)
	ctx := context.Background()

	r.RunSweep(ctx)
	r.RunSweep(ctx)
	if got := stub.sweepCount(); got != 2 {
		t.Fatalf("sweeps = %d, want sequential triggers to both run", got)
	}
}

func TestReconciler_RejectsUnknownTimezone(t *testing.T) {
	log := zerolog.New(io.Discard)
	if _, err := NewReconciler(&stubReconcile{}, config.SchedulerConfig{Timezone: "Mars/Olympus"}, &log); err == nil {
		t.Fatal("expected an error for a bogus timezone")
	}
}
