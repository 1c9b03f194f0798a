//go:build !integration

package web

import (
	"context"
	"sync"
	"time"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/usecase"
)

type mockPaymentUC struct {
	recent []*model.Payment
	sums   map[string]int64
}

var _ usecase.PaymentUseCase = (*mockPaymentUC)(nil)

func (m *mockPaymentUC) Initiate(ctx context.Context, userID int64, code model.PlanCode) (*model.Payment, string, error) {
	return nil, "", domain.ErrOperationFailed
}

func (m *mockPaymentUC) TryMarkSuccess(ctx context.Context, invoiceID string, paidAt time.Time) (bool, error) {
	return false, nil
}

func (m *mockPaymentUC) MarkTerminal(ctx context.Context, invoiceID string, status model.PaymentStatus) error {
	return nil
}

func (m *mockPaymentUC) GrantManual(ctx context.Context, userID int64) (*model.Payment, error) {
	return nil, nil
}

func (m *mockPaymentUC) LastInFlight(ctx context.Context, userID int64) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}

func (m *mockPaymentUC) ListRecent(ctx context.Context, limit int) ([]*model.Payment, error) {
	if limit < len(m.recent) {
		return m.recent[:limit], nil
	}
	return m.recent, nil
}

func (m *mockPaymentUC) SumByPeriod(ctx context.Context, period string) (int64, error) {
	return m.sums[period], nil
}

type mockSubUC struct {
	active int
}

var _ usecase.SubscriptionUseCase = (*mockSubUC)(nil)

func (m *mockSubUC) Extend(ctx context.Context, userID int64, chatID string, code model.PlanCode) (*model.Subscription, error) {
	return nil, domain.ErrOperationFailed
}

func (m *mockSubUC) Active(ctx context.Context, userID int64, chatID string) (*model.Subscription, error) {
	return nil, domain.ErrNotFound
}

func (m *mockSubUC) IsActive(ctx context.Context, userID int64, chatID string) (bool, error) {
	return false, nil
}

func (m *mockSubUC) Revoke(ctx context.Context, userID int64, chatID string) (int, error) {
	return 0, nil
}

func (m *mockSubUC) CountActive(ctx context.Context) (int, error) { return m.active, nil }

func (m *mockSubUC) ListActiveUserIDs(ctx context.Context) ([]int64, error) { return nil, nil }

type mockUserRepo struct {
	count int
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func (m *mockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error { return nil }

func (m *mockUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	return nil, domain.ErrNotFound
}

func (m *mockUserRepo) RecordJoin(ctx context.Context, tx repository.Tx, tgID int64, joinAt time.Time) error {
	return nil
}

func (m *mockUserRepo) ListKnownIDs(ctx context.Context, tx repository.Tx) ([]int64, error) {
	return nil, nil
}

func (m *mockUserRepo) ListIDsWithoutSuccessfulPayment(ctx context.Context, tx repository.Tx) ([]int64, error) {
	return nil, nil
}

func (m *mockUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	return m.count, nil
}

// mockLocker hands out the lock to the first holder only until unlocked.
type mockLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]string)}
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return "", domain.ErrJobAlreadyRunning
	}
	token := "tok-" + key
	m.held[key] = token
	return token, nil
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

// mockReconcile counts job entries so trigger tests can wait on them.
type mockReconcile struct {
	mu     sync.Mutex
	sweeps int
	done   chan struct{}
}

var _ usecase.ReconcileUseCase = (*mockReconcile)(nil)

func (m *mockReconcile) SweepExpired(ctx context.Context) (*usecase.SweepReport, error) {
	m.mu.Lock()
	m.sweeps++
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return &usecase.SweepReport{}, nil
}

func (m *mockReconcile) AuditUnpaid(ctx context.Context) (*usecase.AuditReport, error) {
	return &usecase.AuditReport{}, nil
}

func (m *mockReconcile) PollPayments(ctx context.Context) (*usecase.PollReport, error) {
	return &usecase.PollReport{}, nil
}

func (m *mockReconcile) SendExpiryReminders(ctx context.Context, daysBefore int) (int, error) {
	return 0, nil
}

func (m *mockReconcile) RemindStale(ctx context.Context) (int, error) { return 0, nil }

func (m *mockReconcile) sweepCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweeps
}
