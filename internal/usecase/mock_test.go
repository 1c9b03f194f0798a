//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
	"telegram-group-access/internal/domain/ports/repository"
	"telegram-group-access/internal/usecase"
)

// -----------------------------
// Utilities
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// fakeClock is a settable clock for deterministic entitlement arithmetic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// -----------------------------
// Payment repository mock
// -----------------------------

type MockPaymentRepo struct {
	mu        sync.Mutex
	byInvoice map[string]*model.Payment
	saveErr   error
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{byInvoice: make(map[string]*model.Payment)}
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byInvoice[p.InvoiceID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByInvoiceID(ctx context.Context, tx repository.Tx, invoiceID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byInvoice[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) LastInFlightByUser(ctx context.Context, tx Tx, userID int64) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Payment
	for _, p := range m.byInvoice {
		if p.UserID != userID || !p.Status.InFlight() {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MockPaymentRepo) ListInFlight(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.byInvoice {
		if p.Status.InFlight() {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepo) TryMarkSuccess(ctx context.Context, tx Tx, invoiceID string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byInvoice[invoiceID]
	if !ok || !p.Status.InFlight() {
		return false, nil
	}
	p.Status = model.PaymentStatusSuccess
	t := paidAt
	p.PaidAt = &t
	return true, nil
}

func (m *MockPaymentRepo) MarkTerminal(ctx context.Context, tx Tx, invoiceID string, status model.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byInvoice[invoiceID]
	if !ok || !p.Status.InFlight() {
		return nil
	}
	p.Status = status
	return nil
}

func (m *MockPaymentRepo) HasSuccessful(ctx context.Context, tx Tx, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byInvoice {
		if p.UserID == userID && p.Status == model.PaymentStatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPaymentRepo) ListRecent(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.byInvoice {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepo) SumByPeriod(ctx context.Context, tx Tx, period string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, p := range m.byInvoice {
		if p.Status == model.PaymentStatusSuccess {
			sum += p.Amount
		}
	}
	return sum, nil
}

// -----------------------------
// Validation repository mock
// -----------------------------

type MockValidationRepo struct {
	mu        sync.Mutex
	byInvoice map[string]*model.PaymentValidation
}

var _ repository.ValidationRepository = (*MockValidationRepo)(nil)

func NewMockValidationRepo() *MockValidationRepo {
	return &MockValidationRepo{byInvoice: make(map[string]*model.PaymentValidation)}
}

func (m *MockValidationRepo) Create(ctx context.Context, tx Tx, v *model.PaymentValidation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byInvoice[v.InvoiceID]; ok {
		return false, nil // insert-if-absent
	}
	cp := *v
	m.byInvoice[v.InvoiceID] = &cp
	return true, nil
}

func (m *MockValidationRepo) LatestPendingByUser(ctx context.Context, tx Tx, userID int64, now time.Time) (*model.PaymentValidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.PaymentValidation
	for _, v := range m.byInvoice {
		if v.UserID != userID || !v.PendingOpen(now) {
			continue
		}
		if latest == nil || v.PaidAt.After(latest.PaidAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MockValidationRepo) MarkConfirmed(ctx context.Context, tx Tx, invoiceID string, joinAt, confirmedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byInvoice[invoiceID]
	if !ok || v.Status != model.ValidationStatusPending {
		return false, nil
	}
	v.Status = model.ValidationStatusConfirmed
	j, c := joinAt, confirmedAt
	v.JoinAt = &j
	v.ConfirmedAt = &c
	return true, nil
}

func (m *MockValidationRepo) MarkFailed(ctx context.Context, tx Tx, invoiceID string, failedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byInvoice[invoiceID]
	if !ok || v.Status != model.ValidationStatusPending {
		return false, nil
	}
	v.Status = model.ValidationStatusFailed
	return true, nil
}

func (m *MockValidationRepo) HasConfirmed(ctx context.Context, tx Tx, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.byInvoice {
		if v.UserID == userID && v.Status == model.ValidationStatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockValidationRepo) HasAny(ctx context.Context, tx Tx, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.byInvoice {
		if v.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockValidationRepo) ListPendingByUser(ctx context.Context, tx Tx, userID int64) ([]*model.PaymentValidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentValidation
	for _, v := range m.byInvoice {
		if v.UserID == userID && v.Status == model.ValidationStatusPending {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

// -----------------------------
// Subscription repository mock
// -----------------------------

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Subscription
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{byID: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Active {
		for _, e := range m.byID {
			if e.Active && e.UserID == s.UserID && e.ChatID == s.ChatID && e.ID != s.ID {
				return domain.ErrAlreadyExists // partial unique index on active pairs
			}
		}
	}
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindActive(ctx context.Context, tx Tx, userID int64, chatID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.Active && s.UserID == userID && s.ChatID == chatID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) ExtendActive(ctx context.Context, tx Tx, id string, endAt time.Time, planCode model.PlanCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || !s.Active {
		return domain.ErrNotFound
	}
	s.EndAt = endAt
	s.PlanCode = planCode
	return nil
}

func (m *MockSubscriptionRepo) Deactivate(ctx context.Context, tx Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || !s.Active {
		return false, nil
	}
	s.Active = false
	return true, nil
}

func (m *MockSubscriptionRepo) DeactivateForUser(ctx context.Context, tx Tx, userID int64, chatID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.byID {
		if s.Active && s.UserID == userID && s.ChatID == chatID {
			s.Active = false
			n++
		}
	}
	return n, nil
}

func (m *MockSubscriptionRepo) ListExpiredActive(ctx context.Context, tx Tx, now time.Time) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.byID {
		if s.Active && !s.EndAt.After(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) ListEndingBetween(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.byID {
		if s.Active && !s.EndAt.Before(from) && !s.EndAt.After(to) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) CountActive(ctx context.Context, tx Tx, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.byID {
		if s.ActiveAt(now) {
			n++
		}
	}
	return n, nil
}

func (m *MockSubscriptionRepo) ListActiveUserIDs(ctx context.Context, tx Tx, now time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for _, s := range m.byID {
		if s.ActiveAt(now) {
			out = append(out, s.UserID)
		}
	}
	return out, nil
}

// -----------------------------
// Reminder repository mock
// -----------------------------

type staleEntry struct {
	lastSentAt time.Time
	count      int
}

type MockReminderRepo struct {
	mu     sync.Mutex
	expiry map[string]map[int]time.Time // subscription id -> days-before -> sent at
	stale  map[int64]staleEntry
}

var _ repository.ReminderRepository = (*MockReminderRepo)(nil)

func NewMockReminderRepo() *MockReminderRepo {
	return &MockReminderRepo{
		expiry: make(map[string]map[int]time.Time),
		stale:  make(map[int64]staleEntry),
	}
}

func (m *MockReminderRepo) WasExpirySent(ctx context.Context, tx Tx, subscriptionID string, daysBefore int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.expiry[subscriptionID][daysBefore]
	return ok, nil
}

func (m *MockReminderRepo) MarkExpirySent(ctx context.Context, tx Tx, subscriptionID string, daysBefore int, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expiry[subscriptionID] == nil {
		m.expiry[subscriptionID] = make(map[int]time.Time)
	}
	m.expiry[subscriptionID][daysBefore] = sentAt
	return nil
}

func (m *MockReminderRepo) StaleReminderInfo(ctx context.Context, tx Tx, userID int64) (time.Time, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.stale[userID]
	return e.lastSentAt, e.count, nil
}

func (m *MockReminderRepo) MarkStaleSent(ctx context.Context, tx Tx, userID int64, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.stale[userID]
	m.stale[userID] = staleEntry{lastSentAt: sentAt, count: e.count + 1}
	return nil
}

// -----------------------------
// User repository mock
// -----------------------------

type MockUserRepo struct {
	mu     sync.Mutex
	store  map[int64]*model.User
	unpaid []int64 // ids returned by ListIDsWithoutSuccessfulPayment
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{store: make(map[int64]*model.User)}
}

func (m *MockUserRepo) Save(ctx context.Context, tx Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.TelegramID] = &cp
	return nil
}

func (m *MockUserRepo) FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepo) RecordJoin(ctx context.Context, tx Tx, tgID int64, joinAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[tgID]
	if !ok {
		u = &model.User{TelegramID: tgID}
		m.store[tgID] = u
	}
	t := joinAt
	u.LastJoinAt = &t
	return nil
}

func (m *MockUserRepo) ListKnownIDs(ctx context.Context, tx Tx) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.store))
	for id := range m.store {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *MockUserRepo) ListIDsWithoutSuccessfulPayment(ctx context.Context, tx Tx) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.unpaid...), nil
}

func (m *MockUserRepo) CountUsers(ctx context.Context, tx Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store), nil
}

// -----------------------------
// Adapter mocks
// -----------------------------

type MockPaymentGateway struct {
	mu        sync.Mutex
	statuses  map[string]model.PaymentStatus
	createErr error
	statusErr error
	created   int
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{statuses: make(map[string]model.PaymentStatus)}
}

func (g *MockPaymentGateway) Name() string { return "mock" }

func (g *MockPaymentGateway) CreateInvoice(ctx context.Context, amountMinor int64, reference, description string) (adapter.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return adapter.Invoice{}, g.createErr
	}
	g.created++
	id := fmt.Sprintf("inv-%d", g.created)
	g.statuses[id] = model.PaymentStatusCreated
	return adapter.Invoice{InvoiceID: id, PayURL: "https://pay.example/" + id}, nil
}

func (g *MockPaymentGateway) InvoiceStatus(ctx context.Context, invoiceID string) (model.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return "", g.statusErr
	}
	if s, ok := g.statuses[invoiceID]; ok {
		return s, nil
	}
	return model.PaymentStatusCreated, nil
}

func (g *MockPaymentGateway) setStatus(invoiceID string, s model.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[invoiceID] = s
}

type MockGroupAPI struct {
	mu        sync.Mutex
	members   map[int64]adapter.MembershipStatus
	removeErr map[int64]error
	removed   []int64
	inviteErr error
	invites   int
}

var _ adapter.GroupAPI = (*MockGroupAPI)(nil)

func NewMockGroupAPI() *MockGroupAPI {
	return &MockGroupAPI{
		members:   make(map[int64]adapter.MembershipStatus),
		removeErr: make(map[int64]error),
	}
}

func (g *MockGroupAPI) MembershipStatus(ctx context.Context, chatID string, userID int64) (adapter.MembershipStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.members[userID]; ok {
		return s, nil
	}
	return adapter.MemberStatusLeft, nil
}

func (g *MockGroupAPI) RemoveMember(ctx context.Context, chatID string, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.removeErr[userID]; err != nil {
		return err
	}
	g.members[userID] = adapter.MemberStatusLeft
	g.removed = append(g.removed, userID)
	return nil
}

func (g *MockGroupAPI) CreateSingleUseInvite(ctx context.Context, chatID string, userID int64, ttl time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inviteErr != nil {
		return "", g.inviteErr
	}
	g.invites++
	return fmt.Sprintf("https://t.me/+invite%d", g.invites), nil
}

func (g *MockGroupAPI) setMember(userID int64, s adapter.MembershipStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[userID] = s
}

func (g *MockGroupAPI) removedCount(userID int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, id := range g.removed {
		if id == userID {
			n++
		}
	}
	return n
}

type sentMessage struct {
	UserID int64
	Text   string
	Rows   [][]adapter.InlineButton
}

type MockNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{failFor: make(map[int64]error)}
}

func (n *MockNotifier) Notify(ctx context.Context, userID int64, text string) error {
	return n.NotifyButtons(ctx, userID, text, nil)
}

func (n *MockNotifier) NotifyButtons(ctx context.Context, userID int64, text string, rows [][]adapter.InlineButton) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failFor[userID]; err != nil {
		return err
	}
	n.sent = append(n.sent, sentMessage{UserID: userID, Text: text, Rows: rows})
	return nil
}

func (n *MockNotifier) sentTo(userID int64) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.sent {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

// Tx alias keeps mock signatures readable.
type Tx = repository.Tx

// MockTxManager runs the callback without a real transaction but holds a
// mutex for its duration, standing in for the row lock that serializes
// concurrent read-modify-write transactions against the real store.
type MockTxManager struct {
	mu sync.Mutex
}

func (m *MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, nil)
}

// -----------------------------
// Wiring harness
// -----------------------------

const testChatID = "-1001234567890"

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ucDeps wires every use case over fresh mocks the way cmd/app does over the
// real infrastructure.
type ucDeps struct {
	payments    *MockPaymentRepo
	validations *MockValidationRepo
	subs        *MockSubscriptionRepo
	reminders   *MockReminderRepo
	users       *MockUserRepo
	gateway     *MockPaymentGateway
	group       *MockGroupAPI
	notifier    *MockNotifier
	clock       *fakeClock

	paymentUC usecase.PaymentUseCase
	subUC     usecase.SubscriptionUseCase
	valUC     usecase.ValidationUseCase
	accessUC  usecase.AccessUseCase
	reconUC   usecase.ReconcileUseCase
}

func newUCDeps(adminIDs ...int64) *ucDeps {
	log := newTestLogger()
	d := &ucDeps{
		payments:    NewMockPaymentRepo(),
		validations: NewMockValidationRepo(),
		subs:        NewMockSubscriptionRepo(),
		reminders:   NewMockReminderRepo(),
		users:       NewMockUserRepo(),
		gateway:     NewMockPaymentGateway(),
		group:       NewMockGroupAPI(),
		notifier:    NewMockNotifier(),
		clock:       newFakeClock(baseTime),
	}
	d.paymentUC = usecase.NewPaymentUseCase(d.payments, d.gateway, d.clock, log)
	d.subUC = usecase.NewSubscriptionUseCase(d.subs, &MockTxManager{}, d.clock, log)
	d.valUC = usecase.NewValidationUseCase(d.validations, d.payments, d.group, d.subUC, d.clock, testChatID, 10*time.Minute, log)
	d.accessUC = usecase.NewAccessUseCase(d.subUC, d.valUC, d.paymentUC, d.gateway, d.group, d.clock, testChatID, adminIDs, log)
	d.reconUC = usecase.NewReconcileUseCase(
		d.subs, d.payments, d.users, d.reminders, d.valUC, d.subUC,
		d.gateway, d.group, d.notifier, d.clock, testChatID, 24*time.Hour, adminIDs, log)
	return d
}
