package repository

import (
	"context"
	"time"

	"telegram-group-access/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByInvoiceID(ctx context.Context, tx Tx, invoiceID string) (*model.Payment, error)
	// LastInFlightByUser returns the user's most recent in-flight payment.
	LastInFlightByUser(ctx context.Context, tx Tx, userID int64) (*model.Payment, error)
	// ListInFlight returns every payment still awaiting a terminal gateway status.
	ListInFlight(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)
	// TryMarkSuccess atomically flips the payment to success iff its current
	// status is still in-flight. The boolean reports whether THIS caller won.
	TryMarkSuccess(ctx context.Context, tx Tx, invoiceID string, paidAt time.Time) (bool, error)
	// MarkTerminal records a terminal failure status reported by the gateway.
	// Guarded by the same in-flight predicate so terminal states stay terminal.
	MarkTerminal(ctx context.Context, tx Tx, invoiceID string, status model.PaymentStatus) error
	// HasSuccessful reports whether the user has any successful payment ever.
	HasSuccessful(ctx context.Context, tx Tx, userID int64) (bool, error)
	ListRecent(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)
	SumByPeriod(ctx context.Context, tx Tx, period string) (int64, error)
}
