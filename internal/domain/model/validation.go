package model

import "time"

type ValidationStatus string

const (
	ValidationStatusPending   ValidationStatus = "pending"
	ValidationStatusConfirmed ValidationStatus = "confirmed"
	ValidationStatusFailed    ValidationStatus = "failed"
)

// PaymentValidation confirms that the paying user actually occupies the group.
// At most one row exists per invoice; status moves one-way out of pending.
// Rows whose deadline passes while still pending are left as-is and simply
// stop matching the pending-window clause of the access check.
type PaymentValidation struct {
	InvoiceID   string
	UserID      int64
	PlanCode    PlanCode
	PaidAt      time.Time
	DeadlineAt  time.Time
	Status      ValidationStatus
	ConfirmedAt *time.Time
	JoinAt      *time.Time
}

// PendingOpen reports whether the row still grants the provisional join window.
func (v *PaymentValidation) PendingOpen(now time.Time) bool {
	return v.Status == ValidationStatusPending && !v.DeadlineAt.Before(now)
}
