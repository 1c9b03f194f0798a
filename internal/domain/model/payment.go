package model

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "created"    // invoice created on gateway side
	PaymentStatusProcessing PaymentStatus = "processing" // gateway reports payment in progress
	PaymentStatusHolded     PaymentStatus = "holded"     // funds held, not yet captured
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusFailure    PaymentStatus = "failure"
	PaymentStatusExpired    PaymentStatus = "expired"
	PaymentStatusReversed   PaymentStatus = "reversed"
)

// InFlight reports whether the payment may still transition to a terminal status.
func (s PaymentStatus) InFlight() bool {
	switch s {
	case PaymentStatusCreated, PaymentStatusProcessing, PaymentStatusHolded:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusFailure, PaymentStatusExpired, PaymentStatusReversed:
		return true
	}
	return false
}

// InFlightStatuses is the closed set used by the conditional success update.
func InFlightStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusCreated, PaymentStatusProcessing, PaymentStatusHolded}
}

// Payment records one attempted purchase against the external gateway.
// InvoiceID is the gateway's id and the unique business key; rows are never deleted.
type Payment struct {
	ID        string     // UUID
	InvoiceID string
	UserID    int64      // telegram user id
	PlanCode  PlanCode
	Amount    int64      // minor units
	Status    PaymentStatus
	CreatedAt time.Time
	PaidAt    *time.Time // set when success
}
