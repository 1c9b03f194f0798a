package model

import "time"

// Subscription is the entitlement window for a (user, group) pair.
// At most one active row exists per pair; expired rows are deactivated by the
// reconciliation sweep, never deleted.
type Subscription struct {
	ID       string // UUID
	UserID   int64
	ChatID   string // group/channel id, e.g. -1001234567890
	PlanCode PlanCode
	StartAt  time.Time
	EndAt    time.Time
	Active   bool
}

// ActiveAt reports whether the window grants entitlement at the given instant.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s.Active && s.EndAt.After(now)
}
