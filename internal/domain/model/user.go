package model

import "time"

// User is the profile snapshot kept for every telegram id the bot has seen.
// It exists so reconciliation jobs can enumerate "known" users: the group API
// offers no bulk member listing, only targeted lookups.
type User struct {
	TelegramID int64
	Username   *string
	FirstName  *string
	LastName   *string
	Phone      *string
	LastJoinAt *time.Time // last observed join of the paid group
	UpdatedAt  time.Time
}
