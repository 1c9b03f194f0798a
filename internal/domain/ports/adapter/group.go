// File: internal/domain/ports/adapter/group.go
package adapter

import (
	"context"
	"time"
)

// MembershipStatus is the group API's view of a user.
type MembershipStatus string

const (
	MemberStatusCreator       MembershipStatus = "creator"
	MemberStatusAdministrator MembershipStatus = "administrator"
	MemberStatusMember        MembershipStatus = "member"
	MemberStatusRestricted    MembershipStatus = "restricted"
	MemberStatusLeft          MembershipStatus = "left"
	MemberStatusKicked        MembershipStatus = "kicked"
)

// InGroup reports whether the status counts as occupying the group.
func (s MembershipStatus) InGroup() bool {
	switch s {
	case MemberStatusCreator, MemberStatusAdministrator, MemberStatusMember, MemberStatusRestricted:
		return true
	}
	return false
}

// GroupAPI is the hex port for the external group-membership service.
type GroupAPI interface {
	// MembershipStatus performs a targeted lookup; no bulk listing exists.
	MembershipStatus(ctx context.Context, chatID string, userID int64) (MembershipStatus, error)
	// RemoveMember kicks with ban+unban semantics so the user may rejoin later.
	// Removing a user who already left is not an error.
	RemoveMember(ctx context.Context, chatID string, userID int64) error
	// CreateSingleUseInvite returns a one-member invite link valid for ttl.
	CreateSingleUseInvite(ctx context.Context, chatID string, userID int64, ttl time.Duration) (string, error)
}
