package repository

import (
	"context"
)

// ConversationState holds an admin's progress in a multi-step flow such as the
// broadcast wizard. Kept in an external store instead of ambient module state.
type ConversationState struct {
	Step string            `json:"step"` // e.g. "awaiting_broadcast_text"
	Data map[string]string `json:"data"`
}

// StateRepository is the port for per-admin conversational state.
type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *ConversationState) error
	GetState(ctx context.Context, tgID int64) (*ConversationState, error)
	ClearState(ctx context.Context, tgID int64) error
}
