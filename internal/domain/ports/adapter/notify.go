// File: internal/domain/ports/adapter/notify.go
package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// Notifier is the hex port for user-facing messages. Delivery is best effort:
// callers log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
	NotifyButtons(ctx context.Context, userID int64, text string, rows [][]InlineButton) error
}
