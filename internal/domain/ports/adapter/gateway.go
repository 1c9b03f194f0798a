// File: internal/domain/ports/adapter/gateway.go
package adapter

import (
	"context"

	"telegram-group-access/internal/domain/model"
)

// Invoice is the gateway's handle for one payment attempt.
type Invoice struct {
	InvoiceID string
	PayURL    string
}

// PaymentGateway is the hex port for the payment provider. The provider is a
// black box: we create invoices and poll their status, nothing else.
type PaymentGateway interface {
	Name() string
	CreateInvoice(ctx context.Context, amountMinor int64, reference, description string) (Invoice, error)
	InvoiceStatus(ctx context.Context, invoiceID string) (model.PaymentStatus, error)
}
