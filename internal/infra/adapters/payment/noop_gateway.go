// File: internal/infra/adapters/payment/noop_gateway.go
package payment

import (
	"context"
	"fmt"
	"sync/atomic"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway fakes the provider for local development: every invoice exists
// and reports success on the first status poll.
type NoopGateway struct {
	seq atomic.Int64
}

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) CreateInvoice(ctx context.Context, amountMinor int64, reference, description string) (adapter.Invoice, error) {
	id := fmt.Sprintf("noop-%d", g.seq.Add(1))
	return adapter.Invoice{InvoiceID: id, PayURL: "https://example.invalid/pay/" + id}, nil
}

func (g *NoopGateway) InvoiceStatus(ctx context.Context, invoiceID string) (model.PaymentStatus, error) {
	return model.PaymentStatusSuccess, nil
}
