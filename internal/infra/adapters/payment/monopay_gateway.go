// File: internal/infra/adapters/payment/monopay_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"telegram-group-access/internal/domain/model"
	"telegram-group-access/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*MonoPayGateway)(nil)

// MonoPayGateway implements adapter.PaymentGateway against the monobank
// merchant API. The gateway stays a black box: create an invoice, poll its
// status, nothing else (no webhook signature handling).
type MonoPayGateway struct {
	token       string // X-Token merchant credential
	baseURL     string // e.g. https://api.monobank.ua/api/merchant
	ccy         int    // ISO 4217 numeric, 980 = UAH
	redirectURL string // where the payment page sends the user afterwards
	client      *http.Client
}

func NewMonoPayGateway(token, baseURL string, ccy int, redirectURL string) (*MonoPayGateway, error) {
	if token == "" {
		return nil, errors.New("monopay token empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	return &MonoPayGateway{
		token:       token,
		baseURL:     baseURL,
		ccy:         ccy,
		redirectURL: redirectURL,
		client:      &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *MonoPayGateway) Name() string { return "monopay" }

func (g *MonoPayGateway) CreateInvoice(ctx context.Context, amountMinor int64, reference, description string) (adapter.Invoice, error) {
	payload := map[string]any{
		"amount": amountMinor,
		"ccy":    g.ccy,
		"merchantPaymInfo": map[string]string{
			"reference":   reference,
			"destination": description,
		},
	}
	if g.redirectURL != "" {
		payload["redirectUrl"] = g.redirectURL
	}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/invoice/create", bytes.NewReader(b))
	if err != nil {
		return adapter.Invoice{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Token", g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return adapter.Invoice{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return adapter.Invoice{}, fmt.Errorf("monopay create invoice: http %d", resp.StatusCode)
	}

	// API revisions disagree on the page URL field name.
	var out struct {
		InvoiceID      string `json:"invoiceId"`
		PageURL        string `json:"pageUrl"`
		PaymentPageURL string `json:"paymentPageUrl"`
		PayURL         string `json:"payUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.Invoice{}, err
	}
	payURL := out.PageURL
	if payURL == "" {
		payURL = out.PaymentPageURL
	}
	if payURL == "" {
		payURL = out.PayURL
	}
	if out.InvoiceID == "" || payURL == "" {
		return adapter.Invoice{}, errors.New("monopay create invoice: empty response")
	}
	return adapter.Invoice{InvoiceID: out.InvoiceID, PayURL: payURL}, nil
}

func (g *MonoPayGateway) InvoiceStatus(ctx context.Context, invoiceID string) (model.PaymentStatus, error) {
	u := fmt.Sprintf("%s/invoice/status?invoiceId=%s", g.baseURL, url.QueryEscape(invoiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Token", g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("monopay invoice status: http %d", resp.StatusCode)
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	s := model.PaymentStatus(out.Status)
	if !s.InFlight() && !s.Terminal() {
		return "", fmt.Errorf("monopay invoice status: unknown status %q", out.Status)
	}
	return s, nil
}
