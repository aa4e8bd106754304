package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tair/course-payments/internal/payment/config"
	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/internal/payment/metrics"
	"github.com/tair/course-payments/pkg/logger"
)

const maxIdempotenceKeyLen = 64

// Client talks to the payment provider's REST API
type Client struct {
	baseURL    string
	shopID     string
	secretKey  string
	returnURL  string
	httpClient *http.Client
	breaker    *CircuitBreaker
	metrics    *metrics.Metrics
}

// NewClient creates a gateway client with an instrumented transport
func NewClient(cfg config.GatewayConfig, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		shopID:    cfg.ShopID,
		secretKey: cfg.SecretKey,
		returnURL: cfg.ReturnURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		breaker: NewCircuitBreaker("payment-gateway", cfg.BreakerMaxFailures, cfg.BreakerTimeout),
		metrics: m,
	}
}

// Breaker exposes the circuit breaker for health reporting
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type paymentMethodData struct {
	Type string `json:"type"`
}

type receiptCustomer struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type receiptItem struct {
	Description    string `json:"description"`
	Quantity       string `json:"quantity"`
	Amount         amount `json:"amount"`
	VatCode        int    `json:"vat_code"`
	PaymentMode    string `json:"payment_mode"`
	PaymentSubject string `json:"payment_subject"`
}

type receipt struct {
	Customer receiptCustomer `json:"customer"`
	Items    []receiptItem   `json:"items"`
}

type createPaymentRequest struct {
	Amount            amount             `json:"amount"`
	Capture           bool               `json:"capture"`
	Confirmation      confirmation       `json:"confirmation"`
	Description       string             `json:"description,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
	PaymentMethodData *paymentMethodData `json:"payment_method_data,omitempty"`
	Receipt           *receipt           `json:"receipt,omitempty"`
}

type paymentResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Confirmation confirmation `json:"confirmation"`
}

type payoutDestination struct {
	Type          string      `json:"type"`
	Card          *payoutCard `json:"card,omitempty"`
	Phone         string      `json:"phone,omitempty"`
	BankID        string      `json:"bank_id,omitempty"`
	AccountNumber string      `json:"account_number,omitempty"`
}

type payoutCard struct {
	Number string `json:"number"`
}

type createPayoutRequest struct {
	Amount                amount            `json:"amount"`
	PayoutDestinationData payoutDestination `json:"payout_destination_data"`
	Description           string            `json:"description,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

type cancellationDetails struct {
	Party  string `json:"party"`
	Reason string `json:"reason"`
}

type payoutResponse struct {
	ID                  string               `json:"id"`
	Status              string               `json:"status"`
	CancellationDetails *cancellationDetails `json:"cancellation_details,omitempty"`
}

type errorResponse struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter"`
}

// CreateCharge creates a redirect-confirmed, auto-captured payment
func (c *Client) CreateCharge(ctx context.Context, req domain.ChargeRequest, idempotencyKey string) (*domain.ChargeResult, error) {
	body := createPaymentRequest{
		Amount:  formatAmount(req.AmountMinor, req.Currency),
		Capture: true,
		Confirmation: confirmation{
			Type:      "redirect",
			ReturnURL: firstNonEmpty(req.ReturnURL, c.returnURL),
		},
		Description: truncate(req.Description, 128),
		Metadata:    req.Metadata,
	}
	if t := chargeMethodType(req.Method); t != "" {
		body.PaymentMethodData = &paymentMethodData{Type: t}
	}
	if req.ReceiptContact != "" {
		body.Receipt = &receipt{
			Customer: receiptCustomerFor(req.ReceiptContact),
			Items: []receiptItem{{
				Description:    truncate(req.Description, 128),
				Quantity:       "1.00",
				Amount:         formatAmount(req.AmountMinor, req.Currency),
				VatCode:        1,
				PaymentMode:    "full_payment",
				PaymentSubject: "service",
			}},
		}
	}

	var resp paymentResponse
	if err := c.do(ctx, "charge", "/payments", idempotencyKey, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, unavailable("charge response without id")
	}

	return &domain.ChargeResult{
		ExternalID:      resp.ID,
		ConfirmationURL: resp.Confirmation.ConfirmationURL,
	}, nil
}

// CreatePayout sends money to the destination. A payout canceled synchronously
// is returned as a classified *Error.
func (c *Client) CreatePayout(ctx context.Context, req domain.PayoutRequest, idempotencyKey string) (*domain.PayoutResult, error) {
	dest, err := payoutDestinationFor(req.Method, req.Destination)
	if err != nil {
		return nil, err
	}
	body := createPayoutRequest{
		Amount:                formatAmount(req.AmountMinor, req.Currency),
		PayoutDestinationData: dest,
		Description:           truncate(req.Description, 128),
		Metadata:              req.Metadata,
	}

	var resp payoutResponse
	if err := c.do(ctx, "payout", "/payouts", idempotencyKey, body, &resp); err != nil {
		return nil, err
	}

	result := &domain.PayoutResult{ExternalID: resp.ID, Status: domain.PayoutStatus(resp.Status)}
	if result.Status == domain.PayoutCanceled {
		reason := ""
		if resp.CancellationDetails != nil {
			reason = resp.CancellationDetails.Reason
		}
		result.Reason = reason
		return result, &Error{Code: classifyReason(reason), Message: "payout canceled: " + reason}
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, operation, path, idempotencyKey string, in, out interface{}) error {
	start := time.Now()
	err := c.breaker.Call(func() error {
		return c.send(ctx, path, idempotencyKey, in, out)
	})

	outcome := "ok"
	var gwErr *Error
	switch {
	case errors.Is(err, domain.ErrGatewayUnavailable):
		outcome = "unavailable"
	case errors.As(err, &gwErr):
		outcome = string(gwErr.Code)
	case err != nil:
		outcome = "error"
	}
	c.metrics.ObserveGatewayCall(operation, outcome, time.Since(start).Seconds())

	if err != nil {
		logger.Warn(ctx).Err(err).
			Str("operation", operation).
			Str("idempotence_key", idempotencyKey).
			Msg("Gateway call failed")
	}
	return err
}

func (c *Client) send(ctx context.Context, path, idempotencyKey string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", truncate(idempotencyKey, maxIdempotenceKeyLen))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unavailable("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return unavailable("failed to read response: %v", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &Error{Code: CodeUnavailable, Message: string(raw), StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		var er errorResponse
		_ = json.Unmarshal(raw, &er)
		code := classifyReason(er.Code)
		if er.Code == "invalid_request" && er.Parameter != "" && strings.Contains(er.Parameter, "payout_destination") {
			code = CodeInvalidDestination
		}
		msg := er.Description
		if msg == "" {
			msg = string(raw)
		}
		return &Error{Code: code, Message: msg, StatusCode: resp.StatusCode}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return unavailable("failed to decode response: %v", err)
	}
	return nil
}

// formatAmount renders minor units as a fixed-2 major-unit decimal string
func formatAmount(minor int64, currency string) amount {
	return amount{
		Value:    decimal.New(minor, -2).StringFixed(2),
		Currency: currency,
	}
}

// ParseAmount converts a major-unit decimal string back to minor units
func ParseAmount(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("%w: bad amount %q", domain.ErrValidation, value)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

func chargeMethodType(m domain.PaymentMethod) string {
	switch m {
	case domain.MethodCard:
		return "bank_card"
	case domain.MethodSBP:
		return "sbp"
	case domain.MethodWallet:
		return "yoo_money"
	}
	return ""
}

func payoutDestinationFor(m domain.WithdrawalMethod, d domain.Destination) (payoutDestination, error) {
	switch m {
	case domain.WithdrawalCard:
		return payoutDestination{Type: "bank_card", Card: &payoutCard{Number: d.CardNumber}}, nil
	case domain.WithdrawalSBP:
		return payoutDestination{Type: "sbp", Phone: d.Phone, BankID: d.BankID}, nil
	case domain.WithdrawalEWallet:
		return payoutDestination{Type: "yoo_money", AccountNumber: d.WalletID}, nil
	}
	return payoutDestination{}, &Error{Code: CodeInvalidDestination, Message: "unsupported payout method " + string(m)}
}

func receiptCustomerFor(contact string) receiptCustomer {
	if strings.Contains(contact, "@") {
		return receiptCustomer{Email: contact}
	}
	return receiptCustomer{Phone: contact}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
