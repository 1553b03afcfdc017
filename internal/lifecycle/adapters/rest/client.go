// Package rest adapts the upstream carrier back-office REST API to the
// orchestrator's LineAPI and PaymentAPI interfaces. Request/response bodies
// are opaque JSON; upstream 4xx responses are mapped onto the domain error
// taxonomy so callers never see raw HTTP status codes.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/movitel/lineops/internal/lifecycle/app"
	"github.com/movitel/lineops/internal/lifecycle/domain"
)

// TokenProvider supplies the bearer token for upstream calls. The session
// store implements it.
type TokenProvider interface {
	Token() (string, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
	logger  *slog.Logger
}

func NewClient(baseURL string, tokens TokenProvider, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		logger:  logger.With("component", "upstream_rest"),
	}
}

// --- app.LineAPI ---

func (c *Client) ProcessSimReplacement(ctx context.Context, lineID string, reason domain.BlockReason) (*domain.Line, error) {
	body := map[string]any{"lineId": lineID, "reason": reason}
	var line domain.Line
	if err := c.do(ctx, http.MethodPost, "/sim-replacement/process", body, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (c *Client) ConfirmSimReplacementActions(ctx context.Context, req app.ConfirmActionsRequest) (*domain.Line, error) {
	var line domain.Line
	if err := c.do(ctx, http.MethodPost, "/sim-replacement/confirm-actions", req, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (c *Client) DeclareSimReplacementReceived(ctx context.Context, lineID, iccid string) (*domain.Line, error) {
	body := map[string]any{"lineId": lineID, "iccid": iccid}
	var line domain.Line
	if err := c.do(ctx, http.MethodPost, "/sim-replacement/declare-received", body, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (c *Client) OrderReplacementSim(ctx context.Context, req app.OrderReplacementRequest) (*domain.Line, error) {
	var line domain.Line
	if err := c.do(ctx, http.MethodPost, "/sim-replacement/order-replacement", req, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (c *Client) ActivateLine(ctx context.Context, lineID string) (*domain.Line, error) {
	var line domain.Line
	if err := c.do(ctx, http.MethodPost, "/lines/"+lineID+"/activate", nil, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

// GetLine fetches the authoritative current state of a line.
func (c *Client) GetLine(ctx context.Context, lineID string) (*domain.Line, error) {
	var line domain.Line
	if err := c.do(ctx, http.MethodGet, "/lines/"+lineID, nil, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

// --- app.PaymentAPI ---

func (c *Client) UnpaidInvoices(ctx context.Context, clientID string) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	if err := c.do(ctx, http.MethodGet, "/clients/"+clientID+"/invoices/unpaid", nil, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (c *Client) GenerateActivationInvoice(ctx context.Context, clientID string, amount float64, proratedDays, daysInMonth int) (*domain.Invoice, error) {
	body := map[string]any{
		"amount":       amount,
		"proratedDays": proratedDays,
		"daysInMonth":  daysInMonth,
	}
	var invoice domain.Invoice
	if err := c.do(ctx, http.MethodPost, "/clients/"+clientID+"/invoices/activation", body, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (c *Client) MarkPaymentReceived(ctx context.Context, receipt app.PaymentReceipt) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := c.do(ctx, http.MethodPost, "/line-payments/payment-received", receipt, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// --- line payment queries (diagnostics and billing views) ---

// PaymentHistoryEntry is one recorded payment against a line.
type PaymentHistoryEntry struct {
	ID            string    `json:"id"`
	Amount        float64   `json:"amount"`
	PaymentMethod string    `json:"paymentMethod"`
	Reference     string    `json:"reference,omitempty"`
	RecordedAt    time.Time `json:"recordedAt"`
}

func (c *Client) PaymentHistory(ctx context.Context, lineID string) ([]PaymentHistoryEntry, error) {
	var entries []PaymentHistoryEntry
	if err := c.do(ctx, http.MethodGet, "/line-payments/phone/"+lineID+"/history", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// LineBalance is the current payment position of a line.
type LineBalance struct {
	Balance     float64    `json:"balance"`
	NextBilling *time.Time `json:"nextBilling,omitempty"`
}

func (c *Client) Balance(ctx context.Context, lineID string) (*LineBalance, error) {
	var balance LineBalance
	if err := c.do(ctx, http.MethodGet, "/line-payments/phone/"+lineID+"/balance", nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

func (c *Client) NextBilling(ctx context.Context, lineID string) (*LineBalance, error) {
	var balance LineBalance
	if err := c.do(ctx, http.MethodGet, "/line-payments/phone/"+lineID+"/next-billing", nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// RecordAdvancePayment credits a line ahead of its billing cycle.
func (c *Client) RecordAdvancePayment(ctx context.Context, lineID string, amount float64, paymentMethod, reference string) error {
	body := map[string]any{
		"lineId":        lineID,
		"amount":        amount,
		"paymentMethod": paymentMethod,
		"reference":     reference,
	}
	return c.do(ctx, http.MethodPost, "/line-payments/advance-payment", body, nil)
}

// --- plumbing ---

type upstreamError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("resolve bearer token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode upstream response for %s %s: %w", method, path, err)
		}
		return nil
	}

	return c.mapError(ctx, method, path, resp)
}

// mapError translates upstream failure statuses onto the domain taxonomy.
func (c *Client) mapError(ctx context.Context, method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	message := strings.TrimSpace(string(raw))
	var ue upstreamError
	if err := json.Unmarshal(raw, &ue); err == nil {
		if ue.Error != "" {
			message = ue.Error
		} else if ue.Message != "" {
			message = ue.Message
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	c.logger.WarnContext(ctx, "upstream call failed",
		"method", method, "path", path, "status", resp.StatusCode, "message", message)

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.NewValidationError("", message)
	case http.StatusConflict:
		return domain.NewConflictError(message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, method, path)
	default:
		return fmt.Errorf("upstream %s %s returned status %d: %s", method, path, resp.StatusCode, message)
	}
}
