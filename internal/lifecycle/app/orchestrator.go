package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/movitel/lineops/internal/cache"
	"github.com/movitel/lineops/internal/lifecycle/domain"
)

// LineAPI is the upstream REST surface for line lifecycle mutations. Every
// call awaits the remote; the server remains the single source of truth for
// line status. Implementations map upstream 4xx responses onto the domain
// error taxonomy (ValidationError, ConflictError, ErrNotFound).
type LineAPI interface {
	ProcessSimReplacement(ctx context.Context, lineID string, reason domain.BlockReason) (*domain.Line, error)
	ConfirmSimReplacementActions(ctx context.Context, req ConfirmActionsRequest) (*domain.Line, error)
	DeclareSimReplacementReceived(ctx context.Context, lineID, iccid string) (*domain.Line, error)
	OrderReplacementSim(ctx context.Context, req OrderReplacementRequest) (*domain.Line, error)
	ActivateLine(ctx context.Context, lineID string) (*domain.Line, error)
}

// PaymentAPI is the upstream billing surface backing the activation payment
// gate.
type PaymentAPI interface {
	UnpaidInvoices(ctx context.Context, clientID string) ([]domain.Invoice, error)
	GenerateActivationInvoice(ctx context.Context, clientID string, amount float64, proratedDays, daysInMonth int) (*domain.Invoice, error)
	MarkPaymentReceived(ctx context.Context, receipt PaymentReceipt) (*domain.Invoice, error)
}

// ConfirmActionsRequest carries a supervisor confirmation for a pending
// blocking/ordering step.
type ConfirmActionsRequest struct {
	LineID               string `json:"lineId" validate:"required"`
	ConfirmedRedBlocking bool   `json:"confirmedRedBlocking"`
	ConfirmedSimOrder    bool   `json:"confirmedSimOrder"`
}

// OrderReplacementRequest orders a replacement SIM for a line paused after a
// lost SIM, creating the associated billing record upstream.
type OrderReplacementRequest struct {
	LineID        string  `json:"lineId" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod string  `json:"paymentMethod" validate:"required"`
	Reference     string  `json:"reference,omitempty"`
}

// PaymentReceipt records a received payment against an invoice.
type PaymentReceipt struct {
	InvoiceID     string  `json:"invoiceId" validate:"required"`
	PaymentMethod string  `json:"paymentMethod" validate:"required"`
	Reference     string  `json:"reference,omitempty"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
}

// PaymentCheck is the outcome of the pre-activation payment gate.
type PaymentCheck struct {
	RequiresPayment bool            `json:"requiresPayment"`
	TotalAmount     float64         `json:"totalAmount"`
	Invoice         *domain.Invoice `json:"invoice,omitempty"`
}

// Orchestrator decides, for a line's current status and a requested action,
// which confirmations are mandatory and what transition results, then drives
// the authoritative upstream API. After every successful mutation it marks
// the affected collection caches stale; those invalidations are idempotent
// and safe to re-apply alongside independently arriving push events.
type Orchestrator struct {
	lineAPI    LineAPI
	paymentAPI PaymentAPI
	store      *cache.Store
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

func NewOrchestrator(lineAPI LineAPI, paymentAPI PaymentAPI, store *cache.Store, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		lineAPI:    lineAPI,
		paymentAPI: paymentAPI,
		store:      store,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger.With("component", "lifecycle"),
		now:        time.Now,
	}
}

// ProcessSimReplacementRequest opens a pending-block request for a line. A
// line can carry at most one unresolved request at a time.
func (o *Orchestrator) ProcessSimReplacementRequest(ctx context.Context, line *domain.Line, reason domain.BlockReason) (*domain.Line, error) {
	if !reason.IsValid() {
		return nil, o.fail(ctx, "process_sim_replacement", domain.NewValidationError("reason", "unknown block reason"))
	}
	if line.HasPendingBlockRequest() {
		return nil, o.fail(ctx, "process_sim_replacement", domain.NewConflictError("line already has an unresolved pending-block request"))
	}

	updated, err := o.lineAPI.ProcessSimReplacement(ctx, line.ID, reason)
	if err != nil {
		return nil, o.fail(ctx, "process_sim_replacement", err)
	}

	o.invalidateLineCollections()
	o.succeed(ctx, "process_sim_replacement", "line_id", line.ID, "reason", reason)
	return updated, nil
}

// ConfirmSimReplacementActions applies supervisor confirmations to a line
// awaiting blocking or SIM ordering. Missing confirmations are rejected with
// a ValidationError before any network call; the upstream response remains
// the authoritative resulting state.
func (o *Orchestrator) ConfirmSimReplacementActions(ctx context.Context, line *domain.Line, req ConfirmActionsRequest) (*domain.Line, error) {
	if err := o.validateStruct(req); err != nil {
		return nil, o.fail(ctx, "confirm_actions", err)
	}

	plan, err := PlanConfirmation(line, req.ConfirmedRedBlocking, req.ConfirmedSimOrder)
	if err != nil {
		return nil, o.fail(ctx, "confirm_actions", err)
	}

	updated, err := o.lineAPI.ConfirmSimReplacementActions(ctx, req)
	if err != nil {
		return nil, o.fail(ctx, "confirm_actions", err)
	}

	if updated.Status != plan.NextStatus {
		// Server-side state moved under us (e.g. already confirmed by another
		// supervisor). Surface the drift; caller must re-fetch. Never retried.
		return nil, o.fail(ctx, "confirm_actions", domain.NewConflictError(
			"line transitioned to "+string(updated.Status)+" instead of expected "+string(plan.NextStatus)))
	}

	o.invalidateLineCollections()
	o.succeed(ctx, "confirm_actions", "line_id", line.ID, "next_status", plan.NextStatus)
	return updated, nil
}

// DeclareSimReplacementReceived records physical receipt of an ordered
// replacement SIM, exiting the replacement sub-workflow into the normal
// pre-activation payment-check path.
func (o *Orchestrator) DeclareSimReplacementReceived(ctx context.Context, line *domain.Line, iccid string) (*domain.Line, error) {
	if strings.TrimSpace(iccid) == "" {
		return nil, o.fail(ctx, "declare_received", domain.NewValidationError("iccid", "ICCID is required"))
	}
	if line.Status != domain.LineStatusPendingSimActivation {
		return nil, o.fail(ctx, "declare_received", domain.NewValidationError("status", "line is not awaiting SIM activation"))
	}
	if !line.ReplacementSimOrdered {
		return nil, o.fail(ctx, "declare_received", domain.NewValidationError("replacementSimOrdered", "no replacement SIM was ordered for this line"))
	}

	updated, err := o.lineAPI.DeclareSimReplacementReceived(ctx, line.ID, iccid)
	if err != nil {
		return nil, o.fail(ctx, "declare_received", err)
	}

	o.invalidateLineCollections()
	o.succeed(ctx, "declare_received", "line_id", line.ID)
	return updated, nil
}

// OrderReplacementSim orders a replacement SIM for a line paused after a lost
// SIM. The billing fields are validated before any network call so an invalid
// order can never create a billing record.
func (o *Orchestrator) OrderReplacementSim(ctx context.Context, line *domain.Line, req OrderReplacementRequest) (*domain.Line, error) {
	if !line.PausedForLostSim {
		return nil, o.fail(ctx, "order_replacement", domain.NewValidationError("isPausedForLostSim", "line is not eligible for a replacement SIM order"))
	}
	if err := o.validateStruct(req); err != nil {
		return nil, o.fail(ctx, "order_replacement", err)
	}

	updated, err := o.lineAPI.OrderReplacementSim(ctx, req)
	if err != nil {
		return nil, o.fail(ctx, "order_replacement", err)
	}

	o.invalidateLineCollections()
	o.succeed(ctx, "order_replacement", "line_id", line.ID, "amount", req.Amount)
	return updated, nil
}

// CheckPayment reports whether the client has an unpaid current-period
// invoice standing between a line and activation.
func (o *Orchestrator) CheckPayment(ctx context.Context, clientID string) (*PaymentCheck, error) {
	if clientID == "" {
		return nil, o.fail(ctx, "check_payment", domain.NewValidationError("clientId", "client id is required"))
	}

	invoices, err := o.paymentAPI.UnpaidInvoices(ctx, clientID)
	if err != nil {
		return nil, o.fail(ctx, "check_payment", err)
	}

	now := o.now()
	var total float64
	var first *domain.Invoice
	for i := range invoices {
		inv := invoices[i]
		if inv.Status != domain.InvoiceStatusUnpaid || !inv.IsCurrentPeriod(now) {
			continue
		}
		total += inv.Amount
		if first == nil {
			first = &inv
		}
	}

	if first == nil {
		o.succeed(ctx, "check_payment", "client_id", clientID, "requires_payment", false)
		return &PaymentCheck{RequiresPayment: false}, nil
	}

	o.succeed(ctx, "check_payment", "client_id", clientID, "requires_payment", true, "total", total)
	return &PaymentCheck{RequiresPayment: true, TotalAmount: round2(total), Invoice: first}, nil
}

// ActivationCharge resolves what the client must pay before activation: an
// existing unpaid current-period invoice, or a freshly generated invoice for
// the subscription price prorated to the remaining days in the billing month.
func (o *Orchestrator) ActivationCharge(ctx context.Context, clientID string, subscriptionPrice float64) (*PaymentCheck, error) {
	check, err := o.CheckPayment(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if check.RequiresPayment {
		return check, nil
	}

	remaining, days := ProrationFor(o.now())
	amount := ProratedAmount(subscriptionPrice, remaining, days)
	invoice, err := o.paymentAPI.GenerateActivationInvoice(ctx, clientID, amount, remaining, days)
	if err != nil {
		return nil, o.fail(ctx, "activation_charge", err)
	}

	o.succeed(ctx, "activation_charge", "client_id", clientID, "amount", amount)
	return &PaymentCheck{RequiresPayment: true, TotalAmount: invoice.Amount, Invoice: invoice}, nil
}

// MarkPaymentReceived confirms a received payment against an invoice.
func (o *Orchestrator) MarkPaymentReceived(ctx context.Context, receipt PaymentReceipt) (*domain.Invoice, error) {
	if err := o.validateStruct(receipt); err != nil {
		return nil, o.fail(ctx, "mark_payment_received", err)
	}

	invoice, err := o.paymentAPI.MarkPaymentReceived(ctx, receipt)
	if err != nil {
		return nil, o.fail(ctx, "mark_payment_received", err)
	}

	o.store.Invalidate(cache.TagLinesToActivate)
	o.succeed(ctx, "mark_payment_received", "invoice_id", receipt.InvoiceID, "amount", receipt.Amount)
	return invoice, nil
}

// ActivateLine moves a line to ACTIVE. The payment gate is a strict
// precondition: activation never proceeds while an unpaid current-period
// invoice exists for the owning client.
func (o *Orchestrator) ActivateLine(ctx context.Context, line *domain.Line) (*domain.Line, error) {
	check, err := o.CheckPayment(ctx, line.ClientID)
	if err != nil {
		return nil, err
	}
	if check.RequiresPayment {
		return nil, o.fail(ctx, "activate_line", domain.NewValidationError("payment", "unpaid current-period invoice must be settled before activation"))
	}

	updated, err := o.lineAPI.ActivateLine(ctx, line.ID)
	if err != nil {
		return nil, o.fail(ctx, "activate_line", err)
	}

	o.invalidateLineCollections()
	o.succeed(ctx, "activate_line", "line_id", line.ID)
	return updated, nil
}

func (o *Orchestrator) invalidateLineCollections() {
	o.store.Invalidate(cache.TagLineReservations)
	o.store.Invalidate(cache.TagLinesToActivate)
}

// validateStruct maps validator failures onto the domain ValidationError so
// callers see the same taxonomy regardless of where validation happened.
func (o *Orchestrator) validateStruct(v any) error {
	err := o.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(fe.Field(), "failed '"+fe.Tag()+"' validation")
	}
	return domain.NewValidationError("", err.Error())
}

func (o *Orchestrator) fail(ctx context.Context, operation string, err error) error {
	outcome := "error"
	switch {
	case domain.IsValidation(err):
		outcome = "validation_error"
	case domain.IsConflict(err):
		outcome = "conflict"
	}
	operationsCounter.WithLabelValues(operation, outcome).Inc()
	o.logger.WarnContext(ctx, "lifecycle operation failed", "operation", operation, "outcome", outcome, "error", err)
	return err
}

func (o *Orchestrator) succeed(ctx context.Context, operation string, attrs ...any) {
	operationsCounter.WithLabelValues(operation, "success").Inc()
	o.logger.InfoContext(ctx, "lifecycle operation completed", append([]any{"operation", operation}, attrs...)...)
}
