package http

import (
	"github.com/movitel/lineops/internal/lifecycle/domain"
)

// ProcessSimReplacementRequest DTO for POST /sim-replacement/process
type ProcessSimReplacementRequest struct {
	LineID string             `json:"lineId" validate:"required"`
	Reason domain.BlockReason `json:"reason" validate:"required"`
}

// ConfirmActionsRequest DTO for POST /sim-replacement/confirm-actions
type ConfirmActionsRequest struct {
	LineID               string `json:"lineId" validate:"required"`
	ConfirmedRedBlocking bool   `json:"confirmedRedBlocking"`
	ConfirmedSimOrder    bool   `json:"confirmedSimOrder"`
}

// DeclareReceivedRequest DTO for POST /sim-replacement/declare-received
type DeclareReceivedRequest struct {
	LineID string `json:"lineId" validate:"required"`
	ICCID  string `json:"iccid" validate:"required"`
}

// OrderReplacementSimRequest DTO for POST /sim-replacement/order-replacement
type OrderReplacementSimRequest struct {
	LineID        string  `json:"lineId" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod string  `json:"paymentMethod" validate:"required"`
	Reference     string  `json:"reference,omitempty"`
}

// PaymentReceivedRequest DTO for POST /payments/received
type PaymentReceivedRequest struct {
	InvoiceID     string  `json:"invoiceId" validate:"required"`
	PaymentMethod string  `json:"paymentMethod" validate:"required"`
	Reference     string  `json:"reference,omitempty"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
}

// LineResponse DTO returned by all line mutations.
type LineResponse struct {
	Line *domain.Line `json:"line"`
}

// GenericErrorResponse is the error envelope for all handlers.
type GenericErrorResponse struct {
	Error string `json:"error"`
}
