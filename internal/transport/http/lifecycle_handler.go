package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/movitel/lineops/internal/lifecycle/app"
	"github.com/movitel/lineops/internal/lifecycle/domain"
)

// LineGetter fetches the current authoritative state of a line from upstream.
// The REST adapter implements it.
type LineGetter interface {
	GetLine(ctx context.Context, lineID string) (*domain.Line, error)
}

// LifecycleHandler exposes the line lifecycle operations over HTTP. Each
// mutation re-fetches the line before handing it to the orchestrator so the
// decision is always made against current upstream state.
type LifecycleHandler struct {
	orchestrator *app.Orchestrator
	lines        LineGetter
	logger       *slog.Logger
}

// NewLifecycleHandler creates a new LifecycleHandler.
func NewLifecycleHandler(orchestrator *app.Orchestrator, lines LineGetter, logger *slog.Logger) *LifecycleHandler {
	return &LifecycleHandler{
		orchestrator: orchestrator,
		lines:        lines,
		logger:       logger,
	}
}

// Helper to respond with JSON
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to write JSON response", "error", err)
		}
	}
}

// Helper to respond with an error
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, GenericErrorResponse{Error: message})
}

// mapDomainErrorToHTTPStatus converts domain taxonomy errors to HTTP status
// codes. ValidationError means the request was rejected before (or by) the
// upstream; ConflictError means server-side state drifted and the caller must
// re-fetch.
func mapDomainErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RegisterRoutes sets up the routing for lifecycle operations.
func (h *LifecycleHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sim-replacement/process", h.ProcessSimReplacement)
	r.Post("/sim-replacement/confirm-actions", h.ConfirmActions)
	r.Post("/sim-replacement/declare-received", h.DeclareReceived)
	r.Post("/sim-replacement/order-replacement", h.OrderReplacementSim)

	r.Get("/clients/{clientID}/payment-check", h.CheckPayment)
	r.Post("/payments/received", h.PaymentReceived)
	r.Post("/lines/{lineID}/activate", h.ActivateLine)
}

func (h *LifecycleHandler) ProcessSimReplacement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO ProcessSimReplacementRequest
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	line, ok := h.fetchLine(w, r, reqDTO.LineID)
	if !ok {
		return
	}

	updated, err := h.orchestrator.ProcessSimReplacementRequest(ctx, line, reqDTO.Reason)
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, LineResponse{Line: updated})
}

func (h *LifecycleHandler) ConfirmActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO ConfirmActionsRequest
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	line, ok := h.fetchLine(w, r, reqDTO.LineID)
	if !ok {
		return
	}

	updated, err := h.orchestrator.ConfirmSimReplacementActions(ctx, line, app.ConfirmActionsRequest{
		LineID:               reqDTO.LineID,
		ConfirmedRedBlocking: reqDTO.ConfirmedRedBlocking,
		ConfirmedSimOrder:    reqDTO.ConfirmedSimOrder,
	})
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, LineResponse{Line: updated})
}

func (h *LifecycleHandler) DeclareReceived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO DeclareReceivedRequest
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	line, ok := h.fetchLine(w, r, reqDTO.LineID)
	if !ok {
		return
	}

	updated, err := h.orchestrator.DeclareSimReplacementReceived(ctx, line, reqDTO.ICCID)
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, LineResponse{Line: updated})
}

func (h *LifecycleHandler) OrderReplacementSim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO OrderReplacementSimRequest
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	line, ok := h.fetchLine(w, r, reqDTO.LineID)
	if !ok {
		return
	}

	updated, err := h.orchestrator.OrderReplacementSim(ctx, line, app.OrderReplacementRequest{
		LineID:        reqDTO.LineID,
		Amount:        reqDTO.Amount,
		PaymentMethod: reqDTO.PaymentMethod,
		Reference:     reqDTO.Reference,
	})
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, LineResponse{Line: updated})
}

func (h *LifecycleHandler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := chi.URLParam(r, "clientID")

	check, err := h.orchestrator.CheckPayment(ctx, clientID)
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, check)
}

func (h *LifecycleHandler) PaymentReceived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO PaymentReceivedRequest
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	invoice, err := h.orchestrator.MarkPaymentReceived(ctx, app.PaymentReceipt{
		InvoiceID:     reqDTO.InvoiceID,
		PaymentMethod: reqDTO.PaymentMethod,
		Reference:     reqDTO.Reference,
		Amount:        reqDTO.Amount,
	})
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, invoice)
}

func (h *LifecycleHandler) ActivateLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lineID := chi.URLParam(r, "lineID")

	line, ok := h.fetchLine(w, r, lineID)
	if !ok {
		return
	}

	updated, err := h.orchestrator.ActivateLine(ctx, line)
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, LineResponse{Line: updated})
}

// fetchLine resolves the target line or writes the error response itself.
func (h *LifecycleHandler) fetchLine(w http.ResponseWriter, r *http.Request, lineID string) (*domain.Line, bool) {
	if lineID == "" {
		respondWithError(w, http.StatusBadRequest, "lineId is required")
		return nil, false
	}
	line, err := h.lines.GetLine(r.Context(), lineID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to fetch line", "lineID", lineID, "error", err)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return nil, false
	}
	return line, true
}
