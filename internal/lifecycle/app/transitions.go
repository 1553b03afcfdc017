package app

import (
	"fmt"

	"github.com/movitel/lineops/internal/lifecycle/domain"
)

// ConfirmationPlan is the locally computed outcome of a supervisor
// confirmation: the status the line will transition to and the flag updates
// that go with it. The upstream response stays authoritative; the plan exists
// so missing confirmations are rejected before any network call.
type ConfirmationPlan struct {
	NextStatus            domain.LineStatus
	ReplacementSimOrdered bool
	// WorkflowComplete is true when the replacement sub-workflow needs no
	// further supervisor confirmation after this step.
	WorkflowComplete bool
}

// PlanConfirmation resolves the state machine keyed by
// (currentStatus, pendingBlockReason) for a confirmation request.
//
// Two workflows coexist: the newer two-step path
// (PENDING_BLOCK_RED -> PENDING_SIM_ORDER -> PENDING_SIM_ACTIVATION) and the
// legacy combined path where a lost_sim line takes both confirmations in one
// step. Whether the legacy path is still reachable in current data is an open
// product question; both are kept.
func PlanConfirmation(line *domain.Line, confirmedRedBlocking, confirmedSimOrder bool) (*ConfirmationPlan, error) {
	switch line.Status {
	case domain.LineStatusNeedsBlocking:
		if !confirmedRedBlocking {
			return nil, domain.NewValidationError("supervisorConfirmedRedBlocking", "red blocking must be confirmed before the line can leave PENDING_BLOCK_RED")
		}
		if line.PendingBlockReason == nil {
			return nil, domain.NewConflictError("line awaits blocking but has no pending block request; re-fetch required")
		}
		return planBlockingConfirmed(*line.PendingBlockReason, confirmedSimOrder)

	case domain.LineStatusNeedsSimOrder:
		if !confirmedSimOrder {
			return nil, domain.NewValidationError("supervisorConfirmedSimOrder", "SIM order must be confirmed before the line can leave PENDING_SIM_ORDER")
		}
		return &ConfirmationPlan{
			NextStatus:            domain.LineStatusPendingSimActivation,
			ReplacementSimOrdered: true,
			WorkflowComplete:      true,
		}, nil

	default:
		return nil, domain.NewValidationError("status", fmt.Sprintf("no supervisor confirmation pending for status %s", line.Status))
	}
}

func planBlockingConfirmed(reason domain.BlockReason, confirmedSimOrder bool) (*ConfirmationPlan, error) {
	switch reason {
	case domain.BlockReasonLostSim:
		// Legacy combined workflow: both confirmations in one step jump
		// straight to awaiting SIM activation. Blocking alone moves to the
		// intermediate to-order state.
		if confirmedSimOrder {
			return &ConfirmationPlan{
				NextStatus:            domain.LineStatusPendingSimActivation,
				ReplacementSimOrdered: true,
				WorkflowComplete:      true,
			}, nil
		}
		return &ConfirmationPlan{NextStatus: domain.LineStatusNeedsSimOrder}, nil

	case domain.BlockReasonPause:
		// No SIM order expected; the client may request a replacement later.
		return &ConfirmationPlan{NextStatus: domain.LineStatusPaused, WorkflowComplete: true}, nil

	case domain.BlockReasonLostSimNoReplacement:
		// Terminal: no replacement path out of BLOCKED.
		return &ConfirmationPlan{NextStatus: domain.LineStatusBlocked, WorkflowComplete: true}, nil

	case domain.BlockReasonDebt:
		return &ConfirmationPlan{NextStatus: domain.LineStatusBlocked, WorkflowComplete: true}, nil

	case domain.BlockReasonTermination:
		return &ConfirmationPlan{NextStatus: domain.LineStatusTerminated, WorkflowComplete: true}, nil

	default:
		return nil, domain.NewValidationError("pendingBlockReason", fmt.Sprintf("unknown block reason %q", reason))
	}
}
