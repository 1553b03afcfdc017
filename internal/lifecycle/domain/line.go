package domain

import "time"

// LineStatus is the authoritative lifecycle status of a phone line. The wire
// values are the upstream API's; terminal states are BLOCKED and TERMINATED.
type LineStatus string

const (
	LineStatusActive               LineStatus = "ACTIVE"
	LineStatusPendingPause         LineStatus = "PENDING_PAUSE"
	LineStatusNeedsBlocking        LineStatus = "PENDING_BLOCK_RED"
	LineStatusNeedsSimOrder        LineStatus = "PENDING_SIM_ORDER"
	LineStatusPendingSimActivation LineStatus = "PENDING_SIM_ACTIVATION"
	LineStatusPaused               LineStatus = "PAUSED"
	LineStatusBlocked              LineStatus = "BLOCKED"
	LineStatusTerminated           LineStatus = "TERMINATED"
)

// IsTerminal reports whether no further transition exists for the status.
// BLOCKED is definitive: there is no replacement path out of it.
func (s LineStatus) IsTerminal() bool {
	return s == LineStatusBlocked || s == LineStatusTerminated
}

// BlockReason is the cause driving a line out of active service.
type BlockReason string

const (
	BlockReasonPause                BlockReason = "pause"
	BlockReasonLostSim              BlockReason = "lost_sim"
	BlockReasonLostSimNoReplacement BlockReason = "lost_sim_no_replacement"
	BlockReasonDebt                 BlockReason = "debt"
	BlockReasonTermination          BlockReason = "termination"
)

// IsValid reports whether the reason is one of the known block reasons.
func (r BlockReason) IsValid() bool {
	switch r {
	case BlockReasonPause, BlockReasonLostSim, BlockReasonLostSimNoReplacement,
		BlockReasonDebt, BlockReasonTermination:
		return true
	}
	return false
}

// ExpectsReplacement reports whether the blocking workflow for this reason
// continues into a replacement SIM order.
func (r BlockReason) ExpectsReplacement() bool {
	return r == BlockReasonLostSim
}

// Line is a mobile subscription/SIM slot owned operationally by an agency and
// billed to a client. The server is the single source of truth for its
// status; this struct mirrors the last fetched state.
type Line struct {
	ID          string     `json:"id"`
	PhoneNumber *string    `json:"phoneNumber,omitempty"` // nil until provisioned
	Status      LineStatus `json:"status"`

	PendingBlockReason *BlockReason `json:"pendingBlockReason,omitempty"`

	ReplacementSimOrdered          bool `json:"replacementSimOrdered"`
	ReplacementSimReceived         bool `json:"replacementSimReceived"`
	SupervisorConfirmedRedBlocking bool `json:"supervisorConfirmedRedBlocking"`
	SupervisorConfirmedSimOrder    bool `json:"supervisorConfirmedSimOrder"`

	// PausedForLostSim marks a line paused after a lost SIM with no immediate
	// replacement; the client may order a replacement later.
	PausedForLostSim bool `json:"isPausedForLostSim"`

	ClientID string `json:"clientId"`
	AgencyID string `json:"agencyId"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckInvariants validates the cross-field rules a well-formed line obeys:
// a replacement SIM can only be received once ordered, and at most one
// pending-block request may be unresolved.
func (l *Line) CheckInvariants() error {
	if l.ReplacementSimReceived && !l.ReplacementSimOrdered {
		return NewValidationError("replacementSimReceived", "cannot be set before a replacement SIM was ordered")
	}
	if l.PendingBlockReason != nil && !l.PendingBlockReason.IsValid() {
		return NewValidationError("pendingBlockReason", "unknown block reason")
	}
	return nil
}

// HasPendingBlockRequest reports whether an unresolved pending-block request
// exists for the line.
func (l *Line) HasPendingBlockRequest() bool {
	return l.PendingBlockReason != nil
}
