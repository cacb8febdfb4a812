package claim

import "github.com/recoup/recoup/internal/platform/apperr"

// claimTransitions defines the legal lifecycle edges for a local claim.
// ready → draft is the only backward edge: the user can un-ready a claim
// before it goes out. The submitted → processing move is reported by the
// submission collaborator, never performed here.
var claimTransitions = map[ClaimStatus][]ClaimStatus{
	StatusDraft:      {StatusReady},
	StatusReady:      {StatusSubmitted, StatusDraft},
	StatusSubmitted:  {StatusProcessing},
	StatusProcessing: {StatusApproved, StatusRejected},
	StatusApproved:   {StatusPaid},
	StatusRejected:   {},
	StatusPaid:       {},
}

// CanTransition reports whether from → to is a legal lifecycle edge.
func CanTransition(from, to ClaimStatus) bool {
	for _, s := range claimTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition rejects illegal lifecycle edges with a validation error.
// Collaborator-reported status changes pass through here as well before they
// are persisted.
func ValidateTransition(from, to ClaimStatus) error {
	if !from.Valid() {
		return apperr.Validation("unknown claim status: %s", from)
	}
	if !to.Valid() {
		return apperr.Validation("unknown claim status: %s", to)
	}
	if !CanTransition(from, to) {
		return apperr.Validation("invalid claim transition from %s to %s", from, to)
	}
	return nil
}
