package assignment

import (
	"time"

	"github.com/google/uuid"
)

// MatchReasonType is the categorical reason a document was linked to a claim.
type MatchReasonType string

const (
	ReasonExactAmount       MatchReasonType = "exact_amount"
	ReasonApproximateAmount MatchReasonType = "approximate_amount"
	ReasonDateProximity     MatchReasonType = "date_proximity"
	ReasonProviderMatch     MatchReasonType = "provider_match"
	ReasonManual            MatchReasonType = "manual"
)

func (r MatchReasonType) Valid() bool {
	switch r {
	case ReasonExactAmount, ReasonApproximateAmount, ReasonDateProximity,
		ReasonProviderMatch, ReasonManual:
		return true
	}
	return false
}

func (r MatchReasonType) Label() string {
	switch r {
	case ReasonExactAmount:
		return "Exact amount match"
	case ReasonApproximateAmount:
		return "Approximate amount match"
	case ReasonDateProximity:
		return "Date proximity"
	case ReasonProviderMatch:
		return "Provider match"
	case ReasonManual:
		return "Linked manually"
	}
	return string(r)
}

// AssignmentStatus tracks a link through human review.
type AssignmentStatus string

const (
	StatusCandidate AssignmentStatus = "candidate"
	StatusConfirmed AssignmentStatus = "confirmed"
	StatusRejected  AssignmentStatus = "rejected"
)

func (s AssignmentStatus) Valid() bool {
	switch s {
	case StatusCandidate, StatusConfirmed, StatusRejected:
		return true
	}
	return false
}

func (s AssignmentStatus) Label() string {
	switch s {
	case StatusCandidate:
		return "Needs review"
	case StatusConfirmed:
		return "Confirmed"
	case StatusRejected:
		return "Rejected"
	}
	return string(s)
}

// Terminal reports whether review has settled this link. Re-opening a decided
// assignment is an explicit correction flow, not a status transition.
func (s AssignmentStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

// AmountMatchDetails records how the two amounts compared, kept for audit
// even when the comparison did not produce a match.
type AmountMatchDetails struct {
	DocumentAmount    float64 `json:"document_amount"`
	ClaimAmount       float64 `json:"claim_amount"`
	DifferencePercent float64 `json:"difference_percent"`
	WithinExact       bool    `json:"within_exact"`
	WithinApproximate bool    `json:"within_approximate"`
}

// DateMatchDetails records how the two dates compared.
type DateMatchDetails struct {
	DocumentDate           time.Time `json:"document_date"`
	ClaimDate              time.Time `json:"claim_date"`
	DaysDifference         int       `json:"days_difference"`
	WithinProximity        bool      `json:"within_proximity"`
	BeyondPenaltyThreshold bool      `json:"beyond_penalty_threshold"`
	BeyondHardCutoff       bool      `json:"beyond_hard_cutoff"`
}

// DocumentClaimAssignment is a scored link between one evidence document and
// one insurer-reported claim. Confirmed assignments always carry an illness.
type DocumentClaimAssignment struct {
	ID          uuid.UUID           `db:"id" json:"id"`
	DocumentID  uuid.UUID           `db:"document_id" json:"document_id"`
	ClaimID     uuid.UUID           `db:"claim_id" json:"claim_id"`
	IllnessID   *uuid.UUID          `db:"illness_id" json:"illness_id,omitempty"`
	Status      AssignmentStatus    `db:"status" json:"status"`
	Score       int                 `db:"score" json:"score"`
	ReasonType  MatchReasonType     `db:"reason_type" json:"reason_type"`
	Reason      string              `db:"reason" json:"reason"`
	AmountMatch *AmountMatchDetails `db:"amount_match" json:"amount_match,omitempty"`
	DateMatch   *DateMatchDetails   `db:"date_match" json:"date_match,omitempty"`
	ConfirmedAt *time.Time          `db:"confirmed_at" json:"confirmed_at,omitempty"`
	ConfirmedBy *string             `db:"confirmed_by" json:"confirmed_by,omitempty"`
	ReviewNotes *string             `db:"review_notes" json:"review_notes,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

func (a *DocumentClaimAssignment) EntityID() uuid.UUID { return a.ID }

func (a *DocumentClaimAssignment) Clone() *DocumentClaimAssignment {
	cp := *a
	if a.IllnessID != nil {
		v := *a.IllnessID
		cp.IllnessID = &v
	}
	if a.AmountMatch != nil {
		v := *a.AmountMatch
		cp.AmountMatch = &v
	}
	if a.DateMatch != nil {
		v := *a.DateMatch
		cp.DateMatch = &v
	}
	cp.ConfirmedAt = cloneTime(a.ConfirmedAt)
	cp.ConfirmedBy = cloneString(a.ConfirmedBy)
	cp.ReviewNotes = cloneString(a.ReviewNotes)
	return &cp
}

// CreateManualAssignmentInput links a document to a claim by hand, bypassing
// the scorer.
type CreateManualAssignmentInput struct {
	DocumentID uuid.UUID `json:"document_id"`
	ClaimID    uuid.UUID `json:"claim_id"`
	Notes      *string   `json:"notes,omitempty"`
}

// ConfirmAssignmentInput files a candidate under an illness.
type ConfirmAssignmentInput struct {
	IllnessID   uuid.UUID `json:"illness_id"`
	ConfirmedBy *string   `json:"confirmed_by,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
}

// RejectAssignmentInput dismisses a candidate.
type RejectAssignmentInput struct {
	Notes *string `json:"notes,omitempty"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
