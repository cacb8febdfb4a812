package claim

import (
	"time"

	"github.com/google/uuid"
)

// ScrapedClaimStatus is the insurer-side processing status reported by the
// portal scraper.
type ScrapedClaimStatus string

const (
	ScrapedPending   ScrapedClaimStatus = "pending"
	ScrapedProcessed ScrapedClaimStatus = "processed"
	ScrapedRejected  ScrapedClaimStatus = "rejected"
)

func (s ScrapedClaimStatus) Valid() bool {
	switch s {
	case ScrapedPending, ScrapedProcessed, ScrapedRejected:
		return true
	}
	return false
}

func (s ScrapedClaimStatus) Label() string {
	switch s {
	case ScrapedPending:
		return "Pending"
	case ScrapedProcessed:
		return "Processed"
	case ScrapedRejected:
		return "Rejected"
	}
	return string(s)
}

// ScrapedClaim is an insurer-side claim record owned by the scraping
// collaborator. The core reads it for matching and upserts it on sync; it is
// deliberately kept separate from the locally-originated Claim.
type ScrapedClaim struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	ExternalID    string             `db:"external_id" json:"external_id"`
	SubmissionID  *string            `db:"submission_id" json:"submission_id,omitempty"`
	MemberRef     string             `db:"member_ref" json:"member_ref"`
	ProviderName  *string            `db:"provider_name" json:"provider_name,omitempty"`
	Amount        float64            `db:"amount" json:"amount"`
	Currency      string             `db:"currency" json:"currency"`
	TreatmentDate *time.Time         `db:"treatment_date" json:"treatment_date,omitempty"`
	Status        ScrapedClaimStatus `db:"status" json:"status"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

func (c *ScrapedClaim) EntityID() uuid.UUID { return c.ID }

func (c *ScrapedClaim) Clone() *ScrapedClaim {
	cp := *c
	cp.SubmissionID = cloneString(c.SubmissionID)
	cp.ProviderName = cloneString(c.ProviderName)
	cp.TreatmentDate = cloneTime(c.TreatmentDate)
	return &cp
}

// ClaimStatus is the lifecycle status of a locally-originated claim.
type ClaimStatus string

const (
	StatusDraft      ClaimStatus = "draft"
	StatusReady      ClaimStatus = "ready"
	StatusSubmitted  ClaimStatus = "submitted"
	StatusProcessing ClaimStatus = "processing"
	StatusApproved   ClaimStatus = "approved"
	StatusRejected   ClaimStatus = "rejected"
	StatusPaid       ClaimStatus = "paid"
)

func (s ClaimStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusReady, StatusSubmitted, StatusProcessing,
		StatusApproved, StatusRejected, StatusPaid:
		return true
	}
	return false
}

func (s ClaimStatus) Label() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusReady:
		return "Ready to submit"
	case StatusSubmitted:
		return "Submitted"
	case StatusProcessing:
		return "In processing"
	case StatusApproved:
		return "Approved"
	case StatusRejected:
		return "Rejected"
	case StatusPaid:
		return "Paid out"
	}
	return string(s)
}

// Priority orders claims in listings: the closer to needing user action, the
// lower the number.
func (s ClaimStatus) Priority() int {
	switch s {
	case StatusDraft:
		return 1
	case StatusReady:
		return 2
	case StatusProcessing:
		return 3
	case StatusSubmitted:
		return 4
	case StatusApproved:
		return 5
	case StatusRejected:
		return 6
	case StatusPaid:
		return 7
	}
	return 99
}

// Terminal reports whether no further transition leaves this status.
func (s ClaimStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusPaid:
		return true
	}
	return false
}

// Claim is a locally-originated claim advancing toward (and through)
// submission to the insurer.
type Claim struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	SubmissionID    *string     `db:"submission_id" json:"submission_id,omitempty"`
	MemberRef       string      `db:"member_ref" json:"member_ref"`
	ProviderName    *string     `db:"provider_name" json:"provider_name,omitempty"`
	Amount          float64     `db:"amount" json:"amount"`
	Currency        string      `db:"currency" json:"currency"`
	TreatmentDate   *time.Time  `db:"treatment_date" json:"treatment_date,omitempty"`
	DraftClaimID    *uuid.UUID  `db:"draft_claim_id" json:"draft_claim_id,omitempty"`
	IllnessID       *uuid.UUID  `db:"illness_id" json:"illness_id,omitempty"`
	Status          ClaimStatus `db:"status" json:"status"`
	StatusChangedAt time.Time   `db:"status_changed_at" json:"status_changed_at"`
	SubmittedAt     *time.Time  `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

func (c *Claim) EntityID() uuid.UUID { return c.ID }

func (c *Claim) Clone() *Claim {
	cp := *c
	cp.SubmissionID = cloneString(c.SubmissionID)
	cp.ProviderName = cloneString(c.ProviderName)
	cp.TreatmentDate = cloneTime(c.TreatmentDate)
	cp.DraftClaimID = cloneUUID(c.DraftClaimID)
	cp.IllnessID = cloneUUID(c.IllnessID)
	cp.SubmittedAt = cloneTime(c.SubmittedAt)
	return &cp
}

// SyncScrapedClaimInput is one scraped record handed over by the portal
// scraping collaborator.
type SyncScrapedClaimInput struct {
	ExternalID    string             `json:"external_id"`
	SubmissionID  *string            `json:"submission_id,omitempty"`
	MemberRef     string             `json:"member_ref"`
	ProviderName  *string            `json:"provider_name,omitempty"`
	Amount        float64            `json:"amount"`
	Currency      string             `json:"currency"`
	TreatmentDate *time.Time         `json:"treatment_date,omitempty"`
	Status        ScrapedClaimStatus `json:"status"`
}

// CreateClaimInput starts a new local claim in draft status.
type CreateClaimInput struct {
	MemberRef     string     `json:"member_ref"`
	ProviderName  *string    `json:"provider_name,omitempty"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	TreatmentDate *time.Time `json:"treatment_date,omitempty"`
	DraftClaimID  *uuid.UUID `json:"draft_claim_id,omitempty"`
	IllnessID     *uuid.UUID `json:"illness_id,omitempty"`
}

// UpdateClaimInput edits a claim that has not left draft status; nil leaves a
// field as is.
type UpdateClaimInput struct {
	MemberRef     *string    `json:"member_ref,omitempty"`
	ProviderName  *string    `json:"provider_name,omitempty"`
	Amount        *float64   `json:"amount,omitempty"`
	Currency      *string    `json:"currency,omitempty"`
	TreatmentDate *time.Time `json:"treatment_date,omitempty"`
	IllnessID     *uuid.UUID `json:"illness_id,omitempty"`
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

func cloneUUID(u *uuid.UUID) *uuid.UUID {
	if u == nil {
		return nil
	}
	v := *u
	return &v
}
