package draftclaim

import (
	"time"

	"github.com/google/uuid"

	"github.com/recoup/recoup/internal/domain/document"
)

// DraftStatus tracks a draft claim through review.
type DraftStatus string

const (
	DraftPending  DraftStatus = "pending"
	DraftAccepted DraftStatus = "accepted"
	DraftRejected DraftStatus = "rejected"
)

func (s DraftStatus) Valid() bool {
	switch s {
	case DraftPending, DraftAccepted, DraftRejected:
		return true
	}
	return false
}

func (s DraftStatus) Label() string {
	switch s {
	case DraftPending:
		return "Pending review"
	case DraftAccepted:
		return "Accepted"
	case DraftRejected:
		return "Rejected"
	}
	return string(s)
}

// Terminal reports whether review has settled this draft.
func (s DraftStatus) Terminal() bool {
	return s == DraftAccepted || s == DraftRejected
}

// TreatmentDateSource records where a draft's treatment date came from.
type TreatmentDateSource string

const (
	DateFromDocument TreatmentDateSource = "document"
	DateFromCalendar TreatmentDateSource = "calendar"
	DateFromManual   TreatmentDateSource = "manual"
)

func (s TreatmentDateSource) Valid() bool {
	switch s {
	case DateFromDocument, DateFromCalendar, DateFromManual:
		return true
	}
	return false
}

// DraftClaim is a locally generated, pre-submission claim candidate built
// from evidence documents.
//
// DocumentIDs is a deduplicated set and only ever grows: repeated grouping
// expands it, nothing removes previously attached documents. Version backs
// optimistic concurrency on the merge path, where two promotions can race on
// the same draft.
type DraftClaim struct {
	ID                      uuid.UUID            `db:"id" json:"id"`
	Status                  DraftStatus          `db:"status" json:"status"`
	PrimaryDocumentID       uuid.UUID            `db:"primary_document_id" json:"primary_document_id"`
	DocumentIDs             []uuid.UUID          `db:"document_ids" json:"document_ids"`
	Payment                 document.Payment     `db:"payment" json:"payment"`
	IllnessID               *uuid.UUID           `db:"illness_id" json:"illness_id,omitempty"`
	TreatmentDate           *time.Time           `db:"treatment_date" json:"treatment_date,omitempty"`
	TreatmentDateSource     *TreatmentDateSource `db:"treatment_date_source" json:"treatment_date_source,omitempty"`
	PaymentProofDocumentIDs []uuid.UUID          `db:"payment_proof_document_ids" json:"payment_proof_document_ids,omitempty"`
	Version                 int64                `db:"record_version" json:"record_version"`
	CreatedAt               time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time            `db:"updated_at" json:"updated_at"`
}

func (d *DraftClaim) EntityID() uuid.UUID { return d.ID }

func (d *DraftClaim) Clone() *DraftClaim {
	cp := *d
	cp.DocumentIDs = append([]uuid.UUID(nil), d.DocumentIDs...)
	cp.PaymentProofDocumentIDs = append([]uuid.UUID(nil), d.PaymentProofDocumentIDs...)
	cp.Payment = d.Payment.Clone()
	if d.IllnessID != nil {
		v := *d.IllnessID
		cp.IllnessID = &v
	}
	if d.TreatmentDate != nil {
		v := *d.TreatmentDate
		cp.TreatmentDate = &v
	}
	if d.TreatmentDateSource != nil {
		v := *d.TreatmentDateSource
		cp.TreatmentDateSource = &v
	}
	return &cp
}

func (d *DraftClaim) RecordVersion() int64     { return d.Version }
func (d *DraftClaim) SetRecordVersion(v int64) { d.Version = v }

// ContainsDocument reports whether id is already part of this draft.
func (d *DraftClaim) ContainsDocument(id uuid.UUID) bool {
	for _, existing := range d.DocumentIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// attachDocuments unions ids into DocumentIDs, preserving order of first
// attachment. It reports whether the set grew.
func (d *DraftClaim) attachDocuments(ids []uuid.UUID) bool {
	grew := false
	for _, id := range ids {
		if id == uuid.Nil || d.ContainsDocument(id) {
			continue
		}
		d.DocumentIDs = append(d.DocumentIDs, id)
		grew = true
	}
	return grew
}

// attachProofs unions ids into PaymentProofDocumentIDs and reports growth.
func (d *DraftClaim) attachProofs(ids []uuid.UUID) bool {
	grew := false
	for _, id := range ids {
		if id == uuid.Nil || containsID(d.PaymentProofDocumentIDs, id) {
			continue
		}
		d.PaymentProofDocumentIDs = append(d.PaymentProofDocumentIDs, id)
		grew = true
	}
	return grew
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
