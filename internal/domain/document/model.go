package document

import (
	"time"

	"github.com/google/uuid"
)

// SourceType identifies where a piece of evidence came from.
type SourceType string

const (
	SourceEmail      SourceType = "email"
	SourceAttachment SourceType = "attachment"
	SourceCalendar   SourceType = "calendar"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceEmail, SourceAttachment, SourceCalendar:
		return true
	}
	return false
}

// Label returns the human-readable name for listings.
func (s SourceType) Label() string {
	switch s {
	case SourceEmail:
		return "Email"
	case SourceAttachment:
		return "Attachment"
	case SourceCalendar:
		return "Calendar entry"
	}
	return string(s)
}

// DetectedAmount is one monetary amount extracted from a document by OCR.
type DetectedAmount struct {
	Value      float64 `db:"value" json:"value"`
	Currency   string  `db:"currency" json:"currency"`
	RawText    string  `db:"raw_text" json:"raw_text"`
	Confidence int     `db:"confidence" json:"confidence"`
	Context    *string `db:"context" json:"context,omitempty"`
}

// PaymentOverride is a manual correction of what was actually paid. It always
// wins over any detected amount.
type PaymentOverride struct {
	Amount   float64   `db:"amount" json:"amount"`
	Currency string    `db:"currency" json:"currency"`
	Note     string    `db:"note" json:"note"`
	SetAt    time.Time `db:"set_at" json:"set_at"`
}

// PaymentSource tells whether a resolved payment came from detection or from
// a manual override.
type PaymentSource string

const (
	PaymentDetected   PaymentSource = "detected"
	PaymentOverridden PaymentSource = "override"
)

func (s PaymentSource) Valid() bool {
	switch s {
	case PaymentDetected, PaymentOverridden:
		return true
	}
	return false
}

// Payment is the resolved authoritative payment signal for a document or a
// document group.
type Payment struct {
	Amount       float64       `db:"amount" json:"amount"`
	Currency     string        `db:"currency" json:"currency"`
	Source       PaymentSource `db:"source" json:"source"`
	Confidence   *int          `db:"confidence" json:"confidence,omitempty"`
	RawText      *string       `db:"raw_text" json:"raw_text,omitempty"`
	Context      *string       `db:"context" json:"context,omitempty"`
	OverrideNote *string       `db:"override_note" json:"override_note,omitempty"`
}

// Clone returns a deep copy of the payment.
func (p Payment) Clone() Payment {
	cp := p
	cp.Confidence = cloneInt(p.Confidence)
	cp.RawText = cloneString(p.RawText)
	cp.Context = cloneString(p.Context)
	cp.OverrideNote = cloneString(p.OverrideNote)
	return cp
}

// MedicalDocument is one piece of evidence: an OCR'd email, attachment, or a
// calendar entry. Documents are created by ingestion and never deleted here;
// archival is a soft state.
type MedicalDocument struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	SourceType      SourceType       `db:"source_type" json:"source_type"`
	Title           *string          `db:"title" json:"title,omitempty"`
	MessageID       *string          `db:"message_id" json:"message_id,omitempty"`
	AttachmentPath  *string          `db:"attachment_path" json:"attachment_path,omitempty"`
	Fingerprint     *string          `db:"fingerprint" json:"fingerprint,omitempty"`
	Provider        *string          `db:"provider" json:"provider,omitempty"`
	DocumentDate    *time.Time       `db:"document_date" json:"document_date,omitempty"`
	Classification  *string          `db:"classification" json:"classification,omitempty"`
	DetectedAmounts []DetectedAmount `db:"detected_amounts" json:"detected_amounts,omitempty"`
	PaymentOverride *PaymentOverride `db:"payment_override" json:"payment_override,omitempty"`
	ArchivedAt      *time.Time       `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

func (d *MedicalDocument) EntityID() uuid.UUID { return d.ID }

// Clone returns a deep copy.
func (d *MedicalDocument) Clone() *MedicalDocument {
	cp := *d
	cp.Title = cloneString(d.Title)
	cp.MessageID = cloneString(d.MessageID)
	cp.AttachmentPath = cloneString(d.AttachmentPath)
	cp.Fingerprint = cloneString(d.Fingerprint)
	cp.Provider = cloneString(d.Provider)
	cp.DocumentDate = cloneTime(d.DocumentDate)
	cp.Classification = cloneString(d.Classification)
	cp.ArchivedAt = cloneTime(d.ArchivedAt)
	if d.DetectedAmounts != nil {
		cp.DetectedAmounts = make([]DetectedAmount, len(d.DetectedAmounts))
		for i, a := range d.DetectedAmounts {
			a.Context = cloneString(a.Context)
			cp.DetectedAmounts[i] = a
		}
	}
	if d.PaymentOverride != nil {
		ov := *d.PaymentOverride
		cp.PaymentOverride = &ov
	}
	return &cp
}

// Archived reports whether the document has been soft-archived.
func (d *MedicalDocument) Archived() bool { return d.ArchivedAt != nil }

// HasPaymentSignal reports whether the document can supply any payment at all.
func (d *MedicalDocument) HasPaymentSignal() bool {
	return d.PaymentOverride != nil || len(d.DetectedAmounts) > 0
}

// EvidenceDate is the date used for window filtering: the detected document
// date when present, otherwise the ingestion timestamp.
func (d *MedicalDocument) EvidenceDate() time.Time {
	if d.DocumentDate != nil {
		return *d.DocumentDate
	}
	return d.CreatedAt
}

// CreateDocumentInput is what the ingestion collaborator hands over for a new
// piece of evidence.
type CreateDocumentInput struct {
	SourceType      SourceType       `json:"source_type"`
	Title           *string          `json:"title,omitempty"`
	MessageID       *string          `json:"message_id,omitempty"`
	AttachmentPath  *string          `json:"attachment_path,omitempty"`
	Fingerprint     *string          `json:"fingerprint,omitempty"`
	Provider        *string          `json:"provider,omitempty"`
	DocumentDate    *time.Time       `json:"document_date,omitempty"`
	Classification  *string          `json:"classification,omitempty"`
	DetectedAmounts []DetectedAmount `json:"detected_amounts,omitempty"`
}

// UpdateDocumentInput carries the mutable fields; nil leaves a field as is.
type UpdateDocumentInput struct {
	Title          *string    `json:"title,omitempty"`
	Provider       *string    `json:"provider,omitempty"`
	DocumentDate   *time.Time `json:"document_date,omitempty"`
	Classification *string    `json:"classification,omitempty"`
}

// SetOverrideInput records a manual payment correction.
type SetOverrideInput struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Note     string  `json:"note"`
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

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
