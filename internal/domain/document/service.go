package document

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recoup/recoup/internal/platform/apperr"
)

// Service owns document mutations the core is allowed to make: creation and
// update on behalf of ingestion, classification, payment overrides, and soft
// archival. Documents are never deleted.
type Service struct {
	repo     Repository
	resolver *PaymentResolver
}

func NewService(repo Repository, resolver *PaymentResolver) *Service {
	return &Service{repo: repo, resolver: resolver}
}

// ListFilter narrows List results; nil fields match everything.
type ListFilter struct {
	SourceType     *SourceType
	Archived       *bool
	Classification *string
}

// EvidenceGroup is the preview of what a promotion would operate on: the
// grouped documents, the group's resolved payment, and the document that
// supplied it.
type EvidenceGroup struct {
	Documents         []*MedicalDocument `json:"documents"`
	Payment           Payment            `json:"payment"`
	PrimaryDocumentID *uuid.UUID         `json:"primary_document_id,omitempty"`
}

func (s *Service) Create(ctx context.Context, input CreateDocumentInput) (*MedicalDocument, error) {
	if !input.SourceType.Valid() {
		return nil, apperr.Validation("invalid source_type: %s", input.SourceType)
	}
	if err := validateAmounts(input.DetectedAmounts); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &MedicalDocument{
		ID:              uuid.New(),
		SourceType:      input.SourceType,
		Title:           input.Title,
		MessageID:       input.MessageID,
		AttachmentPath:  input.AttachmentPath,
		Fingerprint:     input.Fingerprint,
		Provider:        input.Provider,
		DocumentDate:    input.DocumentDate,
		Classification:  input.Classification,
		DetectedAmounts: input.DetectedAmounts,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return s.repo.Save(ctx, doc)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateDocumentInput) (*MedicalDocument, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", id)
	}

	if input.Title != nil {
		doc.Title = input.Title
	}
	if input.Provider != nil {
		doc.Provider = input.Provider
	}
	if input.DocumentDate != nil {
		doc.DocumentDate = input.DocumentDate
	}
	if input.Classification != nil {
		doc.Classification = input.Classification
	}
	doc.UpdatedAt = time.Now().UTC()
	return s.repo.Save(ctx, doc)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*MedicalDocument, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*MedicalDocument, error) {
	return s.repo.Find(ctx, func(d *MedicalDocument) bool {
		if filter.SourceType != nil && d.SourceType != *filter.SourceType {
			return false
		}
		if filter.Archived != nil && d.Archived() != *filter.Archived {
			return false
		}
		if filter.Classification != nil {
			if d.Classification == nil || *d.Classification != *filter.Classification {
				return false
			}
		}
		return true
	})
}

// ListActive returns the non-archived document pool the matching and
// promotion operations work over.
func (s *Service) ListActive(ctx context.Context) ([]*MedicalDocument, error) {
	return s.repo.Find(ctx, func(d *MedicalDocument) bool { return !d.Archived() })
}

// SetOverride records a manual payment correction on the document. The
// override wins over every detected amount from then on.
func (s *Service) SetOverride(ctx context.Context, id uuid.UUID, input SetOverrideInput) (*MedicalDocument, error) {
	if input.Amount <= 0 {
		return nil, apperr.Validation("override amount must be positive")
	}
	if input.Currency == "" {
		return nil, apperr.Validation("override currency is required")
	}

	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", id)
	}

	now := time.Now().UTC()
	doc.PaymentOverride = &PaymentOverride{
		Amount:   input.Amount,
		Currency: input.Currency,
		Note:     input.Note,
		SetAt:    now,
	}
	doc.UpdatedAt = now
	return s.repo.Save(ctx, doc)
}

func (s *Service) ClearOverride(ctx context.Context, id uuid.UUID) (*MedicalDocument, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", id)
	}

	doc.PaymentOverride = nil
	doc.UpdatedAt = time.Now().UTC()
	return s.repo.Save(ctx, doc)
}

func (s *Service) Archive(ctx context.Context, id uuid.UUID) (*MedicalDocument, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", id)
	}
	if doc.Archived() {
		return doc, nil
	}

	now := time.Now().UTC()
	doc.ArchivedAt = &now
	doc.UpdatedAt = now
	return s.repo.Save(ctx, doc)
}

func (s *Service) Unarchive(ctx context.Context, id uuid.UUID) (*MedicalDocument, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", id)
	}

	doc.ArchivedAt = nil
	doc.UpdatedAt = time.Now().UTC()
	return s.repo.Save(ctx, doc)
}

// EvidenceGroup computes the document's evidence group over the active pool
// together with the group's resolved payment.
func (s *Service) EvidenceGroup(ctx context.Context, id uuid.UUID) (*EvidenceGroup, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", id)
	}
	if doc.Archived() {
		return nil, apperr.Validation("document %s is archived", id)
	}

	pool, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	group := GroupEvidence(doc, pool)
	payment, primary := s.resolver.ResolveGroup(group)
	return &EvidenceGroup{Documents: group, Payment: payment, PrimaryDocumentID: primary}, nil
}

// UpsertScanned is the ingestion write path: documents are keyed by the
// collaborator-supplied fingerprint so repeated scans update rather than
// duplicate. Returns whether a new document was created.
func (s *Service) UpsertScanned(ctx context.Context, input CreateDocumentInput) (*MedicalDocument, bool, error) {
	if input.Fingerprint == nil || *input.Fingerprint == "" {
		doc, err := s.Create(ctx, input)
		return doc, err == nil, err
	}

	existing, err := s.repo.FindByIndex(ctx, IndexFingerprint, *input.Fingerprint)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		doc, err := s.Create(ctx, input)
		return doc, err == nil, err
	}

	if err := validateAmounts(input.DetectedAmounts); err != nil {
		return nil, false, err
	}
	existing.Title = input.Title
	existing.Provider = input.Provider
	existing.DocumentDate = input.DocumentDate
	existing.DetectedAmounts = input.DetectedAmounts
	existing.UpdatedAt = time.Now().UTC()
	doc, err := s.repo.Save(ctx, existing)
	return doc, false, err
}

func validateAmounts(amounts []DetectedAmount) error {
	for i, a := range amounts {
		if a.Value < 0 {
			return apperr.Validation("detected amount %d: value must not be negative", i)
		}
		if a.Currency == "" {
			return apperr.Validation("detected amount %d: currency is required", i)
		}
		if a.Confidence < 0 || a.Confidence > 100 {
			return apperr.Validation("detected amount %d: confidence must be between 0 and 100", i)
		}
	}
	return nil
}
