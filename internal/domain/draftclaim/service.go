package draftclaim

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/recoup/recoup/internal/domain/claim"
	"github.com/recoup/recoup/internal/domain/document"
	"github.com/recoup/recoup/internal/platform/apperr"
	"github.com/recoup/recoup/internal/platform/storage"
)

// Window bounds how far back draft generation looks for evidence.
type Window string

const (
	WindowForever   Window = "forever"
	WindowLastMonth Window = "last_month"
	WindowLastWeek  Window = "last_week"
)

func (w Window) Valid() bool {
	switch w {
	case WindowForever, WindowLastMonth, WindowLastWeek:
		return true
	}
	return false
}

// Cutoff returns the lower bound on document dates, or nil when the window is
// unbounded.
func (w Window) Cutoff(asOf time.Time) *time.Time {
	switch w {
	case WindowLastMonth:
		t := asOf.AddDate(0, -1, 0)
		return &t
	case WindowLastWeek:
		t := asOf.AddDate(0, 0, -7)
		return &t
	}
	return nil
}

// AssignmentChecker reports whether a document already has a candidate or
// confirmed claim link. The assignment service satisfies it.
type AssignmentChecker interface {
	HasBlockingAssignment(ctx context.Context, documentID uuid.UUID) (bool, error)
}

// Claims is the slice of the claim service that draft conversion uses.
type Claims interface {
	Create(ctx context.Context, input claim.CreateClaimInput) (*claim.Claim, error)
	FindByDraft(ctx context.Context, draftID uuid.UUID) (*claim.Claim, error)
}

// conflictRetries bounds how often a merge is retried after a concurrent
// writer advanced the draft's record version.
const conflictRetries = 3

// Service generates draft claims from unlinked evidence and expands them as
// more evidence arrives.
type Service struct {
	repo        Repository
	docs        document.Repository
	resolver    *document.PaymentResolver
	proofs      ProofResolver
	assignments AssignmentChecker
	claims      Claims
	memberRef   string
}

func NewService(
	repo Repository,
	docs document.Repository,
	resolver *document.PaymentResolver,
	proofs ProofResolver,
	assignments AssignmentChecker,
	claims Claims,
	memberRef string,
) *Service {
	return &Service{
		repo:        repo,
		docs:        docs,
		resolver:    resolver,
		proofs:      proofs,
		assignments: assignments,
		claims:      claims,
		memberRef:   memberRef,
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*DraftClaim, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status *DraftStatus) ([]*DraftClaim, error) {
	if status == nil {
		return s.repo.GetAll(ctx)
	}
	if !status.Valid() {
		return nil, apperr.Validation("invalid draft status: %s", *status)
	}
	return s.repo.FindAllByIndex(ctx, IndexStatus, *status)
}

// GenerateResult summarizes one generation run.
type GenerateResult struct {
	Window  Window        `json:"window"`
	AsOf    time.Time     `json:"as_of"`
	Created int           `json:"created"`
	Drafts  []*DraftClaim `json:"drafts"`
}

// Generate scans the active pool for documents that carry a payment signal,
// fall inside the window, and are linked to nothing yet (no candidate or
// confirmed assignment, no draft), and produces one draft per uncovered
// evidence group. Running twice over the same window with no new documents
// creates nothing on the second run.
func (s *Service) Generate(ctx context.Context, window Window, asOf time.Time) (*GenerateResult, error) {
	if !window.Valid() {
		return nil, apperr.Validation("invalid generation window: %s", window)
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	cutoff := window.Cutoff(asOf)

	pool, err := s.activePool(ctx)
	if err != nil {
		return nil, err
	}

	res := &GenerateResult{Window: window, AsOf: asOf, Drafts: []*DraftClaim{}}
	covered := make(map[uuid.UUID]bool)

	for _, doc := range pool {
		if covered[doc.ID] || !doc.HasPaymentSignal() {
			continue
		}
		if cutoff != nil && doc.EvidenceDate().Before(*cutoff) {
			continue
		}

		blocked, err := s.assignments.HasBlockingAssignment(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if blocked {
			continue
		}

		existing, err := s.repo.FindByDocumentID(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			continue
		}

		out, err := s.promoteDocument(ctx, doc, pool)
		if err != nil {
			return nil, err
		}
		for _, id := range out.Draft.DocumentIDs {
			covered[id] = true
		}
		if out.Created {
			res.Created++
			res.Drafts = append(res.Drafts, out.Draft)
		}
	}
	return res, nil
}

// PromoteResult reports what a promotion did: created a new draft, expanded
// an existing one, or found everything already in place.
type PromoteResult struct {
	Draft    *DraftClaim `json:"draft"`
	Created  bool        `json:"created"`
	Expanded bool        `json:"expanded"`
}

// Promote expands a selected document into its evidence group and merges the
// group into an existing draft or creates a new one. Safe to invoke
// repeatedly on the same or overlapping selections.
func (s *Service) Promote(ctx context.Context, documentID uuid.UUID) (*PromoteResult, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", documentID)
	}
	if doc.Archived() {
		return nil, apperr.Validation("document %s is archived", documentID)
	}

	pool, err := s.activePool(ctx)
	if err != nil {
		return nil, err
	}
	return s.promoteDocument(ctx, doc, pool)
}

func (s *Service) promoteDocument(ctx context.Context, selected *document.MedicalDocument, pool []*document.MedicalDocument) (*PromoteResult, error) {
	group := document.GroupEvidence(selected, pool)
	pay, primaryID := s.resolver.ResolveGroup(group)

	primary := selected
	if primaryID != nil {
		for _, d := range group {
			if d.ID == *primaryID {
				primary = d
				break
			}
		}
	}

	proofIDs := s.proofs.Resolve(pool, primary, pay)
	proofIDs = sanitizeProofs(proofIDs, primary.ID)

	groupIDs := make([]uuid.UUID, 0, len(group))
	for _, d := range group {
		groupIDs = append(groupIDs, d.ID)
	}

	for attempt := 0; ; attempt++ {
		existing, err := s.findOverlapping(ctx, groupIDs)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			draft := newDraft(primary, pay, groupIDs, proofIDs)
			saved, err := s.repo.Save(ctx, draft)
			if err != nil {
				return nil, err
			}
			return &PromoteResult{Draft: saved, Created: true}, nil
		}

		grew := existing.attachDocuments(groupIDs)
		if existing.attachDocuments(proofIDs) {
			grew = true
		}
		grewProofs := existing.attachProofs(proofIDs)
		if !grew && !grewProofs {
			return &PromoteResult{Draft: existing}, nil
		}

		existing.UpdatedAt = time.Now().UTC()
		saved, err := s.repo.Save(ctx, existing)
		if errors.Is(err, storage.ErrVersionConflict) {
			if attempt >= conflictRetries {
				return nil, apperr.Conflict("draft %s was modified concurrently", existing.ID)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return &PromoteResult{Draft: saved, Expanded: true}, nil
	}
}

// findOverlapping returns the first stored draft whose document set
// intersects ids.
func (s *Service) findOverlapping(ctx context.Context, ids []uuid.UUID) (*DraftClaim, error) {
	for _, id := range ids {
		matches, err := s.repo.FindByDocumentID(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return nil, nil
}

func newDraft(primary *document.MedicalDocument, pay document.Payment, groupIDs, proofIDs []uuid.UUID) *DraftClaim {
	now := time.Now().UTC()
	d := &DraftClaim{
		ID:                uuid.New(),
		Status:            DraftPending,
		PrimaryDocumentID: primary.ID,
		Payment:           pay,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	d.attachDocuments(groupIDs)
	d.attachDocuments(proofIDs)
	d.attachProofs(proofIDs)
	if primary.DocumentDate != nil {
		v := *primary.DocumentDate
		src := DateFromDocument
		d.TreatmentDate = &v
		d.TreatmentDateSource = &src
	}
	return d
}

// sanitizeProofs enforces the proof-set guarantees regardless of what the
// heuristic returned: the primary document is never a proof of itself, and
// the set holds no duplicates.
func sanitizeProofs(ids []uuid.UUID, primaryID uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range ids {
		if id == uuid.Nil || id == primaryID || containsID(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// AcceptDraftInput finalizes a pending draft for submission.
type AcceptDraftInput struct {
	IllnessID *uuid.UUID `json:"illness_id,omitempty"`
}

func (s *Service) Accept(ctx context.Context, id uuid.UUID, input AcceptDraftInput) (*DraftClaim, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("draft claim %s not found", id)
	}
	if d.Status.Terminal() {
		return nil, apperr.Validation("draft claim %s is already %s", id, d.Status)
	}
	if d.Payment.Amount <= 0 {
		return nil, apperr.Validation("draft claim %s has no payment amount", id)
	}

	d.Status = DraftAccepted
	if input.IllnessID != nil {
		d.IllnessID = input.IllnessID
	}
	d.UpdatedAt = time.Now().UTC()
	saved, err := s.repo.Save(ctx, d)
	if errors.Is(err, storage.ErrVersionConflict) {
		return nil, apperr.Conflict("draft claim %s was modified concurrently", id)
	}
	return saved, err
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*DraftClaim, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("draft claim %s not found", id)
	}
	if d.Status.Terminal() {
		return nil, apperr.Validation("draft claim %s is already %s", id, d.Status)
	}

	d.Status = DraftRejected
	d.UpdatedAt = time.Now().UTC()
	saved, err := s.repo.Save(ctx, d)
	if errors.Is(err, storage.ErrVersionConflict) {
		return nil, apperr.Conflict("draft claim %s was modified concurrently", id)
	}
	return saved, err
}

// ConvertDraftInput turns an accepted draft into a lifecycle-managed claim.
type ConvertDraftInput struct {
	MemberRef *string `json:"member_ref,omitempty"`
}

// ConvertToClaim creates a claim from an accepted draft. Converting the same
// draft again returns the claim created the first time.
func (s *Service) ConvertToClaim(ctx context.Context, id uuid.UUID, input ConvertDraftInput) (*claim.Claim, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("draft claim %s not found", id)
	}
	if d.Status != DraftAccepted {
		return nil, apperr.Validation("draft claim %s is %s; only accepted drafts convert to claims", id, d.Status)
	}

	existing, err := s.claims.FindByDraft(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	memberRef := s.memberRef
	if input.MemberRef != nil && *input.MemberRef != "" {
		memberRef = *input.MemberRef
	}
	if memberRef == "" {
		return nil, apperr.Validation("member_ref is required to convert a draft")
	}

	return s.claims.Create(ctx, claim.CreateClaimInput{
		MemberRef:     memberRef,
		Amount:        d.Payment.Amount,
		Currency:      d.Payment.Currency,
		TreatmentDate: d.TreatmentDate,
		DraftClaimID:  &d.ID,
		IllnessID:     d.IllnessID,
	})
}

// AttachAppointment links a calendar document to a draft as treatment-date
// evidence. The appointment date becomes the draft's treatment date.
func (s *Service) AttachAppointment(ctx context.Context, draftID, calendarDocID uuid.UUID) (*DraftClaim, error) {
	d, err := s.repo.Get(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("draft claim %s not found", draftID)
	}
	if d.Status.Terminal() {
		return nil, apperr.Validation("draft claim %s is already %s", draftID, d.Status)
	}

	doc, err := s.docs.Get(ctx, calendarDocID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", calendarDocID)
	}
	if doc.SourceType != document.SourceCalendar {
		return nil, apperr.Validation("document %s is not a calendar entry", calendarDocID)
	}
	if doc.Archived() {
		return nil, apperr.Validation("document %s is archived", calendarDocID)
	}
	if doc.DocumentDate == nil {
		return nil, apperr.Validation("calendar document %s has no appointment date", calendarDocID)
	}

	v := *doc.DocumentDate
	src := DateFromCalendar
	d.TreatmentDate = &v
	d.TreatmentDateSource = &src
	d.attachDocuments([]uuid.UUID{doc.ID})
	d.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.Save(ctx, d)
	if errors.Is(err, storage.ErrVersionConflict) {
		return nil, apperr.Conflict("draft claim %s was modified concurrently", draftID)
	}
	return saved, err
}

func (s *Service) activePool(ctx context.Context) ([]*document.MedicalDocument, error) {
	return s.docs.Find(ctx, func(d *document.MedicalDocument) bool { return !d.Archived() })
}
