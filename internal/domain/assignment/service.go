package assignment

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/recoup/recoup/internal/domain/claim"
	"github.com/recoup/recoup/internal/domain/document"
	"github.com/recoup/recoup/internal/platform/apperr"
)

// IllnessChecker is the narrow illness lookup confirmation needs. The illness
// repository satisfies it.
type IllnessChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service persists scored links and drives them through human review.
type Service struct {
	repo      Repository
	scorer    *Scorer
	docs      document.Repository
	scraped   claim.ScrapedRepository
	resolver  *document.PaymentResolver
	illnesses IllnessChecker
}

func NewService(
	repo Repository,
	scorer *Scorer,
	docs document.Repository,
	scraped claim.ScrapedRepository,
	resolver *document.PaymentResolver,
	illnesses IllnessChecker,
) *Service {
	return &Service{
		repo:      repo,
		scorer:    scorer,
		docs:      docs,
		scraped:   scraped,
		resolver:  resolver,
		illnesses: illnesses,
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*DocumentClaimAssignment, error) {
	return s.repo.Get(ctx, id)
}

// ListFilter narrows assignment listings.
type ListFilter struct {
	Status     *AssignmentStatus
	DocumentID *uuid.UUID
	ClaimID    *uuid.UUID
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*DocumentClaimAssignment, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperr.Validation("invalid assignment status: %s", *filter.Status)
	}
	switch {
	case filter.DocumentID != nil:
		all, err := s.repo.FindAllByIndex(ctx, IndexDocumentID, *filter.DocumentID)
		if err != nil {
			return nil, err
		}
		return filterByStatus(all, filter.Status), nil
	case filter.ClaimID != nil:
		all, err := s.repo.FindAllByIndex(ctx, IndexClaimID, *filter.ClaimID)
		if err != nil {
			return nil, err
		}
		return filterByStatus(all, filter.Status), nil
	case filter.Status != nil:
		return s.repo.FindAllByIndex(ctx, IndexStatus, *filter.Status)
	default:
		return s.repo.GetAll(ctx)
	}
}

func filterByStatus(in []*DocumentClaimAssignment, status *AssignmentStatus) []*DocumentClaimAssignment {
	if status == nil {
		return in
	}
	out := make([]*DocumentClaimAssignment, 0, len(in))
	for _, a := range in {
		if a.Status == *status {
			out = append(out, a)
		}
	}
	return out
}

// CreateCandidate materializes a scored link in candidate state.
func (s *Service) CreateCandidate(ctx context.Context, documentID, claimID uuid.UUID, verdict MatchScore) (*DocumentClaimAssignment, error) {
	if verdict.Disqualified {
		return nil, apperr.Validation("disqualified match cannot become a candidate")
	}

	now := time.Now().UTC()
	a := &DocumentClaimAssignment{
		ID:          uuid.New(),
		DocumentID:  documentID,
		ClaimID:     claimID,
		Status:      StatusCandidate,
		Score:       verdict.Score,
		ReasonType:  verdict.ReasonType,
		Reason:      verdict.Reason,
		AmountMatch: verdict.AmountMatch,
		DateMatch:   verdict.DateMatch,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.repo.Save(ctx, a)
}

// CreateManual links a document to a claim by hand with a full score.
func (s *Service) CreateManual(ctx context.Context, input CreateManualAssignmentInput) (*DocumentClaimAssignment, error) {
	doc, err := s.docs.Get(ctx, input.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", input.DocumentID)
	}
	sc, err := s.scraped.Get(ctx, input.ClaimID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, apperr.NotFound("claim %s not found", input.ClaimID)
	}

	existing, err := s.repo.FindAllByIndex(ctx, IndexDocumentID, input.DocumentID)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		if a.ClaimID == input.ClaimID && a.Status != StatusRejected {
			return nil, apperr.Conflict("document %s is already linked to claim %s", input.DocumentID, input.ClaimID)
		}
	}

	now := time.Now().UTC()
	a := &DocumentClaimAssignment{
		ID:          uuid.New(),
		DocumentID:  input.DocumentID,
		ClaimID:     input.ClaimID,
		Status:      StatusCandidate,
		Score:       100,
		ReasonType:  ReasonManual,
		Reason:      "linked manually",
		ReviewNotes: input.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.repo.Save(ctx, a)
}

// Confirm files a candidate under an illness. The illness is mandatory.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, input ConfirmAssignmentInput) (*DocumentClaimAssignment, error) {
	if input.IllnessID == uuid.Nil {
		return nil, apperr.Validation("illness_id is required to confirm an assignment")
	}

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.NotFound("assignment %s not found", id)
	}
	if a.Status.Terminal() {
		return nil, apperr.Validation("assignment %s is already %s", id, a.Status)
	}

	ok, err := s.illnesses.Exists(ctx, input.IllnessID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Validation("illness %s does not exist", input.IllnessID)
	}

	now := time.Now().UTC()
	a.Status = StatusConfirmed
	a.IllnessID = &input.IllnessID
	a.ConfirmedAt = &now
	a.ConfirmedBy = input.ConfirmedBy
	if input.Notes != nil {
		a.ReviewNotes = input.Notes
	}
	a.UpdatedAt = now
	return s.repo.Save(ctx, a)
}

// Reject dismisses a candidate.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, input RejectAssignmentInput) (*DocumentClaimAssignment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.NotFound("assignment %s not found", id)
	}
	if a.Status.Terminal() {
		return nil, apperr.Validation("assignment %s is already %s", id, a.Status)
	}

	now := time.Now().UTC()
	a.Status = StatusRejected
	if input.Notes != nil {
		a.ReviewNotes = input.Notes
	}
	a.UpdatedAt = now
	return s.repo.Save(ctx, a)
}

// ClearCandidatesForDocument removes stale candidates before re-matching.
// Confirmed and rejected assignments are never touched.
func (s *Service) ClearCandidatesForDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	all, err := s.repo.FindAllByIndex(ctx, IndexDocumentID, documentID)
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, a := range all {
		if a.Status != StatusCandidate {
			continue
		}
		ok, err := s.repo.Delete(ctx, a.ID)
		if err != nil {
			return cleared, err
		}
		if ok {
			cleared++
		}
	}
	return cleared, nil
}

// HighConfidenceCandidates returns open candidates at or above minScore,
// best first.
func (s *Service) HighConfidenceCandidates(ctx context.Context, minScore int) ([]*DocumentClaimAssignment, error) {
	candidates, err := s.repo.FindAllByIndex(ctx, IndexStatus, StatusCandidate)
	if err != nil {
		return nil, err
	}

	out := make([]*DocumentClaimAssignment, 0, len(candidates))
	for _, a := range candidates {
		if a.Score >= minScore {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Stats summarizes the assignment pool.
type Stats struct {
	Total        int                      `json:"total"`
	ByStatus     map[AssignmentStatus]int `json:"by_status"`
	AverageScore float64                  `json:"average_score"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Total: len(all),
		ByStatus: map[AssignmentStatus]int{
			StatusCandidate: 0,
			StatusConfirmed: 0,
			StatusRejected:  0,
		},
	}
	sum := 0
	for _, a := range all {
		st.ByStatus[a.Status]++
		sum += a.Score
	}
	if len(all) > 0 {
		st.AverageScore = float64(sum) / float64(len(all))
	}
	return st, nil
}

// HasBlockingAssignment reports whether a document already has a candidate or
// confirmed link, which excludes it from draft generation.
func (s *Service) HasBlockingAssignment(ctx context.Context, documentID uuid.UUID) (bool, error) {
	all, err := s.repo.FindAllByIndex(ctx, IndexDocumentID, documentID)
	if err != nil {
		return false, err
	}
	for _, a := range all {
		if a.Status == StatusCandidate || a.Status == StatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

// MatchRunResult summarizes one matching run.
type MatchRunResult struct {
	DocumentsScanned  int `json:"documents_scanned"`
	ClaimsScanned     int `json:"claims_scanned"`
	CandidatesCleared int `json:"candidates_cleared"`
	CandidatesCreated int `json:"candidates_created"`
}

// RunMatching rescans the full document/claim pool. For every active
// non-calendar document with a payment signal and no confirmed link, stale
// candidates are cleared and every qualifying claim pairing is rematerialized.
// Re-running with unchanged inputs reproduces the same candidates.
func (s *Service) RunMatching(ctx context.Context) (*MatchRunResult, error) {
	docs, err := s.docs.Find(ctx, func(d *document.MedicalDocument) bool {
		return !d.Archived() && d.SourceType != document.SourceCalendar
	})
	if err != nil {
		return nil, err
	}
	claims, err := s.scraped.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	res := &MatchRunResult{ClaimsScanned: len(claims)}
	minScore := s.scorer.Thresholds().MinimumCandidateScore

	for _, doc := range docs {
		confirmed, err := s.hasConfirmedAssignment(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if confirmed {
			continue
		}

		res.DocumentsScanned++
		cleared, err := s.ClearCandidatesForDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		res.CandidatesCleared += cleared

		pay := s.resolver.Resolve(doc)
		if pay == nil {
			continue
		}

		for _, sc := range claims {
			verdict := s.scorer.Score(doc, *pay, sc)
			if !verdict.Qualifies(minScore) {
				continue
			}
			if _, err := s.CreateCandidate(ctx, doc.ID, sc.ID, verdict); err != nil {
				return nil, err
			}
			res.CandidatesCreated++
		}
	}
	return res, nil
}

// Documents with a confirmed link are settled and skipped by re-matching.
func (s *Service) hasConfirmedAssignment(ctx context.Context, documentID uuid.UUID) (bool, error) {
	all, err := s.repo.FindAllByIndex(ctx, IndexDocumentID, documentID)
	if err != nil {
		return false, err
	}
	for _, a := range all {
		if a.Status == StatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}
