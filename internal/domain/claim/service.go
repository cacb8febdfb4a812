package claim

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recoup/recoup/internal/platform/apperr"
)

// Service manages both claim representations: insurer-scraped records (read
// and synced, never driven through the lifecycle) and locally-originated
// claims (driven through the lifecycle state machine).
type Service struct {
	scraped ScrapedRepository
	claims  Repository
}

func NewService(scraped ScrapedRepository, claims Repository) *Service {
	return &Service{scraped: scraped, claims: claims}
}

// SyncResult summarizes one scraped-claim sync run.
type SyncResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// SyncScraped upserts scraper output keyed by the insurer's claim identifier.
// Unchanged records are not rewritten.
func (s *Service) SyncScraped(ctx context.Context, inputs []SyncScrapedClaimInput) (SyncResult, error) {
	var res SyncResult
	for _, in := range inputs {
		if in.ExternalID == "" {
			return res, apperr.Validation("scraped claim external_id is required")
		}
		if in.Currency == "" {
			return res, apperr.Validation("scraped claim %s: currency is required", in.ExternalID)
		}
		if in.Status == "" {
			in.Status = ScrapedPending
		}
		if !in.Status.Valid() {
			return res, apperr.Validation("scraped claim %s: invalid status %s", in.ExternalID, in.Status)
		}

		existing, err := s.scraped.FindByIndex(ctx, IndexExternalID, in.ExternalID)
		if err != nil {
			return res, err
		}

		now := time.Now().UTC()
		if existing == nil {
			sc := &ScrapedClaim{
				ID:            uuid.New(),
				ExternalID:    in.ExternalID,
				SubmissionID:  in.SubmissionID,
				MemberRef:     in.MemberRef,
				ProviderName:  in.ProviderName,
				Amount:        in.Amount,
				Currency:      in.Currency,
				TreatmentDate: in.TreatmentDate,
				Status:        in.Status,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if _, err := s.scraped.Save(ctx, sc); err != nil {
				return res, err
			}
			res.Created++
			continue
		}

		if scrapedMatchesInput(existing, in) {
			res.Unchanged++
			continue
		}

		existing.SubmissionID = in.SubmissionID
		existing.MemberRef = in.MemberRef
		existing.ProviderName = in.ProviderName
		existing.Amount = in.Amount
		existing.Currency = in.Currency
		existing.TreatmentDate = in.TreatmentDate
		existing.Status = in.Status
		existing.UpdatedAt = now
		if _, err := s.scraped.Save(ctx, existing); err != nil {
			return res, err
		}
		res.Updated++
	}
	return res, nil
}

func (s *Service) GetScraped(ctx context.Context, id uuid.UUID) (*ScrapedClaim, error) {
	return s.scraped.Get(ctx, id)
}

func (s *Service) ListScraped(ctx context.Context, status *ScrapedClaimStatus) ([]*ScrapedClaim, error) {
	if status == nil {
		return s.scraped.GetAll(ctx)
	}
	if !status.Valid() {
		return nil, apperr.Validation("invalid scraped claim status: %s", *status)
	}
	return s.scraped.FindAllByIndex(ctx, IndexStatus, *status)
}

// AllScraped returns the full insurer claim pool the matcher scores against.
func (s *Service) AllScraped(ctx context.Context) ([]*ScrapedClaim, error) {
	return s.scraped.GetAll(ctx)
}

func (s *Service) Create(ctx context.Context, input CreateClaimInput) (*Claim, error) {
	if input.MemberRef == "" {
		return nil, apperr.Validation("member_ref is required")
	}
	if input.Amount <= 0 {
		return nil, apperr.Validation("claim amount must be positive")
	}
	if input.Currency == "" {
		return nil, apperr.Validation("claim currency is required")
	}

	now := time.Now().UTC()
	c := &Claim{
		ID:              uuid.New(),
		MemberRef:       input.MemberRef,
		ProviderName:    input.ProviderName,
		Amount:          input.Amount,
		Currency:        input.Currency,
		TreatmentDate:   input.TreatmentDate,
		DraftClaimID:    input.DraftClaimID,
		IllnessID:       input.IllnessID,
		Status:          StatusDraft,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return s.claims.Save(ctx, c)
}

// Update edits a claim that has not left draft status.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateClaimInput) (*Claim, error) {
	c, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("claim %s not found", id)
	}
	if c.Status != StatusDraft {
		return nil, apperr.Validation("claim %s is %s; only draft claims can be edited", id, c.Status)
	}

	if input.MemberRef != nil {
		c.MemberRef = *input.MemberRef
	}
	if input.ProviderName != nil {
		c.ProviderName = input.ProviderName
	}
	if input.Amount != nil {
		if *input.Amount <= 0 {
			return nil, apperr.Validation("claim amount must be positive")
		}
		c.Amount = *input.Amount
	}
	if input.Currency != nil {
		if *input.Currency == "" {
			return nil, apperr.Validation("claim currency is required")
		}
		c.Currency = *input.Currency
	}
	if input.TreatmentDate != nil {
		c.TreatmentDate = input.TreatmentDate
	}
	if input.IllnessID != nil {
		c.IllnessID = input.IllnessID
	}
	c.UpdatedAt = time.Now().UTC()
	return s.claims.Save(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.claims.Get(ctx, id)
}

// FindByDraft returns the claim created from a draft, or nil when the draft
// was never converted.
func (s *Service) FindByDraft(ctx context.Context, draftID uuid.UUID) (*Claim, error) {
	matches, err := s.claims.Find(ctx, func(c *Claim) bool {
		return c.DraftClaimID != nil && *c.DraftClaimID == draftID
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (s *Service) List(ctx context.Context, status *ClaimStatus) ([]*Claim, error) {
	if status == nil {
		return s.claims.GetAll(ctx)
	}
	if !status.Valid() {
		return nil, apperr.Validation("invalid claim status: %s", *status)
	}
	return s.claims.FindAllByIndex(ctx, IndexStatus, *status)
}

// ListReady returns the claims the submission job should send out.
func (s *Service) ListReady(ctx context.Context) ([]*Claim, error) {
	return s.claims.FindAllByIndex(ctx, IndexStatus, StatusReady)
}

// Transition moves a claim along the lifecycle. Both user actions and
// collaborator status reports funnel through here, so every persisted status
// change has passed the transition table.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to ClaimStatus) (*Claim, error) {
	c, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("claim %s not found", id)
	}
	if err := ValidateTransition(c.Status, to); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c.Status = to
	c.StatusChangedAt = now
	c.UpdatedAt = now
	if to == StatusSubmitted && c.SubmittedAt == nil {
		c.SubmittedAt = &now
	}
	return s.claims.Save(ctx, c)
}

// RecordSubmission marks a ready claim as submitted and stores the submission
// id the collaborator returned.
func (s *Service) RecordSubmission(ctx context.Context, id uuid.UUID, submissionID string) (*Claim, error) {
	c, err := s.claims.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("claim %s not found", id)
	}
	if err := ValidateTransition(c.Status, StatusSubmitted); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c.Status = StatusSubmitted
	c.StatusChangedAt = now
	c.UpdatedAt = now
	c.SubmittedAt = &now
	if submissionID != "" {
		c.SubmissionID = &submissionID
	}
	return s.claims.Save(ctx, c)
}

func scrapedMatchesInput(existing *ScrapedClaim, in SyncScrapedClaimInput) bool {
	return equalStringPtr(existing.SubmissionID, in.SubmissionID) &&
		existing.MemberRef == in.MemberRef &&
		equalStringPtr(existing.ProviderName, in.ProviderName) &&
		existing.Amount == in.Amount &&
		existing.Currency == in.Currency &&
		equalTimePtr(existing.TreatmentDate, in.TreatmentDate) &&
		existing.Status == in.Status
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
