package illness

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recoup/recoup/internal/platform/apperr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, input CreateIllnessInput) (*Illness, error) {
	if input.Label == "" {
		return nil, apperr.Validation("illness label is required")
	}

	now := time.Now().UTC()
	ill := &Illness{
		ID:        uuid.New(),
		Label:     input.Label,
		Note:      input.Note,
		StartedAt: input.StartedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.repo.Save(ctx, ill)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateIllnessInput) (*Illness, error) {
	ill, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ill == nil {
		return nil, apperr.NotFound("illness %s not found", id)
	}

	if input.Label != nil {
		if *input.Label == "" {
			return nil, apperr.Validation("illness label is required")
		}
		ill.Label = *input.Label
	}
	if input.Note != nil {
		ill.Note = input.Note
	}
	if input.StartedAt != nil {
		ill.StartedAt = input.StartedAt
	}
	ill.UpdatedAt = time.Now().UTC()
	return s.repo.Save(ctx, ill)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Illness, error) {
	return s.repo.Get(ctx, id)
}

// List returns all illnesses, or only unresolved ones when activeOnly is set.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*Illness, error) {
	if !activeOnly {
		return s.repo.GetAll(ctx)
	}
	return s.repo.Find(ctx, func(i *Illness) bool { return !i.Resolved() })
}

// Resolve closes an illness. Resolving an already-resolved illness keeps the
// original resolution time.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (*Illness, error) {
	ill, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ill == nil {
		return nil, apperr.NotFound("illness %s not found", id)
	}
	if ill.Resolved() {
		return ill, nil
	}

	now := time.Now().UTC()
	ill.ResolvedAt = &now
	ill.UpdatedAt = now
	return s.repo.Save(ctx, ill)
}

func (s *Service) Reopen(ctx context.Context, id uuid.UUID) (*Illness, error) {
	ill, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ill == nil {
		return nil, apperr.NotFound("illness %s not found", id)
	}
	if !ill.Resolved() {
		return ill, nil
	}

	ill.ResolvedAt = nil
	ill.UpdatedAt = time.Now().UTC()
	return s.repo.Save(ctx, ill)
}

// Exists is the narrow lookup confirmation flows use before filing an
// assignment under an illness.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id)
}
