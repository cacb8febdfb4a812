// Package submit is the seam to the insurer-portal submission collaborator.
// The portal automation runs outside this process; here it is a Submitter
// interface, and the service drains the ready queue through it.
package submit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/recoup/recoup/internal/domain/claim"
	"github.com/recoup/recoup/internal/platform/apperr"
)

// Submitter delivers one claim to the insurer portal and returns the portal's
// submission identifier.
type Submitter interface {
	Submit(ctx context.Context, c *claim.Claim) (string, error)
}

// Disabled is wired when no submission automation is configured. Every submit
// reports upstream, which the scheduler logs and skips past.
type Disabled struct{}

func (Disabled) Submit(ctx context.Context, c *claim.Claim) (string, error) {
	return "", apperr.Upstream(nil, "submission automation is not configured")
}

// Result summarizes one pass over the ready queue.
type Result struct {
	Ready     int `json:"ready"`
	Submitted int `json:"submitted"`
	Failed    int `json:"failed"`
}

// Service pushes ready claims through the configured submitter.
type Service struct {
	claims    *claim.Service
	submitter Submitter
	logger    zerolog.Logger
}

func NewService(claims *claim.Service, submitter Submitter, logger zerolog.Logger) *Service {
	return &Service{claims: claims, submitter: submitter, logger: logger}
}

// SubmitReady submits every claim in ready status and records the returned
// submission id, moving the claim to submitted. A failing claim is logged and
// left in ready for the next pass; it never aborts the batch.
func (s *Service) SubmitReady(ctx context.Context) (*Result, error) {
	ready, err := s.claims.ListReady(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Ready: len(ready)}
	for _, c := range ready {
		submissionID, err := s.submitter.Submit(ctx, c)
		if err != nil {
			res.Failed++
			s.logger.Warn().Err(err).Str("claim_id", c.ID.String()).Msg("claim submission failed")
			continue
		}
		if _, err := s.claims.RecordSubmission(ctx, c.ID, submissionID); err != nil {
			res.Failed++
			s.logger.Error().Err(err).Str("claim_id", c.ID.String()).Msg("failed to record submission")
			continue
		}
		res.Submitted++
	}
	return res, nil
}
