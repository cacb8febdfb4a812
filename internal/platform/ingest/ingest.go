// Package ingest is the seam to the evidence-producing collaborators: the
// mailbox OCR pipeline, the calendar feed, and the insurer portal scraper.
// The collaborators live outside this process; here they are interfaces, and
// the service folds whatever they deliver into the document and claim stores.
package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/recoup/recoup/internal/domain/claim"
	"github.com/recoup/recoup/internal/domain/document"
	"github.com/recoup/recoup/internal/platform/apperr"
)

// DocumentSource delivers newly scanned evidence documents (OCR'd emails and
// attachments).
type DocumentSource interface {
	FetchDocuments(ctx context.Context) ([]document.CreateDocumentInput, error)
}

// CalendarSource delivers appointment entries as calendar-typed documents.
type CalendarSource interface {
	FetchAppointments(ctx context.Context) ([]document.CreateDocumentInput, error)
}

// ClaimSource delivers the insurer's current claim list.
type ClaimSource interface {
	FetchClaims(ctx context.Context) ([]claim.SyncScrapedClaimInput, error)
}

// NoSource is the stand-in wired when an integration is not configured. Every
// fetch returns empty, so scans complete as no-ops.
type NoSource struct{}

func (NoSource) FetchDocuments(ctx context.Context) ([]document.CreateDocumentInput, error) {
	return nil, nil
}

func (NoSource) FetchAppointments(ctx context.Context) ([]document.CreateDocumentInput, error) {
	return nil, nil
}

func (NoSource) FetchClaims(ctx context.Context) ([]claim.SyncScrapedClaimInput, error) {
	return nil, nil
}

// ScanResult summarizes one scan pass.
type ScanResult struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Service runs scans against the configured sources and writes the results
// through the domain services.
type Service struct {
	docs      *document.Service
	claims    *claim.Service
	documents DocumentSource
	calendar  CalendarSource
	insurer   ClaimSource
	logger    zerolog.Logger
}

func NewService(
	docs *document.Service,
	claims *claim.Service,
	documents DocumentSource,
	calendar CalendarSource,
	insurer ClaimSource,
	logger zerolog.Logger,
) *Service {
	return &Service{
		docs:      docs,
		claims:    claims,
		documents: documents,
		calendar:  calendar,
		insurer:   insurer,
		logger:    logger,
	}
}

// ScanDocuments pulls pending evidence from the mailbox pipeline and upserts
// it into the document pool. Individual bad records are counted and logged,
// not fatal; a failing source is an upstream error.
func (s *Service) ScanDocuments(ctx context.Context) (*ScanResult, error) {
	inputs, err := s.documents.FetchDocuments(ctx)
	if err != nil {
		return nil, apperr.Upstream(err, "document source failed")
	}
	return s.upsertAll(ctx, inputs), nil
}

// ScanCalendar pulls appointment entries. Entries are forced to the calendar
// source type regardless of what the feed claims.
func (s *Service) ScanCalendar(ctx context.Context) (*ScanResult, error) {
	inputs, err := s.calendar.FetchAppointments(ctx)
	if err != nil {
		return nil, apperr.Upstream(err, "calendar source failed")
	}
	for i := range inputs {
		inputs[i].SourceType = document.SourceCalendar
	}
	return s.upsertAll(ctx, inputs), nil
}

// SyncClaims pulls the insurer claim list and reconciles it into the scraped
// claim store.
func (s *Service) SyncClaims(ctx context.Context) (*claim.SyncResult, error) {
	inputs, err := s.insurer.FetchClaims(ctx)
	if err != nil {
		return nil, apperr.Upstream(err, "insurer claim source failed")
	}
	res, err := s.claims.SyncScraped(ctx, inputs)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Service) upsertAll(ctx context.Context, inputs []document.CreateDocumentInput) *ScanResult {
	res := &ScanResult{Fetched: len(inputs)}
	for _, input := range inputs {
		_, created, err := s.docs.UpsertScanned(ctx, input)
		if err != nil {
			res.Failed++
			s.logger.Warn().Err(err).Str("source_type", string(input.SourceType)).Msg("skipping unusable scanned document")
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res
}
