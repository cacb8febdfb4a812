// Package scheduler drives the periodic background pipeline: ingest evidence,
// reconcile it against insurer claims, and push ready claims out. Every job
// carries a run guard, so a second invocation of the same job while one is
// active is rejected rather than queued.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/recoup/recoup/internal/domain/assignment"
	"github.com/recoup/recoup/internal/domain/claim"
	"github.com/recoup/recoup/internal/domain/draftclaim"
	"github.com/recoup/recoup/internal/platform/apperr"
	"github.com/recoup/recoup/internal/platform/ingest"
	"github.com/recoup/recoup/internal/platform/submit"
)

// Job identifies one guarded unit of background work. The same jobs back the
// scheduled loops and the manual trigger endpoints.
type Job string

const (
	JobScanDocuments  Job = "scan_documents"
	JobScanCalendar   Job = "scan_calendar"
	JobSyncClaims     Job = "sync_claims"
	JobMatch          Job = "match"
	JobGenerateDrafts Job = "generate_drafts"
	JobSubmitReady    Job = "submit_ready"
)

// Jobs lists every known job in pipeline order.
func Jobs() []Job {
	return []Job{JobScanDocuments, JobScanCalendar, JobSyncClaims, JobMatch, JobGenerateDrafts, JobSubmitReady}
}

func (j Job) Valid() bool {
	switch j {
	case JobScanDocuments, JobScanCalendar, JobSyncClaims, JobMatch, JobGenerateDrafts, JobSubmitReady:
		return true
	}
	return false
}

func (j Job) Label() string {
	switch j {
	case JobScanDocuments:
		return "Document scan"
	case JobScanCalendar:
		return "Calendar scan"
	case JobSyncClaims:
		return "Insurer claim sync"
	case JobMatch:
		return "Document-claim matching"
	case JobGenerateDrafts:
		return "Draft generation"
	case JobSubmitReady:
		return "Claim submission"
	}
	return string(j)
}

// RunGuard serializes runs of one job. TryAcquire wins only when no run is
// active; overlapping callers are turned away, never queued.
type RunGuard struct {
	active atomic.Bool
}

func (g *RunGuard) TryAcquire() bool { return g.active.CompareAndSwap(false, true) }
func (g *RunGuard) Release()         { g.active.Store(false) }
func (g *RunGuard) Active() bool     { return g.active.Load() }

// Config sets the loop intervals and the window scheduled draft generation
// scans over.
type Config struct {
	IngestInterval    time.Duration
	ReconcileInterval time.Duration
	SubmitInterval    time.Duration
	GenerationWindow  draftclaim.Window
}

// Scheduler owns the background loops and the guarded entry points the ops
// endpoints call.
type Scheduler struct {
	ingest   *ingest.Service
	matching *assignment.Service
	drafts   *draftclaim.Service
	outbox   *submit.Service
	cfg      Config
	logger   zerolog.Logger
	guards   map[Job]*RunGuard
}

func New(
	ingestSvc *ingest.Service,
	matching *assignment.Service,
	drafts *draftclaim.Service,
	outbox *submit.Service,
	cfg Config,
	logger zerolog.Logger,
) *Scheduler {
	guards := make(map[Job]*RunGuard, len(Jobs()))
	for _, j := range Jobs() {
		guards[j] = &RunGuard{}
	}
	return &Scheduler{
		ingest:   ingestSvc,
		matching: matching,
		drafts:   drafts,
		outbox:   outbox,
		cfg:      cfg,
		logger:   logger,
		guards:   guards,
	}
}

// Active reports which jobs currently hold their guard.
func (s *Scheduler) Active() map[Job]bool {
	out := make(map[Job]bool, len(s.guards))
	for job, g := range s.guards {
		out[job] = g.Active()
	}
	return out
}

// runGuarded wraps fn in the job's guard. An already-active job yields a
// conflict without invoking fn.
func runGuarded[T any](s *Scheduler, job Job, fn func() (T, error)) (T, error) {
	g := s.guards[job]
	if !g.TryAcquire() {
		var zero T
		return zero, apperr.Conflict("%s is already running", job.Label())
	}
	defer g.Release()
	return fn()
}

// ScanDocuments runs the mailbox scan now.
func (s *Scheduler) ScanDocuments(ctx context.Context) (*ingest.ScanResult, error) {
	return runGuarded(s, JobScanDocuments, func() (*ingest.ScanResult, error) {
		return s.ingest.ScanDocuments(ctx)
	})
}

// ScanCalendar runs the appointment scan now.
func (s *Scheduler) ScanCalendar(ctx context.Context) (*ingest.ScanResult, error) {
	return runGuarded(s, JobScanCalendar, func() (*ingest.ScanResult, error) {
		return s.ingest.ScanCalendar(ctx)
	})
}

// SyncClaims pulls the insurer claim list now.
func (s *Scheduler) SyncClaims(ctx context.Context) (*claim.SyncResult, error) {
	return runGuarded(s, JobSyncClaims, func() (*claim.SyncResult, error) {
		return s.ingest.SyncClaims(ctx)
	})
}

// RunMatching rescores the document/claim pool now.
func (s *Scheduler) RunMatching(ctx context.Context) (*assignment.MatchRunResult, error) {
	return runGuarded(s, JobMatch, func() (*assignment.MatchRunResult, error) {
		return s.matching.RunMatching(ctx)
	})
}

// GenerateDrafts runs draft generation over the given window now.
func (s *Scheduler) GenerateDrafts(ctx context.Context, window draftclaim.Window) (*draftclaim.GenerateResult, error) {
	return runGuarded(s, JobGenerateDrafts, func() (*draftclaim.GenerateResult, error) {
		return s.drafts.Generate(ctx, window, time.Now().UTC())
	})
}

// SubmitReady drains the ready claim queue now.
func (s *Scheduler) SubmitReady(ctx context.Context) (*submit.Result, error) {
	return runGuarded(s, JobSubmitReady, func() (*submit.Result, error) {
		return s.outbox.SubmitReady(ctx)
	})
}

// Start runs the scheduled loops until ctx is cancelled. One full pipeline
// pass runs immediately at startup. A zero interval disables the loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cfg.IngestInterval > 0 {
		s.runIngestPass(ctx)
	}
	if s.cfg.ReconcileInterval > 0 {
		s.runReconcilePass(ctx)
	}

	ingestC, stopIngest := tickerChan(s.cfg.IngestInterval)
	defer stopIngest()
	reconcileC, stopReconcile := tickerChan(s.cfg.ReconcileInterval)
	defer stopReconcile()
	submitC, stopSubmit := tickerChan(s.cfg.SubmitInterval)
	defer stopSubmit()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ingestC:
			s.runIngestPass(ctx)
		case <-reconcileC:
			s.runReconcilePass(ctx)
		case <-submitC:
			s.runScheduled(ctx, JobSubmitReady, func(ctx context.Context) error {
				_, err := s.SubmitReady(ctx)
				return err
			})
		}
	}
}

// tickerChan returns a ticking channel and its stop function. A zero or
// negative interval yields a nil channel, which never fires in a select.
func tickerChan(interval time.Duration) (<-chan time.Time, func()) {
	if interval <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

func (s *Scheduler) runIngestPass(ctx context.Context) {
	s.runScheduled(ctx, JobScanDocuments, func(ctx context.Context) error {
		_, err := s.ScanDocuments(ctx)
		return err
	})
	s.runScheduled(ctx, JobScanCalendar, func(ctx context.Context) error {
		_, err := s.ScanCalendar(ctx)
		return err
	})
	s.runScheduled(ctx, JobSyncClaims, func(ctx context.Context) error {
		_, err := s.SyncClaims(ctx)
		return err
	})
}

func (s *Scheduler) runReconcilePass(ctx context.Context) {
	s.runScheduled(ctx, JobMatch, func(ctx context.Context) error {
		_, err := s.RunMatching(ctx)
		return err
	})
	s.runScheduled(ctx, JobGenerateDrafts, func(ctx context.Context) error {
		_, err := s.GenerateDrafts(ctx, s.cfg.GenerationWindow)
		return err
	})
}

// runScheduled executes one job invocation from the background loop. A held
// guard downgrades to a skip, upstream failures are logged, and a panicking
// collaborator never takes the loop down.
func (s *Scheduler) runScheduled(ctx context.Context, job Job, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("job", string(job)).Msg("scheduled job panicked")
		}
	}()

	err := fn(ctx)
	switch {
	case err == nil:
	case apperr.IsConflict(err):
		s.logger.Info().Str("job", string(job)).Msg("previous run still active, skipping")
	default:
		s.logger.Error().Err(err).Str("job", string(job)).Msg("scheduled job failed")
	}
}
