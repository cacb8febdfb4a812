package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/recoup/recoup/internal/domain/assignment"
	"github.com/recoup/recoup/internal/domain/claim"
	"github.com/recoup/recoup/internal/domain/document"
	"github.com/recoup/recoup/internal/domain/draftclaim"
	"github.com/recoup/recoup/internal/domain/illness"
	"github.com/recoup/recoup/internal/platform/apperr"
	"github.com/recoup/recoup/internal/platform/ingest"
	"github.com/recoup/recoup/internal/platform/submit"
)

type countingDocumentSource struct {
	calls  atomic.Int32
	inputs []document.CreateDocumentInput
}

func (s *countingDocumentSource) FetchDocuments(ctx context.Context) ([]document.CreateDocumentInput, error) {
	s.calls.Add(1)
	return s.inputs, nil
}

type staticClaimSource struct {
	inputs []claim.SyncScrapedClaimInput
}

func (s *staticClaimSource) FetchClaims(ctx context.Context) ([]claim.SyncScrapedClaimInput, error) {
	return s.inputs, nil
}

type schedFixture struct {
	ctx    context.Context
	sched  *Scheduler
	asg    *assignment.Service
	drafts *draftclaim.Service
}

func newSchedFixture(t *testing.T, docSrc ingest.DocumentSource, claimSrc ingest.ClaimSource, cfg Config) *schedFixture {
	t.Helper()
	if cfg.IngestInterval == 0 {
		cfg.IngestInterval = time.Hour
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = time.Hour
	}
	if cfg.SubmitInterval == 0 {
		cfg.SubmitInterval = time.Hour
	}
	if cfg.GenerationWindow == "" {
		cfg.GenerationWindow = draftclaim.WindowForever
	}
	if docSrc == nil {
		docSrc = ingest.NoSource{}
	}
	if claimSrc == nil {
		claimSrc = ingest.NoSource{}
	}

	docsRepo := document.NewMemoryRepository()
	resolver := document.NewPaymentResolver("EUR")
	docsSvc := document.NewService(docsRepo, resolver)
	scrapedRepo := claim.NewScrapedMemoryRepository()
	claimsSvc := claim.NewService(scrapedRepo, claim.NewMemoryRepository())
	asgSvc := assignment.NewService(
		assignment.NewMemoryRepository(),
		assignment.NewScorer(assignment.DefaultThresholds(), nil),
		docsRepo,
		scrapedRepo,
		resolver,
		illness.NewService(illness.NewMemoryRepository()),
	)
	draftsSvc := draftclaim.NewService(
		draftclaim.NewMemoryRepository(),
		docsRepo,
		resolver,
		draftclaim.NewAmountProofResolver(0.01, 14),
		asgSvc,
		claimsSvc,
		"MEM-1",
	)
	ingestSvc := ingest.NewService(docsSvc, claimsSvc, docSrc, ingest.NoSource{}, claimSrc, zerolog.Nop())
	outbox := submit.NewService(claimsSvc, submit.Disabled{}, zerolog.Nop())

	return &schedFixture{
		ctx:    context.Background(),
		sched:  New(ingestSvc, asgSvc, draftsSvc, outbox, cfg, zerolog.Nop()),
		asg:    asgSvc,
		drafts: draftsSvc,
	}
}

func TestRunGuard(t *testing.T) {
	var g RunGuard
	if !g.TryAcquire() {
		t.Fatal("expected first acquire to win")
	}
	if g.TryAcquire() {
		t.Fatal("expected second acquire to be rejected")
	}
	if !g.Active() {
		t.Error("expected the guard to report active")
	}
	g.Release()
	if g.Active() {
		t.Error("expected the guard to report idle after release")
	}
	if !g.TryAcquire() {
		t.Error("expected acquire to win again after release")
	}
}

func TestJobsAreValidAndLabelled(t *testing.T) {
	for _, j := range Jobs() {
		if !j.Valid() {
			t.Errorf("job %s should be valid", j)
		}
		if j.Label() == "" || j.Label() == string(j) {
			t.Errorf("job %s should carry a human label", j)
		}
	}
	if Job("defrag").Valid() {
		t.Error("unknown job should not be valid")
	}
}

func TestGuardedJobRejectsOverlap(t *testing.T) {
	f := newSchedFixture(t, nil, nil, Config{})

	if !f.sched.guards[JobMatch].TryAcquire() {
		t.Fatal("expected to hold the match guard")
	}
	if _, err := f.sched.RunMatching(f.ctx); !apperr.IsConflict(err) {
		t.Fatalf("expected conflict while the job is active, got %v", err)
	}
	f.sched.guards[JobMatch].Release()

	if _, err := f.sched.RunMatching(f.ctx); err != nil {
		t.Fatalf("expected the job to run after release, got %v", err)
	}
	if f.sched.guards[JobMatch].Active() {
		t.Error("expected the guard released after the run")
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	treatment := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	amount := 120.0
	fp1, fp2 := "fp-invoice", "fp-orphan"
	docSrc := &countingDocumentSource{inputs: []document.CreateDocumentInput{
		{
			SourceType:      document.SourceAttachment,
			Fingerprint:     &fp1,
			DocumentDate:    &treatment,
			DetectedAmounts: []document.DetectedAmount{{Value: amount, Currency: "EUR", RawText: "120.00 EUR", Confidence: 90}},
		},
		{
			SourceType:      document.SourceAttachment,
			Fingerprint:     &fp2,
			DocumentDate:    &treatment,
			DetectedAmounts: []document.DetectedAmount{{Value: 310, Currency: "EUR", RawText: "310.00 EUR", Confidence: 90}},
		},
	}}
	claimSrc := &staticClaimSource{inputs: []claim.SyncScrapedClaimInput{
		{ExternalID: "INS-1", MemberRef: "MEM-1", Amount: amount, Currency: "EUR", TreatmentDate: &treatment},
	}}
	f := newSchedFixture(t, docSrc, claimSrc, Config{})

	if _, err := f.sched.ScanDocuments(f.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.sched.SyncClaims(f.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	match, err := f.sched.RunMatching(f.ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.CandidatesCreated != 1 {
		t.Fatalf("expected one candidate from the matching invoice, got %d", match.CandidatesCreated)
	}

	gen, err := f.sched.GenerateDrafts(f.ctx, draftclaim.WindowForever)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Created != 1 {
		t.Fatalf("expected one draft for the unmatched document, got %d", gen.Created)
	}
	if gen.Drafts[0].Payment.Amount != 310 {
		t.Errorf("expected the orphan invoice amount, got %f", gen.Drafts[0].Payment.Amount)
	}
}

func TestStartLoopsUntilCancelled(t *testing.T) {
	docSrc := &countingDocumentSource{}
	f := newSchedFixture(t, docSrc, nil, Config{
		IngestInterval:    5 * time.Millisecond,
		ReconcileInterval: 5 * time.Millisecond,
		SubmitInterval:    5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sched.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for docSrc.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("scheduler never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}

func TestStartWithDisabledLoops(t *testing.T) {
	docSrc := &countingDocumentSource{}
	f := newSchedFixture(t, docSrc, nil, Config{})
	sched := New(f.sched.ingest, f.asg, f.drafts, f.sched.outbox,
		Config{GenerationWindow: draftclaim.WindowForever}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if docSrc.calls.Load() != 0 {
		t.Error("expected no ingest pass when the loop is disabled")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}

func TestRunScheduledRecoversPanic(t *testing.T) {
	f := newSchedFixture(t, nil, nil, Config{})
	f.sched.runScheduled(f.ctx, JobMatch, func(ctx context.Context) error {
		panic("collaborator exploded")
	})
}

func TestActiveStartsIdle(t *testing.T) {
	f := newSchedFixture(t, nil, nil, Config{})
	for job, active := range f.sched.Active() {
		if active {
			t.Errorf("expected job %s to start idle", job)
		}
	}
}
