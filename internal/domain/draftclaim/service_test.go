package draftclaim

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/recoup/recoup/internal/domain/assignment"
	"github.com/recoup/recoup/internal/domain/claim"
	"github.com/recoup/recoup/internal/domain/document"
	"github.com/recoup/recoup/internal/domain/illness"
	"github.com/recoup/recoup/internal/platform/apperr"
	"github.com/recoup/recoup/internal/platform/storage"
)

type draftFixture struct {
	ctx    context.Context
	docs   document.Repository
	drafts Repository
	asg    assignment.Repository
	claims *claim.Service
	svc    *Service
}

func buildDraftFixture(t *testing.T, drafts Repository, memberRef string) *draftFixture {
	t.Helper()
	docs := document.NewMemoryRepository()
	scraped := claim.NewScrapedMemoryRepository()
	claimSvc := claim.NewService(scraped, claim.NewMemoryRepository())
	asgRepo := assignment.NewMemoryRepository()
	asgSvc := assignment.NewService(
		asgRepo,
		assignment.NewScorer(assignment.DefaultThresholds(), nil),
		docs,
		scraped,
		document.NewPaymentResolver("EUR"),
		illness.NewService(illness.NewMemoryRepository()),
	)
	svc := NewService(drafts, docs, document.NewPaymentResolver("EUR"), NewAmountProofResolver(0.01, 14), asgSvc, claimSvc, memberRef)
	return &draftFixture{
		ctx:    context.Background(),
		docs:   docs,
		drafts: drafts,
		asg:    asgRepo,
		claims: claimSvc,
		svc:    svc,
	}
}

func newDraftFixture(t *testing.T) *draftFixture {
	return buildDraftFixture(t, NewMemoryRepository(), "MEM-2044")
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func detected(amount float64, confidence int) []document.DetectedAmount {
	return []document.DetectedAmount{{
		Value:      amount,
		Currency:   "EUR",
		RawText:    fmt.Sprintf("%.2f EUR", amount),
		Confidence: confidence,
	}}
}

func (f *draftFixture) addDoc(t *testing.T, doc *document.MedicalDocument) *document.MedicalDocument {
	t.Helper()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.SourceType == "" {
		doc.SourceType = document.SourceAttachment
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.UpdatedAt = doc.CreatedAt
	saved, err := f.docs.Save(f.ctx, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return saved
}

func (f *draftFixture) addAssignment(t *testing.T, docID uuid.UUID, status assignment.AssignmentStatus) {
	t.Helper()
	now := time.Now().UTC()
	a := &assignment.DocumentClaimAssignment{
		ID:         uuid.New(),
		DocumentID: docID,
		ClaimID:    uuid.New(),
		Status:     status,
		Score:      80,
		ReasonType: assignment.ReasonExactAmount,
		Reason:     "amount matches",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if status == assignment.StatusConfirmed {
		ill := uuid.New()
		a.IllnessID = &ill
		a.ConfirmedAt = &now
	}
	if _, err := f.asg.Save(f.ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func (f *draftFixture) promoted(t *testing.T, docID uuid.UUID) *DraftClaim {
	t.Helper()
	res, err := f.svc.Promote(f.ctx, docID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res.Draft
}

func TestGenerateSingleDocument(t *testing.T) {
	f := newDraftFixture(t)
	docDate := date(2026, time.January, 10)
	a := f.addDoc(t, &document.MedicalDocument{
		DocumentDate:    &docDate,
		DetectedAmounts: detected(120, 90),
	})

	res, err := f.svc.Generate(f.ctx, WindowForever, date(2026, time.January, 16))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 1 || len(res.Drafts) != 1 {
		t.Fatalf("expected exactly one draft, got created=%d drafts=%d", res.Created, len(res.Drafts))
	}

	d := res.Drafts[0]
	if d.Status != DraftPending {
		t.Errorf("expected pending status, got %s", d.Status)
	}
	if d.PrimaryDocumentID != a.ID {
		t.Errorf("expected primary document %s, got %s", a.ID, d.PrimaryDocumentID)
	}
	if d.Payment.Amount != 120 || d.Payment.Currency != "EUR" || d.Payment.Source != document.PaymentDetected {
		t.Errorf("unexpected payment: %+v", d.Payment)
	}
	if len(d.DocumentIDs) != 1 || d.DocumentIDs[0] != a.ID {
		t.Errorf("unexpected document ids: %v", d.DocumentIDs)
	}
	if d.TreatmentDate == nil || !d.TreatmentDate.Equal(docDate) {
		t.Errorf("expected treatment date %s, got %v", docDate, d.TreatmentDate)
	}
	if d.TreatmentDateSource == nil || *d.TreatmentDateSource != DateFromDocument {
		t.Errorf("expected document date source, got %v", d.TreatmentDateSource)
	}
}

func TestGenerateGroupsThreadIntoOneDraft(t *testing.T) {
	f := newDraftFixture(t)
	msg := "thread-77"
	when := date(2026, time.February, 3)
	a := f.addDoc(t, &document.MedicalDocument{
		SourceType:      document.SourceEmail,
		MessageID:       &msg,
		DocumentDate:    &when,
		DetectedAmounts: detected(95.50, 80),
	})
	b := f.addDoc(t, &document.MedicalDocument{
		MessageID:       &msg,
		DocumentDate:    &when,
		DetectedAmounts: detected(95.50, 90),
	})

	res, err := f.svc.Generate(f.ctx, WindowForever, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("expected one draft for the thread, got %d", res.Created)
	}

	d := res.Drafts[0]
	if !d.ContainsDocument(a.ID) || !d.ContainsDocument(b.ID) {
		t.Errorf("expected draft to cover both thread documents, got %v", d.DocumentIDs)
	}
	if d.PrimaryDocumentID != b.ID {
		t.Errorf("expected the higher-confidence document as primary, got %s", d.PrimaryDocumentID)
	}
}

func TestGenerateWindowBoundsPool(t *testing.T) {
	asOf := date(2026, time.March, 15)
	cases := []struct {
		window Window
		want   int
	}{
		{WindowLastWeek, 1},
		{WindowLastMonth, 2},
		{WindowForever, 3},
	}
	for _, tc := range cases {
		t.Run(string(tc.window), func(t *testing.T) {
			f := newDraftFixture(t)
			recent := date(2026, time.March, 12)
			older := date(2026, time.February, 20)
			ancient := date(2025, time.June, 1)
			f.addDoc(t, &document.MedicalDocument{DocumentDate: &recent, DetectedAmounts: detected(55.50, 90)})
			f.addDoc(t, &document.MedicalDocument{DocumentDate: &older, DetectedAmounts: detected(210, 90)})
			f.addDoc(t, &document.MedicalDocument{DocumentDate: &ancient, DetectedAmounts: detected(330, 90)})

			res, err := f.svc.Generate(f.ctx, tc.window, asOf)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Created != tc.want {
				t.Errorf("expected %d drafts for window %s, got %d", tc.want, tc.window, res.Created)
			}
		})
	}
}

func TestGenerateFallsBackToIngestionDate(t *testing.T) {
	f := newDraftFixture(t)
	fresh := f.addDoc(t, &document.MedicalDocument{DetectedAmounts: detected(42, 90)})
	stale := f.addDoc(t, &document.MedicalDocument{
		DetectedAmounts: detected(77, 90),
		CreatedAt:       time.Now().UTC().AddDate(0, 0, -30),
	})

	res, err := f.svc.Generate(f.ctx, WindowLastWeek, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("expected one draft, got %d", res.Created)
	}
	if !res.Drafts[0].ContainsDocument(fresh.ID) {
		t.Errorf("expected the freshly ingested document to qualify")
	}
	for _, d := range res.Drafts {
		if d.ContainsDocument(stale.ID) {
			t.Errorf("expected the month-old undated document to fall outside last_week")
		}
	}
}

func TestGenerateSecondRunCreatesNothing(t *testing.T) {
	f := newDraftFixture(t)
	msg := "thread-3"
	when := date(2026, time.January, 20)
	f.addDoc(t, &document.MedicalDocument{SourceType: document.SourceEmail, MessageID: &msg, DocumentDate: &when, DetectedAmounts: detected(60, 85)})
	f.addDoc(t, &document.MedicalDocument{MessageID: &msg, DocumentDate: &when, DetectedAmounts: detected(60, 70)})
	f.addDoc(t, &document.MedicalDocument{DocumentDate: &when, DetectedAmounts: detected(412, 90)})

	first, err := f.svc.Generate(f.ctx, WindowForever, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Created != 2 {
		t.Fatalf("expected two drafts on the first run, got %d", first.Created)
	}

	second, err := f.svc.Generate(f.ctx, WindowForever, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Created != 0 {
		t.Errorf("expected zero new drafts on the second run, got %d", second.Created)
	}
	if n, _ := f.drafts.Count(f.ctx); n != 2 {
		t.Errorf("expected draft count to stay at 2, got %d", n)
	}
}

func TestGenerateMergesLateThreadSibling(t *testing.T) {
	f := newDraftFixture(t)
	msg := "thread-9"
	when := date(2026, time.April, 2)
	a := f.addDoc(t, &document.MedicalDocument{SourceType: document.SourceEmail, MessageID: &msg, DocumentDate: &when, DetectedAmounts: detected(130, 90)})

	if res, err := f.svc.Generate(f.ctx, WindowForever, time.Now().UTC()); err != nil || res.Created != 1 {
		t.Fatalf("first run: created=%d err=%v", res.Created, err)
	}

	b := f.addDoc(t, &document.MedicalDocument{MessageID: &msg, DocumentDate: &when, DetectedAmounts: detected(130, 60)})

	res, err := f.svc.Generate(f.ctx, WindowForever, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 0 {
		t.Errorf("expected the sibling to merge, not create, got created=%d", res.Created)
	}

	drafts, err := f.drafts.FindByDocumentID(f.ctx, b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 1 || !drafts[0].ContainsDocument(a.ID) {
		t.Fatalf("expected one draft covering both documents, got %d", len(drafts))
	}
	if n, _ := f.drafts.Count(f.ctx); n != 1 {
		t.Errorf("expected a single draft, got %d", n)
	}
}

func TestGenerateSkipsLinkedDocuments(t *testing.T) {
	f := newDraftFixture(t)
	when := date(2026, time.May, 5)
	withCandidate := f.addDoc(t, &document.MedicalDocument{DocumentDate: &when, DetectedAmounts: detected(100, 90)})
	withConfirmed := f.addDoc(t, &document.MedicalDocument{DocumentDate: &when, DetectedAmounts: detected(200, 90)})
	withRejected := f.addDoc(t, &document.MedicalDocument{DocumentDate: &when, DetectedAmounts: detected(300, 90)})
	free := f.addDoc(t, &document.MedicalDocument{DocumentDate: &when, DetectedAmounts: detected(400, 90)})

	f.addAssignment(t, withCandidate.ID, assignment.StatusCandidate)
	f.addAssignment(t, withConfirmed.ID, assignment.StatusConfirmed)
	f.addAssignment(t, withRejected.ID, assignment.StatusRejected)

	res, err := f.svc.Generate(f.ctx, WindowForever, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 2 {
		t.Fatalf("expected drafts only for unlinked documents, got %d", res.Created)
	}
	for _, d := range res.Drafts {
		if d.ContainsDocument(withCandidate.ID) || d.ContainsDocument(withConfirmed.ID) {
			t.Errorf("draft %s covers a document with a blocking assignment", d.ID)
		}
	}
	if drafts, _ := f.drafts.FindByDocumentID(f.ctx, withRejected.ID); len(drafts) != 1 {
		t.Errorf("expected a rejected assignment not to block drafting")
	}
	if drafts, _ := f.drafts.FindByDocumentID(f.ctx, free.ID); len(drafts) != 1 {
		t.Errorf("expected the free document to be drafted")
	}
}

func TestGenerateSkipsSignallessAndArchived(t *testing.T) {
	f := newDraftFixture(t)
	when := date(2026, time.May, 5)
	gone := time.Now().UTC()
	f.addDoc(t, &document.MedicalDocument{DocumentDate: &when})
	f.addDoc(t, &document.MedicalDocument{DocumentDate: &when, DetectedAmounts: detected(80, 90), ArchivedAt: &gone})

	res, err := f.svc.Generate(f.ctx, WindowForever, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 0 {
		t.Errorf("expected no drafts, got %d", res.Created)
	}
}

func TestGenerateRejectsUnknownWindow(t *testing.T) {
	f := newDraftFixture(t)
	if _, err := f.svc.Generate(f.ctx, Window("yesterday"), time.Now().UTC()); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPromoteCreatesThenExpands(t *testing.T) {
	f := newDraftFixture(t)
	msg := "thread-12"
	when := date(2026, time.June, 1)
	a := f.addDoc(t, &document.MedicalDocument{SourceType: document.SourceEmail, MessageID: &msg, DocumentDate: &when, DetectedAmounts: detected(120, 90)})

	first, err := f.svc.Promote(f.ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Created || first.Expanded {
		t.Fatalf("expected created=true expanded=false, got %+v", first)
	}

	b := f.addDoc(t, &document.MedicalDocument{MessageID: &msg, DocumentDate: &when})

	second, err := f.svc.Promote(f.ctx, b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Created || !second.Expanded {
		t.Fatalf("expected created=false expanded=true, got %+v", second)
	}
	if second.Draft.ID != first.Draft.ID {
		t.Errorf("expected the sibling to merge into the existing draft")
	}
	if len(second.Draft.DocumentIDs) != 2 {
		t.Errorf("expected two attached documents, got %v", second.Draft.DocumentIDs)
	}

	third, err := f.svc.Promote(f.ctx, b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.Created || third.Expanded {
		t.Fatalf("expected a no-op on re-promotion, got %+v", third)
	}
	if len(third.Draft.DocumentIDs) != 2 {
		t.Errorf("expected document set to stay at the deduplicated union, got %v", third.Draft.DocumentIDs)
	}
}

func TestPromoteAttachesPaymentProofs(t *testing.T) {
	f := newDraftFixture(t)
	msg := "thread-40"
	invoiced := date(2026, time.January, 10)
	receipted := date(2026, time.January, 12)
	a := f.addDoc(t, &document.MedicalDocument{SourceType: document.SourceEmail, MessageID: &msg, DocumentDate: &invoiced, DetectedAmounts: detected(120, 90)})
	receipt := f.addDoc(t, &document.MedicalDocument{DocumentDate: &receipted, DetectedAmounts: detected(120, 75)})
	f.addDoc(t, &document.MedicalDocument{DocumentDate: &receipted, DetectedAmounts: detected(340, 90)})

	res, err := f.svc.Promote(f.ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := res.Draft
	if len(d.PaymentProofDocumentIDs) != 1 || d.PaymentProofDocumentIDs[0] != receipt.ID {
		t.Fatalf("expected the matching receipt as proof, got %v", d.PaymentProofDocumentIDs)
	}
	if !d.ContainsDocument(receipt.ID) {
		t.Errorf("expected the proof document inside the attached set")
	}
	if d.PrimaryDocumentID != a.ID {
		t.Errorf("expected the invoice to stay primary, got %s", d.PrimaryDocumentID)
	}
	if len(d.DocumentIDs) != 2 {
		t.Errorf("expected invoice plus receipt, got %v", d.DocumentIDs)
	}
}

func TestPromoteUnknownAndArchivedDocuments(t *testing.T) {
	f := newDraftFixture(t)
	if _, err := f.svc.Promote(f.ctx, uuid.New()); !apperr.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	gone := time.Now().UTC()
	archived := f.addDoc(t, &document.MedicalDocument{DetectedAmounts: detected(50, 90), ArchivedAt: &gone})
	if _, err := f.svc.Promote(f.ctx, archived.ID); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// conflictingSaveRepo fails the next n saves with a version conflict, standing
// in for a concurrent writer that advanced the draft first.
type conflictingSaveRepo struct {
	Repository
	failures int
}

func (r *conflictingSaveRepo) Save(ctx context.Context, d *DraftClaim) (*DraftClaim, error) {
	if r.failures > 0 {
		r.failures--
		return nil, storage.ErrVersionConflict
	}
	return r.Repository.Save(ctx, d)
}

func TestPromoteRetriesOnVersionConflict(t *testing.T) {
	repo := &conflictingSaveRepo{Repository: NewMemoryRepository()}
	f := buildDraftFixture(t, repo, "MEM-2044")
	msg := "thread-50"
	when := date(2026, time.July, 7)
	a := f.addDoc(t, &document.MedicalDocument{SourceType: document.SourceEmail, MessageID: &msg, DocumentDate: &when, DetectedAmounts: detected(80, 90)})
	f.promoted(t, a.ID)

	b := f.addDoc(t, &document.MedicalDocument{MessageID: &msg, DocumentDate: &when})
	repo.failures = 2
	res, err := f.svc.Promote(f.ctx, b.ID)
	if err != nil {
		t.Fatalf("expected the merge to converge after retries, got %v", err)
	}
	if !res.Expanded {
		t.Fatalf("expected expanded=true, got %+v", res)
	}
	if !res.Draft.ContainsDocument(b.ID) {
		t.Errorf("expected the merged draft to contain the new document")
	}

	c := f.addDoc(t, &document.MedicalDocument{MessageID: &msg, DocumentDate: &when})
	repo.failures = conflictRetries + 1
	if _, err := f.svc.Promote(f.ctx, c.ID); !apperr.IsConflict(err) {
		t.Fatalf("expected conflict error after retry exhaustion, got %v", err)
	}
}

func TestAcceptDraft(t *testing.T) {
	f := newDraftFixture(t)
	doc := f.addDoc(t, &document.MedicalDocument{DetectedAmounts: detected(150, 90)})
	d := f.promoted(t, doc.ID)

	ill := uuid.New()
	accepted, err := f.svc.Accept(f.ctx, d.ID, AcceptDraftInput{IllnessID: &ill})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != DraftAccepted {
		t.Errorf("expected accepted status, got %s", accepted.Status)
	}
	if accepted.IllnessID == nil || *accepted.IllnessID != ill {
		t.Errorf("expected illness %s, got %v", ill, accepted.IllnessID)
	}

	if _, err := f.svc.Accept(f.ctx, d.ID, AcceptDraftInput{}); !apperr.IsValidation(err) {
		t.Errorf("expected accepting a settled draft to fail, got %v", err)
	}
	if _, err := f.svc.Reject(f.ctx, d.ID); !apperr.IsValidation(err) {
		t.Errorf("expected rejecting a settled draft to fail, got %v", err)
	}
}

func TestAcceptRequiresPaymentAmount(t *testing.T) {
	f := newDraftFixture(t)
	doc := f.addDoc(t, &document.MedicalDocument{Title: strPtr("unreadable scan")})
	d := f.promoted(t, doc.ID)

	if d.Payment.Amount != 0 || d.Payment.Context == nil || *d.Payment.Context != document.NoSignalNote {
		t.Fatalf("expected the placeholder payment, got %+v", d.Payment)
	}
	if _, err := f.svc.Accept(f.ctx, d.ID, AcceptDraftInput{}); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for a signalless draft, got %v", err)
	}
}

func TestRejectDraft(t *testing.T) {
	f := newDraftFixture(t)
	doc := f.addDoc(t, &document.MedicalDocument{DetectedAmounts: detected(99, 90)})
	d := f.promoted(t, doc.ID)

	rejected, err := f.svc.Reject(f.ctx, d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected.Status != DraftRejected {
		t.Errorf("expected rejected status, got %s", rejected.Status)
	}
	if _, err := f.svc.Reject(f.ctx, uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestConvertAcceptedDraft(t *testing.T) {
	f := newDraftFixture(t)
	when := date(2026, time.February, 14)
	doc := f.addDoc(t, &document.MedicalDocument{DocumentDate: &when, DetectedAmounts: detected(240, 90)})
	d := f.promoted(t, doc.ID)

	if _, err := f.svc.ConvertToClaim(f.ctx, d.ID, ConvertDraftInput{}); !apperr.IsValidation(err) {
		t.Fatalf("expected converting a pending draft to fail, got %v", err)
	}

	ill := uuid.New()
	if _, err := f.svc.Accept(f.ctx, d.ID, AcceptDraftInput{IllnessID: &ill}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	created, err := f.svc.ConvertToClaim(f.ctx, d.ID, ConvertDraftInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.MemberRef != "MEM-2044" {
		t.Errorf("expected the configured member reference, got %s", created.MemberRef)
	}
	if created.Amount != 240 || created.Currency != "EUR" {
		t.Errorf("unexpected claim amount: %f %s", created.Amount, created.Currency)
	}
	if created.Status != claim.StatusDraft {
		t.Errorf("expected the claim to start in draft, got %s", created.Status)
	}
	if created.DraftClaimID == nil || *created.DraftClaimID != d.ID {
		t.Errorf("expected the claim to reference its draft")
	}
	if created.TreatmentDate == nil || !created.TreatmentDate.Equal(when) {
		t.Errorf("expected treatment date %s, got %v", when, created.TreatmentDate)
	}
	if created.IllnessID == nil || *created.IllnessID != ill {
		t.Errorf("expected the illness to carry over")
	}

	again, err := f.svc.ConvertToClaim(f.ctx, d.ID, ConvertDraftInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != created.ID {
		t.Errorf("expected repeat conversion to return the original claim")
	}
}

func TestConvertMemberRefOverride(t *testing.T) {
	f := buildDraftFixture(t, NewMemoryRepository(), "")
	doc := f.addDoc(t, &document.MedicalDocument{DetectedAmounts: detected(75, 90)})
	d := f.promoted(t, doc.ID)
	if _, err := f.svc.Accept(f.ctx, d.ID, AcceptDraftInput{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.svc.ConvertToClaim(f.ctx, d.ID, ConvertDraftInput{}); !apperr.IsValidation(err) {
		t.Fatalf("expected missing member_ref to fail, got %v", err)
	}

	created, err := f.svc.ConvertToClaim(f.ctx, d.ID, ConvertDraftInput{MemberRef: strPtr("MEM-9001")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.MemberRef != "MEM-9001" {
		t.Errorf("expected the override member reference, got %s", created.MemberRef)
	}
}

func TestAttachAppointment(t *testing.T) {
	f := newDraftFixture(t)
	doc := f.addDoc(t, &document.MedicalDocument{DetectedAmounts: detected(64, 90)})
	d := f.promoted(t, doc.ID)
	if d.TreatmentDate != nil {
		t.Fatalf("expected no treatment date on an undated draft")
	}

	appt := date(2026, time.March, 9)
	cal := f.addDoc(t, &document.MedicalDocument{SourceType: document.SourceCalendar, DocumentDate: &appt})

	updated, err := f.svc.AttachAppointment(f.ctx, d.ID, cal.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.TreatmentDate == nil || !updated.TreatmentDate.Equal(appt) {
		t.Errorf("expected treatment date %s, got %v", appt, updated.TreatmentDate)
	}
	if updated.TreatmentDateSource == nil || *updated.TreatmentDateSource != DateFromCalendar {
		t.Errorf("expected calendar date source, got %v", updated.TreatmentDateSource)
	}
	if !updated.ContainsDocument(cal.ID) {
		t.Errorf("expected the appointment document to be attached")
	}
}

func TestAttachAppointmentValidation(t *testing.T) {
	f := newDraftFixture(t)
	doc := f.addDoc(t, &document.MedicalDocument{DetectedAmounts: detected(64, 90)})
	d := f.promoted(t, doc.ID)

	appt := date(2026, time.March, 9)
	if _, err := f.svc.AttachAppointment(f.ctx, uuid.New(), doc.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected unknown draft to fail, got %v", err)
	}
	if _, err := f.svc.AttachAppointment(f.ctx, d.ID, uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("expected unknown document to fail, got %v", err)
	}
	if _, err := f.svc.AttachAppointment(f.ctx, d.ID, doc.ID); !apperr.IsValidation(err) {
		t.Errorf("expected a non-calendar document to fail, got %v", err)
	}

	undated := f.addDoc(t, &document.MedicalDocument{SourceType: document.SourceCalendar})
	if _, err := f.svc.AttachAppointment(f.ctx, d.ID, undated.ID); !apperr.IsValidation(err) {
		t.Errorf("expected a dateless calendar entry to fail, got %v", err)
	}

	gone := time.Now().UTC()
	archived := f.addDoc(t, &document.MedicalDocument{SourceType: document.SourceCalendar, DocumentDate: &appt, ArchivedAt: &gone})
	if _, err := f.svc.AttachAppointment(f.ctx, d.ID, archived.ID); !apperr.IsValidation(err) {
		t.Errorf("expected an archived calendar entry to fail, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	f := newDraftFixture(t)
	a := f.addDoc(t, &document.MedicalDocument{DetectedAmounts: detected(10, 90)})
	b := f.addDoc(t, &document.MedicalDocument{DetectedAmounts: detected(20, 90)})
	da := f.promoted(t, a.ID)
	f.promoted(t, b.ID)
	if _, err := f.svc.Accept(f.ctx, da.ID, AcceptDraftInput{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := f.svc.List(f.ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected two drafts, got %d", len(all))
	}

	accepted := DraftAccepted
	subset, err := f.svc.List(f.ctx, &accepted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subset) != 1 || subset[0].ID != da.ID {
		t.Errorf("expected only the accepted draft, got %d", len(subset))
	}

	bad := DraftStatus("settled")
	if _, err := f.svc.List(f.ctx, &bad); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for unknown status, got %v", err)
	}
}

func strPtr(s string) *string { return &s }
