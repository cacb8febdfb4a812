package draftclaim

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recoup/recoup/internal/domain/document"
)

// ProofResolver finds supplementary documents (receipts, proof of payment)
// corroborating a resolved payment. The matching heuristic is an extension
// point; whatever it returns, the promoter guarantees the primary document is
// excluded and the result is merged additively and deduplicated.
type ProofResolver interface {
	Resolve(pool []*document.MedicalDocument, primary *document.MedicalDocument, pay document.Payment) []uuid.UUID
}

// AmountProofResolver is the default heuristic: a document corroborates a
// payment when one of its detected amounts matches the payment's amount and
// currency within a tolerance, and, when both documents carry a date, the two
// dates are at most WindowDays apart.
type AmountProofResolver struct {
	Tolerance  float64
	WindowDays int
}

func NewAmountProofResolver(tolerance float64, windowDays int) *AmountProofResolver {
	return &AmountProofResolver{Tolerance: tolerance, WindowDays: windowDays}
}

func (r *AmountProofResolver) Resolve(pool []*document.MedicalDocument, primary *document.MedicalDocument, pay document.Payment) []uuid.UUID {
	if primary == nil || pay.Amount <= 0 {
		return nil
	}

	var out []uuid.UUID
	for _, doc := range pool {
		if doc.ID == primary.ID || doc.Archived() || doc.SourceType == document.SourceCalendar {
			continue
		}
		if !r.corroborates(doc, primary, pay) {
			continue
		}
		if !containsID(out, doc.ID) {
			out = append(out, doc.ID)
		}
	}
	return out
}

func (r *AmountProofResolver) corroborates(doc, primary *document.MedicalDocument, pay document.Payment) bool {
	amountMatches := false
	for i := range doc.DetectedAmounts {
		a := &doc.DetectedAmounts[i]
		if !strings.EqualFold(a.Currency, pay.Currency) {
			continue
		}
		if pay.Amount == 0 {
			continue
		}
		if math.Abs(a.Value-pay.Amount)/pay.Amount <= r.Tolerance {
			amountMatches = true
			break
		}
	}
	if !amountMatches {
		return false
	}

	if doc.DocumentDate != nil && primary.DocumentDate != nil {
		gap := doc.DocumentDate.Sub(*primary.DocumentDate)
		if gap < 0 {
			gap = -gap
		}
		if gap > time.Duration(r.WindowDays)*24*time.Hour {
			return false
		}
	}
	return true
}
