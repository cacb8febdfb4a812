package assignment

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/recoup/recoup/internal/domain/claim"
	"github.com/recoup/recoup/internal/domain/document"
)

// Thresholds are the tunable constants of the match scorer. Amount tolerances
// are fractions (0.01 means 1%), date thresholds are whole days.
type Thresholds struct {
	ExactAmountTolerance       float64
	ApproximateAmountTolerance float64
	ExactAmountScore           int
	ApproximateAmountScore     int
	DateProximityDays          int
	DateProximityBonus         int
	DatePenaltyDays            int
	DatePenalty                int
	MaxDateMismatchDays        int
	ProviderMatchBonus         int
	MinimumCandidateScore      int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ExactAmountTolerance:       0.01,
		ApproximateAmountTolerance: 0.10,
		ExactAmountScore:           80,
		ApproximateAmountScore:     60,
		DateProximityDays:          30,
		DateProximityBonus:         15,
		DatePenaltyDays:            60,
		DatePenalty:                40,
		MaxDateMismatchDays:        90,
		ProviderMatchBonus:         10,
		MinimumCandidateScore:      50,
	}
}

// ProviderMatcher decides whether two provider names refer to the same
// provider. It is an extension point; the default is a case-insensitive
// comparison of trimmed names.
type ProviderMatcher func(a, b string) bool

func defaultProviderMatcher(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// MatchScore is the scorer's verdict on one document/claim pair.
type MatchScore struct {
	Score        int
	ReasonType   MatchReasonType
	Reason       string
	Disqualified bool
	AmountMatch  *AmountMatchDetails
	DateMatch    *DateMatchDetails
}

// Qualifies reports whether the pair clears the candidate bar.
func (m MatchScore) Qualifies(minScore int) bool {
	return !m.Disqualified && m.Score >= minScore
}

// Scorer computes match scores between evidence documents and scraped claims.
// Scoring is a pure function of its inputs: the same document, payment and
// claim always produce the same verdict.
type Scorer struct {
	thresholds Thresholds
	providers  ProviderMatcher
}

func NewScorer(thresholds Thresholds, providers ProviderMatcher) *Scorer {
	if providers == nil {
		providers = defaultProviderMatcher
	}
	return &Scorer{thresholds: thresholds, providers: providers}
}

func (s *Scorer) Thresholds() Thresholds { return s.thresholds }

// Score rates how likely doc (with its resolved payment) corresponds to sc.
func (s *Scorer) Score(doc *document.MedicalDocument, pay document.Payment, sc *claim.ScrapedClaim) MatchScore {
	var (
		out     MatchScore
		reasons []string
	)

	if pay.Amount > 0 && sc.Amount > 0 {
		diff := math.Abs(pay.Amount-sc.Amount) / sc.Amount
		am := &AmountMatchDetails{
			DocumentAmount:    pay.Amount,
			ClaimAmount:       sc.Amount,
			DifferencePercent: diff,
			WithinExact:       diff <= s.thresholds.ExactAmountTolerance,
			WithinApproximate: diff <= s.thresholds.ApproximateAmountTolerance,
		}
		out.AmountMatch = am

		switch {
		case am.WithinExact:
			out.Score = s.thresholds.ExactAmountScore
			out.ReasonType = ReasonExactAmount
			reasons = append(reasons, fmt.Sprintf("amount %.2f matches claim amount %.2f within %.0f%%",
				pay.Amount, sc.Amount, s.thresholds.ExactAmountTolerance*100))
		case am.WithinApproximate:
			out.Score = s.thresholds.ApproximateAmountScore
			out.ReasonType = ReasonApproximateAmount
			reasons = append(reasons, fmt.Sprintf("amount %.2f is within %.0f%% of claim amount %.2f",
				pay.Amount, s.thresholds.ApproximateAmountTolerance*100, sc.Amount))
		}
	}

	if doc.DocumentDate != nil && sc.TreatmentDate != nil {
		days := wholeDaysBetween(*doc.DocumentDate, *sc.TreatmentDate)
		dm := &DateMatchDetails{
			DocumentDate:           *doc.DocumentDate,
			ClaimDate:              *sc.TreatmentDate,
			DaysDifference:         days,
			WithinProximity:        days <= s.thresholds.DateProximityDays,
			BeyondPenaltyThreshold: days > s.thresholds.DatePenaltyDays,
			BeyondHardCutoff:       days > s.thresholds.MaxDateMismatchDays,
		}
		out.DateMatch = dm

		switch {
		case dm.WithinProximity:
			out.Score += s.thresholds.DateProximityBonus
			if out.ReasonType == "" {
				out.ReasonType = ReasonDateProximity
			}
			reasons = append(reasons, fmt.Sprintf("dates are %d days apart", days))
		case dm.BeyondPenaltyThreshold:
			out.Score -= s.thresholds.DatePenalty
			reasons = append(reasons, fmt.Sprintf("dates are %d days apart", days))
		}
		if dm.BeyondHardCutoff {
			out.Disqualified = true
		}
	}

	if doc.Provider != nil && sc.ProviderName != nil && s.providers(*doc.Provider, *sc.ProviderName) {
		out.Score += s.thresholds.ProviderMatchBonus
		if out.ReasonType == "" {
			out.ReasonType = ReasonProviderMatch
		}
		reasons = append(reasons, fmt.Sprintf("provider %q matches", *sc.ProviderName))
	}

	if out.Score < 0 {
		out.Score = 0
	}
	if out.Score > 100 {
		out.Score = 100
	}

	if out.Disqualified {
		reasons = append(reasons, fmt.Sprintf("dates are more than %d days apart", s.thresholds.MaxDateMismatchDays))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no matching signals")
	}
	out.Reason = strings.Join(reasons, "; ")
	return out
}

func wholeDaysBetween(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
