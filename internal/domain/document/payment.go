package document

import "github.com/google/uuid"

// Source ranks: a manual override strictly beats anything detected.
const (
	rankDetected = 1
	rankOverride = 2
)

// overrideConfidence is the confidence assigned to manual overrides so the
// comparator can treat all signals uniformly.
const overrideConfidence = 100

// NoSignalNote is the context note carried by the empty-payment placeholder.
const NoSignalNote = "no payment signal detected"

// PaymentResolver picks the single authoritative payment signal for a
// document or a document group.
type PaymentResolver struct {
	defaultCurrency string
}

func NewPaymentResolver(defaultCurrency string) *PaymentResolver {
	return &PaymentResolver{defaultCurrency: defaultCurrency}
}

// Resolve returns the document's best payment signal, or nil when the
// document has none. An override always wins over detected amounts; among
// detected amounts higher confidence wins, then higher amount, then the
// first one seen.
func (r *PaymentResolver) Resolve(doc *MedicalDocument) *Payment {
	if doc == nil {
		return nil
	}

	if ov := doc.PaymentOverride; ov != nil {
		conf := overrideConfidence
		note := ov.Note
		return &Payment{
			Amount:       ov.Amount,
			Currency:     ov.Currency,
			Source:       PaymentOverridden,
			Confidence:   &conf,
			OverrideNote: &note,
		}
	}

	var best *Payment
	for i := range doc.DetectedAmounts {
		candidate := detectedPayment(&doc.DetectedAmounts[i])
		if best == nil || beats(candidate, best) {
			best = candidate
		}
	}
	return best
}

// ResolveGroup picks the best signal across a document group, iterating in
// the given order so that full ties resolve to the first-seen document and
// re-runs stay deterministic. The second return value is the id of the
// document that supplied the winning signal.
//
// When no document has a signal the returned payment is an explicit
// placeholder (zero amount, the configured default currency, NoSignalNote) —
// never nil, because downstream code always needs a payment value.
func (r *PaymentResolver) ResolveGroup(docs []*MedicalDocument) (Payment, *uuid.UUID) {
	var (
		best    *Payment
		bestDoc uuid.UUID
	)
	for _, doc := range docs {
		candidate := r.Resolve(doc)
		if candidate == nil {
			continue
		}
		if best == nil || beats(candidate, best) {
			best = candidate
			bestDoc = doc.ID
		}
	}

	if best == nil {
		note := NoSignalNote
		return Payment{
			Amount:   0,
			Currency: r.defaultCurrency,
			Source:   PaymentDetected,
			Context:  &note,
		}, nil
	}
	return *best, &bestDoc
}

func detectedPayment(a *DetectedAmount) *Payment {
	conf := a.Confidence
	raw := a.RawText
	p := &Payment{
		Amount:     a.Value,
		Currency:   a.Currency,
		Source:     PaymentDetected,
		Confidence: &conf,
		RawText:    &raw,
		Context:    cloneString(a.Context),
	}
	return p
}

// beats reports whether challenger strictly outranks incumbent. Equal signals
// return false so the incumbent (first seen) is kept.
func beats(challenger, incumbent *Payment) bool {
	cr, ir := sourceRank(challenger.Source), sourceRank(incumbent.Source)
	if cr != ir {
		return cr > ir
	}
	cc, ic := signalConfidence(challenger), signalConfidence(incumbent)
	if cc != ic {
		return cc > ic
	}
	return challenger.Amount > incumbent.Amount
}

func sourceRank(s PaymentSource) int {
	if s == PaymentOverridden {
		return rankOverride
	}
	return rankDetected
}

func signalConfidence(p *Payment) int {
	if p.Confidence == nil {
		return 0
	}
	return *p.Confidence
}
