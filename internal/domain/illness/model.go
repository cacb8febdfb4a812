package illness

import (
	"time"

	"github.com/google/uuid"
)

// Illness is a treatment episode that confirmed document-claim assignments
// are filed under. An illness with no ResolvedAt is ongoing.
type Illness struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Label      string     `db:"label" json:"label"`
	Note       *string    `db:"note" json:"note,omitempty"`
	StartedAt  *time.Time `db:"started_at" json:"started_at,omitempty"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

func (i *Illness) EntityID() uuid.UUID { return i.ID }

func (i *Illness) Clone() *Illness {
	cp := *i
	cp.Note = cloneString(i.Note)
	cp.StartedAt = cloneTime(i.StartedAt)
	cp.ResolvedAt = cloneTime(i.ResolvedAt)
	return &cp
}

func (i *Illness) Resolved() bool { return i.ResolvedAt != nil }

type CreateIllnessInput struct {
	Label     string     `json:"label"`
	Note      *string    `json:"note,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

type UpdateIllnessInput struct {
	Label     *string    `json:"label,omitempty"`
	Note      *string    `json:"note,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
