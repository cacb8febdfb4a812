package draftclaim

import (
	"context"

	"github.com/google/uuid"

	"github.com/recoup/recoup/internal/platform/storage"
)

// Index fields on the draft-claim repository.
const IndexStatus = "status"

// Repository stores draft claims. On top of the generic contract it can look
// drafts up by any attached document id.
type Repository interface {
	storage.IndexedRepository[*DraftClaim]

	FindByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*DraftClaim, error)
}

type memoryRepository struct {
	*storage.MemoryRepository[*DraftClaim]
}

// NewMemoryRepository returns an in-memory Repository.
func NewMemoryRepository() Repository {
	base := storage.NewMemoryRepository[*DraftClaim](map[string]storage.IndexFunc[*DraftClaim]{
		IndexStatus: func(d *DraftClaim) (string, bool) { return string(d.Status), true },
	})
	return &memoryRepository{MemoryRepository: base}
}

func (r *memoryRepository) FindByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*DraftClaim, error) {
	return r.Find(ctx, func(d *DraftClaim) bool { return d.ContainsDocument(documentID) })
}
