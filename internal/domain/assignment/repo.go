package assignment

import "github.com/recoup/recoup/internal/platform/storage"

// Index fields on the assignment repository.
const (
	IndexDocumentID = "document_id"
	IndexClaimID    = "claim_id"
	IndexStatus     = "status"
)

// Repository stores document-claim assignments.
type Repository = storage.IndexedRepository[*DocumentClaimAssignment]

// NewMemoryRepository returns an in-memory Repository.
func NewMemoryRepository() Repository {
	return storage.NewMemoryRepository[*DocumentClaimAssignment](map[string]storage.IndexFunc[*DocumentClaimAssignment]{
		IndexDocumentID: func(a *DocumentClaimAssignment) (string, bool) { return a.DocumentID.String(), true },
		IndexClaimID:    func(a *DocumentClaimAssignment) (string, bool) { return a.ClaimID.String(), true },
		IndexStatus:     func(a *DocumentClaimAssignment) (string, bool) { return string(a.Status), true },
	})
}
