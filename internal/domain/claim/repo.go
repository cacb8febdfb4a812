package claim

import "github.com/recoup/recoup/internal/platform/storage"

// Index fields on the scraped-claim repository.
const (
	IndexExternalID = "external_id"
	IndexStatus     = "status"
)

// ScrapedRepository stores insurer-side claim records.
type ScrapedRepository = storage.IndexedRepository[*ScrapedClaim]

// Repository stores locally-originated claims.
type Repository = storage.IndexedRepository[*Claim]

// NewScrapedMemoryRepository returns an in-memory ScrapedRepository.
func NewScrapedMemoryRepository() ScrapedRepository {
	return storage.NewMemoryRepository[*ScrapedClaim](map[string]storage.IndexFunc[*ScrapedClaim]{
		IndexExternalID: func(c *ScrapedClaim) (string, bool) { return c.ExternalID, true },
		IndexStatus:     func(c *ScrapedClaim) (string, bool) { return string(c.Status), true },
	})
}

// NewMemoryRepository returns an in-memory Repository for local claims.
func NewMemoryRepository() Repository {
	return storage.NewMemoryRepository[*Claim](map[string]storage.IndexFunc[*Claim]{
		IndexStatus: func(c *Claim) (string, bool) { return string(c.Status), true },
	})
}
