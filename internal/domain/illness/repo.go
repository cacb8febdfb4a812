package illness

import "github.com/recoup/recoup/internal/platform/storage"

type Repository = storage.Repository[*Illness]

func NewMemoryRepository() Repository {
	return storage.NewMemoryRepository[*Illness](nil)
}
