package document

import "github.com/recoup/recoup/internal/platform/storage"

// Index fields available on document repositories.
const (
	IndexMessageID   = "message_id"
	IndexSourceType  = "source_type"
	IndexFingerprint = "fingerprint"
)

// Repository is the document store the services are written against.
type Repository = storage.IndexedRepository[*MedicalDocument]

// NewMemoryRepository returns an in-memory Repository, used in development
// mode and throughout the tests.
func NewMemoryRepository() Repository {
	return storage.NewMemoryRepository[*MedicalDocument](map[string]storage.IndexFunc[*MedicalDocument]{
		IndexMessageID: func(d *MedicalDocument) (string, bool) {
			if d.MessageID == nil {
				return "", false
			}
			return *d.MessageID, true
		},
		IndexSourceType: func(d *MedicalDocument) (string, bool) {
			return string(d.SourceType), true
		},
		IndexFingerprint: func(d *MedicalDocument) (string, bool) {
			if d.Fingerprint == nil {
				return "", false
			}
			return *d.Fingerprint, true
		},
	})
}
