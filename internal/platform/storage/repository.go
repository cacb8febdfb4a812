// Package storage defines the persistence contract the domain packages are
// written against. Implementations must not leak their backing mechanism:
// the core never assumes file, SQL, or in-memory layout.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrVersionConflict is returned by Save when a versioned entity was
	// modified by another writer since it was read.
	ErrVersionConflict = errors.New("storage: version conflict")

	// ErrUnknownIndex is returned by indexed lookups for a field that the
	// repository does not index.
	ErrUnknownIndex = errors.New("storage: unknown index field")
)

// Entity is the minimal contract stored records satisfy. Clone must return a
// deep copy so that repositories can hand out values without sharing mutable
// state with callers.
type Entity[T any] interface {
	EntityID() uuid.UUID
	Clone() T
}

// Versioned is implemented by entities that participate in optimistic
// concurrency control. Save compares the incoming record version against the
// stored one and rejects stale writes with ErrVersionConflict.
type Versioned interface {
	RecordVersion() int64
	SetRecordVersion(v int64)
}

// Repository is the generic record-store contract.
//
// Save upserts and returns the stored entity (with an advanced record version
// for Versioned entities). Get returns the zero value and a nil error when no
// record exists; absence is a result, not an error, so read-modify-write
// callers can decide how to proceed.
type Repository[T Entity[T]] interface {
	Save(ctx context.Context, entity T) (T, error)
	Get(ctx context.Context, id uuid.UUID) (T, error)
	GetAll(ctx context.Context) ([]T, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Find(ctx context.Context, match func(T) bool) ([]T, error)
	Count(ctx context.Context) (int, error)
}

// IndexedRepository extends Repository with lookups over named index fields.
// The set of indexable fields is fixed per repository; querying an
// unregistered field returns ErrUnknownIndex.
type IndexedRepository[T Entity[T]] interface {
	Repository[T]

	FindByIndex(ctx context.Context, field string, value any) (T, error)
	FindAllByIndex(ctx context.Context, field string, value any) ([]T, error)
	CountByIndex(ctx context.Context, field string, value any) (int, error)
}

// IndexFunc extracts an index key from an entity. The second return value
// reports whether the entity has a value for the index at all (absent keys
// are excluded from the index).
type IndexFunc[T any] func(entity T) (string, bool)
