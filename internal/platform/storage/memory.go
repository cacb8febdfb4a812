package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory IndexedRepository. It clones
// entities on the way in and out, so callers never share mutable state with
// the store, and it preserves insertion order for GetAll/Find results to keep
// re-runs of pool-scanning operations deterministic.
type MemoryRepository[T Entity[T]] struct {
	mu      sync.RWMutex
	items   map[uuid.UUID]T
	order   []uuid.UUID
	indexes map[string]IndexFunc[T]
}

// NewMemoryRepository creates an empty in-memory repository. The indexes map
// registers the fields available to the indexed lookups; nil is accepted for
// repositories that need none.
func NewMemoryRepository[T Entity[T]](indexes map[string]IndexFunc[T]) *MemoryRepository[T] {
	if indexes == nil {
		indexes = map[string]IndexFunc[T]{}
	}
	return &MemoryRepository[T]{
		items:   make(map[uuid.UUID]T),
		indexes: indexes,
	}
}

func (r *MemoryRepository[T]) Save(ctx context.Context, entity T) (T, error) {
	var zero T
	id := entity.EntityID()
	if id == uuid.Nil {
		return zero, fmt.Errorf("storage: entity has no id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.items[id]

	if v, ok := any(entity).(Versioned); ok {
		if exists {
			current := any(stored).(Versioned).RecordVersion()
			if v.RecordVersion() != current {
				return zero, ErrVersionConflict
			}
		}
	}

	clone := entity.Clone()
	if v, ok := any(clone).(Versioned); ok {
		v.SetRecordVersion(v.RecordVersion() + 1)
	}

	r.items[id] = clone
	if !exists {
		r.order = append(r.order, id)
	}
	return clone.Clone(), nil
}

func (r *MemoryRepository[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.items[id]
	if !ok {
		var zero T
		return zero, nil
	}
	return stored.Clone(), nil
}

func (r *MemoryRepository[T]) GetAll(ctx context.Context) ([]T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id].Clone())
	}
	return out, nil
}

func (r *MemoryRepository[T]) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return false, nil
	}
	delete(r.items, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (r *MemoryRepository[T]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.items[id]
	return ok, nil
}

// Find returns all entities matching the predicate, in insertion order. The
// predicate receives stored values and must treat them as read-only.
func (r *MemoryRepository[T]) Find(ctx context.Context, match func(T) bool) ([]T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []T
	for _, id := range r.order {
		if match(r.items[id]) {
			out = append(out, r.items[id].Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepository[T]) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items), nil
}

func (r *MemoryRepository[T]) FindByIndex(ctx context.Context, field string, value any) (T, error) {
	var zero T
	matches, err := r.findAllByIndex(field, value, true)
	if err != nil {
		return zero, err
	}
	if len(matches) == 0 {
		return zero, nil
	}
	return matches[0], nil
}

func (r *MemoryRepository[T]) FindAllByIndex(ctx context.Context, field string, value any) ([]T, error) {
	return r.findAllByIndex(field, value, false)
}

func (r *MemoryRepository[T]) CountByIndex(ctx context.Context, field string, value any) (int, error) {
	matches, err := r.findAllByIndex(field, value, false)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (r *MemoryRepository[T]) findAllByIndex(field string, value any, first bool) ([]T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	extract, ok := r.indexes[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, field)
	}

	want := indexKey(value)
	var out []T
	for _, id := range r.order {
		key, has := extract(r.items[id])
		if !has || key != want {
			continue
		}
		out = append(out, r.items[id].Clone())
		if first {
			return out, nil
		}
	}
	return out, nil
}

// indexKey normalizes a lookup value to the string space IndexFunc keys live
// in. Stringer implementations (uuid.UUID) and typed string enums normalize
// to their obvious representation.
func indexKey(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
