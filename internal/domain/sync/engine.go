package sync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EntityStore is implemented by each syncable domain package. All methods
// respect a transaction carried in ctx, so one failed change rolls back
// without touching the rest of the batch.
type EntityStore interface {
	EntityType() string
	Create(ctx context.Context, data map[string]interface{}, createdBy string) (string, error)
	// CreateWithID must resurrect a soft-deleted row carrying the same id
	// rather than fail on the occupied key.
	CreateWithID(ctx context.Context, id string, data map[string]interface{}, createdBy string) (string, error)
	Update(ctx context.Context, id string, data map[string]interface{}) error
	// Delete is idempotent: deleting a missing or already-deleted entity
	// succeeds.
	Delete(ctx context.Context, id string) error
	// UpdatedAt returns ErrNotFound when the entity does not exist.
	UpdatedAt(ctx context.Context, id string) (time.Time, error)
	// ChangedSince includes soft-deleted rows so deletions propagate.
	ChangedSince(ctx context.Context, since time.Time) ([]ChangedRow, error)
}

// Engine dispatches uploaded changes to the registered entity stores and
// detects write conflicts.
type Engine struct {
	stores map[string]EntityStore
}

func NewEngine() *Engine {
	return &Engine{stores: make(map[string]EntityStore)}
}

func (e *Engine) Register(store EntityStore) {
	e.stores[store.EntityType()] = store
}

func (e *Engine) Store(entityType string) (EntityStore, error) {
	store, ok := e.stores[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEntityType, entityType)
	}
	return store, nil
}

// EntityTypes lists the registered types in no particular order.
func (e *Engine) EntityTypes() []string {
	types := make([]string, 0, len(e.stores))
	for t := range e.stores {
		types = append(types, t)
	}
	return types
}

// Apply executes one change. For updates it first compares the server's
// updated_at against the device's last known view (change.BaseUpdatedAt
// when supplied, otherwise baseline) and returns ErrConflict when the
// server copy moved underneath the device. An update to a missing entity
// creates it under the client-supplied ID, so a row deleted server-side
// or never uploaded still lands.
func (e *Engine) Apply(ctx context.Context, change Change, baseline *time.Time, createdBy string) (serverEntityID string, err error) {
	store, err := e.Store(change.EntityType)
	if err != nil {
		return "", err
	}

	switch change.Operation {
	case OpCreate:
		return store.Create(ctx, change.Data, createdBy)

	case OpUpdate:
		serverUpdatedAt, err := store.UpdatedAt(ctx, change.EntityID)
		if errors.Is(err, ErrNotFound) {
			return store.CreateWithID(ctx, change.EntityID, change.Data, createdBy)
		}
		if err != nil {
			return "", fmt.Errorf("check %s %s: %w", change.EntityType, change.EntityID, err)
		}
		base := baseline
		if change.BaseUpdatedAt != nil {
			base = change.BaseUpdatedAt
		}
		if base != nil && serverUpdatedAt.After(*base) {
			return "", ErrConflict
		}
		if err := store.Update(ctx, change.EntityID, change.Data); err != nil {
			return "", err
		}
		return change.EntityID, nil

	case OpDelete:
		if err := store.Delete(ctx, change.EntityID); err != nil {
			return "", err
		}
		return change.EntityID, nil

	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedOperation, change.Operation)
	}
}

// Delta collects server-side changes since the given time, from every
// registered store or, when entityTypes are given, only from those.
// Deleted rows come back as delete operations with no data. An unknown
// entity type in the filter is ErrUnsupportedEntityType.
func (e *Engine) Delta(ctx context.Context, since time.Time, entityTypes ...string) ([]DeltaEntry, error) {
	stores := e.stores
	if len(entityTypes) > 0 {
		stores = make(map[string]EntityStore, len(entityTypes))
		for _, typ := range entityTypes {
			store, err := e.Store(typ)
			if err != nil {
				return nil, err
			}
			stores[typ] = store
		}
	}

	var out []DeltaEntry
	for typ, store := range stores {
		rows, err := store.ChangedSince(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("collect %s changes: %w", typ, err)
		}
		for _, row := range rows {
			entry := DeltaEntry{
				EntityType: typ,
				EntityID:   row.ID,
				Operation:  OpUpdate,
				Data:       row.Data,
				UpdatedAt:  row.UpdatedAt,
			}
			if row.Deleted {
				entry.Operation = OpDelete
				entry.Data = nil
			}
			out = append(out, entry)
		}
	}
	return out, nil
}
