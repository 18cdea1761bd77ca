package death

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hmis/hmis/internal/domain/sync"
)

// SyncStore adapts death records to the sync engine.
type SyncStore struct {
	svc *Service
}

func NewSyncStore(svc *Service) *SyncStore {
	return &SyncStore{svc: svc}
}

func (s *SyncStore) EntityType() string { return "death_record" }

func decodeDeath(data map[string]interface{}, into *DeathRecord) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode death record data: %w", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode death record data: %w", err)
	}
	return nil
}

func (s *SyncStore) Create(ctx context.Context, data map[string]interface{}, createdBy string) (string, error) {
	var d DeathRecord
	if err := decodeDeath(data, &d); err != nil {
		return "", err
	}
	d.ID = uuid.Nil
	d.CreatedBy = createdBy
	if err := s.svc.Create(ctx, &d); err != nil {
		return "", err
	}
	return d.ID.String(), nil
}

func (s *SyncStore) CreateWithID(ctx context.Context, id string, data map[string]interface{}, createdBy string) (string, error) {
	entityID, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid death record id %q: %w", id, err)
	}
	var d DeathRecord
	if err := decodeDeath(data, &d); err != nil {
		return "", err
	}
	d.ID = entityID
	d.CreatedBy = createdBy
	if err := s.svc.Create(ctx, &d); err != nil {
		return "", err
	}
	return d.ID.String(), nil
}

func (s *SyncStore) Update(ctx context.Context, id string, data map[string]interface{}) error {
	entityID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid death record id %q: %w", id, err)
	}
	existing, err := s.svc.Get(ctx, entityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return sync.ErrNotFound
		}
		return err
	}
	if err := decodeDeath(data, existing); err != nil {
		return err
	}
	existing.ID = entityID
	return s.svc.Update(ctx, existing)
}

func (s *SyncStore) Delete(ctx context.Context, id string) error {
	entityID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid death record id %q: %w", id, err)
	}
	return s.svc.Delete(ctx, entityID)
}

func (s *SyncStore) UpdatedAt(ctx context.Context, id string) (time.Time, error) {
	entityID, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid death record id %q: %w", id, err)
	}
	t, err := s.svc.UpdatedAt(ctx, entityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return time.Time{}, sync.ErrNotFound
		}
		return time.Time{}, err
	}
	return t, nil
}

func (s *SyncStore) ChangedSince(ctx context.Context, since time.Time) ([]sync.ChangedRow, error) {
	changed, err := s.svc.ChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	out := make([]sync.ChangedRow, 0, len(changed))
	for _, c := range changed {
		row := sync.ChangedRow{
			ID:        c.Record.ID.String(),
			Deleted:   c.Deleted,
			UpdatedAt: c.Record.UpdatedAt,
		}
		if !c.Deleted {
			raw, err := json.Marshal(c.Record)
			if err != nil {
				return nil, err
			}
			var data map[string]interface{}
			if err := json.Unmarshal(raw, &data); err != nil {
				return nil, err
			}
			row.Data = data
		}
		out = append(out, row)
	}
	return out, nil
}
