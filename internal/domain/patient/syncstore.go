package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hmis/hmis/internal/domain/sync"
)

// SyncStore adapts the patient service to the sync engine. Change payloads
// travel as generic maps; the JSON round-trip reuses the model's field
// validation and naming.
type SyncStore struct {
	svc *Service
}

func NewSyncStore(svc *Service) *SyncStore {
	return &SyncStore{svc: svc}
}

func (s *SyncStore) EntityType() string { return "patient" }

func decodePatient(data map[string]interface{}, into *Patient) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode patient data: %w", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode patient data: %w", err)
	}
	return nil
}

func encodePatient(p *Patient) (map[string]interface{}, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SyncStore) Create(ctx context.Context, data map[string]interface{}, createdBy string) (string, error) {
	var p Patient
	if err := decodePatient(data, &p); err != nil {
		return "", err
	}
	p.ID = uuid.Nil
	p.CreatedBy = createdBy
	if err := s.svc.Create(ctx, &p); err != nil {
		return "", err
	}
	return p.ID.String(), nil
}

func (s *SyncStore) CreateWithID(ctx context.Context, id string, data map[string]interface{}, createdBy string) (string, error) {
	entityID, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid patient id %q: %w", id, err)
	}
	var p Patient
	if err := decodePatient(data, &p); err != nil {
		return "", err
	}
	p.ID = entityID
	p.CreatedBy = createdBy
	if err := s.svc.Create(ctx, &p); err != nil {
		return "", err
	}
	return p.ID.String(), nil
}

func (s *SyncStore) Update(ctx context.Context, id string, data map[string]interface{}) error {
	entityID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid patient id %q: %w", id, err)
	}
	existing, err := s.svc.Get(ctx, entityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return sync.ErrNotFound
		}
		return err
	}
	// Overlay the change on the current row so partial payloads keep the
	// untouched fields.
	if err := decodePatient(data, existing); err != nil {
		return err
	}
	existing.ID = entityID
	return s.svc.Update(ctx, existing)
}

func (s *SyncStore) Delete(ctx context.Context, id string) error {
	entityID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid patient id %q: %w", id, err)
	}
	return s.svc.Delete(ctx, entityID)
}

func (s *SyncStore) UpdatedAt(ctx context.Context, id string) (time.Time, error) {
	entityID, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid patient id %q: %w", id, err)
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
			ID:        c.Patient.ID.String(),
			Deleted:   c.Deleted,
			UpdatedAt: c.Patient.UpdatedAt,
		}
		if !c.Deleted {
			data, err := encodePatient(c.Patient)
			if err != nil {
				return nil, err
			}
			row.Data = data
		}
		out = append(out, row)
	}
	return out, nil
}
