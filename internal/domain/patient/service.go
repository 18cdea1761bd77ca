package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("patient not found")

// EventPublisher receives entity lifecycle events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{}) error
}

type Service struct {
	repo     PatientRepository
	validate *validator.Validate
	events   EventPublisher
}

func NewService(repo PatientRepository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

func (s *Service) SetEvents(events EventPublisher) {
	s.events = events
}

func (s *Service) publish(ctx context.Context, event string, id uuid.UUID) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, event, map[string]interface{}{"patientId": id.String()})
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid patient: %w", err)
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.publish(ctx, "patient.created", p.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid patient: %w", err)
	}
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	s.publish(ctx, "patient.updated", p.ID)
	return nil
}

// Delete soft-deletes the patient. Deleting an already-deleted or missing
// patient is not an error, so offline replays stay idempotent.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	if deleted {
		s.publish(ctx, "patient.deleted", id)
	}
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Search(ctx context.Context, name, village string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.Search(ctx, name, village, limit, offset)
}

func (s *Service) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	t, err := s.repo.UpdatedAt(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("patient %s updated_at: %w", id, err)
	}
	return t, nil
}

func (s *Service) ChangedSince(ctx context.Context, since time.Time) ([]ChangedPatient, error) {
	return s.repo.ChangedSince(ctx, since)
}
