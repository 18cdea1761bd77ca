package immunization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("immunization not found")

// EventPublisher receives entity lifecycle events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{}) error
}

type Service struct {
	repo     ImmunizationRepository
	validate *validator.Validate
	events   EventPublisher
}

func NewService(repo ImmunizationRepository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

func (s *Service) SetEvents(events EventPublisher) {
	s.events = events
}

func (s *Service) publish(ctx context.Context, event string, id uuid.UUID) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, event, map[string]interface{}{"immunizationId": id.String()})
}

func (s *Service) Create(ctx context.Context, im *Immunization) error {
	if err := s.validate.Struct(im); err != nil {
		return fmt.Errorf("invalid immunization: %w", err)
	}
	if im.DateGiven.After(time.Now()) {
		return fmt.Errorf("date given cannot be in the future")
	}
	if err := s.repo.Create(ctx, im); err != nil {
		return err
	}
	s.publish(ctx, "immunization.created", im.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Immunization, error) {
	im, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get immunization %s: %w", id, err)
	}
	return im, nil
}

func (s *Service) Update(ctx context.Context, im *Immunization) error {
	if err := s.validate.Struct(im); err != nil {
		return fmt.Errorf("invalid immunization: %w", err)
	}
	if err := s.repo.Update(ctx, im); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update immunization %s: %w", im.ID, err)
	}
	s.publish(ctx, "immunization.updated", im.ID)
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete immunization %s: %w", id, err)
	}
	if deleted {
		s.publish(ctx, "immunization.deleted", id)
	}
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Immunization, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Immunization, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	t, err := s.repo.UpdatedAt(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("immunization %s updated_at: %w", id, err)
	}
	return t, nil
}

func (s *Service) ChangedSince(ctx context.Context, since time.Time) ([]ChangedImmunization, error) {
	return s.repo.ChangedSince(ctx, since)
}
