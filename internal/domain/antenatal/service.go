package antenatal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("antenatal visit not found")

// EventPublisher receives entity lifecycle events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{}) error
}

type Service struct {
	repo     VisitRepository
	validate *validator.Validate
	events   EventPublisher
}

func NewService(repo VisitRepository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

func (s *Service) SetEvents(events EventPublisher) {
	s.events = events
}

func (s *Service) publish(ctx context.Context, event string, id uuid.UUID) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, event, map[string]interface{}{"antenatalVisitId": id.String()})
}

func (s *Service) Create(ctx context.Context, v *Visit) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid antenatal visit: %w", err)
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return err
	}
	s.publish(ctx, "antenatal_visit.created", v.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get antenatal visit %s: %w", id, err)
	}
	return v, nil
}

func (s *Service) Update(ctx context.Context, v *Visit) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid antenatal visit: %w", err)
	}
	if err := s.repo.Update(ctx, v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update antenatal visit %s: %w", v.ID, err)
	}
	s.publish(ctx, "antenatal_visit.updated", v.ID)
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete antenatal visit %s: %w", id, err)
	}
	if deleted {
		s.publish(ctx, "antenatal_visit.deleted", id)
	}
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	t, err := s.repo.UpdatedAt(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("antenatal visit %s updated_at: %w", id, err)
	}
	return t, nil
}

func (s *Service) ChangedSince(ctx context.Context, since time.Time) ([]ChangedVisit, error) {
	return s.repo.ChangedSince(ctx, since)
}
