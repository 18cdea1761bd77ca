package surveillance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("disease case not found")

// EventPublisher receives entity lifecycle events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{}) error
}

type Service struct {
	repo     CaseRepository
	validate *validator.Validate
	events   EventPublisher
}

func NewService(repo CaseRepository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

func (s *Service) SetEvents(events EventPublisher) {
	s.events = events
}

func (s *Service) publish(ctx context.Context, event string, id uuid.UUID) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, event, map[string]interface{}{"diseaseCaseId": id.String()})
}

func (s *Service) Create(ctx context.Context, dc *DiseaseCase) error {
	if err := s.validate.Struct(dc); err != nil {
		return fmt.Errorf("invalid disease case: %w", err)
	}
	if dc.ReportedDate.After(time.Now()) {
		return fmt.Errorf("reported date cannot be in the future")
	}
	if dc.OnsetDate != nil && dc.OnsetDate.After(dc.ReportedDate) {
		return fmt.Errorf("onset date cannot be after reported date")
	}
	if err := s.repo.Create(ctx, dc); err != nil {
		return err
	}
	s.publish(ctx, "disease_case.created", dc.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*DiseaseCase, error) {
	dc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get disease case %s: %w", id, err)
	}
	return dc, nil
}

func (s *Service) Update(ctx context.Context, dc *DiseaseCase) error {
	if err := s.validate.Struct(dc); err != nil {
		return fmt.Errorf("invalid disease case: %w", err)
	}
	if err := s.repo.Update(ctx, dc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update disease case %s: %w", dc.ID, err)
	}
	s.publish(ctx, "disease_case.updated", dc.ID)
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete disease case %s: %w", id, err)
	}
	if deleted {
		s.publish(ctx, "disease_case.deleted", id)
	}
	return nil
}

func (s *Service) List(ctx context.Context, disease, status string, limit, offset int) ([]*DiseaseCase, int, error) {
	return s.repo.List(ctx, disease, status, limit, offset)
}

func (s *Service) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	t, err := s.repo.UpdatedAt(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("disease case %s updated_at: %w", id, err)
	}
	return t, nil
}

func (s *Service) ChangedSince(ctx context.Context, since time.Time) ([]ChangedCase, error) {
	return s.repo.ChangedSince(ctx, since)
}
