package death

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("death record not found")

// EventPublisher receives entity lifecycle events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{}) error
}

type Service struct {
	repo     DeathRepository
	validate *validator.Validate
	events   EventPublisher
}

func NewService(repo DeathRepository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

func (s *Service) SetEvents(events EventPublisher) {
	s.events = events
}

func (s *Service) publish(ctx context.Context, event string, id uuid.UUID) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, event, map[string]interface{}{"deathRecordId": id.String()})
}

func (s *Service) Create(ctx context.Context, d *DeathRecord) error {
	if err := s.validate.Struct(d); err != nil {
		return fmt.Errorf("invalid death record: %w", err)
	}
	if d.DateOfDeath.After(time.Now()) {
		return fmt.Errorf("date of death cannot be in the future")
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return err
	}
	s.publish(ctx, "death_record.created", d.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*DeathRecord, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get death record %s: %w", id, err)
	}
	return d, nil
}

func (s *Service) Update(ctx context.Context, d *DeathRecord) error {
	if err := s.validate.Struct(d); err != nil {
		return fmt.Errorf("invalid death record: %w", err)
	}
	if err := s.repo.Update(ctx, d); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update death record %s: %w", d.ID, err)
	}
	s.publish(ctx, "death_record.updated", d.ID)
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete death record %s: %w", id, err)
	}
	if deleted {
		s.publish(ctx, "death_record.deleted", id)
	}
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*DeathRecord, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	t, err := s.repo.UpdatedAt(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("death record %s updated_at: %w", id, err)
	}
	return t, nil
}

func (s *Service) ChangedSince(ctx context.Context, since time.Time) ([]ChangedRecord, error) {
	return s.repo.ChangedSince(ctx, since)
}
