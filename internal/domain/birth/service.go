package birth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("birth record not found")

// EventPublisher receives entity lifecycle events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]interface{}) error
}

type Service struct {
	repo     BirthRepository
	validate *validator.Validate
	events   EventPublisher
}

func NewService(repo BirthRepository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

func (s *Service) SetEvents(events EventPublisher) {
	s.events = events
}

func (s *Service) publish(ctx context.Context, event string, id uuid.UUID) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, event, map[string]interface{}{"birthRecordId": id.String()})
}

func (s *Service) Create(ctx context.Context, b *BirthRecord) error {
	if err := s.validate.Struct(b); err != nil {
		return fmt.Errorf("invalid birth record: %w", err)
	}
	if b.DateOfBirth.After(time.Now()) {
		return fmt.Errorf("date of birth cannot be in the future")
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return err
	}
	s.publish(ctx, "birth_record.created", b.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*BirthRecord, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get birth record %s: %w", id, err)
	}
	return b, nil
}

func (s *Service) Update(ctx context.Context, b *BirthRecord) error {
	if err := s.validate.Struct(b); err != nil {
		return fmt.Errorf("invalid birth record: %w", err)
	}
	if err := s.repo.Update(ctx, b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update birth record %s: %w", b.ID, err)
	}
	s.publish(ctx, "birth_record.updated", b.ID)
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete birth record %s: %w", id, err)
	}
	if deleted {
		s.publish(ctx, "birth_record.deleted", id)
	}
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*BirthRecord, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByMother(ctx context.Context, motherID uuid.UUID, limit, offset int) ([]*BirthRecord, int, error) {
	return s.repo.ListByMother(ctx, motherID, limit, offset)
}

func (s *Service) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	t, err := s.repo.UpdatedAt(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("birth record %s updated_at: %w", id, err)
	}
	return t, nil
}

func (s *Service) ChangedSince(ctx context.Context, since time.Time) ([]ChangedRecord, error) {
	return s.repo.ChangedSince(ctx, since)
}
