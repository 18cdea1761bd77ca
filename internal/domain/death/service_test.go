package death

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type mockDeathRepo struct {
	records map[uuid.UUID]*DeathRecord
}

func newMockDeathRepo() *mockDeathRepo {
	return &mockDeathRepo{records: make(map[uuid.UUID]*DeathRecord)}
}

func (m *mockDeathRepo) Create(ctx context.Context, d *DeathRecord) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	m.records[d.ID] = &cp
	return nil
}

func (m *mockDeathRepo) GetByID(ctx context.Context, id uuid.UUID) (*DeathRecord, error) {
	d, ok := m.records[id]
	if !ok || d.DeletedAt != nil {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDeathRepo) Update(ctx context.Context, d *DeathRecord) error {
	existing, ok := m.records[d.ID]
	if !ok || existing.DeletedAt != nil {
		return pgx.ErrNoRows
	}
	d.UpdatedAt = time.Now()
	cp := *d
	m.records[d.ID] = &cp
	return nil
}

func (m *mockDeathRepo) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	d, ok := m.records[id]
	if !ok || d.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	d.DeletedAt = &now
	d.UpdatedAt = now
	return true, nil
}

func (m *mockDeathRepo) List(ctx context.Context, limit, offset int) ([]*DeathRecord, int, error) {
	var items []*DeathRecord
	for _, d := range m.records {
		if d.DeletedAt == nil {
			cp := *d
			items = append(items, &cp)
		}
	}
	return items, len(items), nil
}

func (m *mockDeathRepo) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	d, ok := m.records[id]
	if !ok || d.DeletedAt != nil {
		return time.Time{}, pgx.ErrNoRows
	}
	return d.UpdatedAt, nil
}

func (m *mockDeathRepo) ChangedSince(ctx context.Context, since time.Time) ([]ChangedRecord, error) {
	var out []ChangedRecord
	for _, d := range m.records {
		if d.UpdatedAt.After(since) {
			cp := *d
			out = append(out, ChangedRecord{Record: &cp, Deleted: d.DeletedAt != nil})
		}
	}
	return out, nil
}

func validDeathRecord() *DeathRecord {
	return &DeathRecord{
		FirstName:    "Sekou",
		LastName:     "Toure",
		DateOfDeath:  time.Now().AddDate(0, 0, -1),
		CauseOfDeath: "malaria",
		CreatedBy:    "user-1",
	}
}

func TestCreateDeathRecord(t *testing.T) {
	svc := NewService(newMockDeathRepo())

	d := validDeathRecord()
	if err := svc.Create(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID == uuid.Nil {
		t.Error("expected an id to be assigned")
	}
}

func TestCreateDeathRecord_MissingCause(t *testing.T) {
	svc := NewService(newMockDeathRepo())

	d := validDeathRecord()
	d.CauseOfDeath = ""
	if err := svc.Create(context.Background(), d); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCreateDeathRecord_FutureDateRejected(t *testing.T) {
	svc := NewService(newMockDeathRepo())

	d := validDeathRecord()
	d.DateOfDeath = time.Now().AddDate(0, 0, 2)
	if err := svc.Create(context.Background(), d); err == nil {
		t.Fatal("expected error for future date of death")
	}
}

func TestDeleteDeathRecord_Idempotent(t *testing.T) {
	svc := NewService(newMockDeathRepo())

	d := validDeathRecord()
	if err := svc.Create(context.Background(), d); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.Delete(context.Background(), d.ID); err != nil {
			t.Fatalf("delete attempt %d: %v", i+1, err)
		}
	}
	if _, err := svc.Get(context.Background(), d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted record should be hidden, got %v", err)
	}
}
