package surveillance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type mockCaseRepo struct {
	rows map[uuid.UUID]*DiseaseCase
}

func newMockCaseRepo() *mockCaseRepo {
	return &mockCaseRepo{rows: make(map[uuid.UUID]*DiseaseCase)}
}

func (m *mockCaseRepo) Create(ctx context.Context, dc *DiseaseCase) error {
	if dc.ID == uuid.Nil {
		dc.ID = uuid.New()
	}
	now := time.Now()
	dc.CreatedAt, dc.UpdatedAt = now, now
	cp := *dc
	m.rows[dc.ID] = &cp
	return nil
}

func (m *mockCaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*DiseaseCase, error) {
	dc, ok := m.rows[id]
	if !ok || dc.DeletedAt != nil {
		return nil, pgx.ErrNoRows
	}
	cp := *dc
	return &cp, nil
}

func (m *mockCaseRepo) Update(ctx context.Context, dc *DiseaseCase) error {
	existing, ok := m.rows[dc.ID]
	if !ok || existing.DeletedAt != nil {
		return pgx.ErrNoRows
	}
	dc.UpdatedAt = time.Now()
	cp := *dc
	m.rows[dc.ID] = &cp
	return nil
}

func (m *mockCaseRepo) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	dc, ok := m.rows[id]
	if !ok || dc.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	dc.DeletedAt = &now
	dc.UpdatedAt = now
	return true, nil
}

func (m *mockCaseRepo) List(ctx context.Context, disease, status string, limit, offset int) ([]*DiseaseCase, int, error) {
	var items []*DiseaseCase
	for _, dc := range m.rows {
		if dc.DeletedAt != nil {
			continue
		}
		if disease != "" && dc.Disease != disease {
			continue
		}
		if status != "" && dc.Status != status {
			continue
		}
		cp := *dc
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func (m *mockCaseRepo) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	dc, ok := m.rows[id]
	if !ok || dc.DeletedAt != nil {
		return time.Time{}, pgx.ErrNoRows
	}
	return dc.UpdatedAt, nil
}

func (m *mockCaseRepo) ChangedSince(ctx context.Context, since time.Time) ([]ChangedCase, error) {
	var out []ChangedCase
	for _, dc := range m.rows {
		if dc.UpdatedAt.After(since) {
			cp := *dc
			out = append(out, ChangedCase{Case: &cp, Deleted: dc.DeletedAt != nil})
		}
	}
	return out, nil
}

func validCase() *DiseaseCase {
	return &DiseaseCase{
		Disease:      "measles",
		Status:       StatusSuspected,
		ReportedDate: time.Now().AddDate(0, 0, -1),
		CreatedBy:    "user-1",
	}
}

func TestCreateCase(t *testing.T) {
	svc := NewService(newMockCaseRepo())

	dc := validCase()
	if err := svc.Create(context.Background(), dc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dc.ID == uuid.Nil {
		t.Error("expected an id to be assigned")
	}
}

func TestCreateCase_InvalidStatus(t *testing.T) {
	svc := NewService(newMockCaseRepo())

	dc := validCase()
	dc.Status = "cured"
	if err := svc.Create(context.Background(), dc); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCreateCase_FutureReportedDateRejected(t *testing.T) {
	svc := NewService(newMockCaseRepo())

	dc := validCase()
	dc.ReportedDate = time.Now().AddDate(0, 0, 2)
	if err := svc.Create(context.Background(), dc); err == nil {
		t.Fatal("expected error for future reported date")
	}
}

func TestCreateCase_OnsetAfterReportRejected(t *testing.T) {
	svc := NewService(newMockCaseRepo())

	dc := validCase()
	onset := dc.ReportedDate.AddDate(0, 0, 1)
	dc.OnsetDate = &onset
	if err := svc.Create(context.Background(), dc); err == nil {
		t.Fatal("expected error for onset after reported date")
	}
}

func TestListCases_FilterByDiseaseAndStatus(t *testing.T) {
	svc := NewService(newMockCaseRepo())

	measles := validCase()
	if err := svc.Create(context.Background(), measles); err != nil {
		t.Fatalf("create: %v", err)
	}
	cholera := validCase()
	cholera.Disease = "cholera"
	cholera.Status = StatusConfirmed
	if err := svc.Create(context.Background(), cholera); err != nil {
		t.Fatalf("create: %v", err)
	}

	items, total, err := svc.List(context.Background(), "cholera", StatusConfirmed, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected 1 matching case, got %d", total)
	}
	if items[0].Disease != "cholera" {
		t.Errorf("wrong case returned: %s", items[0].Disease)
	}
}

func TestDeleteCase_Idempotent(t *testing.T) {
	svc := NewService(newMockCaseRepo())

	dc := validCase()
	if err := svc.Create(context.Background(), dc); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.Delete(context.Background(), dc.ID); err != nil {
			t.Fatalf("delete attempt %d: %v", i+1, err)
		}
	}
	if _, err := svc.Get(context.Background(), dc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted case should be hidden, got %v", err)
	}
}
