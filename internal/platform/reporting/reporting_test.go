package reporting

import (
	"strings"
	"testing"
)

func TestPredefinedMeasures(t *testing.T) {
	if len(PredefinedMeasures) != 7 {
		t.Fatalf("expected 7 predefined measures, got %d", len(PredefinedMeasures))
	}

	expectedIDs := []string{
		"patient-count",
		"births-by-month",
		"deaths-by-cause",
		"anc-visit-volume",
		"immunization-coverage-by-vaccine",
		"disease-cases-by-status",
		"sync-activity-by-device",
	}

	for i, expectedID := range expectedIDs {
		if PredefinedMeasures[i].ID != expectedID {
			t.Errorf("expected measure[%d].ID = %s, got %s", i, expectedID, PredefinedMeasures[i].ID)
		}
	}
}

func TestPredefinedMeasures_HaveSQL(t *testing.T) {
	for _, m := range PredefinedMeasures {
		if m.SQL == "" {
			t.Errorf("measure %s has empty SQL", m.ID)
		}
		if m.Name == "" {
			t.Errorf("measure %s has empty name", m.ID)
		}
		if m.Description == "" {
			t.Errorf("measure %s has empty description", m.ID)
		}
	}
}

func TestPredefinedMeasures_ExcludeSoftDeleted(t *testing.T) {
	// Register queries must not count soft-deleted rows. The device activity
	// measure reads the device and session tables, which are hard-deleted.
	for _, m := range PredefinedMeasures {
		if m.ID == "sync-activity-by-device" {
			continue
		}
		if !strings.Contains(m.SQL, "deleted_at IS NULL") {
			t.Errorf("measure %s does not filter soft-deleted rows", m.ID)
		}
	}
}

func TestFindMeasure_Exists(t *testing.T) {
	m := FindMeasure("patient-count")
	if m == nil {
		t.Fatal("expected to find patient-count measure")
	}
	if m.Name != "Patient Count" {
		t.Errorf("expected 'Patient Count', got %s", m.Name)
	}
}

func TestFindMeasure_NotFound(t *testing.T) {
	m := FindMeasure("nonexistent")
	if m != nil {
		t.Error("expected nil for nonexistent measure")
	}
}

func TestFindMeasure_AllPredefined(t *testing.T) {
	for _, def := range PredefinedMeasures {
		found := FindMeasure(def.ID)
		if found == nil {
			t.Errorf("expected to find measure %s", def.ID)
		}
		if found != nil && found.ID != def.ID {
			t.Errorf("ID mismatch: expected %s, got %s", def.ID, found.ID)
		}
	}
}

func TestMeasureReport_Structure(t *testing.T) {
	report := MeasureReport{
		MeasureID:   "patient-count",
		MeasureName: "Patient Count",
		Results: []map[string]interface{}{
			{"total": 100, "female": 55, "male": 45},
		},
	}

	if report.MeasureID != "patient-count" {
		t.Errorf("unexpected MeasureID: %s", report.MeasureID)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(report.Results))
	}
	if report.Results[0]["total"] != 100 {
		t.Errorf("unexpected total: %v", report.Results[0]["total"])
	}
}

func TestNewHandler(t *testing.T) {
	h := NewHandler(nil)
	if h == nil {
		t.Fatal("expected non-nil handler")
	}
}
