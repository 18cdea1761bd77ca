package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func auditTestContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAudit_RecordsApiV1Access(t *testing.T) {
	c, _ := auditTestContext(http.MethodGet, "/api/v1/patients/550e8400-e29b-41d4-a716-446655440000")
	c.Set("request_id", "req-1")

	var captured AuditEntry
	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		captured = entry
		return nil
	})

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := Audit(zerolog.Nop(), recorder)
	if err := mw(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.Action != "read" {
		t.Errorf("expected action read, got %s", captured.Action)
	}
	if captured.ResourceType != "patients" {
		t.Errorf("expected resource type patients, got %s", captured.ResourceType)
	}
	if captured.PatientID != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("expected patient id from path, got %q", captured.PatientID)
	}
	if captured.RequestID != "req-1" {
		t.Errorf("expected request id req-1, got %s", captured.RequestID)
	}
	if captured.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", captured.StatusCode)
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	c, _ := auditTestContext(http.MethodGet, "/health")

	recorded := false
	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		recorded = true
		return nil
	})

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	mw := Audit(zerolog.Nop(), recorder)
	if err := mw(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded {
		t.Error("expected no audit entry for non-API path")
	}
}

func TestAudit_RecorderFailureDoesNotFailRequest(t *testing.T) {
	c, rec := auditTestContext(http.MethodPost, "/api/v1/birth-records")

	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		return errors.New("sink unavailable")
	})

	handler := func(c echo.Context) error {
		return c.String(http.StatusCreated, "created")
	}

	mw := Audit(zerolog.Nop(), recorder)
	if err := mw(handler)(c); err != nil {
		t.Fatalf("expected request to succeed despite recorder failure, got %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
}

func TestHTTPMethodToAction(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{http.MethodGet, "read"},
		{http.MethodHead, "read"},
		{http.MethodPost, "create"},
		{http.MethodPut, "update"},
		{http.MethodPatch, "update"},
		{http.MethodDelete, "delete"},
		{"OPTIONS", "read"},
	}
	for _, tt := range tests {
		if got := httpMethodToAction(tt.method); got != tt.want {
			t.Errorf("httpMethodToAction(%s) = %s, want %s", tt.method, got, tt.want)
		}
	}
}

func TestExtractResourceType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/patients", "patients"},
		{"/api/v1/patients/abc", "patients"},
		{"/api/v1/sync/upload", "sync"},
		{"/api/v1/death-records/xyz", "death-records"},
		{"/metrics", "unknown"},
	}
	for _, tt := range tests {
		if got := extractResourceType(tt.path); got != tt.want {
			t.Errorf("extractResourceType(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestExtractPatientID_QueryParam(t *testing.T) {
	c, _ := auditTestContext(http.MethodGet, "/api/v1/immunizations?patient=pat-42")
	if got := extractPatientID(c); got != "pat-42" {
		t.Errorf("expected pat-42, got %q", got)
	}
}

func TestExtractPatientID_NonUUIDPathSegment(t *testing.T) {
	c, _ := auditTestContext(http.MethodGet, "/api/v1/patients/statistics")
	if got := extractPatientID(c); got != "" {
		t.Errorf("expected empty patient id for non-UUID segment, got %q", got)
	}
}
