package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type managerFixture struct {
	manager    *Manager
	endpoints  *mockEndpointRepo
	deliveries *mockDeliveryRepo
}

func newManagerFixture() *managerFixture {
	endpoints := newMockEndpointRepo()
	deliveries := newMockDeliveryRepo()
	return &managerFixture{
		manager:    NewManager(endpoints, deliveries, zerolog.Nop()),
		endpoints:  endpoints,
		deliveries: deliveries,
	}
}

func (f *managerFixture) register(t *testing.T, url string, events ...string) *RegisteredEndpoint {
	t.Helper()
	reg, err := f.manager.Register(context.Background(), RegisterEndpointInput{URL: url, Events: events})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return reg
}

func TestRegister_GeneratesSecret(t *testing.T) {
	f := newManagerFixture()

	reg := f.register(t, "https://example.org/hook", "patient.created")
	if reg.Secret == "" {
		t.Fatal("expected a plaintext secret")
	}
	if !reg.Endpoint.IsActive {
		t.Error("expected new endpoint active")
	}

	second := f.register(t, "https://example.org/hook", "patient.created")
	if second.Secret == reg.Secret {
		t.Error("each endpoint must get its own secret")
	}
}

func TestRegister_RejectsBadInput(t *testing.T) {
	f := newManagerFixture()

	cases := []RegisterEndpointInput{
		{URL: "", Events: []string{"patient.created"}},
		{URL: "not-a-url", Events: []string{"patient.created"}},
		{URL: "https://example.org/hook"},
	}
	for _, in := range cases {
		if _, err := f.manager.Register(context.Background(), in); err == nil {
			t.Errorf("expected validation error for %+v", in)
		}
	}
}

func TestSubscribed(t *testing.T) {
	cases := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"patient.created", "patient.created", true},
		{"patient.created", "patient.deleted", false},
		{"patient.*", "patient.deleted", true},
		{"patient.*", "birth_record.created", false},
		{"*.deleted", "immunization.deleted", true},
		{"*.deleted", "immunization.created", false},
	}
	for _, tc := range cases {
		ep := &Endpoint{Events: []string{tc.pattern}}
		if got := subscribed(ep, tc.eventType); got != tc.want {
			t.Errorf("subscribed(%q, %q) = %t, want %t", tc.pattern, tc.eventType, got, tc.want)
		}
	}
}

func TestDeliver_SignsAndPosts(t *testing.T) {
	f := newManagerFixture()

	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := f.register(t, srv.URL, "patient.created")

	results := f.manager.Deliver(context.Background(), Event{
		ID:        uuid.NewString(),
		Type:      "patient.created",
		Payload:   json.RawMessage(`{"patientId":"p-1"}`),
		Timestamp: time.Now(),
	})
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("expected one successful delivery, got %+v", results)
	}
	if gotSig == "" {
		t.Fatal("expected a signature header")
	}
	if !VerifySignature(gotBody, reg.Secret, gotSig[len("sha256="):]) {
		t.Error("signature does not verify against the delivered body")
	}
	if len(f.deliveries.deliveries) != 1 {
		t.Errorf("expected one recorded delivery, got %d", len(f.deliveries.deliveries))
	}
}

func TestDeliver_SkipsInactiveAndUnsubscribed(t *testing.T) {
	f := newManagerFixture()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no endpoint should be called")
	}))
	defer srv.Close()

	f.register(t, srv.URL, "birth_record.created")
	paused := f.register(t, srv.URL, "patient.created")
	if _, err := f.manager.SetActive(context.Background(), paused.Endpoint.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := f.manager.Deliver(context.Background(), Event{
		ID: uuid.NewString(), Type: "patient.created", Timestamp: time.Now(),
	})
	if len(results) != 0 {
		t.Errorf("expected no deliveries, got %+v", results)
	}
}

func TestDeliver_RecordsFailure(t *testing.T) {
	f := newManagerFixture()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f.register(t, srv.URL, "patient.created")

	results := f.manager.Deliver(context.Background(), Event{
		ID: uuid.NewString(), Type: "patient.created", Timestamp: time.Now(),
	})
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected one failed delivery, got %+v", results)
	}
	if results[0].StatusCode != http.StatusInternalServerError {
		t.Errorf("expected recorded status 500, got %d", results[0].StatusCode)
	}
	for _, d := range f.deliveries.deliveries {
		if d.Succeeded || d.Error == nil {
			t.Errorf("recorded delivery should carry the failure: %+v", d)
		}
	}
}

func TestRetry_ResendsExactPayload(t *testing.T) {
	f := newManagerFixture()

	healthy := false
	var retriedBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		retriedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f.register(t, srv.URL, "patient.created")
	f.manager.Deliver(context.Background(), Event{
		ID: "evt-1", Type: "patient.created",
		Payload: json.RawMessage(`{"patientId":"p-1"}`), Timestamp: time.Now(),
	})

	var failed *Delivery
	for _, d := range f.deliveries.deliveries {
		failed = d
	}
	if failed == nil || failed.Succeeded {
		t.Fatalf("expected a recorded failure, got %+v", failed)
	}

	healthy = true
	retried, err := f.manager.Retry(context.Background(), failed.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !retried.Succeeded {
		t.Fatalf("retry should succeed, got %+v", retried)
	}
	if retried.Attempt != failed.Attempt+1 {
		t.Errorf("expected attempt %d, got %d", failed.Attempt+1, retried.Attempt)
	}
	if string(retriedBody) != string(failed.Payload) {
		t.Error("retry must re-send the originally signed payload")
	}
}

func TestRetry_UnknownDelivery(t *testing.T) {
	f := newManagerFixture()

	_, err := f.manager.Retry(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTest_PostsSyntheticEvent(t *testing.T) {
	f := newManagerFixture()

	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event Event
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &event)
		gotType = event.Type
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := f.register(t, srv.URL, "patient.created")
	d, err := f.manager.Test(context.Background(), reg.Endpoint.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Succeeded {
		t.Fatalf("expected successful test delivery, got %+v", d)
	}
	if gotType != "webhook.test" {
		t.Errorf("expected webhook.test event, got %q", gotType)
	}
}
