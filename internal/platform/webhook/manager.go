package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches SignPayload(payload, secret).
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

// RegisterEndpointInput is the payload for endpoint registration.
type RegisterEndpointInput struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1,dive,required"`
}

// UpdateEndpointInput carries a partial endpoint update.
type UpdateEndpointInput struct {
	URL    *string  `json:"url,omitempty" validate:"omitempty,url"`
	Events []string `json:"events,omitempty"`
	Active *bool    `json:"active,omitempty"`
}

// RegisteredEndpoint carries the one-time plaintext secret back to the caller.
type RegisteredEndpoint struct {
	Endpoint *Endpoint `json:"endpoint"`
	Secret   string    `json:"secret"`
}

// Manager owns the endpoint lifecycle and event fan-out.
type Manager struct {
	endpoints  EndpointRepository
	deliveries DeliveryRepository
	client     *http.Client
	validate   *validator.Validate
	logger     zerolog.Logger
}

type Option func(*Manager)

// WithHTTPClient overrides the delivery client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

func NewManager(endpoints EndpointRepository, deliveries DeliveryRepository, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		endpoints:  endpoints,
		deliveries: deliveries,
		client:     &http.Client{Timeout: 10 * time.Second},
		validate:   validator.New(),
		logger:     logger.With().Str("component", "webhook").Logger(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func newEndpointSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Register validates and persists a new endpoint. The plaintext secret is
// returned exactly once.
func (m *Manager) Register(ctx context.Context, in RegisterEndpointInput) (*RegisteredEndpoint, error) {
	if err := m.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	secret, err := newEndpointSecret()
	if err != nil {
		return nil, err
	}
	ep := &Endpoint{
		ID:       uuid.New(),
		URL:      in.URL,
		Events:   in.Events,
		Secret:   secret,
		IsActive: true,
	}
	if err := m.endpoints.Create(ctx, ep); err != nil {
		return nil, fmt.Errorf("create endpoint: %w", err)
	}
	m.logger.Info().Str("endpoint_id", ep.ID.String()).Str("url", ep.URL).Msg("webhook endpoint registered")
	return &RegisteredEndpoint{Endpoint: ep, Secret: secret}, nil
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Endpoint, error) {
	ep, err := m.endpoints.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get endpoint %s: %w", id, err)
	}
	return ep, nil
}

func (m *Manager) List(ctx context.Context, limit, offset int) ([]*Endpoint, int, error) {
	return m.endpoints.List(ctx, limit, offset)
}

func (m *Manager) Update(ctx context.Context, id uuid.UUID, in UpdateEndpointInput) (*Endpoint, error) {
	if err := m.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid endpoint update: %w", err)
	}
	ep, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.URL != nil {
		ep.URL = *in.URL
	}
	if len(in.Events) > 0 {
		ep.Events = in.Events
	}
	if in.Active != nil {
		ep.IsActive = *in.Active
	}
	if err := m.endpoints.Update(ctx, ep); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update endpoint %s: %w", id, err)
	}
	return ep, nil
}

func (m *Manager) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Endpoint, error) {
	var b = active
	return m.Update(ctx, id, UpdateEndpointInput{Active: &b})
}

func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.endpoints.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete endpoint %s: %w", id, err)
	}
	return nil
}

// subscribed reports whether the endpoint wants this event. Subscriptions
// are exact ("patient.created") or wildcarded on either side ("patient.*",
// "*.deleted").
func subscribed(ep *Endpoint, eventType string) bool {
	for _, pat := range ep.Events {
		switch {
		case pat == eventType:
			return true
		case strings.HasSuffix(pat, ".*") && strings.HasPrefix(eventType, strings.TrimSuffix(pat, "*")):
			return true
		case strings.HasPrefix(pat, "*.") && strings.HasSuffix(eventType, strings.TrimPrefix(pat, "*")):
			return true
		}
	}
	return false
}

// Deliver fans the event out to every active, subscribed endpoint. Delivery
// failures are recorded and logged, never returned as errors; one dead
// endpoint must not block the others.
func (m *Manager) Deliver(ctx context.Context, event Event) []DeliveryResult {
	endpoints, err := m.endpoints.ListActive(ctx)
	if err != nil {
		m.logger.Error().Err(err).Str("event", event.Type).Msg("list endpoints for delivery")
		return nil
	}

	var results []DeliveryResult
	for _, ep := range endpoints {
		if !subscribed(ep, event.Type) {
			continue
		}
		d := m.send(ctx, ep, event, 1)
		res := DeliveryResult{
			EndpointID: ep.ID.String(),
			Success:    d.Succeeded,
			StatusCode: d.StatusCode,
		}
		if d.Error != nil {
			res.Error = *d.Error
		}
		results = append(results, res)
	}
	return results
}

// send signs the event, posts it, and records the attempt.
func (m *Manager) send(ctx context.Context, ep *Endpoint, event Event, attempt int) *Delivery {
	payload, err := json.Marshal(event)
	if err != nil {
		payload = nil
	}
	sig := SignPayload(payload, ep.Secret)
	d := &Delivery{
		ID:         uuid.New(),
		EndpointID: ep.ID,
		EventID:    event.ID,
		EventType:  event.Type,
		Payload:    payload,
		Signature:  sig,
		Attempt:    attempt,
		CreatedAt:  time.Now(),
	}

	d.StatusCode, err = m.post(ctx, ep, payload, sig)
	if err != nil {
		msg := err.Error()
		d.Error = &msg
		m.logger.Warn().Str("endpoint_id", ep.ID.String()).Str("event", event.Type).
			Int("attempt", attempt).Err(err).Msg("webhook delivery failed")
	} else {
		d.Succeeded = true
	}

	if recErr := m.deliveries.Record(ctx, d); recErr != nil {
		m.logger.Error().Err(recErr).Str("endpoint_id", ep.ID.String()).Msg("record webhook delivery")
	}
	return d
}

func (m *Manager) post(ctx context.Context, ep *Endpoint, payload []byte, sig string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+sig)
	req.Header.Set("X-Webhook-Endpoint", ep.ID.String())
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Retry re-sends a recorded delivery's exact payload, bumping the attempt
// counter.
func (m *Manager) Retry(ctx context.Context, deliveryID uuid.UUID) (*Delivery, error) {
	original, err := m.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get delivery %s: %w", deliveryID, err)
	}
	ep, err := m.Get(ctx, original.EndpointID)
	if err != nil {
		return nil, err
	}
	var event Event
	if err := json.Unmarshal(original.Payload, &event); err != nil {
		return nil, fmt.Errorf("decode delivery %s payload: %w", deliveryID, err)
	}
	return m.send(ctx, ep, event, original.Attempt+1), nil
}

// Test posts a synthetic event so operators can verify connectivity.
func (m *Manager) Test(ctx context.Context, endpointID uuid.UUID) (*Delivery, error) {
	ep, err := m.Get(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	event := Event{
		ID:        uuid.NewString(),
		Type:      "webhook.test",
		Payload:   json.RawMessage(`{"test":true}`),
		Timestamp: time.Now(),
	}
	return m.send(ctx, ep, event, 1), nil
}

func (m *Manager) DeliveryLog(ctx context.Context, endpointID uuid.UUID, limit, offset int) ([]*Delivery, int, error) {
	return m.deliveries.ListByEndpoint(ctx, endpointID, limit, offset)
}
