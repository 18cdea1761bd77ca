// Package webhook fans domain events out to subscribed HTTP endpoints.
// Payloads are HMAC-SHA256 signed; every attempt is persisted so failed
// deliveries can be inspected and retried.
package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Endpoint is a registered webhook destination. The signing secret is
// returned exactly once at registration and never serialized afterwards.
type Endpoint struct {
	ID        uuid.UUID `db:"id" json:"id"`
	URL       string    `db:"url" json:"url"`
	Events    []string  `db:"events" json:"events"`
	Secret    string    `db:"secret" json:"-"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Event is a domain event offered to the subscribed endpoints.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Delivery is one attempt at posting an event to one endpoint. Payload is
// the exact signed body, kept so a retry re-sends what was signed.
type Delivery struct {
	ID         uuid.UUID `db:"id" json:"id"`
	EndpointID uuid.UUID `db:"endpoint_id" json:"endpoint_id"`
	EventID    string    `db:"event_id" json:"event_id"`
	EventType  string    `db:"event_type" json:"event_type"`
	Payload    []byte    `db:"payload" json:"-"`
	Signature  string    `db:"signature" json:"signature"`
	StatusCode int       `db:"status_code" json:"status_code"`
	Attempt    int       `db:"attempt" json:"attempt"`
	Succeeded  bool      `db:"succeeded" json:"succeeded"`
	Error      *string   `db:"error_message" json:"error,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// DeliveryResult summarises one endpoint's outcome during a fan-out.
type DeliveryResult struct {
	EndpointID string `json:"endpoint_id"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
}
