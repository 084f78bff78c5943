// Package events publishes domain events for downstream consumers such as
// reporting and compliance exports.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeSaleCommitted      = "sale.committed"
	TypeSaleRefunded       = "sale.refunded"
	TypeQuotaExceeded      = "quota.exceeded"
	TypeStockInsufficient  = "stock.insufficient"
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
)

const envelopeVersion = 1

type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New wraps payload in an envelope. Key selects the partition; events for the
// same customer share a key so consumers see them in order.
func New(eventType, key string, at time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Version:    envelopeVersion,
		Key:        key,
		OccurredAt: at.UTC(),
		Payload:    raw,
	}, nil
}

// Publisher delivers events best-effort. Publish must not block the caller on
// broker latency.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
