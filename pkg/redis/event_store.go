package redis

import (
	"context"
	"encoding/json"
	"time"
)

// EventStore keeps the latest workflow event of each payment so that any
// API replica can answer status queries for a running session.
type EventStore struct {
	ttl time.Duration
}

var (
	setEventValue = Set
	getEventValue = Get
)

// NewEventStore creates a store whose entries expire after ttl.
func NewEventStore(ttl time.Duration) *EventStore {
	return &EventStore{ttl: ttl}
}

func eventKey(paymentID string) string {
	return "payment:event:" + paymentID
}

// Save stores event as JSON, replacing any earlier event of the payment.
func (s *EventStore) Save(ctx context.Context, paymentID string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return setEventValue(ctx, eventKey(paymentID), data, s.ttl)
}

// Load decodes the latest event of the payment into out. It returns an
// error matched by IsNil when nothing is stored.
func (s *EventStore) Load(ctx context.Context, paymentID string, out interface{}) error {
	raw, err := getEventValue(ctx, eventKey(paymentID))
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}
