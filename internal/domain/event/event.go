package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys
const (
	KeyFromStatus     = "from_status"
	KeyToStatus       = "to_status"
	KeyActorUserID    = "actor_user_id"
	KeyRemarks        = "remarks"
	KeyEmployeeID     = "employee_id"
	KeyAmountClaimed  = "amount_claimed"
	KeyAmountApproved = "amount_approved"
	KeyQueueNo        = "queue_no"
	KeyRowVersion     = "row_version"
)

// Event represents a domain event about one claim
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ClaimID       string                 `json:"claim_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, claimID string, payload map[string]interface{}) *Event {
	id := generateID()
	return &Event{
		ID:            id,
		Type:          eventType,
		ClaimID:       claimID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: id,
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, claimID string, payload map[string]interface{}, correlationID string) *Event {
	e := NewEvent(eventType, claimID, payload)
	e.CorrelationID = correlationID
	return e
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
