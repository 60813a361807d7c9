package observability

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys of the domain events published to the topic exchange.
const (
	RoutingDirectMessage = "messages.direct.created"
	RoutingGroupMessage  = "messages.group.created"
	RoutingMessagesRead  = "messages.read"
	RoutingPresence      = "presence.changed"
	RoutingAuditGroups   = "audit.groups"
)

// Meta describes one published event.
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	Producer      *string   `json:"producer,omitempty"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
}

// Envelope is the body of every domain event.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope stamps data with a fresh id. Empty producer or correlationID are omitted.
func NewEnvelope(eventType, producer, correlationID string, data any) Envelope {
	meta := Meta{
		ID:   uuid.NewString(),
		Type: eventType,
		Time: time.Now().UTC(),
	}
	if producer != "" {
		meta.Producer = &producer
	}
	if correlationID != "" {
		meta.CorrelationID = &correlationID
	}
	return Envelope{Meta: meta, Data: data}
}

// Headers returns the AMQP headers derived from the envelope.
func (e Envelope) Headers() map[string]string {
	correlationID := ""
	if e.Meta.CorrelationID != nil {
		correlationID = *e.Meta.CorrelationID
	}
	return BuildHeaders(correlationID, "")
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
