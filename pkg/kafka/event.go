package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TopicPrefix namespaces every topic this service writes.
const TopicPrefix = "storefront"

// SchemaVersion is bumped when an event payload changes incompatibly.
const SchemaVersion = 1

// Topic builds a topic name such as "storefront.checkout.step_advanced".
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}

// EventType is the topic without its prefix, e.g. "checkout.step_advanced".
func EventType(topic string) string {
	return strings.TrimPrefix(topic, TopicPrefix+".")
}

// Event is the envelope for every message written to Kafka. AggregateID is
// also the message key.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent wraps data for topic.
func NewEvent(topic, aggregateID, aggregateType, source string, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", topic, err)
	}

	return &Event{
		EventID:       uuid.NewString(),
		EventType:     EventType(topic),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       SchemaVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          payload,
	}, nil
}

// WithCorrelationID ties the event to the request that caused it.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
