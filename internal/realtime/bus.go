// internal/realtime/bus.go
package realtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topic is a broadcast scope. A client only receives events published to
// topics it subscribed to at connect time.
type Topic string

func NetworkTopic(networkID uuid.UUID) Topic {
	return Topic("network:" + networkID.String())
}

func CompanyTopic(companyID uuid.UUID) Topic {
	return Topic("company:" + companyID.String())
}

func UserTopic(userID uuid.UUID) Topic {
	return Topic("user:" + userID.String())
}

// ParseTopic validates a client-supplied scope string.
func ParseTopic(raw string) (Topic, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid scope %q", raw)
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid scope id %q", parts[1])
	}

	switch parts[0] {
	case "network":
		return NetworkTopic(id), nil
	case "company":
		return CompanyTopic(id), nil
	case "user":
		return UserTopic(id), nil
	default:
		return "", fmt.Errorf("unknown scope kind %q", parts[0])
	}
}

// Kind returns the scope kind ("network", "company", "user").
func (t Topic) Kind() string {
	parts := strings.SplitN(string(t), ":", 2)
	return parts[0]
}

// ResourceID returns the uuid part of the topic.
func (t Topic) ResourceID() (uuid.UUID, error) {
	parts := strings.SplitN(string(t), ":", 2)
	if len(parts) != 2 {
		return uuid.Nil, fmt.Errorf("invalid topic %q", t)
	}
	return uuid.Parse(parts[1])
}

// Event types carried on the bus.
const (
	EventSnapshot          = "snapshot"
	EventMembershipUpdated = "membership_updated"
	EventDeviceState       = "device_state_updated"
	EventJoinRequest       = "join_request_updated"
	EventIntruderDetected  = "intruder_detected"
	EventNotification      = "notification"
)

// Event is the wire envelope for every pushed message.
type Event struct {
	Type      string      `json:"type"`
	Topic     Topic       `json:"topic"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

func NewEvent(eventType string, topic Topic, data interface{}) Event {
	return Event{
		Type:      eventType,
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Bus is the publish side of the hub. Services call Publish after their
// transaction commits; delivery is at-most-once per subscriber.
type Bus interface {
	Publish(topic Topic, eventType string, data interface{})
}

// NopBus discards every event. Used in tests that do not assert on pushes.
type NopBus struct{}

func (NopBus) Publish(Topic, string, interface{}) {}
