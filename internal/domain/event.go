package domain

import "time"

// EventType names a realtime event.
type EventType string

const (
	EventResidentCreated    EventType = "resident_created"
	EventDeviceSyncOutcome  EventType = "device_sync_outcome"
	EventDeviceSyncComplete EventType = "device_sync_complete"
	EventAccessLog          EventType = "access_log"
)

// EventPublisher is the realtime notifier port. Publish is fire-and-forget: delivery is at
// most once per connected subscriber, with no replay and no ordering across event types.
type EventPublisher interface {
	Publish(eventType EventType, payload any)
}

// Event is the envelope delivered to subscribers.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ResidentCreatedPayload is published right after an enrollment commits.
type ResidentCreatedPayload struct {
	ResidentID string `json:"residentId"`
	SiteID     string `json:"siteId"`
}

// DeviceSyncOutcomePayload is published once per device of a fan-out.
type DeviceSyncOutcomePayload struct {
	ResidentID string        `json:"residentId"`
	DeviceID   string        `json:"deviceId"`
	Outcome    SyncState     `json:"outcome"`
	Reason     FailureReason `json:"reason,omitempty"`
}

// DeviceSyncCompletePayload is published once when a fan-out finishes.
type DeviceSyncCompletePayload struct {
	ResidentID string   `json:"residentId"`
	Succeeded  []string `json:"succeeded"`
	Failed     []string `json:"failed"`
}

// AccessLogPayload relays an access decision reported by a connected client.
type AccessLogPayload struct {
	Type       string         `json:"type"`
	DeviceID   string         `json:"deviceId,omitempty"`
	ResidentID string         `json:"residentId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
