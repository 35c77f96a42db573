package events

import (
	"encoding/json"
	"sync"
	"time"

	"venuebook/internal/models"
)

const (
	EventBookingCreated  = "booking.created"
	EventBookingApproved = "booking.approved"
	EventBookingRejected = "booking.rejected"
)

// DecisionEventType maps a decision status to its event type.
func DecisionEventType(status string) string {
	if status == models.StatusApproved {
		return EventBookingApproved
	}
	return EventBookingRejected
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID    string    `json:"booking_id"`
	UserID       string    `json:"user_id"`
	UserEmail    string    `json:"user_email"`
	Venue        string    `json:"venue"`
	FacilityName string    `json:"facility_name"`
	Date         string    `json:"date"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	ChangedBy    string    `json:"changed_by,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewBookingPayload snapshots b for an event.
func NewBookingPayload(b *models.Booking, at time.Time) BookingEventPayload {
	return BookingEventPayload{
		BookingID:    b.ID,
		UserID:       b.RequesterID,
		UserEmail:    b.RequesterEmail,
		Venue:        b.Venue,
		FacilityName: b.FacilityName,
		Date:         b.Date,
		StartTime:    models.FormatWallClock(b.StartTime),
		EndTime:      models.FormatWallClock(b.EndTime),
		Status:       b.Status,
		Reason:       b.DecisionReason,
		ChangedBy:    b.DecidedBy,
		OccurredAt:   at,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns the first
// handler error. Every handler runs regardless.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
