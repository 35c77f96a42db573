package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"venuebook/internal/models"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe("test_event", handler)

	payload := map[string]string{"foo": "bar"}
	err := bus.PublishJSON("test_event", payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return errors.New("first fails") })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	err := bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
	if err == nil || err.Error() != "first fails" {
		t.Errorf("expected first handler error, got %v", err)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Should not panic
	if err := bus.Publish(&Event{Type: "unknown"}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
	err := bus.PublishJSON("unknown", nil)
	if err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}

func TestNewBookingPayload(t *testing.T) {
	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	decidedAt := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)
	b := &models.Booking{
		ID:             "b1",
		RequesterID:    "u1",
		Venue:          models.VenueAuditorium,
		FacilityName:   "Auditorium",
		Date:           "2024-06-10",
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		Status:         models.StatusRejected,
		DecidedAt:      &decidedAt,
		DecidedBy:      "admin",
		DecisionReason: "Maintenance",
	}

	p := NewBookingPayload(b, decidedAt)
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded BookingEventPayload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if decoded.BookingID != "b1" || decoded.Reason != "Maintenance" || decoded.ChangedBy != "admin" {
		t.Errorf("unexpected payload %+v", decoded)
	}
	if decoded.StartTime != "2024-06-10T10:00:00" {
		t.Errorf("expected wall clock start, got %s", decoded.StartTime)
	}
	if DecisionEventType(b.Status) != EventBookingRejected {
		t.Errorf("expected rejected event type")
	}
	if DecisionEventType(models.StatusApproved) != EventBookingApproved {
		t.Errorf("expected approved event type")
	}
}
