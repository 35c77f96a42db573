package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"venuebook/internal/models"
)

var ErrNilBooking = errors.New("no booking to decide")

// ValidateReason trims reason and enforces the length bound.
func ValidateReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > models.MaxReasonLength {
		return "", newError(KindReasonTooLong, fmt.Sprintf("reason must be at most %d characters", models.MaxReasonLength))
	}
	return reason, nil
}

// ApplyDecision moves a pending booking to approved or rejected and builds the
// notification for its requester. b itself is never modified; on error the
// caller keeps the record it passed in.
func ApplyDecision(b *models.Booking, decision, reason, actor string, now time.Time) (*models.Booking, *models.Notification, error) {
	if decision != models.StatusApproved && decision != models.StatusRejected {
		return nil, nil, newError(KindInvalidDecision, "decision must be approved or rejected")
	}
	if b == nil {
		return nil, nil, ErrNilBooking
	}
	if b.Status != models.StatusPending {
		return nil, nil, AlreadyDecidedError(b.Status)
	}
	reason, err := ValidateReason(reason)
	if err != nil {
		return nil, nil, err
	}

	now = now.UTC()
	out := b.Clone()
	out.Status = decision
	out.DecidedAt = &now
	out.DecidedBy = actor
	out.DecisionReason = reason

	facility := b.FacilityName
	if facility == "" {
		facility = b.Venue
	}

	n := &models.Notification{
		UserID:       b.RequesterID,
		Type:         decision,
		BookingID:    b.ID,
		FacilityName: facility,
		Message:      NotificationMessage(facility, decision, reason),
		CreatedAt:    now,
	}
	return out, n, nil
}

// NotificationMessage renders the text sent to a requester after a decision.
func NotificationMessage(facility, decision, reason string) string {
	msg := fmt.Sprintf("Your booking for %s has been %s", facility, decision)
	if reason != "" {
		msg += ": " + reason
	}
	return msg
}
