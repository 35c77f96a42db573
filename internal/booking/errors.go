package booking

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a validation or decision failure in a machine-readable way.
type Kind string

const (
	KindMissingField            Kind = "MissingField"
	KindInvalidFormat           Kind = "InvalidFormat"
	KindInvalidTimeRange        Kind = "InvalidTimeRange"
	KindPastDate                Kind = "PastDate"
	KindInvalidParticipantCount Kind = "InvalidParticipantCount"
	KindVenueConflict           Kind = "VenueConflict"
	KindAlreadyDecided          Kind = "AlreadyDecided"
	KindInvalidDecision         Kind = "InvalidDecision"
	KindReasonTooLong           Kind = "ReasonTooLong"
)

// Error is returned for every rejected request. Message is safe to show to
// the requester.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf extracts the Kind from err, or "" when err is not a booking error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ConflictError builds the venue conflict failure for a venue.
func ConflictError(facility string) *Error {
	return newError(KindVenueConflict, facility+" is already booked for this time slot")
}

// AlreadyDecidedError reports that a booking has left the pending state.
func AlreadyDecidedError(status string) *Error {
	return newError(KindAlreadyDecided, "booking has already been "+status)
}
