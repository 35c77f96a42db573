package models

import "time"

const (
	VenueBoardRoom  = "board room"
	VenueAuditorium = "auditorium"
)

// Venues lists the bookable venues in display order.
var Venues = []string{VenueBoardRoom, VenueAuditorium}

// Booking is a reservation request for one venue on one date. Its JSON form
// keeps the document layout of the realtime database it was first stored in
// (see document.go).
type Booking struct {
	ID                  string
	RequesterID         string
	RequesterEmail      string
	RequesterName       string
	Venue               string
	FacilityName        string
	Date                string // YYYY-MM-DD
	StartTime           time.Time
	EndTime             time.Time
	Purpose             string
	Participants        int
	SpecialRequirements string
	Status              string
	CreatedAt           time.Time
	DecidedAt           *time.Time
	DecidedBy           string
	DecisionReason      string
}

// IsDecided reports whether an administrator has already acted on the booking.
func (b *Booking) IsDecided() bool {
	return b.Status == StatusApproved || b.Status == StatusRejected
}

// Clone returns a copy that shares no pointers with b.
func (b *Booking) Clone() *Booking {
	c := *b
	if b.DecidedAt != nil {
		t := *b.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}

type Notification struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Type         string    `json:"type"`
	BookingID    string    `json:"bookingId"`
	FacilityName string    `json:"facilityName"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
	Read         bool      `json:"read"`
}
