package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// bookingDoc is the persisted document shape. Decision fields are keyed by the
// resulting status, e.g. approvedAt/approvedBy/approvedReason.
type bookingDoc struct {
	ID                  string  `json:"id,omitempty"`
	UserID              string  `json:"userId"`
	UserEmail           string  `json:"userEmail"`
	UserName            string  `json:"userName"`
	Venue               string  `json:"venue"`
	FacilityName        string  `json:"facilityName"`
	Date                string  `json:"date"`
	StartTime           string  `json:"startTime"`
	EndTime             string  `json:"endTime"`
	Purpose             string  `json:"purpose"`
	Participants        int     `json:"participants"`
	SpecialRequirements *string `json:"specialRequirements"`
	Status              string  `json:"status"`
	CreatedAt           string  `json:"createdAt"`
	ApprovedAt          *string `json:"approvedAt"`
	ApprovedBy          *string `json:"approvedBy"`
	ApprovedReason      *string `json:"approvedReason"`
	RejectedAt          *string `json:"rejectedAt"`
	RejectedBy          *string `json:"rejectedBy"`
	RejectedReason      *string `json:"rejectedReason"`
}

func (b Booking) MarshalJSON() ([]byte, error) {
	doc := map[string]any{
		"userId":              b.RequesterID,
		"userEmail":           b.RequesterEmail,
		"userName":            b.RequesterName,
		"venue":               b.Venue,
		"facilityName":        b.FacilityName,
		"date":                b.Date,
		"startTime":           FormatWallClock(b.StartTime),
		"endTime":             FormatWallClock(b.EndTime),
		"purpose":             b.Purpose,
		"participants":        b.Participants,
		"specialRequirements": nullable(b.SpecialRequirements),
		"status":              b.Status,
		"createdAt":           FormatISO(b.CreatedAt),
	}
	if b.ID != "" {
		doc["id"] = b.ID
	}
	if b.IsDecided() && b.DecidedAt != nil {
		doc[b.Status+"At"] = FormatISO(*b.DecidedAt)
		doc[b.Status+"By"] = b.DecidedBy
		doc[b.Status+"Reason"] = nullable(b.DecisionReason)
	}
	return json.Marshal(doc)
}

func (b *Booking) UnmarshalJSON(data []byte) error {
	var doc bookingDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	created, err := parseISO(doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("booking createdAt: %w", err)
	}

	out := Booking{
		ID:             doc.ID,
		RequesterID:    doc.UserID,
		RequesterEmail: doc.UserEmail,
		RequesterName:  doc.UserName,
		Venue:          doc.Venue,
		FacilityName:   doc.FacilityName,
		Date:           doc.Date,
		Purpose:        doc.Purpose,
		Participants:   doc.Participants,
		Status:         doc.Status,
		CreatedAt:      created,
	}
	if doc.SpecialRequirements != nil {
		out.SpecialRequirements = *doc.SpecialRequirements
	}
	// Missing times stay zero; a value that is present must parse.
	if doc.StartTime != "" {
		t, err := ParseWallClock(doc.Date, doc.StartTime)
		if err != nil {
			return fmt.Errorf("booking startTime: %w", err)
		}
		out.StartTime = t
	}
	if doc.EndTime != "" {
		t, err := ParseWallClock(doc.Date, doc.EndTime)
		if err != nil {
			return fmt.Errorf("booking endTime: %w", err)
		}
		out.EndTime = t
	}

	at, by, reason := doc.ApprovedAt, doc.ApprovedBy, doc.ApprovedReason
	if doc.Status == StatusRejected {
		at, by, reason = doc.RejectedAt, doc.RejectedBy, doc.RejectedReason
	}
	if at != nil {
		t, err := parseISO(*at)
		if err != nil {
			return fmt.Errorf("booking %sAt: %w", doc.Status, err)
		}
		if !t.IsZero() {
			out.DecidedAt = &t
		}
	}
	if by != nil {
		out.DecidedBy = *by
	}
	if reason != nil {
		out.DecisionReason = *reason
	}

	*b = out
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Snapshot is an export of the realtime database: documents keyed by their
// push IDs.
type Snapshot struct {
	Bookings      map[string]*Booking      `json:"bookings"`
	Notifications map[string]*Notification `json:"notifications"`
	Users         map[string]*User         `json:"users"`
}

// Normalize copies each map key into the record ID when the document has none.
func (s *Snapshot) Normalize() {
	for id, b := range s.Bookings {
		if b != nil && b.ID == "" {
			b.ID = id
		}
	}
	for id, n := range s.Notifications {
		if n != nil && n.ID == "" {
			n.ID = id
		}
	}
	for id, u := range s.Users {
		if u != nil && u.ID == "" {
			u.ID = id
		}
	}
}

// DecidedAtOrZero returns the decision time, or the zero time when undecided.
func (b *Booking) DecidedAtOrZero() time.Time {
	if b.DecidedAt == nil {
		return time.Time{}
	}
	return *b.DecidedAt
}
