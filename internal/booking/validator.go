package booking

import (
	"strconv"
	"strings"
	"time"

	"venuebook/internal/models"
)

// Request is a booking request as submitted by a user. Values are raw form
// input and are validated by Validator.
type Request struct {
	Venue               string `json:"venue"`
	Date                string `json:"date"`
	StartTime           string `json:"startTime"`
	EndTime             string `json:"endTime"`
	Purpose             string `json:"purpose"`
	Participants        string `json:"participants"`
	SpecialRequirements string `json:"specialRequirements"`

	RequesterID    string `json:"-"`
	RequesterEmail string `json:"-"`
	RequesterName  string `json:"-"`
}

type Validator struct {
	clock    Clock
	location *time.Location
}

// NewValidator returns a Validator that resolves "today" with clock in loc.
// A nil clock uses the system clock and a nil loc uses UTC.
func NewValidator(clock Clock, loc *time.Location) *Validator {
	if clock == nil {
		clock = SystemClock
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{clock: clock, location: loc}
}

// Today returns the current date in the validator's location.
func (v *Validator) Today() string {
	return v.clock().In(v.location).Format(models.DateLayout)
}

// Validate checks req against existing and returns the pending booking it
// describes. Rules are applied in order and the first failure is returned.
func (v *Validator) Validate(req Request, existing []*models.Booking) (*models.Booking, error) {
	if missing := missingFields(req); len(missing) > 0 {
		return nil, &Error{Kind: KindMissingField, Message: "please fill in all required fields", Fields: missing}
	}

	slot, err := ParseSlot(req.Venue, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	venue, date, start, end := slot.Venue, slot.Date, slot.Start, slot.End

	if date < v.Today() {
		return nil, newError(KindPastDate, "cannot book past dates")
	}

	participants, err := strconv.Atoi(strings.TrimSpace(req.Participants))
	if err != nil || participants <= 0 {
		return nil, newError(KindInvalidParticipantCount, "invalid participant count")
	}

	facility := models.FacilityName(venue)
	if DetectConflict(venue, date, start, end, existing) {
		return nil, ConflictError(facility)
	}

	name := strings.TrimSpace(req.RequesterName)
	if name == "" {
		name = req.RequesterEmail
	}

	return &models.Booking{
		RequesterID:         req.RequesterID,
		RequesterEmail:      req.RequesterEmail,
		RequesterName:       name,
		Venue:               venue,
		FacilityName:        facility,
		Date:                date,
		StartTime:           start,
		EndTime:             end,
		Purpose:             strings.TrimSpace(req.Purpose),
		Participants:        participants,
		SpecialRequirements: strings.TrimSpace(req.SpecialRequirements),
		Status:              models.StatusPending,
		CreatedAt:           v.clock().UTC(),
	}, nil
}

// Slot is a parsed venue, date and time range.
type Slot struct {
	Venue string
	Date  string
	Start time.Time
	End   time.Time
}

// ParseSlot checks format and ordering of raw slot values. It yields
// InvalidFormat or InvalidTimeRange errors.
func ParseSlot(venue, date, start, end string) (Slot, error) {
	v, ok := models.ParseVenue(venue)
	if !ok {
		return Slot{}, newError(KindInvalidFormat, "unknown venue")
	}
	day, err := models.ParseDate(date)
	if err != nil {
		return Slot{}, newError(KindInvalidFormat, "invalid date")
	}
	d := day.Format(models.DateLayout)

	s, err := models.ParseWallClock(d, start)
	if err != nil || s.Format(models.DateLayout) != d {
		return Slot{}, newError(KindInvalidFormat, "invalid start time")
	}
	e, err := models.ParseWallClock(d, end)
	if err != nil || e.Format(models.DateLayout) != d {
		return Slot{}, newError(KindInvalidFormat, "invalid end time")
	}

	if !s.Before(e) {
		return Slot{}, newError(KindInvalidTimeRange, "end time must be after start time")
	}
	return Slot{Venue: v, Date: d, Start: s, End: e}, nil
}

func missingFields(req Request) []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("venue", req.Venue)
	check("date", req.Date)
	check("startTime", req.StartTime)
	check("endTime", req.EndTime)
	check("purpose", req.Purpose)
	check("participants", req.Participants)
	return missing
}
