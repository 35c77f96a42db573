package models

import "strings"

var venueAliases = map[string]string{
	"board room": VenueBoardRoom,
	"board-room": VenueBoardRoom,
	"board_room": VenueBoardRoom,
	"boardroom":  VenueBoardRoom,
	"auditorium": VenueAuditorium,
}

// ParseVenue normalizes user input to a stored venue value.
func ParseVenue(s string) (string, bool) {
	v, ok := venueAliases[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// FacilityName returns the display name of a venue.
func FacilityName(venue string) string {
	switch venue {
	case VenueBoardRoom:
		return "Board Room"
	case VenueAuditorium:
		return "Auditorium"
	default:
		return venue
	}
}
