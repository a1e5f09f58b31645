package domain

import "regexp"

const (
	MinRoomIDLen = 3
	MaxRoomIDLen = 16
)

// RoomID is the opaque room identifier a session joins. Immutable for the
// lifetime of a session.
type RoomID string

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,16}$`)

// ParseRoomID validates raw against the room charset.
func ParseRoomID(raw string) (RoomID, error) {
	if raw == "" {
		return "", InvalidInput("room id", ErrRoomIDEmpty)
	}
	if !roomIDPattern.MatchString(raw) {
		return "", InvalidInput("room id", ErrRoomIDFormat)
	}
	return RoomID(raw), nil
}
