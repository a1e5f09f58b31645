package domain

import (
	"fmt"
	"strings"
)

const MaxDisplayNameLen = 36

// CleanDisplayName trims raw and checks it is usable as a local display name.
func CleanDisplayName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if len(name) == 0 {
		return "", InvalidInput("display name", ErrDisplayNameEmpty)
	}
	if len(name) > MaxDisplayNameLen {
		return "", InvalidInput("display name", ErrDisplayNameTooLong)
	}
	return name, nil
}

// GuestName is the derived name of a remote participant; transports do not
// carry names.
func GuestName(id ParticipantID) string {
	return fmt.Sprintf("Guest %d", id)
}
