package utils

import (
	"time"

	"github.com/google/uuid"
)

// GenID returns a new random identifier.
func GenID() string {
	return uuid.NewString()
}

// NowTimestamp returns the current UTC time in the wire timestamp format.
func NowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
