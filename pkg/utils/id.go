package utils

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh opaque entity id.
func NewID() string {
	return uuid.NewString()
}

// NowISO returns the current UTC time in RFC 3339 form with millisecond
// precision. All store timestamps use this single representation so plain
// string comparison orders them correctly.
func NowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
