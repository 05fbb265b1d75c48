package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a new unique ID with the given prefix
func GenerateID(prefix string) string {
	id := uuid.New().String()

	return fmt.Sprintf("%s-%s", prefix, id[:8])
}

// GenerateOrderID builds a time-based order token, e.g. ORD-1718000000000-3f9a.
// The random suffix keeps ids unique when two orders land in the same millisecond.
func GenerateOrderID(at time.Time) string {
	suffix := uuid.New().String()[:4]

	return fmt.Sprintf("ORD-%d-%s", at.UnixMilli(), suffix)
}

// GetCurrentTime returns the current time in UTC
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}
