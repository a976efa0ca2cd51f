package util

import (
	"strings"

	"github.com/google/uuid"
)

// ParseID parses a path or body identifier, tolerating surrounding spaces.
func ParseID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
