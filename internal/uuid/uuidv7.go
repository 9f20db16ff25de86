// Package uuid mints the ids used for rows and request tracing.
package uuid

import (
	"fmt"
	"strings"

	googleuuid "github.com/google/uuid"
)

// New returns a UUIDv7 string. Version 7 ids sort by creation time, so
// primary key inserts stay append-only. A failing entropy source falls back
// to version 4.
func New() string {
	if id, err := googleuuid.NewV7(); err == nil {
		return id.String()
	}
	return googleuuid.NewString()
}

// Parse returns the canonical lower-case form of s.
func Parse(s string) (string, error) {
	id, err := googleuuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id.String(), nil
}

// IsValid reports whether s is a UUID in the 36-character hyphenated form
// the database stores.
func IsValid(s string) bool {
	return len(s) == 36 && googleuuid.Validate(s) == nil
}
