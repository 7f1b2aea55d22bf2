// Package id mints batch identifiers.
package id

import "github.com/google/uuid"

// New returns a time-ordered UUIDv7 so that batch directories sort by start
// time. It falls back to a random v4 if the v7 generator fails.
func New() uuid.UUID {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v7
}
