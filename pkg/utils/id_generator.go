// Package utils provides shared utility functions used across the application.
//
// Go Learning Note — "pkg/" Directory Convention:
// Code under pkg/ is intended to be importable by external projects (unlike
// internal/ which is compiler-enforced private). This is a community convention,
// not a Go language feature.
package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a random UUID v4 string. Documents created without an
// id get one of these, so ids from any number of API replicas never collide.
//
// Go Learning Note — "github.com/google/uuid":
// uuid.New() creates a v4 (random) UUID like
// "550e8400-e29b-41d4-a716-446655440000". The collision probability is
// astronomically low (1 in 2^122).
func GenerateID() string {
	return uuid.New().String()
}

// ValidID reports whether id can name a document: non-empty, at most 512
// bytes and free of '/' (collection and id are joined with '/' in lock and
// store keys).
func ValidID(id string) bool {
	return id != "" && len(id) <= 512 && !strings.Contains(id, "/")
}
