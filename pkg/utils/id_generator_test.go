package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateID()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("GenerateID() = %q is not a UUID: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
		if !ValidID(id) {
			t.Fatalf("generated id %q is not a valid document id", id)
		}
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"colosseum", true},
		{"evt_2024-06-01", true},
		{"", false},
		{"a/b", false},
		{strings.Repeat("x", 512), true},
		{strings.Repeat("x", 513), false},
	}

	for _, tt := range tests {
		if got := ValidID(tt.id); got != tt.want {
			t.Errorf("ValidID(%.20q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
