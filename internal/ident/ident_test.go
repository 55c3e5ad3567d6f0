package ident

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDUnique(t *testing.T) {
	var g Generator = UUID{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.New()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("not a uuid %q: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
