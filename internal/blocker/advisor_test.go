package blocker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/example/studybot/pkg/models"
)

type memStore struct {
	created []models.Blocker
}

func (m *memStore) Create(_ context.Context, ownerID int64, c models.BlockerCategory, detail string, at time.Time) (models.Blocker, error) {
	b := models.Blocker{ID: int64(len(m.created) + 1), OwnerID: ownerID, CreatedAt: at, Category: c, Detail: detail}
	m.created = append(m.created, b)
	return b, nil
}

func TestNormalize(t *testing.T) {
	tests := map[string]models.BlockerCategory{
		"fatigue":     models.BlockerFatigue,
		" Unclear ":   models.BlockerUnclear,
		"MOTIVATION":  models.BlockerMotivation,
		"4":           models.BlockerAnxiety,
		"5":           models.BlockerOther,
		"1":           models.BlockerFatigue,
		"6":           models.BlockerOther,
		"":            models.BlockerOther,
		"procrastin8": models.BlockerOther,
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestEveryCategoryHasOneSuggestion(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range models.BlockerCategories {
		s := Suggestion(c)
		if s == "" || seen[s] {
			t.Fatalf("category %s has no distinct suggestion", c)
		}
		seen[s] = true
		if Label(c) == "" {
			t.Fatalf("category %s has no label", c)
		}
	}
	if Suggestion("bogus") != Suggestion(models.BlockerOther) {
		t.Fatal("unknown category must fall back to other")
	}
}

func TestRecordBlocker(t *testing.T) {
	store := &memStore{}
	a := NewAdvisor(store, zaptest.NewLogger(t).Sugar())
	now := time.Date(2025, 1, 1, 19, 5, 0, 0, time.UTC)

	advice, err := a.RecordBlocker(context.Background(), 1, now, "whatever", "  the dog ate it ")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if advice.Blocker.Category != models.BlockerOther || advice.Blocker.Detail != "the dog ate it" {
		t.Fatalf("unexpected blocker %+v", advice.Blocker)
	}
	if advice.Suggestion != Suggestion(models.BlockerOther) {
		t.Fatalf("unexpected suggestion %q", advice.Suggestion)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one stored blocker, got %d", len(store.created))
	}
}
