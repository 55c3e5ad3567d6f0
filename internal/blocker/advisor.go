// Package blocker records why a study day did not start and answers with a
// fifteen-minute micro-action.
package blocker

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/studybot/pkg/models"
)

var suggestions = map[models.BlockerCategory]string{
	models.BlockerFatigue:    "Open the project and do one light thing: headings plus three bullet points for the next section.",
	models.BlockerUnclear:    "Write the next step down as one sentence and do it right away for 15 minutes. For example: /opp step add ...",
	models.BlockerMotivation: "Agree on a minimum: a 15 minute rough draft. No polishing, only raw text.",
	models.BlockerAnxiety:    "Set a 15 minute timer and write the ugliest version. The point is to produce, not to judge.",
	models.BlockerOther:      "Pick the smallest possible task and do it for 15 minutes. Tell me what it is and I will turn it into a micro-step.",
}

var labels = map[models.BlockerCategory]string{
	models.BlockerFatigue:    "Tired",
	models.BlockerUnclear:    "Next step unclear",
	models.BlockerMotivation: "No motivation",
	models.BlockerAnxiety:    "Anxiety / perfectionism",
	models.BlockerOther:      "Something else",
}

// Store persists blockers
type Store interface {
	Create(ctx context.Context, ownerID int64, category models.BlockerCategory, detail string, at time.Time) (models.Blocker, error)
}

// Advisor records blockers and suggests a micro-action
type Advisor struct {
	store Store
	log   *zap.SugaredLogger
}

// NewAdvisor creates an advisor
func NewAdvisor(store Store, log *zap.SugaredLogger) *Advisor {
	return &Advisor{store: store, log: log}
}

// Advice is a recorded blocker and the suggestion for it
type Advice struct {
	Blocker    models.Blocker
	Suggestion string
}

// RecordBlocker stores the blocker under its normalized category and returns
// the canned suggestion for that category.
func (a *Advisor) RecordBlocker(ctx context.Context, ownerID int64, now time.Time, category, detail string) (Advice, error) {
	cat := Normalize(category)
	b, err := a.store.Create(ctx, ownerID, cat, strings.TrimSpace(detail), now)
	if err != nil {
		return Advice{}, err
	}
	a.log.Infow("blocker recorded", "owner_id", ownerID, "category", cat)
	return Advice{Blocker: b, Suggestion: Suggestion(cat)}, nil
}

// Normalize maps a category name or its 1-based menu number to a category.
// Anything unrecognized is BlockerOther.
func Normalize(raw string) models.BlockerCategory {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for i, c := range models.BlockerCategories {
		if raw == string(c) || raw == string(rune('1'+i)) {
			return c
		}
	}
	return models.BlockerOther
}

// Suggestion returns the micro-action for a category
func Suggestion(c models.BlockerCategory) string {
	if s, ok := suggestions[c]; ok {
		return s
	}
	return suggestions[models.BlockerOther]
}

// Label is the menu text of a category
func Label(c models.BlockerCategory) string {
	if l, ok := labels[c]; ok {
		return l
	}
	return labels[models.BlockerOther]
}
