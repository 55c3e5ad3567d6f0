// Package duetime turns short user time expressions into absolute instants.
//
// Supported forms:
//
//	in 10m | in 2h | in 1d | in 10 m
//	18:30                 next occurrence of that local time
//	2026-01-13 18:30      literal local date-time
//	2026-01-13T18:30      literal local date-time
//	2026-01-13T18:30+02:00 literal instant with offset
package duetime

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/clock"
)

const (
	dateLayout   = "2006-01-02"
	localLayout  = "2006-01-02T15:04"
	offsetLayout = "2006-01-02T15:04Z07:00"

	// maxAhead caps relative expressions
	maxAhead = 10 * 365 * 24 * time.Hour
)

// Result is a resolved expression. At is in UTC; Consumed is how many of the
// input tokens made up the expression.
type Result struct {
	At       time.Time
	Consumed int
}

// Parse resolves the expression at the head of tokens in the timezone tzName.
// Tokens after the expression are left to the caller.
func Parse(tokens []string, tzName string, now time.Time) (Result, error) {
	loc, err := clock.Location(tzName)
	if err != nil {
		return Result{}, err
	}
	if len(tokens) == 0 {
		return Result{}, invalid("")
	}
	local := now.In(loc)
	head := strings.TrimSpace(tokens[0])

	if strings.EqualFold(head, "in") {
		return parseRelative(tokens[1:], now)
	}

	if h, m, err := clock.ParseHHMM(head); err == nil {
		at := clock.DayOf(local).At(h, m)
		if !at.After(local) {
			at = clock.DayOf(local).AddDays(1).At(h, m)
		}
		return Result{At: at.UTC(), Consumed: 1}, nil
	}

	for _, layout := range []string{time.RFC3339, offsetLayout} {
		if t, err := time.Parse(layout, head); err == nil {
			return Result{At: t.UTC(), Consumed: 1}, nil
		}
	}
	if t, err := time.ParseInLocation(localLayout, head, loc); err == nil {
		return Result{At: t.UTC(), Consumed: 1}, nil
	}

	if d, err := clock.ParseDay(head, loc); err == nil && len(tokens) > 1 {
		if h, m, err := clock.ParseHHMM(tokens[1]); err == nil {
			return Result{At: d.At(h, m).UTC(), Consumed: 2}, nil
		}
	}

	return Result{}, invalid(strings.Join(tokens, " "))
}

// parseRelative handles the tokens after "in": either "10m" or "10 m".
func parseRelative(tokens []string, now time.Time) (Result, error) {
	if len(tokens) == 0 {
		return Result{}, invalid("in")
	}
	amount, unit, consumed := tokens[0], "", 2
	if i := strings.IndexFunc(amount, func(r rune) bool { return r < '0' || r > '9' }); i > 0 {
		amount, unit = amount[:i], amount[i:]
	} else if len(tokens) > 1 {
		unit, consumed = tokens[1], 3
	}

	n, err := strconv.Atoi(amount)
	if err != nil || n <= 0 {
		return Result{}, invalid("in " + strings.Join(tokens, " "))
	}
	var step time.Duration
	switch strings.ToLower(unit) {
	case "m":
		step = time.Minute
	case "h":
		step = time.Hour
	case "d":
		step = 24 * time.Hour
	default:
		return Result{}, invalid("in " + strings.Join(tokens, " "))
	}
	if int64(n) > int64(maxAhead/step) {
		return Result{}, invalid("in " + strings.Join(tokens, " "))
	}
	return Result{At: now.Add(time.Duration(n) * step).UTC(), Consumed: consumed}, nil
}

func invalid(expr string) error {
	return fmt.Errorf("%w: %q", apperrors.ErrInvalidTimeExpression, expr)
}
