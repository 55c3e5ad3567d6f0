// Package reminder decides, once per evaluation, whether the owner should get
// the evening start-now nudge or the blocker prompt. Each stage fires at most
// once per owner and local calendar day.
package reminder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/blocker"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/pkg/models"
)

// Callback data of the reminder buttons
const (
	CallbackStartNow = "remind:start_now"
	CallbackSnooze   = "remind:snooze"
	CallbackNotToday = "remind:not_today"

	// CallbackBlockerPrefix is followed by a blocker category
	CallbackBlockerPrefix = "blocker:"
)

// Decision is the outcome of one evaluation
type Decision int

const (
	None Decision = iota
	Nudge
	Escalation
)

func (d Decision) String() string {
	switch d {
	case Nudge:
		return "nudge"
	case Escalation:
		return "escalation"
	default:
		return "none"
	}
}

// StateStore holds the per-day stage
type StateStore interface {
	Get(ctx context.Context, ownerID int64, day string) (models.DailyReminderState, error)
	Advance(ctx context.Context, ownerID int64, day string, maxFrom, to models.ReminderStage, at time.Time) (bool, error)
}

// Sessions tells whether a session started on a day
type Sessions interface {
	StartedOn(ctx context.Context, ownerID int64, day clock.Day) (*models.StudySession, error)
}

// Messenger delivers outbound messages
type Messenger interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// Windows are wall-clock offsets from local midnight. The nudge window is
// [NudgeAt, EscalationAt); escalation is allowed from EscalationAt on.
type Windows struct {
	NudgeAt       time.Duration
	EscalationAt  time.Duration
	SnoozeMinutes int
}

// DefaultWindows is 18:00 / 19:00 with a 30 minute snooze
var DefaultWindows = Windows{NudgeAt: 18 * time.Hour, EscalationAt: 19 * time.Hour, SnoozeMinutes: 30}

// ParseWindows builds windows from local "HH:MM" times
func ParseWindows(nudgeAt, escalationAt string, snoozeMinutes int) (Windows, error) {
	nh, nm, err := clock.ParseHHMM(nudgeAt)
	if err != nil {
		return Windows{}, fmt.Errorf("%w: nudge at %q", apperrors.ErrInvalidClockTime, nudgeAt)
	}
	eh, em, err := clock.ParseHHMM(escalationAt)
	if err != nil {
		return Windows{}, fmt.Errorf("%w: escalation at %q", apperrors.ErrInvalidClockTime, escalationAt)
	}
	w := Windows{
		NudgeAt:       time.Duration(nh)*time.Hour + time.Duration(nm)*time.Minute,
		EscalationAt:  time.Duration(eh)*time.Hour + time.Duration(em)*time.Minute,
		SnoozeMinutes: snoozeMinutes,
	}
	if w.NudgeAt >= w.EscalationAt {
		return Windows{}, fmt.Errorf("%w: nudge must come before escalation", apperrors.ErrValidation)
	}
	if snoozeMinutes <= 0 {
		return Windows{}, fmt.Errorf("%w: snooze minutes must be positive", apperrors.ErrValidation)
	}
	return w, nil
}

// Gate is the two-stage reminder state machine
type Gate struct {
	states   StateStore
	sessions Sessions
	out      Messenger
	windows  Windows
	log      *zap.SugaredLogger
}

// NewGate creates a gate
func NewGate(states StateStore, sessions Sessions, out Messenger, windows Windows, log *zap.SugaredLogger) *Gate {
	return &Gate{states: states, sessions: sessions, out: out, windows: windows, log: log}
}

// Evaluate runs the gate for the owner at localNow, which must be in the
// owner's timezone. A stage is recorded before its message is sent, so a
// failed send is not retried.
func (g *Gate) Evaluate(ctx context.Context, ownerID int64, localNow time.Time) (Decision, error) {
	day := clock.DayOf(localNow)
	wall := clock.SinceMidnight(localNow)
	if wall < g.windows.NudgeAt {
		return None, nil
	}

	state, err := g.states.Get(ctx, ownerID, day.String())
	if err != nil {
		return None, err
	}
	if state.EscalationSent() {
		return None, nil
	}

	started, err := g.sessions.StartedOn(ctx, ownerID, day)
	if err != nil {
		return None, err
	}
	if started != nil {
		return None, nil
	}

	var (
		decision Decision
		maxFrom  models.ReminderStage
		to       models.ReminderStage
		msg      models.OutboundMessage
	)
	switch {
	case wall < g.windows.EscalationAt:
		if state.ReminderSent() {
			return None, nil
		}
		decision, maxFrom, to = Nudge, models.StageIdle, models.StageNudgeSent
		msg = NudgeMessage(ownerID, g.windows.SnoozeMinutes)
	default:
		decision, maxFrom, to = Escalation, models.StageNudgeSent, models.StageEscalationSent
		msg = EscalationMessage(ownerID)
	}

	won, err := g.states.Advance(ctx, ownerID, day.String(), maxFrom, to, localNow)
	if err != nil {
		return None, err
	}
	if !won {
		return None, nil
	}

	g.log.Infow("reminder emitted", "owner_id", ownerID, "day", day.String(), "decision", decision)
	if err := g.out.Send(ctx, msg); err != nil {
		return decision, fmt.Errorf("send %s: %w", decision, err)
	}
	return decision, nil
}

// Silence ends the day's reminders for the owner.
func (g *Gate) Silence(ctx context.Context, ownerID int64, localNow time.Time) error {
	day := clock.DayOf(localNow)
	if _, err := g.states.Advance(ctx, ownerID, day.String(), models.StageNudgeSent, models.StageEscalationSent, localNow); err != nil {
		return err
	}
	g.log.Infow("reminders silenced", "owner_id", ownerID, "day", day.String())
	return nil
}

// NudgeMessage is the start-now prompt with its quick replies
func NudgeMessage(ownerID int64, snoozeMinutes int) models.OutboundMessage {
	return models.OutboundMessage{
		OwnerID: ownerID,
		Text:    "Studying has not started today yet. Shall we start now?",
		Options: [][]models.ReplyOption{
			{{Text: "Start now", Data: CallbackStartNow}},
			{
				{Text: fmt.Sprintf("Snooze %d min", snoozeMinutes), Data: CallbackSnooze},
				{Text: "Not today", Data: CallbackNotToday},
			},
		},
	}
}

// EscalationMessage asks what got in the way, with one button per blocker category
func EscalationMessage(ownerID int64) models.OutboundMessage {
	opts := make([][]models.ReplyOption, 0, len(models.BlockerCategories))
	for i, c := range models.BlockerCategories {
		opts = append(opts, []models.ReplyOption{{
			Text: fmt.Sprintf("%d) %s", i+1, blocker.Label(c)),
			Data: CallbackBlockerPrefix + string(c),
		}})
	}
	return models.OutboundMessage{
		OwnerID: ownerID,
		Text:    "Studying still has not started today. What got in the way?",
		Options: opts,
	}
}
