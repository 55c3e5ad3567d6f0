package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/blocker"
	"github.com/example/studybot/internal/ledger"
	"github.com/example/studybot/internal/planner"
	"github.com/example/studybot/pkg/models"
)

const (
	clockLayout    = "15:04"
	dateTimeLayout = "2006-01-02 15:04"
)

const textPrivate = "This bot is private."

const (
	defaultLogLimit = 10
	maxLogLimit     = 50
)

const (
	usageOpp    = "Usage: /opp start [topic] | stop | status | goal [minutes] | step ... | week | blocker [category] [detail] | log [n] | undo"
	usageStep   = "Usage: /opp step add <text> | list | done <id> | edit <id> <text> | del <id>"
	usageRemind = "Usage: /remind <when> <text>\nwhen: in 10m, in 2h, 18:30, 2025-05-01 18:30"
	usageWeekly = "/weekly <weekday> <HH:MM>"
)

const helpText = "Study sessions\n" +
	"/opp start [topic] - start a session\n" +
	"/opp stop - stop the running session\n" +
	"/opp status - today at a glance\n" +
	"/opp goal <minutes> - set the daily goal\n" +
	"/opp step add|list|done|edit|del - next steps (max 3 active)\n" +
	"/opp week - last 7 days\n" +
	"/opp blocker [category] [detail] - what got in the way\n" +
	"/opp log [n] - recent activity\n" +
	"/opp undo - revert the last start or stop\n\n" +
	"Reminders\n" +
	"/remind <when> <text> - one-off reminder\n" +
	"/jobs [cancel|clear] - pending reminders\n" +
	"/reminders on|off - evening nudges\n\n" +
	"Settings\n" +
	"/tz <name> - timezone, e.g. Europe/Helsinki\n" +
	"/weekly <weekday> <HH:MM> - weekly summary slot\n" +
	"/export - study log as xlsx\n" +
	"Send an .xlsx or .csv study log to import its sessions"

// isUserError reports whether err is caused by the request rather than the system
func isUserError(err error) bool {
	return errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrConflict) ||
		errors.Is(err, apperrors.ErrNotFound)
}

// errorText maps an error to a chat reply
func errorText(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrAlreadyOpen):
		return "A session is already running. Stop it with /opp stop."
	case errors.Is(err, apperrors.ErrNoOpenSession):
		return "No session is running. Start one with /opp start."
	case errors.Is(err, apperrors.ErrStepLimit):
		return fmt.Sprintf("You already have %d active steps. Finish or delete one first.", models.MaxActiveSteps)
	case errors.Is(err, apperrors.ErrStepNotFound):
		return "No such step. See /opp step list."
	case errors.Is(err, apperrors.ErrStepAlreadyDone):
		return "That step is already done."
	case errors.Is(err, apperrors.ErrEmptyStepText):
		return "The step text is empty."
	case errors.Is(err, apperrors.ErrGoalOutOfRange):
		return "The goal must be between 1 and 1440 minutes."
	case errors.Is(err, apperrors.ErrInvalidTimeExpression):
		return "I could not read that time.\n" + usageRemind
	case errors.Is(err, apperrors.ErrEmptyReminderText):
		return "What should I remind you about?\n" + usageRemind
	case errors.Is(err, apperrors.ErrInvalidTimezone):
		return "Unknown timezone. Use an IANA name such as Europe/Helsinki."
	case errors.Is(err, apperrors.ErrInvalidClockTime):
		return "The time must be HH:MM."
	case errors.Is(err, apperrors.ErrJobNotFound):
		return "Nothing is scheduled."
	case errors.Is(err, apperrors.ErrNothingToUndo):
		return "Nothing to undo."
	case isUserError(err):
		return err.Error()
	}
	return "Something went wrong. Please try again later."
}

func formatStatus(st planner.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today %s\n", st.Today)
	if st.GoalMinutes > 0 {
		mark := ""
		if st.GoalMet() {
			mark = " (goal met)"
		}
		fmt.Fprintf(&b, "Studied: %d / %d min%s\n", st.TodayMinutes, st.GoalMinutes, mark)
	} else {
		fmt.Fprintf(&b, "Studied: %d min\n", st.TodayMinutes)
	}

	loc := st.Today.Location()
	switch {
	case st.Open != nil:
		fmt.Fprintf(&b, "Session running since %s\n", st.Open.StartedAt.In(loc).Format(clockLayout))
	case st.StartedAt != nil:
		fmt.Fprintf(&b, "First start today: %s\n", st.StartedAt.In(loc).Format(clockLayout))
	default:
		b.WriteString("Not started today\n")
	}
	fmt.Fprintf(&b, "Streak (%d+ min days): %d\n\n", ledger.QualifyingMinutes, st.Streak)
	b.WriteString(formatSteps(st.Steps))
	return b.String()
}

func formatSteps(steps []models.NextStep) string {
	if len(steps) == 0 {
		return "No next steps. Add one with /opp step add <text>."
	}
	var b strings.Builder
	b.WriteString("Next steps:")
	for _, s := range steps {
		box := "[ ]"
		if s.Done {
			box = "[x]"
		}
		fmt.Fprintf(&b, "\n#%d %s %s", s.ID, box, s.Text)
	}
	return b.String()
}

func formatAdvice(c models.BlockerCategory, suggestion string) string {
	return fmt.Sprintf("Noted: %s.\n%s", blocker.Label(c), suggestion)
}

func formatJobs(jobs []models.ScheduledJob, loc *time.Location) string {
	if len(jobs) == 0 {
		return "Nothing is scheduled."
	}
	lines := make([]string, 0, len(jobs)+1)
	lines = append(lines, "Pending:")
	for _, j := range jobs {
		lines = append(lines, "- "+formatJob(j, loc))
	}
	return strings.Join(lines, "\n")
}

func formatJob(j models.ScheduledJob, loc *time.Location) string {
	s := j.DueAt.In(loc).Format(dateTimeLayout) + " " + j.Type
	if j.Type == models.JobTypeReminder {
		var p models.ReminderPayload
		if err := json.Unmarshal(j.Payload, &p); err == nil && p.Text != "" {
			s += ": " + p.Text
		}
	}
	return s
}

func formatEvents(events []models.Event, loc *time.Location) string {
	if len(events) == 0 {
		return "No activity yet."
	}
	lines := make([]string, 0, len(events)+1)
	lines = append(lines, "Recent activity:")
	for _, e := range events {
		line := e.CreatedAt.In(loc).Format(dateTimeLayout) + " " + e.Kind
		if len(e.Payload) > 0 && string(e.Payload) != "null" {
			line += " " + string(e.Payload)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// parseWeekday accepts an English weekday name or its first three letters
func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	d, ok := weekdays[s[:3]]
	if !ok || !strings.HasPrefix(strings.ToLower(d.String()), s) {
		return 0, false
	}
	return d, true
}
