package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/reminder"
	"github.com/example/studybot/pkg/models"
)

// Messenger delivers outbound messages
type Messenger interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// Sessions tells whether the owner started studying on a day
type Sessions interface {
	StartedOn(ctx context.Context, ownerID int64, day clock.Day) (*models.StudySession, error)
}

// Locator resolves an owner's timezone
type Locator interface {
	Location(ctx context.Context, ownerID int64) (*time.Location, error)
}

// PingHandler only logs. It is used to check that the loop is alive.
func PingHandler(log *zap.SugaredLogger) Handler {
	return func(ctx context.Context, job models.ScheduledJob) error {
		log.Infow("ping", "job_id", job.ID, "owner_id", job.OwnerID, "due_at", job.DueAt)
		return nil
	}
}

// ReminderHandler sends the reminder text from the job payload.
func ReminderHandler(out Messenger) Handler {
	return func(ctx context.Context, job models.ScheduledJob) error {
		var p models.ReminderPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode reminder payload: %w", err)
		}
		if strings.TrimSpace(p.Text) == "" {
			return errors.New("reminder payload has no text")
		}
		return out.Send(ctx, models.OutboundMessage{OwnerID: job.OwnerID, Text: "Reminder: " + p.Text})
	}
}

// NudgeHandler repeats the start-now nudge after a snooze, unless a session
// has started in the meantime on the owner's current day.
func NudgeHandler(sessions Sessions, locator Locator, clk clock.Clock, out Messenger, snoozeMinutes int) Handler {
	return func(ctx context.Context, job models.ScheduledJob) error {
		loc, err := locator.Location(ctx, job.OwnerID)
		if err != nil {
			return err
		}
		started, err := sessions.StartedOn(ctx, job.OwnerID, clock.DayOf(clk.Now().In(loc)))
		if err != nil {
			return err
		}
		if started != nil {
			return nil
		}
		return out.Send(ctx, reminder.NudgeMessage(job.OwnerID, snoozeMinutes))
	}
}
