package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/excel"
	"github.com/example/studybot/internal/reminder"
	"github.com/example/studybot/internal/report"
	"github.com/example/studybot/pkg/models"
)

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) {
	ownerID := message.From.ID
	args := strings.Fields(message.CommandArguments())

	var (
		text string
		err  error
	)
	switch message.Command() {
	case "start":
		text, err = b.handleStart(ctx, ownerID)
	case "help":
		text = helpText
	case "opp":
		text, err = b.handleOpp(ctx, ownerID, args)
	case "remind":
		text, err = b.handleRemind(ctx, ownerID, args)
	case "jobs":
		text, err = b.handleJobs(ctx, ownerID, args)
	case "tz":
		text, err = b.handleTimezone(ctx, ownerID, args)
	case "reminders":
		text, err = b.handleReminders(ctx, ownerID, args)
	case "weekly":
		text, err = b.handleWeekly(ctx, ownerID, args)
	case "export":
		err = b.handleExport(ctx, message.Chat.ID, ownerID)
	default:
		text = "Unknown command. Use /help to see the commands."
	}

	if err != nil {
		if !isUserError(err) {
			b.log.Errorw("command failed", "command", message.Command(), "owner_id", ownerID, "error", err)
		}
		text = errorText(err)
	}
	if text != "" {
		b.reply(ctx, message.Chat.ID, text)
	}
}

func (b *Bot) handleStart(ctx context.Context, ownerID int64) (string, error) {
	st, err := b.svc.Settings.Get(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if _, err := b.svc.Weekly.Ensure(ctx, ownerID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Hi! I keep track of your study sessions and nudge you in the evening if you have not started.\nTimezone: %s\n\n%s", st.Timezone, helpText), nil
}

func (b *Bot) handleOpp(ctx context.Context, ownerID int64, args []string) (string, error) {
	if len(args) == 0 {
		return usageOpp, nil
	}
	local, err := b.localNow(ctx, ownerID)
	if err != nil {
		return "", err
	}
	now := local.UTC()
	rest := args[1:]

	switch strings.ToLower(args[0]) {
	case "start":
		s, err := b.svc.Ledger.Start(ctx, ownerID, now, strings.Join(rest, " "))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Session started at %s. Stop it with /opp stop.", s.StartedAt.In(local.Location()).Format(clockLayout)), nil

	case "stop":
		res, err := b.svc.Ledger.Stop(ctx, ownerID, now)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Session stopped: %d min.", res.Minutes), nil

	case "status":
		st, err := b.svc.Planner.Status(ctx, ownerID, local)
		if err != nil {
			return "", err
		}
		return formatStatus(st), nil

	case "goal":
		return b.handleGoal(ctx, ownerID, now, rest)

	case "step", "steps":
		return b.handleStep(ctx, ownerID, now, rest)

	case "week":
		w, err := b.svc.Reporter.Weekly(ctx, ownerID, clock.DayOf(local), false)
		if err != nil {
			return "", err
		}
		return report.Format(w), nil

	case "blocker":
		if len(rest) == 0 {
			return "", b.sender.Send(ctx, reminder.EscalationMessage(ownerID))
		}
		advice, err := b.svc.Advisor.RecordBlocker(ctx, ownerID, now, rest[0], strings.Join(rest[1:], " "))
		if err != nil {
			return "", err
		}
		return formatAdvice(advice.Blocker.Category, advice.Suggestion), nil

	case "log":
		limit := defaultLogLimit
		if len(rest) > 0 {
			if n, err := strconv.Atoi(rest[0]); err == nil && n > 0 && n <= maxLogLimit {
				limit = n
			}
		}
		events, err := b.svc.Events.ListRecent(ctx, ownerID, limit)
		if err != nil {
			return "", err
		}
		return formatEvents(events, local.Location()), nil

	case "undo":
		kind, s, err := b.svc.Ledger.Undo(ctx, ownerID, now)
		if err != nil {
			return "", err
		}
		started := s.StartedAt.In(local.Location()).Format(clockLayout)
		if kind == models.UndoStart {
			return fmt.Sprintf("Removed the session started at %s.", started), nil
		}
		return fmt.Sprintf("The session started at %s is running again.", started), nil
	}
	return usageOpp, nil
}

func (b *Bot) handleGoal(ctx context.Context, ownerID int64, now time.Time, args []string) (string, error) {
	if len(args) == 0 {
		goal, err := b.svc.Planner.Goal(ctx, ownerID)
		if err != nil {
			return "", err
		}
		if goal == 0 {
			return "No daily goal set. Use /opp goal <minutes>.", nil
		}
		return fmt.Sprintf("Daily goal: %d min.", goal), nil
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		return "Usage: /opp goal <minutes>", nil
	}
	if err := b.svc.Planner.SetGoal(ctx, ownerID, now, minutes); err != nil {
		return "", err
	}
	return fmt.Sprintf("Daily goal set to %d min.", minutes), nil
}

func (b *Bot) handleStep(ctx context.Context, ownerID int64, now time.Time, args []string) (string, error) {
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub, rest := strings.ToLower(args[0]), args[1:]

	switch sub {
	case "list":
		steps, err := b.svc.Planner.Steps(ctx, ownerID)
		if err != nil {
			return "", err
		}
		return formatSteps(steps), nil

	case "add":
		s, err := b.svc.Planner.AddStep(ctx, ownerID, now, strings.Join(rest, " "))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Step #%d added: %s", s.ID, s.Text), nil

	case "done", "edit", "del", "delete":
		if len(rest) == 0 {
			return usageStep, nil
		}
		id, err := parseStepID(rest[0])
		if err != nil {
			return usageStep, nil
		}
		switch sub {
		case "done":
			s, err := b.svc.Planner.DoneStep(ctx, ownerID, now, id)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Step #%d done: %s", s.ID, s.Text), nil
		case "edit":
			s, err := b.svc.Planner.EditStep(ctx, ownerID, now, id, strings.Join(rest[1:], " "))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Step #%d updated: %s", s.ID, s.Text), nil
		default:
			if err := b.svc.Planner.DeleteStep(ctx, ownerID, now, id); err != nil {
				return "", err
			}
			return fmt.Sprintf("Step #%d deleted.", id), nil
		}
	}
	return usageStep, nil
}

func (b *Bot) handleRemind(ctx context.Context, ownerID int64, args []string) (string, error) {
	if len(args) == 0 {
		return usageRemind, nil
	}
	st, err := b.svc.Settings.Get(ctx, ownerID)
	if err != nil {
		return "", err
	}
	job, err := b.svc.Queue.ScheduleReminder(ctx, ownerID, st.Timezone, args)
	if err != nil {
		return "", err
	}
	loc, err := clock.Location(st.Timezone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Reminder set for %s (%s).", job.DueAt.In(loc).Format(dateTimeLayout), st.Timezone), nil
}

func (b *Bot) handleJobs(ctx context.Context, ownerID int64, args []string) (string, error) {
	loc, err := b.svc.Settings.Location(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		pending, err := b.svc.Queue.Pending(ctx, ownerID)
		if err != nil {
			return "", err
		}
		return formatJobs(pending, loc), nil
	}

	switch strings.ToLower(args[0]) {
	case "cancel":
		job, err := b.svc.Queue.CancelNext(ctx, ownerID)
		if err != nil {
			return "", err
		}
		return "Cancelled: " + formatJob(job, loc), nil
	case "clear":
		n, err := b.svc.Queue.CancelAll(ctx, ownerID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Cancelled %d pending jobs.", n), nil
	}
	return "Usage: /jobs [cancel|clear]", nil
}

func (b *Bot) handleTimezone(ctx context.Context, ownerID int64, args []string) (string, error) {
	if len(args) == 0 {
		st, err := b.svc.Settings.Get(ctx, ownerID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Timezone: %s. Change it with /tz <IANA name>.", st.Timezone), nil
	}
	loc, err := b.svc.Settings.SetTimezone(ctx, ownerID, args[0])
	if err != nil {
		return "", err
	}
	if _, err := b.svc.Weekly.Ensure(ctx, ownerID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Timezone set to %s. Local time is %s.", loc, b.clock.Now().In(loc).Format(clockLayout)), nil
}

func (b *Bot) handleReminders(ctx context.Context, ownerID int64, args []string) (string, error) {
	if len(args) == 0 {
		st, err := b.svc.Settings.Get(ctx, ownerID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Evening reminders are %s. Use /reminders on|off.", onOff(st.RemindersEnabled)), nil
	}
	var enabled bool
	switch strings.ToLower(args[0]) {
	case "on":
		enabled = true
	case "off":
	default:
		return "Usage: /reminders on|off", nil
	}
	if err := b.svc.Settings.SetRemindersEnabled(ctx, ownerID, enabled); err != nil {
		return "", err
	}
	return fmt.Sprintf("Evening reminders are %s.", onOff(enabled)), nil
}

func (b *Bot) handleWeekly(ctx context.Context, ownerID int64, args []string) (string, error) {
	if len(args) == 0 {
		st, err := b.svc.Settings.Get(ctx, ownerID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Weekly summary: %s %s. Change it with %s", st.WeeklySummaryDay, st.WeeklySummaryTime, usageWeekly), nil
	}
	if len(args) != 2 {
		return "Usage: " + usageWeekly, nil
	}
	day, ok := parseWeekday(args[0])
	if !ok {
		return "Usage: " + usageWeekly, nil
	}
	if err := b.svc.Settings.SetWeeklySummary(ctx, ownerID, day, args[1]); err != nil {
		return "", err
	}
	due, err := b.svc.Weekly.Ensure(ctx, ownerID)
	if err != nil {
		return "", err
	}
	loc, err := b.svc.Settings.Location(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Weekly summary set. Next one: %s %s.", due.In(loc).Weekday(), due.In(loc).Format(dateTimeLayout)), nil
}

func (b *Bot) handleExport(ctx context.Context, chatID, ownerID int64) error {
	local, err := b.localNow(ctx, ownerID)
	if err != nil {
		return err
	}
	today := clock.DayOf(local)
	buf, err := b.svc.Exporter.Export(ctx, ownerID, today, local.UTC())
	if err != nil {
		return err
	}
	return b.sender.SendDocument(ctx, chatID, excel.FileName(today), buf.Bytes(), "Study log")
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	ownerID := callback.From.ID
	chatID := ownerID
	if callback.Message != nil && callback.Message.Chat != nil {
		chatID = callback.Message.Chat.ID
	}
	b.answer(callback.ID, "")

	text, err := b.callbackReply(ctx, ownerID, callback.Data)
	if err != nil {
		if !isUserError(err) {
			b.log.Errorw("callback failed", "data", callback.Data, "owner_id", ownerID, "error", err)
		}
		text = errorText(err)
	}
	b.reply(ctx, chatID, text)
}

func (b *Bot) callbackReply(ctx context.Context, ownerID int64, data string) (string, error) {
	local, err := b.localNow(ctx, ownerID)
	if err != nil {
		return "", err
	}
	now := local.UTC()

	switch {
	case data == reminder.CallbackStartNow:
		s, err := b.svc.Ledger.Start(ctx, ownerID, now, "")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Session started at %s. Stop it with /opp stop.", s.StartedAt.In(local.Location()).Format(clockLayout)), nil

	case data == reminder.CallbackSnooze:
		job, err := b.svc.Queue.Enqueue(ctx, ownerID, models.JobTypeNudge, now.Add(time.Duration(b.opts.SnoozeMinutes)*time.Minute), nil)
		if err != nil {
			return "", err
		}
		b.logEvent(ctx, ownerID, now, models.EventReminderSnoozed, map[string]string{"job_id": job.ID})
		return fmt.Sprintf("OK, I will ask again in %d min.", b.opts.SnoozeMinutes), nil

	case data == reminder.CallbackNotToday:
		if err := b.svc.Gate.Silence(ctx, ownerID, local); err != nil {
			return "", err
		}
		b.logEvent(ctx, ownerID, now, models.EventReminderSilenced, nil)
		return "Alright, no more reminders today.", nil

	case strings.HasPrefix(data, reminder.CallbackBlockerPrefix):
		advice, err := b.svc.Advisor.RecordBlocker(ctx, ownerID, now, strings.TrimPrefix(data, reminder.CallbackBlockerPrefix), "")
		if err != nil {
			return "", err
		}
		return formatAdvice(advice.Blocker.Category, advice.Suggestion), nil
	}
	return "", fmt.Errorf("%w: unknown button %q", apperrors.ErrValidation, data)
}

func parseStepID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid step id")
	}
	return id, nil
}
