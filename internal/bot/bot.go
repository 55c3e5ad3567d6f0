package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/studybot/internal/blocker"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/excel"
	"github.com/example/studybot/internal/jobs"
	"github.com/example/studybot/internal/ledger"
	"github.com/example/studybot/internal/planner"
	"github.com/example/studybot/internal/reminder"
	"github.com/example/studybot/internal/report"
	"github.com/example/studybot/internal/settings"
	"github.com/example/studybot/pkg/models"
)

// API is the part of the Telegram client the bot uses
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

// createKeyboard converts reply options to an inline keyboard
func createKeyboard(options [][]models.ReplyOption) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range options {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, o := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(o.Text, o.Data))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// Sender delivers outbound messages over Telegram. In private chats the
// chat id equals the owner's user id.
type Sender struct {
	api API
	log *zap.SugaredLogger
}

func NewSender(api API, log *zap.SugaredLogger) *Sender {
	return &Sender{api: api, log: log}
}

// Send implements the Messenger collaborator
func (s *Sender) Send(ctx context.Context, msg models.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := tgbotapi.NewMessage(msg.OwnerID, msg.Text)
	if len(msg.Options) > 0 {
		m.ReplyMarkup = createKeyboard(msg.Options)
	}
	if _, err := s.api.Send(m); err != nil {
		s.log.Errorw("send message", "owner_id", msg.OwnerID, "error", err)
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// SendDocument uploads data as a file attachment
func (s *Sender) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	if _, err := s.api.Send(doc); err != nil {
		s.log.Errorw("send document", "chat_id", chatID, "file", name, "error", err)
		return fmt.Errorf("telegram send document: %w", err)
	}
	return nil
}

// EventLog is the owner's activity log
type EventLog interface {
	Append(ctx context.Context, ownerID int64, at time.Time, kind string, refID *int64, payload any) error
	ListRecent(ctx context.Context, ownerID int64, limit int) ([]models.Event, error)
}

// Services are the application services behind the commands
type Services struct {
	Ledger   *ledger.Ledger
	Planner  *planner.Planner
	Advisor  *blocker.Advisor
	Gate     *reminder.Gate
	Settings *settings.Service
	Queue    *jobs.Queue
	Reporter *report.Reporter
	Weekly   *report.Scheduler
	Exporter *excel.Exporter
	Importer *excel.Importer
	Events   EventLog
}

// Options configure the bot
type Options struct {
	OwnerID        int64
	SnoozeMinutes  int
	UpdateTimeout  int           // long polling timeout in seconds
	RequestTimeout time.Duration // per update
	HTTPClient     *http.Client  // downloads uploaded files
}

// Bot represents the Telegram bot application
type Bot struct {
	api    API
	sender *Sender
	svc    Services
	clock  clock.Clock
	log    *zap.SugaredLogger
	opts   Options

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a new bot instance
func New(api API, sender *Sender, svc Services, clk clock.Clock, log *zap.SugaredLogger, opts Options) *Bot {
	if opts.UpdateTimeout <= 0 {
		opts.UpdateTimeout = 60
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.RequestTimeout}
	}
	return &Bot{api: api, sender: sender, svc: svc, clock: clk, log: log, opts: opts, stop: make(chan struct{})}
}

// Start receives updates until Stop is called or ctx ends. Handlers run on
// ctx, so a caller that wants them drained calls Stop before cancelling it.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.opts.UpdateTimeout

	updates := b.api.GetUpdatesChan(updateConfig)
	b.log.Infow("bot started", "owner_id", b.opts.OwnerID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stop:
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// Stop stops polling and waits for in-flight updates until ctx expires
func (b *Bot) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.api.StopReceivingUpdates()
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.log.Info("bot stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for update handlers: %w", ctx.Err())
	}
}

func (b *Bot) isOwner(u *tgbotapi.User) bool {
	return u != nil && u.ID == b.opts.OwnerID
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.RequestTimeout)
	defer cancel()

	switch {
	case update.Message != nil:
		m := update.Message
		if m.Chat == nil {
			return
		}
		if !b.isOwner(m.From) {
			b.reply(ctx, m.Chat.ID, textPrivate)
			return
		}
		switch {
		case m.IsCommand():
			b.HandleCommand(ctx, m)
		case m.Document != nil:
			b.HandleDocument(ctx, m)
		default:
			b.reply(ctx, m.Chat.ID, "Use /help to see the commands.")
		}
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if !b.isOwner(cb.From) {
			b.answer(cb.ID, textPrivate)
			return
		}
		b.HandleCallback(ctx, cb)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.sender.Send(ctx, models.OutboundMessage{OwnerID: chatID, Text: text}); err != nil {
		b.log.Warnw("reply failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Warnw("answer callback", "error", err)
	}
}

// localNow is the current instant in the owner's timezone
func (b *Bot) localNow(ctx context.Context, ownerID int64) (time.Time, error) {
	loc, err := b.svc.Settings.Location(ctx, ownerID)
	if err != nil {
		return time.Time{}, err
	}
	return b.clock.Now().In(loc), nil
}

// logEvent records an activity that has no repository of its own
func (b *Bot) logEvent(ctx context.Context, ownerID int64, at time.Time, kind string, payload any) {
	if err := b.svc.Events.Append(ctx, ownerID, at, kind, nil, payload); err != nil {
		b.log.Warnw("append event", "owner_id", ownerID, "kind", kind, "error", err)
	}
}
