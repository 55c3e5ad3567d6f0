package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/pkg/models"
)

// ReminderStateRepository keeps the per-day reminder gate stage
type ReminderStateRepository struct {
	db *sqlx.DB
}

// NewReminderStateRepository creates a new repository instance
func NewReminderStateRepository(db *sqlx.DB) *ReminderStateRepository {
	return &ReminderStateRepository{db: db}
}

// Get returns the state for the owner and day. A missing row is the idle state.
func (r *ReminderStateRepository) Get(ctx context.Context, ownerID int64, day string) (models.DailyReminderState, error) {
	state := models.DailyReminderState{OwnerID: ownerID, Day: day, Stage: models.StageIdle}
	var stage int
	q := r.db.Rebind(`SELECT stage FROM daily_reminder_state WHERE owner_id = ? AND day = ?`)
	err := r.db.GetContext(ctx, &stage, q, ownerID, day)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return state, apperrors.Store("get reminder state", err)
	}
	state.Stage = models.ReminderStage(stage)
	return state, nil
}

// Advance moves the day's stage to `to` if the current stage is at most
// maxFrom and below `to`. It reports whether this call made the move; only
// one of several concurrent callers can win a given transition.
func (r *ReminderStateRepository) Advance(ctx context.Context, ownerID int64, day string, maxFrom, to models.ReminderStage, at time.Time) (bool, error) {
	q := r.db.Rebind(`INSERT INTO daily_reminder_state (owner_id, day, stage, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_id, day) DO UPDATE SET stage = excluded.stage, updated_at = excluded.updated_at
		WHERE daily_reminder_state.stage <= ? AND daily_reminder_state.stage < excluded.stage`)
	res, err := r.db.ExecContext(ctx, q, ownerID, day, int(to), unix(at), int(maxFrom))
	if err != nil {
		return false, apperrors.Store("advance reminder state", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Store("advance reminder state", err)
	}
	return n == 1, nil
}
