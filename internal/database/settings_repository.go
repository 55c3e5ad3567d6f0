package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/pkg/models"
)

// Defaults for a newly seen owner
const (
	DefaultWeeklySummaryDay  = time.Sunday
	DefaultWeeklySummaryTime = "19:00"
)

type settingsRow struct {
	OwnerID           int64  `db:"owner_id"`
	Timezone          string `db:"timezone"`
	RemindersEnabled  bool   `db:"reminders_enabled"`
	WeeklySummaryDay  int    `db:"weekly_summary_day"`
	WeeklySummaryTime string `db:"weekly_summary_time"`
}

// SettingsRepository handles per-owner preferences
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new repository instance
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Ensure creates the owner's settings with defaults if missing and returns them
func (r *SettingsRepository) Ensure(ctx context.Context, ownerID int64, defaultTZ string) (models.OwnerSettings, error) {
	q := r.db.Rebind(`INSERT INTO owner_settings (owner_id, timezone, reminders_enabled, weekly_summary_day, weekly_summary_time)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (owner_id) DO NOTHING`)
	if _, err := r.db.ExecContext(ctx, q, ownerID, defaultTZ, true, int(DefaultWeeklySummaryDay), DefaultWeeklySummaryTime); err != nil {
		return models.OwnerSettings{}, apperrors.Store("ensure settings", err)
	}
	s, err := r.Get(ctx, ownerID)
	if err != nil {
		return models.OwnerSettings{}, err
	}
	return *s, nil
}

// Get returns the owner's settings, or nil if the owner is unknown
func (r *SettingsRepository) Get(ctx context.Context, ownerID int64) (*models.OwnerSettings, error) {
	var row settingsRow
	q := r.db.Rebind(`SELECT owner_id, timezone, reminders_enabled, weekly_summary_day, weekly_summary_time
		FROM owner_settings WHERE owner_id = ?`)
	err := r.db.GetContext(ctx, &row, q, ownerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Store("get settings", err)
	}
	return &models.OwnerSettings{
		OwnerID:           row.OwnerID,
		Timezone:          row.Timezone,
		RemindersEnabled:  row.RemindersEnabled,
		WeeklySummaryDay:  time.Weekday(row.WeeklySummaryDay),
		WeeklySummaryTime: row.WeeklySummaryTime,
	}, nil
}

// ListOwners returns the ids of all known owners
func (r *SettingsRepository) ListOwners(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT owner_id FROM owner_settings ORDER BY owner_id`); err != nil {
		return nil, apperrors.Store("list owners", err)
	}
	return ids, nil
}

// SetTimezone stores an IANA timezone name
func (r *SettingsRepository) SetTimezone(ctx context.Context, ownerID int64, tz string) error {
	return r.update(ctx, "set timezone", `UPDATE owner_settings SET timezone = ? WHERE owner_id = ?`, tz, ownerID)
}

// SetRemindersEnabled switches the reminder gate on or off
func (r *SettingsRepository) SetRemindersEnabled(ctx context.Context, ownerID int64, enabled bool) error {
	return r.update(ctx, "set reminders", `UPDATE owner_settings SET reminders_enabled = ? WHERE owner_id = ?`, enabled, ownerID)
}

// SetWeeklySummary sets when the weekly summary is sent
func (r *SettingsRepository) SetWeeklySummary(ctx context.Context, ownerID int64, day time.Weekday, hhmm string) error {
	return r.update(ctx, "set weekly summary",
		`UPDATE owner_settings SET weekly_summary_day = ?, weekly_summary_time = ? WHERE owner_id = ?`, int(day), hhmm, ownerID)
}

func (r *SettingsRepository) update(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return apperrors.Store(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Store(op, err)
	}
	if n == 0 {
		return apperrors.Store(op, sql.ErrNoRows)
	}
	return nil
}
