package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/pkg/models"
)

// GoalRepository stores the daily minute target
type GoalRepository struct {
	db *sqlx.DB
}

// NewGoalRepository creates a new repository instance
func NewGoalRepository(db *sqlx.DB) *GoalRepository {
	return &GoalRepository{db: db}
}

// Set replaces the owner's goal
func (r *GoalRepository) Set(ctx context.Context, ownerID int64, minutes int, at time.Time) error {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`INSERT INTO goals (owner_id, minutes, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (owner_id) DO UPDATE SET minutes = excluded.minutes, updated_at = excluded.updated_at`)
		if _, err := tx.ExecContext(ctx, q, ownerID, minutes, unix(at)); err != nil {
			return err
		}
		return appendEvent(ctx, tx, ownerID, at, models.EventGoalSet, nil, map[string]int{"minutes": minutes})
	})
	return apperrors.Store("set goal", err)
}

// Get returns the owner's goal, or nil if none was set
func (r *GoalRepository) Get(ctx context.Context, ownerID int64) (*models.Goal, error) {
	var row struct {
		Minutes   int   `db:"minutes"`
		UpdatedAt int64 `db:"updated_at"`
	}
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT minutes, updated_at FROM goals WHERE owner_id = ?`), ownerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Store("get goal", err)
	}
	return &models.Goal{OwnerID: ownerID, Minutes: row.Minutes, UpdatedAt: fromUnix(row.UpdatedAt)}, nil
}
