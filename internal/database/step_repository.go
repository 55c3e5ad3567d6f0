package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/pkg/models"
)

const stepColumns = `id, owner_id, text, done, created_at, done_at`

type stepRow struct {
	ID        int64         `db:"id"`
	OwnerID   int64         `db:"owner_id"`
	Text      string        `db:"text"`
	Done      bool          `db:"done"`
	CreatedAt int64         `db:"created_at"`
	DoneAt    sql.NullInt64 `db:"done_at"`
}

func (r stepRow) toModel() models.NextStep {
	return models.NextStep{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Text:      r.Text,
		Done:      r.Done,
		CreatedAt: fromUnix(r.CreatedAt),
		DoneAt:    fromNullUnix(r.DoneAt),
	}
}

// StepRepository handles database operations for next steps
type StepRepository struct {
	db *sqlx.DB
}

// NewStepRepository creates a new repository instance
func NewStepRepository(db *sqlx.DB) *StepRepository {
	return &StepRepository{db: db}
}

// Add inserts an active step unless the owner already has the maximum.
// The limit check and the insert are one statement.
func (r *StepRepository) Add(ctx context.Context, ownerID int64, text string, at time.Time) (models.NextStep, error) {
	var step models.NextStep
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`INSERT INTO next_steps (owner_id, text, created_at)
			SELECT CAST(? AS BIGINT), CAST(? AS TEXT), CAST(? AS BIGINT)
			WHERE (SELECT COUNT(*) FROM next_steps WHERE owner_id = ? AND done = ?) < ?
			RETURNING id`)
		var id int64
		err := tx.GetContext(ctx, &id, q, ownerID, text, unix(at), ownerID, false, models.MaxActiveSteps)
		if err == sql.ErrNoRows {
			return apperrors.ErrStepLimit
		}
		if err != nil {
			return err
		}
		step = models.NextStep{ID: id, OwnerID: ownerID, Text: text, CreatedAt: fromUnix(unix(at))}
		return appendEvent(ctx, tx, ownerID, at, models.EventStepAdd, &id, map[string]string{"text": text})
	})
	if err == apperrors.ErrStepLimit {
		return models.NextStep{}, err
	}
	if err != nil {
		return models.NextStep{}, apperrors.Store("add step", err)
	}
	return step, nil
}

// List returns active steps first (oldest first), then the most recently finished ones
func (r *StepRepository) List(ctx context.Context, ownerID int64, limit int) ([]models.NextStep, error) {
	q := `SELECT ` + stepColumns + ` FROM next_steps WHERE owner_id = ?
		ORDER BY CASE WHEN done = ? THEN 0 ELSE 1 END, COALESCE(done_at, 0) DESC, id ASC LIMIT ?`
	var rows []stepRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), ownerID, false, limit); err != nil {
		return nil, apperrors.Store("list steps", err)
	}
	steps := make([]models.NextStep, 0, len(rows))
	for _, row := range rows {
		steps = append(steps, row.toModel())
	}
	return steps, nil
}

// CountActive returns how many unfinished steps the owner has
func (r *StepRepository) CountActive(ctx context.Context, ownerID int64) (int, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(*) FROM next_steps WHERE owner_id = ? AND done = ?`)
	if err := r.db.GetContext(ctx, &n, q, ownerID, false); err != nil {
		return 0, apperrors.Store("count active steps", err)
	}
	return n, nil
}

// MarkDone finishes an active step
func (r *StepRepository) MarkDone(ctx context.Context, ownerID, stepID int64, at time.Time) (models.NextStep, error) {
	var step models.NextStep
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := getStep(ctx, tx, ownerID, stepID)
		if err != nil {
			return err
		}
		if current.Done {
			return apperrors.ErrStepAlreadyDone
		}
		q := tx.Rebind(`UPDATE next_steps SET done = ?, done_at = ? WHERE id = ? AND owner_id = ? AND done = ?`)
		if _, err := tx.ExecContext(ctx, q, true, unix(at), stepID, ownerID, false); err != nil {
			return err
		}
		doneAt := fromUnix(unix(at))
		current.Done = true
		current.DoneAt = &doneAt
		step = current
		return appendEvent(ctx, tx, ownerID, at, models.EventStepDone, &stepID, nil)
	})
	return step, stepError("mark step done", err)
}

// UpdateText replaces the text of a step
func (r *StepRepository) UpdateText(ctx context.Context, ownerID, stepID int64, text string, at time.Time) (models.NextStep, error) {
	var step models.NextStep
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		current, err := getStep(ctx, tx, ownerID, stepID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE next_steps SET text = ? WHERE id = ?`), text, stepID); err != nil {
			return err
		}
		current.Text = text
		step = current
		return appendEvent(ctx, tx, ownerID, at, models.EventStepEdit, &stepID, map[string]string{"text": text})
	})
	return step, stepError("update step", err)
}

// Delete removes a step
func (r *StepRepository) Delete(ctx context.Context, ownerID, stepID int64, at time.Time) error {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM next_steps WHERE id = ? AND owner_id = ?`), stepID, ownerID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperrors.ErrStepNotFound
		}
		return appendEvent(ctx, tx, ownerID, at, models.EventStepDelete, &stepID, nil)
	})
	return stepError("delete step", err)
}

func getStep(ctx context.Context, ext sqlx.ExtContext, ownerID, stepID int64) (models.NextStep, error) {
	var row stepRow
	q := ext.Rebind(`SELECT ` + stepColumns + ` FROM next_steps WHERE id = ? AND owner_id = ?`)
	err := sqlx.GetContext(ctx, ext, &row, q, stepID, ownerID)
	if err == sql.ErrNoRows {
		return models.NextStep{}, apperrors.ErrStepNotFound
	}
	if err != nil {
		return models.NextStep{}, err
	}
	return row.toModel(), nil
}

func stepError(op string, err error) error {
	switch err {
	case nil, apperrors.ErrStepNotFound, apperrors.ErrStepAlreadyDone:
		return err
	default:
		return apperrors.Store(op, err)
	}
}
