package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/pkg/models"
)

// BlockerRepository handles database operations for reported blockers
type BlockerRepository struct {
	db *sqlx.DB
}

// NewBlockerRepository creates a new repository instance
func NewBlockerRepository(db *sqlx.DB) *BlockerRepository {
	return &BlockerRepository{db: db}
}

// Create stores a blocker and logs it
func (r *BlockerRepository) Create(ctx context.Context, ownerID int64, category models.BlockerCategory, detail string, at time.Time) (models.Blocker, error) {
	var blocker models.Blocker
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var id int64
		q := tx.Rebind(`INSERT INTO blockers (owner_id, created_at, category, detail) VALUES (?, ?, ?, ?) RETURNING id`)
		if err := tx.GetContext(ctx, &id, q, ownerID, unix(at), string(category), nullString(detail)); err != nil {
			return err
		}
		blocker = models.Blocker{ID: id, OwnerID: ownerID, CreatedAt: fromUnix(unix(at)), Category: category, Detail: detail}
		return appendEvent(ctx, tx, ownerID, at, models.EventBlocker, &id, map[string]string{"category": string(category)})
	})
	if err != nil {
		return models.Blocker{}, apperrors.Store("create blocker", err)
	}
	return blocker, nil
}

// CountByCategory counts blockers reported within [from, to)
func (r *BlockerRepository) CountByCategory(ctx context.Context, ownerID int64, from, to time.Time) (map[models.BlockerCategory]int, error) {
	var rows []struct {
		Category string `db:"category"`
		N        int    `db:"n"`
	}
	q := r.db.Rebind(`SELECT category, COUNT(*) AS n FROM blockers
		WHERE owner_id = ? AND created_at >= ? AND created_at < ? GROUP BY category`)
	if err := r.db.SelectContext(ctx, &rows, q, ownerID, unix(from), unix(to)); err != nil {
		return nil, apperrors.Store("count blockers", err)
	}
	counts := make(map[models.BlockerCategory]int, len(rows))
	for _, row := range rows {
		counts[models.BlockerCategory(row.Category)] = row.N
	}
	return counts, nil
}
