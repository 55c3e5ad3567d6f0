package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/pkg/models"
)

type eventRow struct {
	ID        int64          `db:"id"`
	OwnerID   int64          `db:"owner_id"`
	CreatedAt int64          `db:"created_at"`
	Kind      string         `db:"kind"`
	RefID     sql.NullInt64  `db:"ref_id"`
	Payload   sql.NullString `db:"payload"`
}

func (r eventRow) toModel() models.Event {
	e := models.Event{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		CreatedAt: fromUnix(r.CreatedAt),
		Kind:      r.Kind,
	}
	if r.RefID.Valid {
		id := r.RefID.Int64
		e.RefID = &id
	}
	if r.Payload.Valid {
		e.Payload = json.RawMessage(r.Payload.String)
	}
	return e
}

// EventRepository appends to and reads the activity log
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new repository instance
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append writes one event
func (r *EventRepository) Append(ctx context.Context, ownerID int64, at time.Time, kind string, refID *int64, payload any) error {
	return apperrors.Store("append event", appendEvent(ctx, r.db, ownerID, at, kind, refID, payload))
}

// ListRecent returns the newest events of an owner, newest first
func (r *EventRepository) ListRecent(ctx context.Context, ownerID int64, limit int) ([]models.Event, error) {
	var rows []eventRow
	q := `SELECT id, owner_id, created_at, kind, ref_id, payload FROM events WHERE owner_id = ? ORDER BY id DESC LIMIT ?`
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), ownerID, limit); err != nil {
		return nil, apperrors.Store("list events", err)
	}
	events := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toModel())
	}
	return events, nil
}

// appendEvent is shared by repositories that log inside their own transaction
func appendEvent(ctx context.Context, ext sqlx.ExtContext, ownerID int64, at time.Time, kind string, refID *int64, payload any) error {
	var body sql.NullString
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		body = sql.NullString{String: string(b), Valid: true}
	}
	var ref sql.NullInt64
	if refID != nil {
		ref = sql.NullInt64{Int64: *refID, Valid: true}
	}
	q := ext.Rebind(`INSERT INTO events (owner_id, created_at, kind, ref_id, payload) VALUES (?, ?, ?, ?, ?)`)
	_, err := ext.ExecContext(ctx, q, ownerID, unix(at), kind, ref, body)
	return err
}
