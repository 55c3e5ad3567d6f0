package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/pkg/models"
)

const sessionColumns = `id, owner_id, start_ts, end_ts, topic`

type sessionRow struct {
	ID      int64          `db:"id"`
	OwnerID int64          `db:"owner_id"`
	StartTS int64          `db:"start_ts"`
	EndTS   sql.NullInt64  `db:"end_ts"`
	Topic   sql.NullString `db:"topic"`
}

func (r sessionRow) toModel() models.StudySession {
	return models.StudySession{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		StartedAt: fromUnix(r.StartTS),
		EndedAt:   fromNullUnix(r.EndTS),
		Topic:     r.Topic.String,
	}
}

// SessionRepository handles database operations for study sessions
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new repository instance
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Start opens a session for the owner. It fails with ErrAlreadyOpen if one is open.
func (r *SessionRepository) Start(ctx context.Context, ownerID int64, at time.Time, topic string) (models.StudySession, error) {
	var session models.StudySession
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		open, err := openSession(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if open != nil {
			return apperrors.ErrAlreadyOpen
		}

		var id int64
		q := tx.Rebind(`INSERT INTO study_sessions (owner_id, start_ts, topic) VALUES (?, ?, ?) RETURNING id`)
		if err := tx.GetContext(ctx, &id, q, ownerID, unix(at), nullString(topic)); err != nil {
			return err
		}
		session = models.StudySession{ID: id, OwnerID: ownerID, StartedAt: fromUnix(unix(at)), Topic: topic}
		return appendEvent(ctx, tx, ownerID, at, models.EventSessionStart, &id, map[string]string{"topic": topic})
	})
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, apperrors.ErrAlreadyOpen), isUniqueViolation(err):
		return models.StudySession{}, apperrors.ErrAlreadyOpen
	default:
		return models.StudySession{}, apperrors.Store("start session", err)
	}
}

// Record inserts a closed session unless the owner already has one starting
// at the same second. It reports whether a row was inserted.
func (r *SessionRepository) Record(ctx context.Context, ownerID int64, start, end time.Time, topic string) (bool, error) {
	var created bool
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var id int64
		q := tx.Rebind(`INSERT INTO study_sessions (owner_id, start_ts, end_ts, topic)
			SELECT CAST(? AS BIGINT), CAST(? AS BIGINT), CAST(? AS BIGINT), CAST(? AS TEXT)
			WHERE NOT EXISTS (SELECT 1 FROM study_sessions WHERE owner_id = ? AND start_ts = ?)
			RETURNING id`)
		err := tx.GetContext(ctx, &id, q, ownerID, unix(start), unix(end), nullString(topic), ownerID, unix(start))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		created = true
		return appendEvent(ctx, tx, ownerID, end, models.EventSessionImport, &id, map[string]string{"topic": topic})
	})
	if err != nil {
		return false, apperrors.Store("record session", err)
	}
	return created, nil
}

// Stop closes the owner's open session. An end before the start is clamped to the start.
func (r *SessionRepository) Stop(ctx context.Context, ownerID int64, at time.Time) (models.StudySession, error) {
	var session models.StudySession
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		open, err := openSession(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if open == nil {
			return apperrors.ErrNoOpenSession
		}

		end := unix(at)
		if start := unix(open.StartedAt); end < start {
			end = start
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE study_sessions SET end_ts = ? WHERE id = ? AND end_ts IS NULL`), end, open.ID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperrors.ErrNoOpenSession
		}

		session = *open
		endedAt := fromUnix(end)
		session.EndedAt = &endedAt
		minutes := int(endedAt.Sub(session.StartedAt) / time.Minute)
		return appendEvent(ctx, tx, ownerID, at, models.EventSessionStop, &open.ID, map[string]int{"minutes": minutes})
	})
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, apperrors.ErrNoOpenSession):
		return models.StudySession{}, err
	default:
		return models.StudySession{}, apperrors.Store("stop session", err)
	}
}

// Open returns the owner's open session, or nil if there is none
func (r *SessionRepository) Open(ctx context.Context, ownerID int64) (*models.StudySession, error) {
	s, err := openSession(ctx, r.db, ownerID)
	if err != nil {
		return nil, apperrors.Store("get open session", err)
	}
	return s, nil
}

// Overlapping returns sessions that intersect [from, to), ordered by start
func (r *SessionRepository) Overlapping(ctx context.Context, ownerID int64, from, to time.Time) ([]models.StudySession, error) {
	q := `SELECT ` + sessionColumns + ` FROM study_sessions
		WHERE owner_id = ? AND start_ts < ? AND (end_ts IS NULL OR end_ts > ?)
		ORDER BY start_ts ASC, id ASC`
	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), ownerID, unixCeil(to), unix(from)); err != nil {
		return nil, apperrors.Store("list overlapping sessions", err)
	}
	sessions := make([]models.StudySession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toModel())
	}
	return sessions, nil
}

// FirstStartedBetween returns the earliest session that started within [from, to), or nil
func (r *SessionRepository) FirstStartedBetween(ctx context.Context, ownerID int64, from, to time.Time) (*models.StudySession, error) {
	q := `SELECT ` + sessionColumns + ` FROM study_sessions
		WHERE owner_id = ? AND start_ts >= ? AND start_ts < ?
		ORDER BY start_ts ASC, id ASC LIMIT 1`
	var row sessionRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(q), ownerID, unix(from), unix(to))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Store("first session in range", err)
	}
	s := row.toModel()
	return &s, nil
}

// UndoLast reverts the owner's most recent session start or stop.
func (r *SessionRepository) UndoLast(ctx context.Context, ownerID int64, at time.Time) (models.UndoKind, models.StudySession, error) {
	var (
		kind    models.UndoKind
		session models.StudySession
	)
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var ev eventRow
		q := tx.Rebind(`SELECT id, owner_id, created_at, kind, ref_id, payload FROM events
			WHERE owner_id = ? AND kind IN (?, ?) ORDER BY id DESC LIMIT 1`)
		err := tx.GetContext(ctx, &ev, q, ownerID, models.EventSessionStart, models.EventSessionStop)
		if err == sql.ErrNoRows || (err == nil && !ev.RefID.Valid) {
			return apperrors.ErrNothingToUndo
		}
		if err != nil {
			return err
		}

		var row sessionRow
		err = tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+sessionColumns+` FROM study_sessions WHERE id = ?`), ev.RefID.Int64)
		if err == sql.ErrNoRows {
			return apperrors.ErrNothingToUndo
		}
		if err != nil {
			return err
		}
		session = row.toModel()

		switch ev.Kind {
		case models.EventSessionStart:
			if !session.IsOpen() {
				return apperrors.ErrNothingToUndo
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM study_sessions WHERE id = ?`), session.ID); err != nil {
				return err
			}
			kind = models.UndoStart
		case models.EventSessionStop:
			if open, err := openSession(ctx, tx, ownerID); err != nil {
				return err
			} else if open != nil {
				return apperrors.ErrAlreadyOpen
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE study_sessions SET end_ts = NULL WHERE id = ?`), session.ID); err != nil {
				return err
			}
			session.EndedAt = nil
			kind = models.UndoStop
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM events WHERE id = ?`), ev.ID); err != nil {
			return err
		}
		return appendEvent(ctx, tx, ownerID, at, models.EventSessionUndo, &session.ID, map[string]string{"reverted": string(kind)})
	})
	switch {
	case err == nil:
		return kind, session, nil
	case errors.Is(err, apperrors.ErrNothingToUndo), errors.Is(err, apperrors.ErrAlreadyOpen):
		return "", models.StudySession{}, err
	case isUniqueViolation(err):
		return "", models.StudySession{}, apperrors.ErrAlreadyOpen
	default:
		return "", models.StudySession{}, apperrors.Store(fmt.Sprintf("undo last session event of %d", ownerID), err)
	}
}

func openSession(ctx context.Context, ext sqlx.ExtContext, ownerID int64) (*models.StudySession, error) {
	var row sessionRow
	q := ext.Rebind(`SELECT ` + sessionColumns + ` FROM study_sessions WHERE owner_id = ? AND end_ts IS NULL ORDER BY id DESC LIMIT 1`)
	err := sqlx.GetContext(ctx, ext, &row, q, ownerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s := row.toModel()
	return &s, nil
}
