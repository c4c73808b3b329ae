package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// CreateSession inserts s. CreatedAt is set when zero.
func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, uid, email, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UID, s.Email, s.ExpiresAt.UnixMicro(), s.CreatedAt.UnixMicro(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("session", s.ID)
		}
		return wrapErr(fmt.Sprintf("inserting session for %s", s.UID), err)
	}
	return nil
}

func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		s                  model.Session
		expires, createdAt int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, uid, email, expires_at, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UID, &s.Email, &expires, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("session", id)
	}
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("getting session %s", id), err)
	}
	s.ExpiresAt = time.UnixMicro(expires).UTC()
	s.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &s, nil
}

func (db *DB) DeleteSession(ctx context.Context, id string) (bool, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, wrapErr(fmt.Sprintf("deleting session %s", id), err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeleteExpiredSessions removes every session with expires_at <= t.
func (db *DB) DeleteExpiredSessions(ctx context.Context, t time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, t.UnixMicro())
	if err != nil {
		return 0, wrapErr("deleting expired sessions", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return rows, nil
}
