package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"oceanstella/api/internal/database"
	"oceanstella/api/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository struct {
	db database.DBTX
}

func NewSessionRepository(db database.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, token_hash, user_agent, ip_address, expires_at, revoked_at, created_at`

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO auth_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.RevokedAt,
		session.CreatedAt,
	)
	return translateWriteError(err)
}

// FindActiveByHash returns the unrevoked session for tokenHash. Expiry is left
// to the caller.
func (r *SessionRepository) FindActiveByHash(ctx context.Context, tokenHash string) (models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM auth_sessions
		WHERE token_hash = $1 AND revoked_at IS NULL
	`
	session, err := scanSession(r.db.QueryRow(ctx, query, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}

// RevokeByHash marks the session revoked. Revoking an unknown or already
// revoked hash is not an error.
func (r *SessionRepository) RevokeByHash(ctx context.Context, tokenHash string, at time.Time) error {
	const query = `
		UPDATE auth_sessions SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
	`
	_, err := r.db.Exec(ctx, query, tokenHash, at)
	return err
}

func (r *SessionRepository) RevokeByID(ctx context.Context, userID, id string, at time.Time) error {
	const query = `
		UPDATE auth_sessions SET revoked_at = $3
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL
	`
	cmd, err := r.db.Exec(ctx, query, id, userID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	const query = `
		UPDATE auth_sessions SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	cmd, err := r.db.Exec(ctx, query, userID, at)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM auth_sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM auth_sessions WHERE user_id = $1`
	cmd, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// PurgeStale deletes sessions that expired or were revoked before the cutoff.
func (r *SessionRepository) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	const query = `
		DELETE FROM auth_sessions
		WHERE expires_at < $1 OR revoked_at < $1
	`
	cmd, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanSession(row scanner) (models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.CreatedAt,
	)
	return session, err
}
