package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"oceanstella/api/internal/database"
	"oceanstella/api/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrChallengeNotFound = errors.New("verification challenge not found")
)

// UserFilter narrows the admin listing. Empty fields match everything.
type UserFilter struct {
	Query  string
	Status models.UserStatus
	Role   models.UserRole
	Limit  int
	Offset int
}

type UserRepository struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, email, name, password_hash, email_verified,
	otp_hash, otp_expires_at, otp_last_sent_at, otp_attempts,
	role, status, avatar_url, avatar_public_id, provider, provider_id,
	last_login_at, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (` + userColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`
	_, err := r.db.Exec(ctx, query, userArgs(user)...)
	return translateWriteError(err)
}

// Save writes every mutable field of user. Derived fields are expected to be
// set by the caller.
func (r *UserRepository) Save(ctx context.Context, user models.User) error {
	const query = `
		UPDATE users SET
			email = $2, name = $3, password_hash = $4, email_verified = $5,
			otp_hash = $6, otp_expires_at = $7, otp_last_sent_at = $8, otp_attempts = $9,
			role = $10, status = $11, avatar_url = $12, avatar_public_id = $13,
			provider = $14, provider_id = $15, last_login_at = $16, updated_at = $17
		WHERE id = $1
	`
	args := append(userArgs(user)[:16:16], user.UpdatedAt)
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return translateWriteError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordLogin stamps the login time. Only active accounts match, so a
// concurrent disable is never overwritten.
func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE users SET last_login_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'active'
	`
	cmd, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// IncrementOTPAttempts counts one attempt against the challenge whose digest
// is codeHash and returns the stored total.
func (r *UserRepository) IncrementOTPAttempts(ctx context.Context, id, codeHash string) (int, error) {
	const query = `
		UPDATE users SET otp_attempts = otp_attempts + 1
		WHERE id = $1 AND otp_hash = $2 AND otp_hash <> ''
		RETURNING otp_attempts
	`
	var attempts int
	if err := r.db.QueryRow(ctx, query, id, codeHash).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrChallengeNotFound
		}
		return 0, err
	}
	return attempts, nil
}

// ConsumeChallenge marks the address verified and clears the challenge whose
// digest is codeHash. A challenge can be consumed once.
func (r *UserRepository) ConsumeChallenge(ctx context.Context, id, codeHash string, at time.Time) error {
	const query = `
		UPDATE users SET
			email_verified = TRUE, otp_hash = '', otp_expires_at = NULL, otp_attempts = 0,
			updated_at = $3
		WHERE id = $1 AND otp_hash = $2 AND otp_hash <> ''
	`
	cmd, err := r.db.Exec(ctx, query, id, codeHash, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrChallengeNotFound
	}
	return nil
}

// SaveFederation writes the provider link, avatar and verification flag of
// user and leaves every other column alone.
func (r *UserRepository) SaveFederation(ctx context.Context, user models.User) error {
	const query = `
		UPDATE users SET
			provider = $2, provider_id = $3, avatar_url = $4, avatar_public_id = $5,
			email_verified = email_verified OR $6, updated_at = $7
		WHERE id = $1
	`
	var provider, providerID, avatarURL, avatarID string
	if user.Federation != nil {
		provider, providerID = user.Federation.Provider, user.Federation.ProviderID
	}
	if user.Avatar != nil {
		avatarURL, avatarID = user.Avatar.URL, user.Avatar.PublicID
	}
	cmd, err := r.db.Exec(ctx, query, user.ID, provider, providerID, avatarURL, avatarID, user.EmailVerified, user.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) FindByFederation(ctx context.Context, provider, providerID string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE provider = $1 AND provider_id = $2`
	return scanUser(r.db.QueryRow(ctx, query, provider, providerID))
}

func (r *UserRepository) CountAll(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM users`
	var count int
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// List returns one page of users matching filter together with the total
// number of matches.
func (r *UserRepository) List(ctx context.Context, filter UserFilter) ([]models.User, int, error) {
	const query = `
		SELECT ` + userColumns + `, COUNT(*) OVER() AS total
		FROM users
		WHERE ($1 = '' OR email ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR role = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.db.Query(ctx, query,
		filter.Query,
		string(filter.Status),
		string(filter.Role),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		users []models.User
		total int
	)
	for rows.Next() {
		var rec userRecord
		if err := rows.Scan(append(rec.targets(), &total)...); err != nil {
			return nil, 0, err
		}
		users = append(users, rec.user())
	}
	return users, total, rows.Err()
}

func userArgs(user models.User) []any {
	var avatarURL, avatarID, provider, providerID string
	if user.Avatar != nil {
		avatarURL, avatarID = user.Avatar.URL, user.Avatar.PublicID
	}
	if user.Federation != nil {
		provider, providerID = user.Federation.Provider, user.Federation.ProviderID
	}
	return []any{
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.EmailVerified,
		user.OTP.Hash,
		user.OTP.ExpiresAt,
		user.OTP.LastSentAt,
		user.OTP.Attempts,
		string(user.Role),
		string(user.Status),
		avatarURL,
		avatarID,
		provider,
		providerID,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	}
}

type userRecord struct {
	base       models.User
	role       string
	status     string
	avatarURL  string
	avatarID   string
	provider   string
	providerID string
}

func (r *userRecord) targets() []any {
	u := &r.base
	return []any{
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.EmailVerified,
		&u.OTP.Hash,
		&u.OTP.ExpiresAt,
		&u.OTP.LastSentAt,
		&u.OTP.Attempts,
		&r.role,
		&r.status,
		&r.avatarURL,
		&r.avatarID,
		&r.provider,
		&r.providerID,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	}
}

func (r *userRecord) user() models.User {
	u := r.base
	u.Role = models.UserRole(r.role)
	u.Status = models.UserStatus(r.status)
	if r.avatarURL != "" || r.avatarID != "" {
		u.Avatar = &models.Avatar{URL: r.avatarURL, PublicID: r.avatarID}
	}
	if r.provider != "" {
		u.Federation = &models.FederatedIdentity{Provider: r.provider, ProviderID: r.providerID}
	}
	return u
}

func scanUser(row scanner) (models.User, error) {
	var rec userRecord
	if err := row.Scan(rec.targets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return rec.user(), nil
}
