package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oceanstella/api/internal/models"
)

var userCols = []string{
	"id", "email", "name", "password_hash", "email_verified",
	"otp_hash", "otp_expires_at", "otp_last_sent_at", "otp_attempts",
	"role", "status", "avatar_url", "avatar_public_id", "provider", "provider_id",
	"last_login_at", "created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func sampleUser(now time.Time) models.User {
	user := models.NewLocalUser("usr_1", "Ada", "ada@example.com", []byte("$argon2id$hash"), models.UserRoleViewer, now)
	user.IssueChallenge("digest", 10*time.Minute, now)
	return user
}

func TestUserRepositoryCreate(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user := sampleUser(now)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(userArgs(user)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), user))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateDuplicateEmail(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	user := sampleUser(time.Now())

	mock.ExpectExec("INSERT INTO users").
		WithArgs(userArgs(user)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := repo.Create(context.Background(), user)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestUserRepositoryCreatePassesThroughOtherErrors(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	user := sampleUser(time.Now())

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO users").WithArgs(userArgs(user)...).WillReturnError(boom)

	err := repo.Create(context.Background(), user)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrDuplicateKey)
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(10 * time.Minute)

	rows := pgxmock.NewRows(userCols).AddRow(
		"usr_1", "ada@example.com", "Ada", []byte("hash"), false,
		"digest", &expires, &now, 2,
		"viewer", "active", "https://cdn/a.png", "avatars/a.png", "google", "g-1",
		(*time.Time)(nil), now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE lower(email) = lower($1)")).
		WithArgs("Ada@Example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "Ada@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", user.ID)
	assert.Equal(t, models.UserRoleViewer, user.Role)
	assert.Equal(t, models.UserStatusActive, user.Status)
	assert.Equal(t, 2, user.OTP.Attempts)
	assert.True(t, user.OTP.Pending())
	require.NotNil(t, user.Avatar)
	assert.Equal(t, "avatars/a.png", user.Avatar.PublicID)
	require.NotNil(t, user.Federation)
	assert.Equal(t, "g-1", user.Federation.ProviderID)
	assert.Nil(t, user.LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("FROM users WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(userCols))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepositoryFindByFederationWithoutOptionalFields(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(userCols).AddRow(
		"usr_2", "g@example.com", "Google User", []byte(nil), true,
		"", (*time.Time)(nil), (*time.Time)(nil), 0,
		"editor", "active", "", "", "google", "uid-9",
		&now, now, now,
	)
	mock.ExpectQuery("WHERE provider = \\$1 AND provider_id = \\$2").
		WithArgs(models.ProviderGoogle, "uid-9").
		WillReturnRows(rows)

	user, err := repo.FindByFederation(context.Background(), models.ProviderGoogle, "uid-9")
	require.NoError(t, err)
	assert.False(t, user.HasPassword())
	assert.Nil(t, user.Avatar)
	assert.False(t, user.OTP.Pending())
	require.NotNil(t, user.LastLoginAt)
}

func TestUserRepositorySave(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	user := sampleUser(time.Now().UTC())
	args := append(userArgs(user)[:16:16], user.UpdatedAt)

	mock.ExpectExec("UPDATE users SET").WithArgs(args...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.Save(context.Background(), user))

	mock.ExpectExec("UPDATE users SET").WithArgs(args...).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.Save(context.Background(), user), ErrUserNotFound)

	mock.ExpectExec("UPDATE users SET").WithArgs(args...).WillReturnError(&pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, repo.Save(context.Background(), user), ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRecordLoginSkipsInactive(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'active'")).
		WithArgs("usr_1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.RecordLogin(context.Background(), "usr_1", at))

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'active'")).
		WithArgs("usr_1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.RecordLogin(context.Background(), "usr_1", at), ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryIncrementOTPAttempts(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SET otp_attempts = otp_attempts + 1")).
		WithArgs("usr_1", "digest").
		WillReturnRows(pgxmock.NewRows([]string{"otp_attempts"}).AddRow(4))
	attempts, err := repo.IncrementOTPAttempts(context.Background(), "usr_1", "digest")
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)

	mock.ExpectQuery(regexp.QuoteMeta("SET otp_attempts = otp_attempts + 1")).
		WithArgs("usr_1", "stale").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.IncrementOTPAttempts(context.Background(), "usr_1", "stale")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryConsumeChallengeOnce(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("email_verified = TRUE").
		WithArgs("usr_1", "digest", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.ConsumeChallenge(context.Background(), "usr_1", "digest", at))

	mock.ExpectExec("email_verified = TRUE").
		WithArgs("usr_1", "digest", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.ConsumeChallenge(context.Background(), "usr_1", "digest", at), ErrChallengeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositorySaveFederationLeavesStatusAlone(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user := sampleUser(now)
	user.LinkFederation(models.FederatedIdentity{Provider: models.ProviderGoogle, ProviderID: "g-1"}, "https://pic", now)

	mock.ExpectExec(`SET\s+provider = \$2`).
		WithArgs("usr_1", models.ProviderGoogle, "g-1", "https://pic", "", true, user.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.SaveFederation(context.Background(), user))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDelete(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec("DELETE FROM users").WithArgs("usr_1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, repo.Delete(context.Background(), "usr_1"))

	mock.ExpectExec("DELETE FROM users").WithArgs("usr_1").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "usr_1"), ErrUserNotFound)
}

func TestUserRepositoryCountAll(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUserRepositoryList(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Now().UTC()

	cols := append(append([]string{}, userCols...), "total")
	rows := pgxmock.NewRows(cols).
		AddRow("usr_1", "a@example.com", "A", []byte(nil), true, "", (*time.Time)(nil), (*time.Time)(nil), 0,
			"admin", "active", "", "", "", "", (*time.Time)(nil), now, now, 12).
		AddRow("usr_2", "b@example.com", "B", []byte(nil), true, "", (*time.Time)(nil), (*time.Time)(nil), 0,
			"admin", "active", "", "", "", "", (*time.Time)(nil), now, now, 12)

	mock.ExpectQuery("FROM users").
		WithArgs("exa", "active", "admin", 2, 4).
		WillReturnRows(rows)

	users, total, err := repo.List(context.Background(), UserFilter{
		Query:  "exa",
		Status: models.UserStatusActive,
		Role:   models.UserRoleAdmin,
		Limit:  2,
		Offset: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, users, 2)
	assert.Equal(t, "usr_2", users[1].ID)
	assert.Nil(t, users[0].Federation)
}
