package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"oceanstella/api/internal/apperr"
	"oceanstella/api/internal/config"
	"oceanstella/api/internal/models"
	"oceanstella/api/internal/repository"
	"oceanstella/api/internal/security"
)

// OTPFlow runs the e-mail verification challenge embedded in a user record:
// no challenge, pending, then verified, expired or out of attempts.
type OTPFlow struct {
	users  UserStore
	sender CodeSender
	cfg    config.OTPConfig
	now    func() time.Time
	log    zerolog.Logger
}

func NewOTPFlow(users UserStore, sender CodeSender, cfg config.OTPConfig, log zerolog.Logger) *OTPFlow {
	return &OTPFlow{
		users:  users,
		sender: sender,
		cfg:    cfg,
		now:    time.Now,
		log:    log,
	}
}

// Issue puts a fresh challenge on user, persists it with store and mails the
// code. Store errors are returned as is; a failed dispatch returns
// ErrEmailDispatchFailed after the record has been stored, so the caller
// decides how to roll back.
func (f *OTPFlow) Issue(ctx context.Context, user *models.User, store func(context.Context, models.User) error) error {
	code, err := security.GenerateOTP()
	if err != nil {
		return err
	}
	user.IssueChallenge(security.HashOTP(code), f.cfg.TTL, f.now())

	if err := store(ctx, *user); err != nil {
		return err
	}

	if err := f.sender.SendVerificationCode(ctx, user.Email, code); err != nil {
		f.log.Error().Err(err).Str("user_id", user.ID).Str("email", user.Email).Msg("verification email failed")
		return ErrEmailDispatchFailed.Wrap(err)
	}
	return nil
}

// Verify checks code against the pending challenge. The attempt counter is
// incremented in the store before the comparison, so concurrent guesses all
// count. It reports alreadyVerified when the address was confirmed by other
// means while a challenge was still outstanding.
func (f *OTPFlow) Verify(ctx context.Context, user *models.User, code string) (alreadyVerified bool, err error) {
	if !user.OTP.Pending() {
		return false, ErrOTPNotRequested
	}
	if user.EmailVerified {
		return true, nil
	}

	now := f.now()
	if now.After(*user.OTP.ExpiresAt) {
		return false, ErrOTPExpired
	}

	attempts, err := f.users.IncrementOTPAttempts(ctx, user.ID, user.OTP.Hash)
	if errors.Is(err, repository.ErrChallengeNotFound) {
		return false, ErrOTPNotRequested
	}
	if err != nil {
		return false, apperr.Dependency(err, "Could not verify code")
	}
	user.OTP.Attempts = attempts
	if attempts >= f.cfg.MaxAttempts {
		return false, ErrTooManyAttempts
	}
	if !security.OTPMatches(code, user.OTP.Hash) {
		return false, ErrInvalidCode
	}

	err = f.users.ConsumeChallenge(ctx, user.ID, user.OTP.Hash, now)
	if errors.Is(err, repository.ErrChallengeNotFound) {
		return false, ErrOTPNotRequested
	}
	if err != nil {
		return false, apperr.Dependency(err, "Could not verify code")
	}
	user.MarkVerified(now)
	return false, nil
}

// Resend issues a new code to an unverified address, subject to the resend
// cooldown. When the mail cannot be sent the previous challenge is restored.
func (f *OTPFlow) Resend(ctx context.Context, email string) (alreadyVerified bool, err error) {
	user, err := f.users.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, ErrUserNotFound
		}
		return false, apperr.Dependency(err, "Could not resend code")
	}
	if user.EmailVerified {
		return true, nil
	}

	if last := user.OTP.LastSentAt; last != nil && f.now().Sub(*last) < f.cfg.ResendCooldown {
		return false, ErrResendTooSoon
	}

	previous := user.OTP
	err = f.Issue(ctx, &user, f.users.Save)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrEmailDispatchFailed) {
		return false, apperr.Dependency(err, "Could not resend code")
	}

	user.OTP = previous
	if restoreErr := f.users.Save(ctx, user); restoreErr != nil {
		f.log.Error().Err(restoreErr).Str("user_id", user.ID).Msg("restore previous challenge failed")
	}
	return false, err
}
