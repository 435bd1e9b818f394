package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"oceanstella/api/internal/apperr"
	"oceanstella/api/internal/config"
	"oceanstella/api/internal/identity"
	"oceanstella/api/internal/ids"
	"oceanstella/api/internal/models"
	"oceanstella/api/internal/repository"
	"oceanstella/api/internal/security"
)

const minNameLength = 2

type AuthService struct {
	users    UserStore
	sessions SessionStore
	tokens   *security.TokenIssuer
	otp      *OTPFlow
	verifier identity.Verifier
	cfg      *config.AppConfig
	now      func() time.Time
	log      zerolog.Logger
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	tokens *security.TokenIssuer,
	otp *OTPFlow,
	verifier identity.Verifier,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	if verifier == nil {
		verifier = identity.Disabled{}
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		otp:      otp,
		verifier: verifier,
		cfg:      cfg,
		now:      time.Now,
		log:      log,
	}
}

// AuthResult is a freshly authenticated session. Handlers turn the tokens
// into cookies.
type AuthResult struct {
	User          models.User
	SessionID     string
	AccessToken   string
	RefreshToken  string
	RefreshMaxAge time.Duration
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
}

func (s *AuthService) Signup(ctx context.Context, input SignupInput) (models.User, error) {
	if !s.cfg.Security.AllowPublicSignup {
		return models.User{}, ErrSignupDisabled
	}

	email := models.NormalizeEmail(input.Email)
	if err := s.validateAccount(input.Name, email, input.Password); err != nil {
		return models.User{}, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, apperr.Dependency(err, "Could not create account")
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, apperr.Dependency(err, "Could not create account")
	}

	role, err := s.bootstrapRole(ctx, models.UserRoleViewer)
	if err != nil {
		return models.User{}, err
	}

	user := models.NewLocalUser(ids.New(), input.Name, email, passwordHash, role, s.now())

	err = s.otp.Issue(ctx, &user, s.users.Create)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicateKey):
		return models.User{}, ErrEmailTaken
	case errors.Is(err, ErrEmailDispatchFailed):
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("user_id", user.ID).Msg("signup rollback failed")
		} else {
			s.log.Warn().Str("email", email).Msg("signup rolled back after email failure")
		}
		return models.User{}, err
	default:
		return models.User{}, apperr.Dependency(err, "Could not create account")
	}

	s.log.Info().Str("user_id", user.ID).Str("email", email).Str("role", string(role)).Msg("signup pending verification")
	return user, nil
}

// VerifyResult carries either a new session or the already-verified marker.
type VerifyResult struct {
	AlreadyVerified bool
	Auth            AuthResult
}

func (s *AuthService) VerifyEmail(ctx context.Context, email, code string, meta models.SessionMetadata) (VerifyResult, error) {
	user, err := s.users.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return VerifyResult{}, ErrUserNotFound
		}
		return VerifyResult{}, apperr.Dependency(err, "Could not verify code")
	}

	if !user.Active() {
		return VerifyResult{}, ErrAccountDisabled
	}

	already, err := s.otp.Verify(ctx, &user, strings.TrimSpace(code))
	if err != nil {
		return VerifyResult{}, err
	}
	if already {
		return VerifyResult{AlreadyVerified: true}, nil
	}

	result, err := s.startSession(ctx, &user, meta)
	if err != nil {
		return VerifyResult{}, err
	}
	s.log.Info().Str("user_id", user.ID).Msg("email verified")
	return VerifyResult{Auth: result}, nil
}

func (s *AuthService) ResendEmailOTP(ctx context.Context, email string) (alreadyVerified bool, err error) {
	return s.otp.Resend(ctx, email)
}

type SigninInput struct {
	Email    string
	Password string
	Meta     models.SessionMetadata
}

// Signin authenticates a password account. Unknown e-mail, wrong password,
// disabled account and federation-only account all yield
// ErrInvalidCredentials.
func (s *AuthService) Signin(ctx context.Context, input SigninInput) (AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, models.NormalizeEmail(input.Email))
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, apperr.Dependency(err, "Could not sign in")
		}
		security.VerifyPassword(input.Password, dummyHash())
		return AuthResult{}, ErrInvalidCredentials
	}

	if !user.Active() || !user.HasPassword() {
		security.VerifyPassword(input.Password, dummyHash())
		return AuthResult{}, ErrInvalidCredentials
	}
	if !security.VerifyPassword(input.Password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return AuthResult{}, ErrEmailNotVerified
	}

	result, err := s.startSession(ctx, &user, input.Meta)
	if errors.Is(err, ErrAccountDisabled) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, err
	}
	s.log.Info().Str("user_id", user.ID).Msg("signin")
	return result, nil
}

// SigninFederated signs in with a provider ID token, creating or linking the
// account by e-mail.
func (s *AuthService) SigninFederated(ctx context.Context, idToken string, meta models.SessionMetadata) (AuthResult, error) {
	if strings.TrimSpace(idToken) == "" {
		return AuthResult{}, ErrMissingIDToken
	}

	ident, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		if errors.Is(err, identity.ErrDisabled) {
			return AuthResult{}, ErrFederationDisabled
		}
		return AuthResult{}, ErrInvalidExternalToken.Wrap(err)
	}
	if ident.Email == "" {
		return AuthResult{}, ErrNoEmailInToken
	}

	user, err := s.upsertFederated(ctx, ident)
	if err != nil {
		return AuthResult{}, err
	}
	if !user.Active() {
		return AuthResult{}, ErrAccountDisabled
	}

	result, err := s.startSession(ctx, &user, meta)
	if err != nil {
		return AuthResult{}, err
	}
	s.log.Info().Str("user_id", user.ID).Str("provider", models.ProviderGoogle).Msg("federated signin")
	return result, nil
}

func (s *AuthService) upsertFederated(ctx context.Context, ident identity.ExternalIdentity) (models.User, error) {
	email := models.NormalizeEmail(ident.Email)
	link := models.FederatedIdentity{Provider: models.ProviderGoogle, ProviderID: ident.UID}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) && ident.UID != "" {
		user, err = s.users.FindByFederation(ctx, models.ProviderGoogle, ident.UID)
	}
	switch {
	case err == nil:
		return s.linkFederated(ctx, user, link, ident.Picture)
	case !errors.Is(err, repository.ErrUserNotFound):
		return models.User{}, apperr.Dependency(err, "Could not sign in")
	}

	role, err := s.bootstrapRole(ctx, models.UserRoleEditor)
	if err != nil {
		return models.User{}, err
	}
	user = models.NewFederatedUser(ids.New(), ident.Name, email, link, ident.Picture, role, s.now())

	err = s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateKey) {
		// lost a race with a concurrent first sign-in for the same address
		existing, findErr := s.users.FindByEmail(ctx, email)
		if findErr != nil {
			return models.User{}, apperr.Dependency(findErr, "Could not sign in")
		}
		return s.linkFederated(ctx, existing, link, ident.Picture)
	}
	if err != nil {
		return models.User{}, apperr.Dependency(err, "Could not sign in")
	}
	s.log.Info().Str("user_id", user.ID).Str("email", email).Str("role", string(role)).Msg("federated account created")
	return user, nil
}

func (s *AuthService) linkFederated(ctx context.Context, user models.User, link models.FederatedIdentity, picture string) (models.User, error) {
	if !user.LinkFederation(link, picture, s.now()) {
		return user, nil
	}
	if err := s.users.SaveFederation(ctx, user); err != nil {
		return models.User{}, apperr.Dependency(err, "Could not sign in")
	}
	s.log.Info().Str("user_id", user.ID).Msg("federated identity linked")
	return user, nil
}

// Refresh issues a new access token for the session behind refreshToken. The
// refresh cookie lifetime in the result never exceeds the session's
// remaining life.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	if refreshToken == "" {
		return AuthResult{}, ErrNoRefreshToken
	}

	session, err := s.sessions.FindActiveByHash(ctx, security.HashRefreshSecret(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return AuthResult{}, ErrSessionExpired
		}
		return AuthResult{}, apperr.Dependency(err, "Could not refresh session")
	}

	now := s.now()
	remaining := session.Remaining(now).Truncate(time.Second)
	if !session.Active(now) || remaining <= 0 {
		return AuthResult{}, ErrSessionExpired
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrUserDisabled
		}
		return AuthResult{}, apperr.Dependency(err, "Could not refresh session")
	}
	if !user.Active() {
		return AuthResult{}, ErrUserDisabled
	}
	if s.cfg.Security.RequireVerifiedEmail && !user.EmailVerified {
		return AuthResult{}, ErrVerifyEmailFirst
	}

	accessToken, err := s.signAccess(user)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		User:          user,
		SessionID:     session.ID,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		RefreshMaxAge: min(s.cfg.Security.JWTRefreshTTL, remaining),
	}, nil
}

// WhoAmIResult is the caller's identity; Refreshed is set when the access
// token had to be renewed from the refresh session.
type WhoAmIResult struct {
	User      models.User
	Refreshed *AuthResult
}

// WhoAmI answers "who am I". A valid access token is enough; otherwise the
// refresh session is used and the access token renewed silently.
func (s *AuthService) WhoAmI(ctx context.Context, accessToken, refreshToken string) (WhoAmIResult, error) {
	if accessToken != "" {
		claims, err := s.tokens.VerifyAccessToken(accessToken)
		if err == nil {
			user, err := s.users.FindByID(ctx, claims.UserID())
			if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
				return WhoAmIResult{}, apperr.Dependency(err, "Could not load user")
			}
			if err != nil || !user.Active() {
				return WhoAmIResult{}, ErrInvalidUser
			}
			if s.cfg.Security.RequireVerifiedEmail && !user.EmailVerified {
				return WhoAmIResult{}, ErrVerifyEmailFirst
			}
			return WhoAmIResult{User: user}, nil
		}
	}

	if refreshToken == "" {
		return WhoAmIResult{}, ErrUnauthenticated
	}

	result, err := s.Refresh(ctx, refreshToken)
	if err != nil {
		return WhoAmIResult{}, err
	}
	return WhoAmIResult{User: result.User, Refreshed: &result}, nil
}

// Signout revokes the session behind refreshToken. It never fails.
func (s *AuthService) Signout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := s.sessions.RevokeByHash(ctx, security.HashRefreshSecret(refreshToken), s.now()); err != nil {
		s.log.Warn().Err(err).Msg("signout revoke failed")
	}
}

type SessionInfo struct {
	models.Session
	Current bool
}

func (s *AuthService) ListSessions(ctx context.Context, userID, refreshToken string) ([]SessionInfo, error) {
	sessions, err := s.sessions.ListActiveByUser(ctx, userID, s.now())
	if err != nil {
		return nil, apperr.Dependency(err, "Could not list sessions")
	}

	var currentHash string
	if refreshToken != "" {
		currentHash = security.HashRefreshSecret(refreshToken)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, SessionInfo{
			Session: session,
			Current: currentHash != "" && session.TokenHash == currentHash,
		})
	}
	return infos, nil
}

func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	err := s.sessions.RevokeByID(ctx, userID, sessionID, s.now())
	if errors.Is(err, repository.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return apperr.Dependency(err, "Could not revoke session")
	}
	return nil
}

// startSession persists a new refresh session for user and signs the access
// token. The session row exists before the result is returned. A user that
// is not active, or is disabled while the session is being created, gets
// ErrAccountDisabled and no usable session.
func (s *AuthService) startSession(ctx context.Context, user *models.User, meta models.SessionMetadata) (AuthResult, error) {
	if !user.Active() {
		return AuthResult{}, ErrAccountDisabled
	}

	refreshToken, refreshHash, err := security.NewRefreshSecret()
	if err != nil {
		return AuthResult{}, apperr.Dependency(err, "Could not create session")
	}

	now := s.now()
	ttl := s.cfg.Security.JWTRefreshTTL
	session := models.NewSession(ids.New(), user.ID, refreshHash, meta, ttl, now)

	accessToken, err := s.signAccess(*user)
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, apperr.Dependency(err, "Could not create session")
	}

	// RecordLogin matches active rows only; a miss means the account was
	// disabled or deleted after it was loaded.
	err = s.users.RecordLogin(ctx, user.ID, now)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		if revokeErr := s.sessions.RevokeByID(ctx, user.ID, session.ID, now); revokeErr != nil {
			s.log.Error().Err(revokeErr).Str("user_id", user.ID).Str("session_id", session.ID).Msg("revoke session of inactive user failed")
			return AuthResult{}, apperr.Dependency(revokeErr, "Could not create session")
		}
		return AuthResult{}, ErrAccountDisabled
	case err != nil:
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("record last login failed")
	default:
		user.RecordLogin(now)
	}

	return AuthResult{
		User:          *user,
		SessionID:     session.ID,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		RefreshMaxAge: ttl,
	}, nil
}

func (s *AuthService) signAccess(user models.User) (string, error) {
	token, _, err := s.tokens.SignAccessToken(security.TokenSubject{
		ID:    user.ID,
		Role:  string(user.Role),
		Email: user.Email,
	})
	if err != nil {
		return "", apperr.Dependency(err, "Could not issue token")
	}
	return token, nil
}

// bootstrapRole counts existing accounts and picks the role for a new one.
// Two simultaneous first sign-ups can both see zero; that race is accepted.
func (s *AuthService) bootstrapRole(ctx context.Context, fallback models.UserRole) (models.UserRole, error) {
	count, err := s.users.CountAll(ctx)
	if err != nil {
		return "", apperr.Dependency(err, "Could not create account")
	}
	return models.BootstrapRole(count, fallback), nil
}

func (s *AuthService) validateAccount(name, email, password string) error {
	if len([]rune(strings.TrimSpace(name))) < minNameLength {
		return apperr.Validation("Name must be at least 2 characters")
	}
	if !validEmail(email) {
		return apperr.Validation("A valid email is required")
	}
	if len(password) < s.cfg.Security.PasswordMinLength {
		return apperr.Validation(fmt.Sprintf("Password must be at least %d characters", s.cfg.Security.PasswordMinLength))
	}
	return nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

// dummyHash is verified against when there is no real hash, so unknown
// accounts cost the same as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := security.HashPassword("oceanstella-dummy-password")
	return hash
})
