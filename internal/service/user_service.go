package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oceanstella/api/internal/apperr"
	"oceanstella/api/internal/ids"
	"oceanstella/api/internal/models"
	"oceanstella/api/internal/repository"
	"oceanstella/api/internal/security"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Actor is the authenticated caller of an administrative operation.
type Actor struct {
	ID   string
	Role models.UserRole
}

type UserService struct {
	users       UserStore
	sessions    SessionStore
	assets      AssetQueue
	minPassword int
	now         func() time.Time
	log         zerolog.Logger
}

func NewUserService(users UserStore, sessions SessionStore, assets AssetQueue, minPassword int, log zerolog.Logger) *UserService {
	return &UserService{
		users:       users,
		sessions:    sessions,
		assets:      assets,
		minPassword: minPassword,
		now:         time.Now,
		log:         log,
	}
}

type ProfileInput struct {
	Name  *string
	Email *string
}

// UpdateProfile renames the caller and changes their e-mail. Names shorter
// than two characters are ignored.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (models.User, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	now := s.now()
	if input.Name != nil && len([]rune(strings.TrimSpace(*input.Name))) >= minNameLength {
		user.Rename(*input.Name, now)
	}
	if input.Email != nil && *input.Email != "" {
		if err := s.changeEmail(ctx, &user, *input.Email, now); err != nil {
			return models.User{}, err
		}
	}

	if err := s.save(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// UpdateAvatar points the caller's avatar at an uploaded asset and schedules
// the previous asset for deletion.
func (s *UserService) UpdateAvatar(ctx context.Context, userID string, avatar models.Avatar) (models.User, error) {
	if avatar.URL == "" || avatar.PublicID == "" {
		return models.User{}, ErrAvatarRequirement
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	previous := user.SetAvatar(&avatar, s.now())
	if err := s.save(ctx, user); err != nil {
		return models.User{}, err
	}
	s.discardAsset(ctx, previous)
	return user, nil
}

type ListUsersInput struct {
	Query  string
	Status string
	Role   string
	Page   int
	Limit  int
}

type UserPage struct {
	Items []models.User
	Page  int
	Limit int
	Total int
	Pages int
}

func (s *UserService) ListUsers(ctx context.Context, input ListUsersInput) (UserPage, error) {
	page := max(1, input.Page)
	limit := input.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	filter := repository.UserFilter{
		Query:  strings.TrimSpace(input.Query),
		Status: models.UserStatus(strings.TrimSpace(input.Status)),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if input.Role != "" {
		role, ok := models.ParseRole(input.Role)
		if !ok {
			return UserPage{}, apperr.Validation("Unknown role")
		}
		filter.Role = role
	}

	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return UserPage{}, apperr.Dependency(err, "Could not list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return UserPage{
		Items: users,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

type AvatarPatch struct {
	URL      string
	PublicID string
}

type AdminUserInput struct {
	Name     *string
	Email    *string
	Password *string
	Role     *string
	Status   *string
	Avatar   *AvatarPatch
}

// CreateUser adds an account on behalf of an administrator. Such accounts
// count as verified.
func (s *UserService) CreateUser(ctx context.Context, actor Actor, input AdminUserInput) (models.User, error) {
	if input.Name == nil || len([]rune(strings.TrimSpace(*input.Name))) < minNameLength {
		return models.User{}, apperr.Validation("Name must be at least 2 characters")
	}
	if input.Email == nil || !validEmail(models.NormalizeEmail(*input.Email)) {
		return models.User{}, apperr.Validation("A valid email is required")
	}

	role := models.UserRoleViewer
	if input.Role != nil && *input.Role != "" {
		parsed, ok := models.ParseRole(*input.Role)
		if !ok {
			return models.User{}, apperr.Validation("Unknown role")
		}
		role = parsed
	}
	if role == models.UserRoleSuperAdmin && actor.Role != models.UserRoleSuperAdmin {
		return models.User{}, ErrForbidden
	}

	var passwordHash []byte
	if input.Password != nil && *input.Password != "" {
		hash, err := s.hashPassword(*input.Password)
		if err != nil {
			return models.User{}, err
		}
		passwordHash = hash
	}

	now := s.now()
	user := models.NewLocalUser(ids.New(), *input.Name, *input.Email, passwordHash, role, now)
	user.EmailVerified = true
	if input.Status != nil && *input.Status != "" {
		status := models.UserStatus(*input.Status)
		if !status.Valid() {
			return models.User{}, apperr.Validation("Status must be active or disabled")
		}
		user.SetStatus(status, now)
	}
	if input.Avatar != nil && input.Avatar.URL != "" {
		user.SetAvatar(&models.Avatar{URL: input.Avatar.URL, PublicID: input.Avatar.PublicID}, now)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, apperr.Dependency(err, "Could not create user")
	}
	s.log.Info().Str("actor_id", actor.ID).Str("user_id", user.ID).Str("role", string(role)).Msg("user created by admin")
	return user, nil
}

// UpdateUser applies an administrator's patch. Disabling an account revokes
// all its sessions.
func (s *UserService) UpdateUser(ctx context.Context, actor Actor, id string, input AdminUserInput) (models.User, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if user.Role == models.UserRoleSuperAdmin && actor.Role != models.UserRoleSuperAdmin {
		return models.User{}, ErrForbidden
	}

	now := s.now()
	if input.Name != nil && strings.TrimSpace(*input.Name) != "" {
		user.Rename(*input.Name, now)
	}
	if input.Email != nil && *input.Email != "" {
		if err := s.changeEmail(ctx, &user, *input.Email, now); err != nil {
			return models.User{}, err
		}
	}
	if input.Role != nil && *input.Role != "" {
		role, ok := models.ParseRole(*input.Role)
		if !ok {
			return models.User{}, apperr.Validation("Unknown role")
		}
		if role == models.UserRoleSuperAdmin && actor.Role != models.UserRoleSuperAdmin {
			return models.User{}, ErrForbidden
		}
		user.SetRole(role, now)
	}

	disabling := false
	if input.Status != nil && *input.Status != "" {
		status := models.UserStatus(*input.Status)
		if !status.Valid() {
			return models.User{}, apperr.Validation("Status must be active or disabled")
		}
		disabling = status == models.UserStatusDisabled && user.Status != models.UserStatusDisabled
		user.SetStatus(status, now)
	}
	if input.Password != nil && *input.Password != "" {
		hash, err := s.hashPassword(*input.Password)
		if err != nil {
			return models.User{}, err
		}
		user.PasswordHash = hash
	}

	var discarded string
	if input.Avatar != nil {
		if input.Avatar.URL == "" {
			discarded = user.SetAvatar(nil, now)
		} else {
			discarded = user.SetAvatar(&models.Avatar{URL: input.Avatar.URL, PublicID: input.Avatar.PublicID}, now)
		}
	}

	if err := s.save(ctx, user); err != nil {
		return models.User{}, err
	}

	if disabling {
		revoked, err := s.sessions.RevokeAllByUser(ctx, user.ID, now)
		if err != nil {
			return models.User{}, apperr.Dependency(err, "Could not revoke sessions")
		}
		s.log.Info().Str("actor_id", actor.ID).Str("user_id", user.ID).Int64("revoked", revoked).Msg("user disabled")
	}
	s.discardAsset(ctx, discarded)
	return user, nil
}

// DeleteUser removes the account, its sessions and its uploaded avatar.
func (s *UserService) DeleteUser(ctx context.Context, actor Actor, id string) error {
	if actor.ID == id {
		return ErrCannotDeleteSelf
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.UserRoleSuperAdmin && actor.Role != models.UserRoleSuperAdmin {
		return ErrForbidden
	}

	if _, err := s.sessions.DeleteByUser(ctx, user.ID); err != nil {
		return apperr.Dependency(err, "Could not delete sessions")
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return apperr.Dependency(err, "Could not delete user")
	}
	if user.Avatar != nil {
		s.discardAsset(ctx, user.Avatar.PublicID)
	}
	s.log.Info().Str("actor_id", actor.ID).Str("user_id", user.ID).Msg("user deleted")
	return nil
}

// SeedSuperAdmin creates a verified superadmin, or promotes and resets the
// password of an existing account with that e-mail.
func (s *UserService) SeedSuperAdmin(ctx context.Context, name, email, password string) (models.User, bool, error) {
	email = models.NormalizeEmail(email)
	if !validEmail(email) {
		return models.User{}, false, apperr.Validation("A valid email is required")
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return models.User{}, false, err
	}

	now := s.now()
	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		user.PasswordHash = hash
		user.SetRole(models.UserRoleSuperAdmin, now)
		user.SetStatus(models.UserStatusActive, now)
		user.MarkVerified(now)
		if err := s.save(ctx, user); err != nil {
			return models.User{}, false, err
		}
		return user, false, nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return models.User{}, false, apperr.Dependency(err, "Could not load user")
	}

	if strings.TrimSpace(name) == "" {
		name = "Super Admin"
	}
	user = models.NewLocalUser(ids.New(), name, email, hash, models.UserRoleSuperAdmin, now)
	user.MarkVerified(now)
	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, false, apperr.Dependency(err, "Could not create user")
	}
	return user, true, nil
}

func (s *UserService) changeEmail(ctx context.Context, user *models.User, email string, now time.Time) error {
	email = models.NormalizeEmail(email)
	if email == user.Email {
		return nil
	}
	if !validEmail(email) {
		return apperr.Validation("A valid email is required")
	}
	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.ID != user.ID:
		return ErrEmailTaken
	case err != nil && !errors.Is(err, repository.ErrUserNotFound):
		return apperr.Dependency(err, "Could not update user")
	}
	user.ChangeEmail(email, now)
	return nil
}

func (s *UserService) hashPassword(password string) ([]byte, error) {
	if len(password) < s.minPassword {
		return nil, apperr.Validation("Password is too short")
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, apperr.Dependency(err, "Could not hash password")
	}
	return hash, nil
}

func (s *UserService) load(ctx context.Context, id string) (models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, apperr.Dependency(err, "Could not load user")
	}
	return user, nil
}

func (s *UserService) save(ctx context.Context, user models.User) error {
	err := s.users.Save(ctx, user)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicateKey):
		return ErrEmailTaken
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	default:
		return apperr.Dependency(err, "Could not update user")
	}
}

func (s *UserService) discardAsset(ctx context.Context, publicID string) {
	if publicID == "" || s.assets == nil {
		return
	}
	if err := s.assets.DeleteAsset(ctx, publicID); err != nil {
		s.log.Warn().Err(err).Str("public_id", publicID).Msg("schedule asset delete failed")
	}
}
