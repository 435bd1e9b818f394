package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oceanstella/api/internal/models"
	"oceanstella/api/internal/security"
	"oceanstella/api/internal/service/servicetest"
)

type userFixture struct {
	svc      *UserService
	users    *servicetest.Users
	sessions *servicetest.Sessions
	assets   *servicetest.Assets
	clock    *servicetest.Clock
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	f := &userFixture{
		users:    servicetest.NewUsers(),
		sessions: &servicetest.Sessions{},
		assets:   &servicetest.Assets{},
		clock:    servicetest.NewClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)),
	}
	f.svc = NewUserService(f.users, f.sessions, f.assets, 8, zerolog.Nop())
	f.svc.now = f.clock.Now
	return f
}

func (f *userFixture) add(t *testing.T, id, email string, role models.UserRole) models.User {
	t.Helper()
	user := models.NewLocalUser(id, "User "+id, email, nil, role, f.clock.Now())
	user.EmailVerified = true
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func ptr(s string) *string { return &s }

var (
	superAdmin = Actor{ID: "root", Role: models.UserRoleSuperAdmin}
	admin      = Actor{ID: "adm", Role: models.UserRoleAdmin}
)

func TestUpdateProfile(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	f.add(t, "u1", "one@x.com", models.UserRoleViewer)
	f.add(t, "u2", "two@x.com", models.UserRoleViewer)

	user, err := f.svc.UpdateProfile(ctx, "u1", ProfileInput{Name: ptr("X")})
	require.NoError(t, err)
	assert.Equal(t, "User u1", user.Name)

	user, err = f.svc.UpdateProfile(ctx, "u1", ProfileInput{Name: ptr("  Ada  "), Email: ptr("NEW@x.com")})
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "new@x.com", f.users.Get("u1").Email)

	_, err = f.svc.UpdateProfile(ctx, "u1", ProfileInput{Email: ptr("two@x.com")})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = f.svc.UpdateProfile(ctx, "u1", ProfileInput{Email: ptr("broken")})
	assert.Equal(t, 400, errKind(err))

	_, err = f.svc.UpdateProfile(ctx, "ghost", ProfileInput{})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateAvatarQueuesPreviousAsset(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	f.add(t, "u1", "one@x.com", models.UserRoleViewer)

	_, err := f.svc.UpdateAvatar(ctx, "u1", models.Avatar{URL: "https://cdn/a.png"})
	assert.ErrorIs(t, err, ErrAvatarRequirement)

	_, err = f.svc.UpdateAvatar(ctx, "u1", models.Avatar{URL: "https://cdn/a.png", PublicID: "avatars/u1/a.png"})
	require.NoError(t, err)
	assert.Empty(t, f.assets.Deleted)

	user, err := f.svc.UpdateAvatar(ctx, "u1", models.Avatar{URL: "https://cdn/b.png", PublicID: "avatars/u1/b.png"})
	require.NoError(t, err)
	assert.Equal(t, "avatars/u1/b.png", user.Avatar.PublicID)
	assert.Equal(t, []string{"avatars/u1/a.png"}, f.assets.Deleted)
}

func TestListUsersPaging(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f.add(t, fmt.Sprintf("u%02d", i), fmt.Sprintf("user%02d@x.com", i), models.UserRoleViewer)
	}
	f.add(t, "ed", "editor@x.com", models.UserRoleEditor)

	page, err := f.svc.ListUsers(ctx, ListUsersInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, 26, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Len(t, page.Items, 20)

	page, err = f.svc.ListUsers(ctx, ListUsersInput{Page: 2, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Empty(t, page.Items)

	page, err = f.svc.ListUsers(ctx, ListUsersInput{Role: "Editor"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ed", page.Items[0].ID)

	_, err = f.svc.ListUsers(ctx, ListUsersInput{Role: "owner"})
	assert.Equal(t, 400, errKind(err))
}

func TestCreateUserByAdmin(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	user, err := f.svc.CreateUser(ctx, admin, AdminUserInput{
		Name:     ptr("Grace"),
		Email:    ptr("Grace@x.com"),
		Password: ptr("password123"),
		Role:     ptr("Administrator"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleAdmin, user.Role)
	assert.True(t, user.EmailVerified)
	assert.True(t, security.VerifyPassword("password123", f.users.Get(user.ID).PasswordHash))

	plain, err := f.svc.CreateUser(ctx, admin, AdminUserInput{Name: ptr("Linus"), Email: ptr("linus@x.com")})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleViewer, plain.Role)
	assert.False(t, plain.HasPassword())

	_, err = f.svc.CreateUser(ctx, admin, AdminUserInput{Name: ptr("Dup"), Email: ptr("grace@x.com")})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = f.svc.CreateUser(ctx, admin, AdminUserInput{Name: ptr("Root"), Email: ptr("r@x.com"), Role: ptr("superadmin")})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateUser(ctx, superAdmin, AdminUserInput{Name: ptr("Root"), Email: ptr("r@x.com"), Role: ptr("superadmin")})
	assert.NoError(t, err)

	_, err = f.svc.CreateUser(ctx, admin, AdminUserInput{Name: ptr("Bad"), Email: ptr("bad@x.com"), Status: ptr("frozen")})
	assert.Equal(t, 400, errKind(err))

	_, err = f.svc.CreateUser(ctx, admin, AdminUserInput{Name: ptr("Short"), Email: ptr("s@x.com"), Password: ptr("short")})
	assert.Equal(t, 400, errKind(err))
}

func TestUpdateUserDisablingRevokesSessions(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	f.add(t, "u1", "one@x.com", models.UserRoleViewer)
	for i := 0; i < 2; i++ {
		session := models.NewSession(fmt.Sprintf("s%d", i), "u1", fmt.Sprintf("hash-%d", i), models.SessionMetadata{}, time.Hour, f.clock.Now())
		require.NoError(t, f.sessions.Create(ctx, session))
	}

	user, err := f.svc.UpdateUser(ctx, admin, "u1", AdminUserInput{Status: ptr("disabled"), Role: ptr("editor")})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusDisabled, user.Status)
	assert.Equal(t, models.UserRoleEditor, user.Role)

	for _, s := range f.sessions.All() {
		assert.True(t, s.Revoked(), s.ID)
	}
}

func TestUpdateUserProtectsSuperAdmin(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	f.add(t, "root", "root@x.com", models.UserRoleSuperAdmin)
	f.add(t, "u1", "one@x.com", models.UserRoleViewer)

	_, err := f.svc.UpdateUser(ctx, admin, "root", AdminUserInput{Name: ptr("Hijack")})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.UpdateUser(ctx, admin, "u1", AdminUserInput{Role: ptr("superadmin")})
	assert.ErrorIs(t, err, ErrForbidden)

	user, err := f.svc.UpdateUser(ctx, superAdmin, "u1", AdminUserInput{Role: ptr("superadmin")})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleSuperAdmin, user.Role)
}

func TestUpdateUserAvatarPatch(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	f.add(t, "u1", "one@x.com", models.UserRoleViewer)

	_, err := f.svc.UpdateUser(ctx, admin, "u1", AdminUserInput{Avatar: &AvatarPatch{URL: "https://cdn/a.png", PublicID: "avatars/a.png"}})
	require.NoError(t, err)

	user, err := f.svc.UpdateUser(ctx, admin, "u1", AdminUserInput{Avatar: &AvatarPatch{}})
	require.NoError(t, err)
	assert.Nil(t, user.Avatar)
	assert.Equal(t, []string{"avatars/a.png"}, f.assets.Deleted)
}

func TestDeleteUser(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	f.add(t, "root", "root@x.com", models.UserRoleSuperAdmin)
	victim := f.add(t, "u1", "one@x.com", models.UserRoleViewer)
	victim.SetAvatar(&models.Avatar{URL: "https://cdn/v.png", PublicID: "avatars/v.png"}, f.clock.Now())
	require.NoError(t, f.users.Save(ctx, victim))
	require.NoError(t, f.sessions.Create(ctx, models.NewSession("s1", "u1", "h1", models.SessionMetadata{}, time.Hour, f.clock.Now())))

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, Actor{ID: "u1", Role: models.UserRoleAdmin}, "u1"), ErrCannotDeleteSelf)
	assert.ErrorIs(t, f.svc.DeleteUser(ctx, admin, "root"), ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteUser(ctx, admin, "ghost"), ErrUserNotFound)

	require.NoError(t, f.svc.DeleteUser(ctx, admin, "u1"))
	assert.Equal(t, 1, f.users.Count())
	assert.Empty(t, f.sessions.All())
	assert.Equal(t, []string{"avatars/v.png"}, f.assets.Deleted)
}

func TestSeedSuperAdmin(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	created, isNew, err := f.svc.SeedSuperAdmin(ctx, "", "Boss@x.com", "password123")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "Super Admin", created.Name)
	assert.Equal(t, models.UserRoleSuperAdmin, created.Role)
	assert.True(t, created.EmailVerified)

	f.add(t, "u1", "one@x.com", models.UserRoleViewer)
	promoted, isNew, err := f.svc.SeedSuperAdmin(ctx, "ignored", "one@x.com", "newpassword1")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "u1", promoted.ID)
	assert.Equal(t, models.UserRoleSuperAdmin, promoted.Role)
	assert.True(t, security.VerifyPassword("newpassword1", f.users.Get("u1").PasswordHash))

	_, _, err = f.svc.SeedSuperAdmin(ctx, "", "one@x.com", "short")
	assert.Equal(t, 400, errKind(err))
}
