package models

import (
	"strings"
	"time"
)

type UserRole string

const (
	UserRoleSuperAdmin UserRole = "superadmin"
	UserRoleAdmin      UserRole = "admin"
	UserRoleEditor     UserRole = "editor"
	UserRoleViewer     UserRole = "viewer"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

func (s UserStatus) Valid() bool {
	return s == UserStatusActive || s == UserStatusDisabled
}

const ProviderGoogle = "google"

type Avatar struct {
	URL      string
	PublicID string
}

type FederatedIdentity struct {
	Provider   string
	ProviderID string
}

// OTPChallenge is the e-mail verification state embedded in a user record.
type OTPChallenge struct {
	Hash       string
	ExpiresAt  *time.Time
	LastSentAt *time.Time
	Attempts   int
}

func (c OTPChallenge) Pending() bool {
	return c.Hash != "" && c.ExpiresAt != nil
}

type User struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  []byte
	EmailVerified bool
	OTP           OTPChallenge
	Role          UserRole
	Status        UserStatus
	Avatar        *Avatar
	Federation    *FederatedIdentity
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BootstrapRole returns the role of a new account: the very first account
// becomes superadmin, every later one gets fallback.
func BootstrapRole(existingUsers int, fallback UserRole) UserRole {
	if existingUsers == 0 {
		return UserRoleSuperAdmin
	}
	return fallback
}

// NewLocalUser builds an unverified password account.
func NewLocalUser(id, name, email string, passwordHash []byte, role UserRole, now time.Time) User {
	return User{
		ID:           id,
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		Role:         role,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewFederatedUser builds an account established by an external identity
// provider. Such accounts have no password and are verified from the start.
func NewFederatedUser(id, name, email string, identity FederatedIdentity, picture string, role UserRole, now time.Time) User {
	if strings.TrimSpace(name) == "" {
		name = "Google User"
	}
	u := User{
		ID:            id,
		Email:         NormalizeEmail(email),
		Name:          strings.TrimSpace(name),
		EmailVerified: true,
		Role:          role,
		Status:        UserStatusActive,
		Federation:    &identity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if picture != "" {
		u.Avatar = &Avatar{URL: picture}
	}
	return u
}

func (u User) Active() bool {
	return u.Status == UserStatusActive
}

func (u User) HasPassword() bool {
	return len(u.PasswordHash) > 0
}

func (u *User) touch(now time.Time) {
	u.UpdatedAt = now
}

// IssueChallenge replaces any previous challenge with a fresh one.
func (u *User) IssueChallenge(codeHash string, ttl time.Duration, now time.Time) {
	expires := now.Add(ttl)
	sent := now
	u.OTP = OTPChallenge{
		Hash:       codeHash,
		ExpiresAt:  &expires,
		LastSentAt: &sent,
		Attempts:   0,
	}
	u.touch(now)
}

// ClearChallenge drops the pending code but keeps the last-sent time so the
// resend cooldown still applies.
func (u *User) ClearChallenge(now time.Time) {
	u.OTP.Hash = ""
	u.OTP.ExpiresAt = nil
	u.OTP.Attempts = 0
	u.touch(now)
}

func (u *User) MarkVerified(now time.Time) {
	u.EmailVerified = true
	u.ClearChallenge(now)
}

func (u *User) RecordLogin(now time.Time) {
	at := now
	u.LastLoginAt = &at
	u.touch(now)
}

// LinkFederation attaches the external identity to an existing account and
// reports whether anything changed.
func (u *User) LinkFederation(identity FederatedIdentity, picture string, now time.Time) bool {
	changed := false
	if u.Federation == nil {
		u.Federation = &FederatedIdentity{}
	}
	if u.Federation.Provider != identity.Provider {
		u.Federation.Provider = identity.Provider
		changed = true
	}
	if u.Federation.ProviderID == "" && identity.ProviderID != "" {
		u.Federation.ProviderID = identity.ProviderID
		changed = true
	}
	// an uploaded avatar wins over the provider picture
	if picture != "" && (u.Avatar == nil || (u.Avatar.PublicID == "" && u.Avatar.URL != picture)) {
		u.Avatar = &Avatar{URL: picture}
		changed = true
	}
	if !u.EmailVerified {
		u.EmailVerified = true
		changed = true
	}
	if changed {
		u.touch(now)
	}
	return changed
}

// SetAvatar replaces the avatar and returns the asset id of the previous one
// when it must be deleted from the asset host.
func (u *User) SetAvatar(avatar *Avatar, now time.Time) (previousAsset string) {
	if u.Avatar != nil && u.Avatar.PublicID != "" {
		if avatar == nil || avatar.PublicID != u.Avatar.PublicID {
			previousAsset = u.Avatar.PublicID
		}
	}
	u.Avatar = avatar
	u.touch(now)
	return previousAsset
}

func (u *User) Rename(name string, now time.Time) {
	u.Name = strings.TrimSpace(name)
	u.touch(now)
}

func (u *User) ChangeEmail(email string, now time.Time) {
	u.Email = NormalizeEmail(email)
	u.touch(now)
}

func (u *User) SetStatus(status UserStatus, now time.Time) {
	u.Status = status
	u.touch(now)
}

func (u *User) SetRole(role UserRole, now time.Time) {
	u.Role = role
	u.touch(now)
}

// ParseRole accepts stored role names as well as the labels the admin UI
// sends ("Administrator", "Editor", "Viewer").
func ParseRole(value string) (UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "superadmin":
		return UserRoleSuperAdmin, true
	case "admin", "administrator":
		return UserRoleAdmin, true
	case "editor":
		return UserRoleEditor, true
	case "viewer":
		return UserRoleViewer, true
	}
	return "", false
}
