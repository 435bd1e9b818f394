package service

import (
	"context"
	"time"

	"oceanstella/api/internal/models"
	"oceanstella/api/internal/repository"
)

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByFederation(ctx context.Context, provider, providerID string) (models.User, error)
	Create(ctx context.Context, user models.User) error
	Save(ctx context.Context, user models.User) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	IncrementOTPAttempts(ctx context.Context, id, codeHash string) (int, error)
	ConsumeChallenge(ctx context.Context, id, codeHash string, at time.Time) error
	SaveFederation(ctx context.Context, user models.User) error
	Delete(ctx context.Context, id string) error
	CountAll(ctx context.Context) (int, error)
	List(ctx context.Context, filter repository.UserFilter) ([]models.User, int, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindActiveByHash(ctx context.Context, tokenHash string) (models.Session, error)
	RevokeByHash(ctx context.Context, tokenHash string, at time.Time) error
	RevokeByID(ctx context.Context, userID, id string, at time.Time) error
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// CodeSender delivers a verification code to an e-mail address.
type CodeSender interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

// AssetQueue schedules deletion of an uploaded asset.
type AssetQueue interface {
	DeleteAsset(ctx context.Context, publicID string) error
}
