package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"oceanstella/api/internal/config"
	"oceanstella/api/internal/cookies"
	"oceanstella/api/internal/middleware"
	"oceanstella/api/internal/models"
	"oceanstella/api/internal/security"
	"oceanstella/api/internal/service"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Log      zerolog.Logger
	Config   *config.AppConfig
	Auth     *service.AuthService
	Users    *service.UserService
	Uploads  *service.UploadService
	Issuer   *security.TokenIssuer
	Accounts middleware.UserLoader
	DB       Pinger
	Cache    *redis.Client
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     *service.AuthService
	users    *service.UserService
	uploads  *service.UploadService
	issuer   *security.TokenIssuer
	accounts middleware.UserLoader
	cookies  cookies.Transport
	db       Pinger
	cache    *redis.Client
}

func NewHandlerSet(deps Deps) HandlerSet {
	return HandlerSet{
		log:      deps.Log,
		cfg:      deps.Config,
		auth:     deps.Auth,
		users:    deps.Users,
		uploads:  deps.Uploads,
		issuer:   deps.Issuer,
		accounts: deps.Accounts,
		cookies:  cookies.NewTransport(deps.Config.Production(), deps.Config.Security.JWTAccessTTL),
		db:       deps.DB,
		cache:    deps.Cache,
	}
}

func (h HandlerSet) Register(router gin.IRouter) {
	router.GET("/health", h.Health)

	v1 := router.Group("/v1")
	v1.Use(middleware.AttachIdentity(h.issuer))

	signedIn := middleware.Pipeline(
		middleware.Authenticated(),
		middleware.ActiveUser(h.accounts),
	)
	staff := middleware.Pipeline(
		middleware.Authenticated(),
		middleware.ActiveUser(h.accounts),
		middleware.RequireRoles(models.UserRoleSuperAdmin, models.UserRoleAdmin),
	)

	auth := v1.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/verify-email", h.VerifyEmail)
		auth.POST("/resend-email-otp", h.ResendEmailOTP)
		auth.POST("/signin", h.Signin)
		auth.POST("/google", h.Google)
		auth.POST("/refresh", h.Refresh)
		auth.GET("/me", h.Me)
		auth.POST("/signout", h.Signout)
		auth.GET("/sessions", signedIn, h.ListSessions)
		auth.DELETE("/sessions/:id", signedIn, h.RevokeSession)
	}

	users := v1.Group("/users")
	{
		users.PATCH("/me", signedIn, h.UpdateProfile)
		users.PATCH("/me/avatar", signedIn, h.UpdateAvatar)

		admin := users.Group("/admin", staff)
		admin.GET("", h.AdminListUsers)
		admin.POST("", h.AdminCreateUser)
		admin.PUT("/:id", h.AdminUpdateUser)
		admin.DELETE("/:id", h.AdminDeleteUser)
	}

	v1.POST("/upload/avatar", signedIn, h.UploadAvatar)
}
