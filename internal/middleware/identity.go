package middleware

import (
	"github.com/gin-gonic/gin"

	"oceanstella/api/internal/cookies"
	"oceanstella/api/internal/models"
	"oceanstella/api/internal/security"
)

const (
	identityKey    = "identity"
	currentUserKey = "current_user"
)

// Identity is what a valid access token says about the caller.
type Identity struct {
	UserID string
	Role   models.UserRole
	Email  string
}

// AttachIdentity reads the access cookie and records the caller's identity.
// It never rejects: a missing or bad token just leaves the request anonymous.
func AttachIdentity(issuer *security.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := cookies.Access(c.Request); token != "" {
			if claims, err := issuer.VerifyAccessToken(token); err == nil {
				c.Set(identityKey, Identity{
					UserID: claims.UserID(),
					Role:   models.UserRole(claims.Role),
					Email:  claims.Email,
				})
			}
		}
		c.Next()
	}
}

func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// CurrentUser is set by the ActiveUser stage.
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}
