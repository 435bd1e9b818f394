package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"oceanstella/api/internal/models"
	"oceanstella/api/internal/repository"
)

// Rejection ends the request with Status and a JSON error envelope.
type Rejection struct {
	Status  int
	Message string
}

// Stage inspects the request and returns nil to let it through.
type Stage func(c *gin.Context) *Rejection

// Pipeline runs stages in order and stops at the first rejection.
func Pipeline(stages ...Stage) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, stage := range stages {
			if r := stage(c); r != nil {
				c.AbortWithStatusJSON(r.Status, gin.H{"ok": false, "error": r.Message})
				return
			}
		}
		c.Next()
	}
}

func Authenticated() Stage {
	return func(c *gin.Context) *Rejection {
		if _, ok := CurrentIdentity(c); !ok {
			return &Rejection{Status: http.StatusUnauthorized, Message: "Unauthorized"}
		}
		return nil
	}
}

type UserLoader interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// ActiveUser loads the caller's account and rejects deleted or disabled ones,
// so a token issued before the account was disabled stops working at once.
func ActiveUser(users UserLoader) Stage {
	return func(c *gin.Context) *Rejection {
		id, ok := CurrentIdentity(c)
		if !ok {
			return &Rejection{Status: http.StatusUnauthorized, Message: "Unauthorized"}
		}
		user, err := users.FindByID(c.Request.Context(), id.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return &Rejection{Status: http.StatusUnauthorized, Message: "Invalid user"}
			}
			return &Rejection{Status: http.StatusInternalServerError, Message: "Could not load user"}
		}
		if !user.Active() {
			return &Rejection{Status: http.StatusUnauthorized, Message: "Invalid user"}
		}
		c.Set(currentUserKey, user)
		return nil
	}
}

// RequireRoles checks the stored role when ActiveUser ran earlier and falls
// back to the token's role otherwise.
func RequireRoles(roles ...models.UserRole) Stage {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) *Rejection {
		var role models.UserRole
		if user, ok := CurrentUser(c); ok {
			role = user.Role
		} else if id, ok := CurrentIdentity(c); ok {
			role = id.Role
		} else {
			return &Rejection{Status: http.StatusUnauthorized, Message: "Unauthorized"}
		}

		if _, ok := allowed[role]; !ok {
			return &Rejection{Status: http.StatusForbidden, Message: "Forbidden"}
		}
		return nil
	}
}
