package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"oceanstella/api/internal/apperr"
	"oceanstella/api/internal/middleware"
	"oceanstella/api/internal/models"
)

type userView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	EmailVerified  bool       `json:"emailVerified"`
	Role           string     `json:"role"`
	Status         string     `json:"status"`
	Avatar         *string    `json:"avatar"`
	AvatarPublicID *string    `json:"avatarPublicId"`
	Provider       string     `json:"provider,omitempty"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func newUserView(u models.User) userView {
	view := userView{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Role:          string(u.Role),
		Status:        string(u.Status),
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	if u.Avatar != nil {
		view.Avatar = &u.Avatar.URL
		if u.Avatar.PublicID != "" {
			view.AvatarPublicID = &u.Avatar.PublicID
		}
	}
	if u.Federation != nil {
		view.Provider = u.Federation.Provider
	}
	return view
}

func newUserViews(users []models.User) []userView {
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u))
	}
	return views
}

// fail writes the error envelope for err. Internal causes are logged, never
// returned.
func (h HandlerSet) fail(c *gin.Context, err error) {
	appErr := apperr.From(err)
	status := appErr.Kind.Status()
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"ok": false, "error": appErr.Message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": message})
}

// clearsSession reports whether err means the presented cookies can no
// longer authenticate anyone.
func clearsSession(err error) bool {
	switch apperr.From(err).Kind {
	case apperr.KindAuthentication, apperr.KindAuthorization:
		return true
	}
	return false
}

func currentUser(c *gin.Context) models.User {
	user, _ := middleware.CurrentUser(c)
	return user
}
