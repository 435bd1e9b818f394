package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"oceanstella/api/internal/models"
	"oceanstella/api/internal/service"
)

type profileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), currentUser(c).ID, service.ProfileInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": newUserView(user)})
}

type avatarRequest struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

func (h HandlerSet) UpdateAvatar(c *gin.Context) {
	var req avatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.users.UpdateAvatar(c.Request.Context(), currentUser(c).ID, models.Avatar{
		URL:      req.URL,
		PublicID: req.PublicID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": newUserView(user)})
}
