package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	header, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "No file received")
		return
	}

	file, err := header.Open()
	if err != nil {
		badRequest(c, "No file received")
		return
	}
	defer file.Close()

	avatar, err := h.uploads.UploadAvatar(c.Request.Context(), currentUser(c).ID, file, header.Size)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"url":      avatar.URL,
		"publicId": avatar.PublicID,
	})
}
