package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"oceanstella/api/internal/service"
)

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	result, err := h.users.ListUsers(c.Request.Context(), service.ListUsersInput{
		Query:  c.Query("q"),
		Status: c.Query("status"),
		Role:   c.Query("role"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"items": newUserViews(result.Items),
		"page":  result.Page,
		"limit": result.Limit,
		"total": result.Total,
		"pages": result.Pages,
	})
}

type adminUserRequest struct {
	Name     *string        `json:"name"`
	Email    *string        `json:"email"`
	Password *string        `json:"password"`
	Role     *string        `json:"role"`
	Status   *string        `json:"status"`
	Avatar   *avatarRequest `json:"avatar"`
}

func (r adminUserRequest) input() service.AdminUserInput {
	in := service.AdminUserInput{
		Name:     r.Name,
		Email:    r.Email,
		Password: r.Password,
		Role:     r.Role,
		Status:   r.Status,
	}
	if r.Avatar != nil {
		in.Avatar = &service.AvatarPatch{URL: r.Avatar.URL, PublicID: r.Avatar.PublicID}
	}
	return in
}

func actor(c *gin.Context) service.Actor {
	user := currentUser(c)
	return service.Actor{ID: user.ID, Role: user.Role}
}

func (h HandlerSet) AdminCreateUser(c *gin.Context) {
	var req adminUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), actor(c), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "user": newUserView(user)})
}

func (h HandlerSet) AdminUpdateUser(c *gin.Context) {
	var req adminUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.users.UpdateUser(c.Request.Context(), actor(c), c.Param("id"), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": newUserView(user)})
}

func (h HandlerSet) AdminDeleteUser(c *gin.Context) {
	if err := h.users.DeleteUser(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
