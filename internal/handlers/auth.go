package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"oceanstella/api/internal/cookies"
	"oceanstella/api/internal/models"
	"oceanstella/api/internal/service"
)

func sessionMeta(c *gin.Context) models.SessionMetadata {
	return models.SessionMetadata{
		UserAgent: c.GetHeader("User-Agent"),
		IPAddress: c.ClientIP(),
	}
}

// startSession sets the cookies for a session that already exists in the
// store and answers with the user.
func (h HandlerSet) startSession(c *gin.Context, result service.AuthResult) {
	h.cookies.SetSession(c.Writer, result.AccessToken, result.RefreshToken, result.RefreshMaxAge)
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": newUserView(result.User)})
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h HandlerSet) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.auth.Signup(c.Request.Context(), service.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":                true,
		"needsVerification": true,
		"email":             user.Email,
	})
}

type verifyEmailRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

func (h HandlerSet) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email and code are required")
		return
	}

	result, err := h.auth.VerifyEmail(c.Request.Context(), req.Email, req.Code, sessionMeta(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if result.AlreadyVerified {
		c.JSON(http.StatusOK, gin.H{"ok": true, "alreadyVerified": true})
		return
	}
	h.startSession(c, result.Auth)
}

type resendRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h HandlerSet) ResendEmailOTP(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email is required")
		return
	}

	already, err := h.auth.ResendEmailOTP(c.Request.Context(), req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	if already {
		c.JSON(http.StatusOK, gin.H{"ok": true, "alreadyVerified": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type signinRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Signin(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email and password are required")
		return
	}

	result, err := h.auth.Signin(c.Request.Context(), service.SigninInput{
		Email:    req.Email,
		Password: req.Password,
		Meta:     sessionMeta(c),
	})
	if errors.Is(err, service.ErrEmailNotVerified) {
		c.JSON(http.StatusForbidden, gin.H{
			"ok":                false,
			"error":             service.ErrEmailNotVerified.Message,
			"needsVerification": true,
			"email":             models.NormalizeEmail(req.Email),
		})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.startSession(c, result)
}

type googleRequest struct {
	IDToken string `json:"idToken"`
}

func (h HandlerSet) Google(c *gin.Context) {
	var req googleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	result, err := h.auth.SigninFederated(c.Request.Context(), req.IDToken, sessionMeta(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.startSession(c, result)
}

func (h HandlerSet) Refresh(c *gin.Context) {
	result, err := h.auth.Refresh(c.Request.Context(), cookies.Refresh(c.Request))
	if err != nil {
		if clearsSession(err) {
			h.cookies.Clear(c.Writer)
		}
		h.fail(c, err)
		return
	}

	h.cookies.SetSession(c.Writer, result.AccessToken, result.RefreshToken, result.RefreshMaxAge)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h HandlerSet) Me(c *gin.Context) {
	result, err := h.auth.WhoAmI(c.Request.Context(), cookies.Access(c.Request), cookies.Refresh(c.Request))
	if err != nil {
		if clearsSession(err) {
			h.cookies.Clear(c.Writer)
		}
		h.fail(c, err)
		return
	}

	if refreshed := result.Refreshed; refreshed != nil {
		h.cookies.SetSession(c.Writer, refreshed.AccessToken, refreshed.RefreshToken, refreshed.RefreshMaxAge)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": newUserView(result.User)})
}

func (h HandlerSet) Signout(c *gin.Context) {
	h.auth.Signout(c.Request.Context(), cookies.Refresh(c.Request))
	h.cookies.Clear(c.Writer)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type sessionView struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"userAgent"`
	IPAddress string    `json:"ipAddress"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	user := currentUser(c)
	sessions, err := h.auth.ListSessions(c.Request.Context(), user.ID, cookies.Refresh(c.Request))
	if err != nil {
		h.fail(c, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:        s.ID,
			UserAgent: s.UserAgent,
			IPAddress: s.IPAddress,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			Current:   s.Current,
		})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sessions": views})
}

func (h HandlerSet) RevokeSession(c *gin.Context) {
	user := currentUser(c)
	if err := h.auth.RevokeSession(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
