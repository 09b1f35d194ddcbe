package handlers

import (
	"net/http"

	"github.com/carvajal-autotech/quiz-service/internal/services"
	"github.com/carvajal-autotech/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	BaseHandler
	identity services.IdentityService
}

func NewAuthHandler(identity services.IdentityService, logger utils.Logger) *AuthHandler {
	return &AuthHandler{
		BaseHandler: NewBaseHandler(logger),
		identity:    identity,
	}
}

// Register creates a student account
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	user, err := h.identity.Register(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login exchanges credentials for a session token
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	session, err := h.identity.Login(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Logout revokes the token used for this request
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.identity.Logout(c.Request.Context(), c.GetString(ContextTokenKey)); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the session user with client hints
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user": user,
		"hints": services.SessionHints{
			Role:        user.Role,
			DisplayName: user.DisplayName(),
		},
	})
}

// @Router /auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	user := requireUser(c)
	if user == nil {
		return
	}

	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request payload", err)
		return
	}

	updated, err := h.identity.UpdateProfile(c.Request.Context(), user.ID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
