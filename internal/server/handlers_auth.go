package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/users"
	"github.com/gin-gonic/gin"
)

const (
	providerLocal       = "local"
	resetStageRequest   = "request"
	resetStageRedeem    = "redeem"
	forgotPasswordReply = "If an account exists with that email, a password reset link has been sent"
)

type registerRequest struct {
	Email              string `json:"email" binding:"required,email"`
	Password           string `json:"password" binding:"required,min=6"`
	Name               string `json:"name" binding:"required"`
	LinkedInProfileURL string `json:"linkedinProfileUrl" binding:"required,linkedinurl"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updateLinkedInRequest struct {
	LinkedInProfileURL string `json:"linkedinProfileUrl" binding:"required,linkedinurl"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

type userSummaryResponse struct {
	Message string        `json:"message"`
	User    users.Summary `json:"user"`
}

type userViewResponse struct {
	Message string     `json:"message"`
	User    users.View `json:"user"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindingError(c, err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), users.Registration{
		Email:              request.Email,
		Password:           request.Password,
		Name:               request.Name,
		LinkedInProfileURL: request.LinkedInProfileURL,
	})
	if err != nil {
		h.respondError(c, "register", err)
		return
	}
	if !h.startSession(c, "register", user.ID) {
		return
	}
	c.JSON(http.StatusCreated, userSummaryResponse{Message: "Registration successful", User: user.Summary()})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindingError(c, err)
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	h.metrics.ObserveLogin(providerLocal, err == nil)
	if err != nil {
		h.respondError(c, "login", err)
		return
	}
	if !h.startSession(c, "login", user.ID) {
		return
	}
	c.JSON(http.StatusOK, userSummaryResponse{Message: "Login successful", User: user.Summary()})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			h.clearSessionCookie(c)
		}
		h.respondError(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, user.View())
}

func (h *httpHandler) handleUpdateLinkedInURL(c *gin.Context) {
	var request updateLinkedInRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindingError(c, err)
		return
	}
	user, err := h.users.UpdateLinkedInProfileURL(c.Request.Context(), c.GetString(userIDContextKey), request.LinkedInProfileURL)
	if err != nil {
		h.respondError(c, "update_linkedin_url", err)
		return
	}
	c.JSON(http.StatusOK, userViewResponse{Message: "LinkedIn profile URL updated successfully", User: user.View()})
}

func (h *httpHandler) handleForgotPassword(c *gin.Context) {
	var request forgotPasswordRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindingError(c, err)
		return
	}
	err := h.users.RequestPasswordReset(c.Request.Context(), request.Email)
	h.metrics.ObservePasswordReset(resetStageRequest, err == nil)
	if err != nil {
		h.respondError(c, "forgot_password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": forgotPasswordReply})
}

func (h *httpHandler) handleResetPassword(c *gin.Context) {
	var request resetPasswordRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindingError(c, err)
		return
	}
	err := h.users.ResetPassword(c.Request.Context(), request.Token, request.Password)
	h.metrics.ObservePasswordReset(resetStageRedeem, err == nil)
	if err != nil {
		h.respondError(c, "reset_password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset successfully"})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
