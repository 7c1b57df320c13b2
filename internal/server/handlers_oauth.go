package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/auth"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	providerGoogle   = "google"
	providerLinkedIn = "linkedin"
	dashboardPath    = "/dashboard"
)

func (h *httpHandler) handleGoogleStart(c *gin.Context) {
	if h.google == nil {
		h.respondProviderDisabled(c, providerGoogle)
		return
	}
	h.redirectToProvider(c, providerGoogle, h.google.AuthCodeURL)
}

func (h *httpHandler) handleLinkedInStart(c *gin.Context) {
	if h.linkedin == nil {
		h.respondProviderDisabled(c, providerLinkedIn)
		return
	}
	h.redirectToProvider(c, providerLinkedIn, h.linkedin.AuthCodeURL)
}

func (h *httpHandler) handleGoogleCallback(c *gin.Context) {
	if h.google == nil {
		h.respondProviderDisabled(c, providerGoogle)
		return
	}
	code, ok := h.callbackCode(c, providerGoogle)
	if !ok {
		return
	}
	profile, err := h.google.Exchange(c.Request.Context(), code)
	if err != nil {
		h.metrics.ObserveLogin(providerGoogle, false)
		h.respondError(c, "google_callback", err)
		return
	}
	user, err := h.users.LinkGoogle(c.Request.Context(), profile)
	h.finishProviderLogin(c, providerGoogle, user, err)
}

func (h *httpHandler) handleLinkedInCallback(c *gin.Context) {
	if h.linkedin == nil {
		h.respondProviderDisabled(c, providerLinkedIn)
		return
	}
	code, ok := h.callbackCode(c, providerLinkedIn)
	if !ok {
		return
	}
	profile, err := h.linkedin.Exchange(c.Request.Context(), code)
	if err != nil {
		h.metrics.ObserveLogin(providerLinkedIn, false)
		h.respondError(c, "linkedin_callback", err)
		return
	}
	user, err := h.users.LinkLinkedIn(c.Request.Context(), h.optionalSessionUser(c), profile)
	h.finishProviderLogin(c, providerLinkedIn, user, err)
}

func (h *httpHandler) redirectToProvider(c *gin.Context, provider string, authCodeURL func(string) string) {
	state, err := auth.NewState()
	if err != nil {
		h.respondError(c, provider+"_start", apperr.Internal("oauth_state_failed", err))
		return
	}
	h.setOAuthState(c, provider, state)
	c.Redirect(http.StatusFound, authCodeURL(state))
}

// callbackCode validates the provider callback query and returns the authorization code.
func (h *httpHandler) callbackCode(c *gin.Context, provider string) (string, bool) {
	if providerErr := strings.TrimSpace(c.Query("error")); providerErr != "" {
		h.logger.Warn("provider authorization denied",
			zap.String("provider", provider),
			zap.String("provider_error", providerErr),
			zap.String("description", c.Query("error_description")),
		)
		h.metrics.ObserveLogin(provider, false)
		h.respondError(c, provider+"_callback", apperr.Validation("authorization_denied", provider+" authorization failed"))
		return "", false
	}
	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		h.respondError(c, provider+"_callback", apperr.Validation("missing_code", "missing authorization code"))
		return "", false
	}
	if !h.consumeOAuthState(c, provider, c.Query("state")) {
		h.metrics.ObserveLogin(provider, false)
		h.respondError(c, provider+"_callback", apperr.Validation("invalid_state", "authorization state mismatch"))
		return "", false
	}
	return code, true
}

func (h *httpHandler) finishProviderLogin(c *gin.Context, provider string, user users.User, err error) {
	h.metrics.ObserveLogin(provider, err == nil)
	if err != nil {
		h.respondError(c, provider+"_callback", err)
		return
	}
	if !h.startSession(c, provider+"_callback", user.ID) {
		return
	}
	c.Redirect(http.StatusFound, h.frontendURL+dashboardPath)
}

func (h *httpHandler) respondProviderDisabled(c *gin.Context, provider string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
		"error":   "provider_disabled",
		"message": provider + " sign-in is not configured",
	})
}
