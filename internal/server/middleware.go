package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	oauthStateCookiePrefix = "ballotbox_oauth_state_"
	oauthStateMaxAge       = 10 * time.Minute
	unmatchedRoute         = "unmatched"
)

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	userID, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		code := "unauthorized"
		message := "not authenticated"
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			code = "session_expired"
			message = "session expired, please log in again"
		}
		h.logger.Debug("session rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code, "message": message})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

// optionalSessionUser returns the session user when a valid cookie is present.
func (h *httpHandler) optionalSessionUser(c *gin.Context) string {
	userID, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		return ""
	}
	return userID
}

func (h *httpHandler) observeRequests(c *gin.Context) {
	started := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = unmatchedRoute
	}
	h.metrics.ObserveRequest(route, c.Request.Method, c.Writer.Status(), time.Since(started))
}

func (h *httpHandler) setSessionCookie(c *gin.Context, token auth.SessionToken) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), token.Value, int(token.TTL.Seconds()), "/", "", h.cookieSecure, true)
}

func (h *httpHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", h.cookieSecure, true)
}

// startSession issues a session for userID and sets the cookie.
func (h *httpHandler) startSession(c *gin.Context, operation, userID string) bool {
	token, err := h.tokens.IssueSessionToken(userID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.String("operation", operation), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "token_issue_failed",
			"message": genericFailureMessage,
		})
		return false
	}
	h.setSessionCookie(c, token)
	return true
}

func (h *httpHandler) setOAuthState(c *gin.Context, provider, state string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookiePrefix+provider, state, int(oauthStateMaxAge.Seconds()), "/auth", "", h.cookieSecure, true)
}

// consumeOAuthState clears the provider state cookie and reports whether it matched state.
func (h *httpHandler) consumeOAuthState(c *gin.Context, provider, state string) bool {
	expected, err := c.Cookie(oauthStateCookiePrefix + provider)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookiePrefix+provider, "", -1, "/auth", "", h.cookieSecure, true)
	return err == nil && expected != "" && expected == state
}
