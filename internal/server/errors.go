package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const genericFailureMessage = "something went wrong, please try again later"

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": code, "message": text}. Causes of upstream and internal
// failures are logged and only echoed when provider errors are exposed.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr, _ = apperr.As(apperr.Internal("internal_error", err))
	}
	status := statusForKind(appErr.Kind())
	body := gin.H{"error": appErr.Code(), "message": appErr.Message()}

	switch appErr.Kind() {
	case apperr.KindUpstream, apperr.KindInternal:
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("code", appErr.Code()),
			zap.Error(err),
		)
		if appErr.Kind() == apperr.KindInternal || appErr.Message() == "" {
			body["message"] = genericFailureMessage
		}
		if h.exposeErrors && appErr.Unwrap() != nil {
			body["detail"] = appErr.Unwrap().Error()
		}
	default:
		h.logger.Debug("request rejected",
			zap.String("operation", operation),
			zap.String("code", appErr.Code()),
		)
	}
	c.AbortWithStatusJSON(status, body)
}

// respondBindingError reports a malformed or invalid request body.
func (h *httpHandler) respondBindingError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": "request body is invalid",
		"details": validationDetails(err),
	})
}
