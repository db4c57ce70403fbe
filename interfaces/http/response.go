package http

import (
	"net/http"

	"post-planner/infrastructure/logger"
	"post-planner/usecase"

	"github.com/gin-gonic/gin"
)

func statusFor(kind usecase.ErrorKind) int {
	switch kind {
	case usecase.KindValidation:
		return http.StatusBadRequest
	case usecase.KindNotFound:
		return http.StatusNotFound
	case usecase.KindForbidden:
		return http.StatusForbidden
	case usecase.KindConflict:
		return http.StatusConflict
	case usecase.KindUnauthorized:
		return http.StatusUnauthorized
	case usecase.KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorBody maps err onto an HTTP status and the {ok:false} envelope.
func errorBody(ctx *gin.Context, err error) (int, gin.H) {
	ue, ok := usecase.AsError(err)
	if !ok {
		logger.GetLogger().WithFields(map[string]interface{}{"path": ctx.FullPath(), "error": err}).Error("unclassified error")
		return http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error", "code": usecase.CodeStoreFailure}
	}
	status := statusFor(ue.Kind)
	msg := ue.Message
	if status >= http.StatusInternalServerError {
		logger.GetLogger().WithFields(map[string]interface{}{"path": ctx.FullPath(), "code": ue.Code, "error": ue.Error()}).Warn("request failed")
	}
	return status, gin.H{"ok": false, "error": msg, "code": ue.Code}
}

func respondError(ctx *gin.Context, err error) {
	status, body := errorBody(ctx, err)
	ctx.JSON(status, body)
}

func respondBindError(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request: " + err.Error(), "code": usecase.CodeInvalidInput})
}
