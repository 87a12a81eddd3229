package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"transcriptiond/internal/config"
	"transcriptiond/internal/intake"
	"transcriptiond/internal/store"
	"transcriptiond/internal/uploads"
)

// Error codes returned in the JSON error body.
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeInvalidSettings = "INVALID_SETTINGS"
	CodeNotFound        = "NOT_FOUND"
	CodeNoResult        = "NO_RESULT"
	CodeCanceled        = "REQUEST_CANCELED"
	CodeInternal        = "INTERNAL_ERROR"
)

func respond(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

// respondWithError maps known errors to 4xx responses and logs the rest.
func (h *handlers) respondWithError(c *gin.Context, err error) {
	status, body := h.errorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}

func (h *handlers) errorBody(c *gin.Context, err error) (int, gin.H) {
	var verr *config.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, gin.H{
			"code":     CodeInvalidSettings,
			"message":  "settings payload is invalid",
			"problems": verr.Problems,
		}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, gin.H{"code": CodeNotFound, "message": "job not found"}
	case errors.Is(err, intake.ErrEmptyFilename), errors.Is(err, uploads.ErrInvalidJobID):
		return http.StatusBadRequest, gin.H{"code": CodeInvalidInput, "message": err.Error()}
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, gin.H{"code": CodeCanceled, "message": "request was canceled"}
	default:
		h.Logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		return http.StatusInternalServerError, gin.H{"code": CodeInternal, "message": "internal server error"}
	}
}
