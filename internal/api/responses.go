package api

import (
	"errors"
	"net/http"

	"gymcore/internal/apperr"
	"gymcore/internal/logger"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status   string           `json:"status" example:"ok"`
	Database string           `json:"database,omitempty" example:"ok"`
	Redis    string           `json:"redis,omitempty" example:"ok"`
	Queues   map[string]int64 `json:"queues,omitempty"`
}

// StatusFor maps an error kind to the HTTP status it is reported with.
func StatusFor(err error) int {
	switch apperr.Kind(err) {
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrInvalidState, apperr.ErrConflict:
		return http.StatusConflict
	case apperr.ErrValidation:
		return http.StatusBadRequest
	case apperr.ErrAccessDenied:
		return http.StatusForbidden
	case apperr.ErrVerification:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// WriteError reports a domain error with its own message. Infrastructure errors
// are logged and replaced with a generic message.
func WriteError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, ErrorResponse{Error: "internal server error"})
		return
	}

	var appErr *apperr.Error
	msg := err.Error()
	if errors.As(err, &appErr) {
		msg = appErr.Msg
	}
	c.JSON(status, ErrorResponse{Error: msg})
}
