package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"appideas.app/engine/internal/service"
	"appideas.app/engine/internal/store"
	"github.com/gin-gonic/gin"
)

// respondError maps domain errors to HTTP statuses. Anything unrecognized is
// logged and reported as a 500 with the fallback message.
func respondError(c *gin.Context, err error, fallback string) {
	var status int
	var msg string
	switch {
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrAppNotFound):
		status, msg = http.StatusNotFound, "app not found in the App Store"
	case errors.Is(err, service.ErrEmptyIdea), errors.Is(err, service.ErrUnsupportedSubject):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrEntitlementExceeded):
		status, msg = http.StatusPaymentRequired, err.Error()
	case errors.Is(err, service.ErrRunInFlight):
		status, msg = http.StatusConflict, err.Error()
	default:
		slog.ErrorContext(c.Request.Context(), fallback, "error", err)
		status, msg = http.StatusInternalServerError, fallback
	}
	c.JSON(status, gin.H{"error": msg})
}
