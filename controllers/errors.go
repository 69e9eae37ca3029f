package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/todoapi/middleware"
	"github.com/princinho/todoapi/services"
)

// writeError maps a service error kind to its status code. Anything the
// services did not classify is logged and answered with a bare 500.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := services.Detail(err)

	if status >= http.StatusInternalServerError {
		slog.Default().ErrorContext(c.Request.Context(), "http.handler.fail",
			"err", err,
			"request_id", middleware.RequestID(c),
			"route", c.FullPath(),
		)
	}
	if msg == "" || (status == http.StatusInternalServerError && !errors.Is(err, services.ErrStorage)) {
		msg = http.StatusText(status)
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.JSON(status, gin.H{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// identity reads the caller set by middleware.AuthMiddleware. Routes without
// the middleware get a 401.
func identity(c *gin.Context) (services.Identity, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
	}
	return id, ok
}
