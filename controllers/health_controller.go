package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/todoapi/config"
	"github.com/princinho/todoapi/database"
)

const healthPingTimeout = 2 * time.Second

func Root(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Welcome to " + cfg.AppName,
			"version": cfg.AppVersion,
		})
	}
}

// Health reports the API as unhealthy (503) when the store does not answer a ping.
func Health(cfg *config.Config, db database.Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()

		status, dbStatus, code := "healthy", "connected", http.StatusOK
		if err := db.Ping(ctx); err != nil {
			status, dbStatus, code = "unhealthy", "disconnected", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":   status,
			"api":      "online",
			"database": dbStatus,
			"version":  cfg.AppVersion,
		})
	}
}

func Ping() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	}
}
