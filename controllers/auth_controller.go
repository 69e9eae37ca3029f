package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/todoapi/dto"
	"github.com/princinho/todoapi/services"
)

func Register(sessions *services.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RegisterDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := sessions.Register(c.Request.Context(), body.Email, body.Username, body.Password)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

func Login(sessions *services.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		pair, err := sessions.Login(c.Request.Context(), body.Email, body.Password)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, pair)
	}
}

func Refresh(sessions *services.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RefreshTokenDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		pair, err := sessions.Refresh(c.Request.Context(), body.RefreshToken)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, pair)
	}
}

func Logout(sessions *services.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		var body dto.RefreshTokenDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := sessions.Logout(c.Request.Context(), id, body.RefreshToken); err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
	}
}
