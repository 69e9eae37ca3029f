package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/todoapi/dto"
	"github.com/princinho/todoapi/services"
)

func GetMe(sessions *services.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		user, err := sessions.Me(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// UpdateMe changes the caller's username, email or password. Changing the
// password signs out every other session.
func UpdateMe(sessions *services.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		var body dto.UpdateProfileDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := sessions.UpdateProfile(c.Request.Context(), id, services.ProfileUpdate{
			Username:        body.Username,
			Email:           body.Email,
			CurrentPassword: body.CurrentPassword,
			NewPassword:     body.NewPassword,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, user)
	}
}
