package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/princinho/todoapi/dto"
	"github.com/princinho/todoapi/services"
)

func AddLabel(labels *services.LabelService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		var body dto.CreateLabelDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		label, err := labels.Create(c.Request.Context(), id, body.Name, body.Color)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, label)
	}
}

func GetLabels(labels *services.LabelService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		items, err := labels.List(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, items)
	}
}

func GetLabel(labels *services.LabelService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		label, err := labels.Get(c.Request.Context(), id, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, label)
	}
}

func UpdateLabel(labels *services.LabelService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		var body dto.UpdateLabelDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		label, err := labels.Update(c.Request.Context(), id, c.Param("id"), body.Name, body.Color)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, label)
	}
}

func DeleteLabel(labels *services.LabelService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		if err := labels.Delete(c.Request.Context(), id, c.Param("id")); err != nil {
			writeError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}
