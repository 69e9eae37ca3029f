package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/princinho/todoapi/dto"
	"github.com/princinho/todoapi/models"
	"github.com/princinho/todoapi/services"
	"github.com/princinho/todoapi/utils"
)

func AddTask(tasks *services.TaskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		var body dto.CreateTaskDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		task, err := tasks.Create(c.Request.Context(), id, services.TaskInput{
			Title:       body.Title,
			Description: body.Description,
			Priority:    body.Priority,
			Deadline:    body.Deadline.Time,
			LabelIDs:    body.LabelIDs,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, task)
	}
}

// GetTasks lists the caller's tasks.
// Query: priority, completed, labels (comma separated ids, any-of), overdue,
// sort_by, order (asc|desc).
func GetTasks(tasks *services.TaskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		q := services.TaskQuery{
			LabelIDs: utils.SplitCSV(c.Query("labels")),
			SortBy:   strings.TrimSpace(c.Query("sort_by")),
			Order:    strings.TrimSpace(c.Query("order")),
		}
		if p := strings.TrimSpace(c.Query("priority")); p != "" {
			priority := models.Priority(p)
			q.Priority = &priority
		}

		var err error
		if q.Completed, err = utils.ParseBoolQuery(c.Query("completed")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "completed must be true or false"})
			return
		}
		if q.Overdue, err = utils.ParseBoolQuery(c.Query("overdue")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "overdue must be true or false"})
			return
		}

		items, err := tasks.List(c.Request.Context(), id, q)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, items)
	}
}

func GetTask(tasks *services.TaskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		task, err := tasks.Get(c.Request.Context(), id, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, task)
	}
}

func UpdateTask(tasks *services.TaskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		var body dto.UpdateTaskDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		patch := services.TaskPatch{
			Title:       body.Title,
			Description: body.Description,
			Priority:    body.Priority,
			Completed:   body.Completed,
			LabelIDs:    body.LabelIDs,
		}
		if body.Deadline != nil {
			deadline := body.Deadline.Time
			patch.Deadline = &deadline
		}

		task, err := tasks.Update(c.Request.Context(), id, c.Param("id"), patch)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, task)
	}
}

func ToggleTask(tasks *services.TaskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		task, err := tasks.ToggleComplete(c.Request.Context(), id, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, task)
	}
}

func DeleteTask(tasks *services.TaskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			return
		}

		if err := tasks.Delete(c.Request.Context(), id, c.Param("id")); err != nil {
			writeError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}
