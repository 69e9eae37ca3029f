package dto

import "github.com/princinho/todoapi/models"

type CreateTaskDTO struct {
	Title       string          `json:"title" binding:"required,max=200"`
	Description *string         `json:"description" binding:"omitempty,max=1000"`
	Priority    models.Priority `json:"priority" binding:"required,oneof=High Medium Low"`
	Deadline    Timestamp       `json:"deadline"`
	LabelIDs    []string        `json:"label_ids"`
}

// UpdateTaskDTO has only optional pointer fields.
type UpdateTaskDTO struct {
	Title       *string          `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string          `json:"description" binding:"omitempty,max=1000"`
	Priority    *models.Priority `json:"priority" binding:"omitempty,oneof=High Medium Low"`
	Deadline    *Timestamp       `json:"deadline"`
	Completed   *bool            `json:"completed"`
	LabelIDs    *[]string        `json:"label_ids"`
}
