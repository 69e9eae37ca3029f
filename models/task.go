package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type Task struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string        `bson:"title" json:"title"`
	Description *string       `bson:"description,omitempty" json:"description"`
	Priority    Priority      `bson:"priority" json:"priority"`
	Deadline    time.Time     `bson:"deadline" json:"deadline"`
	Completed   bool          `bson:"completed" json:"completed"`
	UserID      bson.ObjectID `bson:"userId" json:"user_id"`
	LabelIDs    []string      `bson:"labelIds" json:"label_ids"`
	CreatedAt   time.Time     `bson:"createdAt" json:"created_at"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updated_at"`

	IsOverdue bool `bson:"-" json:"is_overdue"`
}

// Overdue reports whether an unfinished task has passed its deadline.
func (t *Task) Overdue(now time.Time) bool {
	if t.Completed {
		return false
	}
	return now.UTC().After(t.Deadline.UTC())
}
