package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Label struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string        `bson:"name" json:"name"`
	Color     string        `bson:"color" json:"color"`
	UserID    bson.ObjectID `bson:"userId" json:"user_id"`
	CreatedAt time.Time     `bson:"createdAt" json:"created_at"`
}

// DefaultLabels are provisioned for every new account.
var DefaultLabels = []Label{
	{Name: "Work", Color: "#3B82F6"},
	{Name: "Personal", Color: "#10B981"},
	{Name: "Urgent", Color: "#EF4444"},
}
