package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Todo struct {
	Base        `bson:",inline"`
	SoftDelete  `bson:",inline"`
	Title       string              `bson:"title" json:"title"`
	Description string              `bson:"description,omitempty" json:"description,omitempty"`
	AssigneeID  primitive.ObjectID  `bson:"assignee_id" json:"assignee_id"`
	CreatedBy   primitive.ObjectID  `bson:"created_by" json:"created_by"`
	ProjectID   *primitive.ObjectID `bson:"project_id,omitempty" json:"project_id,omitempty"`
	DueDate     *time.Time          `bson:"due_date,omitempty" json:"due_date,omitempty"`
	Completed   bool                `bson:"completed" json:"completed"`
	CompletedAt *time.Time          `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
}
