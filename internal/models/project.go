package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectOnHold    ProjectStatus = "ON_HOLD"
	ProjectCompleted ProjectStatus = "COMPLETED"
)

type Milestone struct {
	Name    string    `bson:"name" json:"name"`
	DueDate time.Time `bson:"due_date" json:"due_date"`
}

type Project struct {
	Base       `bson:",inline"`
	SoftDelete `bson:",inline"`
	Name       string              `bson:"name" json:"name"`
	ClientID   primitive.ObjectID  `bson:"client_id" json:"client_id"`
	ProposalID *primitive.ObjectID `bson:"proposal_id,omitempty" json:"proposal_id,omitempty"`
	ManagerID  *primitive.ObjectID `bson:"manager_id,omitempty" json:"manager_id,omitempty"`
	Status     ProjectStatus       `bson:"status" json:"status"`
	Milestones []Milestone         `bson:"milestones,omitempty" json:"milestones,omitempty"`
	CreatedBy  primitive.ObjectID  `bson:"created_by" json:"created_by"`
	CreatedAt  time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time           `bson:"updated_at" json:"updated_at"`
}

// TimesheetEntry records time worked on a project. Rate is optional and
// counts as zero when absent.
type TimesheetEntry struct {
	Base        `bson:",inline"`
	ProjectID   primitive.ObjectID  `bson:"project_id" json:"project_id"`
	UserID      primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Date        time.Time           `bson:"date" json:"date"`
	Hours       float64             `bson:"hours" json:"hours"`
	Rate        *float64            `bson:"rate,omitempty" json:"rate,omitempty"`
	Description string              `bson:"description" json:"description"`
	Billable    bool                `bson:"billable" json:"billable"`
	Billed      bool                `bson:"billed" json:"billed"`
	BillID      *primitive.ObjectID `bson:"bill_id,omitempty" json:"bill_id,omitempty"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
}

// ProjectCharge is a disbursement or fixed fee recorded against a project.
type ProjectCharge struct {
	Base        `bson:",inline"`
	ProjectID   primitive.ObjectID  `bson:"project_id" json:"project_id"`
	Description string              `bson:"description" json:"description"`
	Amount      float64             `bson:"amount" json:"amount"`
	Billed      bool                `bson:"billed" json:"billed"`
	BillID      *primitive.ObjectID `bson:"bill_id,omitempty" json:"bill_id,omitempty"`
	CreatedBy   primitive.ObjectID  `bson:"created_by" json:"created_by"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
}
