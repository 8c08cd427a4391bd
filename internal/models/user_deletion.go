package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DeletionStatus string

const (
	DeletionPending   DeletionStatus = "PENDING"
	DeletionApproved  DeletionStatus = "APPROVED"
	DeletionRejected  DeletionStatus = "REJECTED"
	DeletionCompleted DeletionStatus = "COMPLETED"
)

// ReferenceCensus counts the records still owned by a user.
type ReferenceCensus struct {
	Proposals  int64 `bson:"proposals" json:"proposals"`
	Bills      int64 `bson:"bills" json:"bills"`
	Clients    int64 `bson:"clients" json:"clients"`
	Timesheets int64 `bson:"timesheets" json:"timesheets"`
	Todos      int64 `bson:"todos" json:"todos"`
	Projects   int64 `bson:"projects" json:"projects"`
}

func (c ReferenceCensus) Total() int64 {
	return c.Proposals + c.Bills + c.Clients + c.Timesheets + c.Todos + c.Projects
}

func (c ReferenceCensus) Blocking() bool {
	return c.Total() > 0
}

// Details lists only the non-zero relations.
func (c ReferenceCensus) Details() map[string]int64 {
	out := map[string]int64{}
	for k, v := range map[string]int64{
		"proposals":  c.Proposals,
		"bills":      c.Bills,
		"clients":    c.Clients,
		"timesheets": c.Timesheets,
		"todos":      c.Todos,
		"projects":   c.Projects,
	} {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

// UserDeletionRequest tracks the two-person approval of a user removal.
type UserDeletionRequest struct {
	Base         `bson:",inline"`
	TargetUserID primitive.ObjectID   `bson:"target_user_id" json:"target_user_id"`
	RequestedBy  primitive.ObjectID   `bson:"requested_by" json:"requested_by"`
	Reason       string               `bson:"reason,omitempty" json:"reason,omitempty"`
	ApprovedBy   []primitive.ObjectID `bson:"approved_by" json:"approved_by"`
	Status       DeletionStatus       `bson:"status" json:"status"`
	Blocking     *ReferenceCensus     `bson:"blocking,omitempty" json:"blocking,omitempty"`
	RejectedBy   *primitive.ObjectID  `bson:"rejected_by,omitempty" json:"rejected_by,omitempty"`
	CreatedAt    time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time            `bson:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time           `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}
