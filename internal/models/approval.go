package models

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

func (s ApprovalStatus) IsDecision() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// ErrApprovalTarget is returned when an approval does not reference exactly
// one of a proposal or a bill.
var ErrApprovalTarget = errors.New("approval must reference exactly one of proposal or bill")

// Approval is one approver's response to a submitted proposal or bill.
type Approval struct {
	Base        `bson:",inline"`
	ProposalID  *primitive.ObjectID `bson:"proposal_id,omitempty" json:"proposal_id,omitempty"`
	BillID      *primitive.ObjectID `bson:"bill_id,omitempty" json:"bill_id,omitempty"`
	ApproverID  primitive.ObjectID  `bson:"approver_id" json:"approver_id"`
	Status      ApprovalStatus      `bson:"status" json:"status"`
	Comments    string              `bson:"comments,omitempty" json:"comments,omitempty"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
	RespondedAt *time.Time          `bson:"responded_at,omitempty" json:"responded_at,omitempty"`
}

// Validate checks the single-parent invariant.
func (a *Approval) Validate() error {
	if (a.ProposalID == nil) == (a.BillID == nil) {
		return ErrApprovalTarget
	}
	return nil
}
