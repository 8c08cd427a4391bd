package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BillStatus string

const (
	BillDraft      BillStatus = "DRAFT"
	BillSubmitted  BillStatus = "SUBMITTED"
	BillApproved   BillStatus = "APPROVED"
	BillPaid       BillStatus = "PAID"
	BillCancelled  BillStatus = "CANCELLED"
	BillWrittenOff BillStatus = "WRITTEN_OFF"
)

type BillLineKind string

const (
	LineTime        BillLineKind = "TIME"
	LineCharge      BillLineKind = "CHARGE"
	LineFee         BillLineKind = "FEE"
	LineInstallment BillLineKind = "INSTALLMENT"
)

// BillLine is a single invoiced item. SourceID points at the timesheet entry
// or charge it was generated from.
type BillLine struct {
	Kind        BillLineKind        `bson:"kind" json:"kind"`
	SourceID    *primitive.ObjectID `bson:"source_id,omitempty" json:"source_id,omitempty"`
	Description string              `bson:"description" json:"description"`
	Quantity    float64             `bson:"quantity" json:"quantity"`
	Rate        float64             `bson:"rate" json:"rate"`
	Amount      float64             `bson:"amount" json:"amount"`
}

// Bill represents an invoice issued to a client.
type Bill struct {
	Base       `bson:",inline"`
	SoftDelete `bson:",inline"`
	Number     string              `bson:"number" json:"number"`
	ClientID   primitive.ObjectID  `bson:"client_id" json:"client_id"`
	ProjectID  *primitive.ObjectID `bson:"project_id,omitempty" json:"project_id,omitempty"`
	ProposalID *primitive.ObjectID `bson:"proposal_id,omitempty" json:"proposal_id,omitempty"`
	CreatedBy  primitive.ObjectID  `bson:"created_by" json:"created_by"`
	Lines      []BillLine          `bson:"lines" json:"lines"`
	Amount     float64             `bson:"amount" json:"amount"`
	Currency   string              `bson:"currency" json:"currency"`
	Status     BillStatus          `bson:"status" json:"status"`
	DueDate    time.Time           `bson:"due_date" json:"due_date"`

	InternalApprovalRequired  bool                 `bson:"internal_approval_required" json:"internal_approval_required"`
	InternalApprovalType      ApprovalRequirement  `bson:"internal_approval_type,omitempty" json:"internal_approval_type,omitempty"`
	RequiredApproverIDs       []primitive.ObjectID `bson:"required_approver_ids,omitempty" json:"required_approver_ids,omitempty"`
	InternalApprovalsComplete bool                 `bson:"internal_approvals_complete" json:"internal_approvals_complete"`

	SubmittedAt  *time.Time          `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
	ApprovedAt   *time.Time          `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	ApprovedBy   *primitive.ObjectID `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	PaidAt       *time.Time          `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	CancelledAt  *time.Time          `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	WrittenOffAt *time.Time          `bson:"written_off_at,omitempty" json:"written_off_at,omitempty"`

	BecameOutstandingAt *time.Time `bson:"became_outstanding_at,omitempty" json:"became_outstanding_at,omitempty"`
	LastReminderSentAt  *time.Time `bson:"last_reminder_sent_at,omitempty" json:"last_reminder_sent_at,omitempty"`
	ReminderCount       int        `bson:"reminder_count" json:"reminder_count"`

	InstallmentDate *time.Time `bson:"installment_date,omitempty" json:"installment_date,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
