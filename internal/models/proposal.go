package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubmissionStatus is the internal review state shared by proposals and the
// first half of the bill lifecycle.
type SubmissionStatus string

const (
	StatusDraft     SubmissionStatus = "DRAFT"
	StatusSubmitted SubmissionStatus = "SUBMITTED"
	StatusApproved  SubmissionStatus = "APPROVED"
	StatusRejected  SubmissionStatus = "REJECTED"
)

// ApprovalRequirement says how many requested approvers must agree.
type ApprovalRequirement string

const (
	RequireNone ApprovalRequirement = "NONE"
	RequireAny  ApprovalRequirement = "ANY"
	RequireAll  ApprovalRequirement = "ALL"
)

type ProposalItem struct {
	Description string  `bson:"description" json:"description"`
	Quantity    float64 `bson:"quantity" json:"quantity"`
	UnitPrice   float64 `bson:"unit_price" json:"unit_price"`
	Amount      float64 `bson:"amount" json:"amount"`
}

type UpfrontType string

const (
	UpfrontPercent UpfrontType = "PERCENT"
	UpfrontFixed   UpfrontType = "FIXED"
)

type Frequency string

const (
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyBiweekly  Frequency = "BIWEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
)

// PaymentTerm describes how a proposal amount is split into installments.
// Due dates come from InstallmentDates when set, otherwise from Frequency
// and StartDate, otherwise from project milestones when UseMilestones is set.
type PaymentTerm struct {
	UpfrontType      UpfrontType `bson:"upfront_type,omitempty" json:"upfront_type,omitempty"`
	UpfrontValue     float64     `bson:"upfront_value" json:"upfront_value"`
	InstallmentCount int         `bson:"installment_count" json:"installment_count"`
	Frequency        Frequency   `bson:"frequency,omitempty" json:"frequency,omitempty"`
	StartDate        *time.Time  `bson:"start_date,omitempty" json:"start_date,omitempty"`
	InstallmentDates []time.Time `bson:"installment_dates,omitempty" json:"installment_dates,omitempty"`
	UseMilestones    bool        `bson:"use_milestones" json:"use_milestones"`
}

// HasInstallments reports whether the term schedules any installment.
func (p *PaymentTerm) HasInstallments() bool {
	return p != nil && (p.InstallmentCount > 0 || len(p.InstallmentDates) > 0)
}

// ClientDecision captures the external approval given through the review link.
type ClientDecision struct {
	DecidedAt    time.Time `bson:"decided_at" json:"decided_at"`
	SignerName   string    `bson:"signer_name" json:"signer_name"`
	SignatureKey string    `bson:"signature_key,omitempty" json:"signature_key,omitempty"`
	Comments     string    `bson:"comments,omitempty" json:"comments,omitempty"`
}

type Proposal struct {
	Base       `bson:",inline"`
	SoftDelete `bson:",inline"`
	Reference  string              `bson:"reference" json:"reference"`
	Title      string              `bson:"title" json:"title"`
	ClientID   *primitive.ObjectID `bson:"client_id,omitempty" json:"client_id,omitempty"`
	LeadID     *primitive.ObjectID `bson:"lead_id,omitempty" json:"lead_id,omitempty"`
	CreatedBy  primitive.ObjectID  `bson:"created_by" json:"created_by"`
	Items      []ProposalItem      `bson:"items" json:"items"`
	Amount     float64             `bson:"amount" json:"amount"`
	Currency   string              `bson:"currency" json:"currency"`

	Status              SubmissionStatus     `bson:"status" json:"status"`
	ApprovalRequirement ApprovalRequirement  `bson:"approval_requirement" json:"approval_requirement"`
	RequiredApproverIDs []primitive.ObjectID `bson:"required_approver_ids,omitempty" json:"required_approver_ids,omitempty"`
	SubmittedAt         *time.Time           `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
	ApprovedAt          *time.Time           `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	ApprovedBy          *primitive.ObjectID  `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	RejectedAt          *time.Time           `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`

	ClientApprovalStatus         ApprovalStatus  `bson:"client_approval_status,omitempty" json:"client_approval_status,omitempty"`
	ClientApprovalToken          string          `bson:"client_approval_token,omitempty" json:"-"`
	ClientApprovalTokenExpiresAt *time.Time      `bson:"client_approval_token_expires_at,omitempty" json:"client_approval_token_expires_at,omitempty"`
	ClientDecision               *ClientDecision `bson:"client_decision,omitempty" json:"client_decision,omitempty"`

	PaymentTerm *PaymentTerm `bson:"payment_term,omitempty" json:"payment_term,omitempty"`

	DeletionRequestedAt *time.Time          `bson:"deletion_requested_at,omitempty" json:"deletion_requested_at,omitempty"`
	DeletionRequestedBy *primitive.ObjectID `bson:"deletion_requested_by,omitempty" json:"deletion_requested_by,omitempty"`
	DeletionApprovedAt  *time.Time          `bson:"deletion_approved_at,omitempty" json:"deletion_approved_at,omitempty"`
	DeletionApprovedBy  *primitive.ObjectID `bson:"deletion_approved_by,omitempty" json:"deletion_approved_by,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
