package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SubjectKind string

const (
	SubjectProposal        SubjectKind = "PROPOSAL"
	SubjectInvoice         SubjectKind = "INVOICE"
	SubjectTodo            SubjectKind = "TODO"
	SubjectInstallment     SubjectKind = "INSTALLMENT"
	SubjectDeletionRequest SubjectKind = "DELETION_REQUEST"
)

// Subject identifies the entity a notification is about.
type Subject struct {
	Kind SubjectKind        `bson:"kind" json:"kind"`
	ID   primitive.ObjectID `bson:"id" json:"id"`
}

type NotificationEvent string

const (
	EventApprovalRequested  NotificationEvent = "approval_requested"
	EventApprovalDecided    NotificationEvent = "approval_decided"
	EventClientDecided      NotificationEvent = "client_decided"
	EventInvoiceOutstanding NotificationEvent = "invoice_outstanding"
	EventInvoiceReminder    NotificationEvent = "invoice_reminder"
	EventInstallmentDue     NotificationEvent = "installment_due"
	EventTodoAssigned       NotificationEvent = "todo_assigned"
	EventDeletionRequested  NotificationEvent = "deletion_requested"
)

type Notification struct {
	Base      `bson:",inline"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Subject   Subject            `bson:"subject" json:"subject"`
	Event     NotificationEvent  `bson:"event" json:"event"`
	Title     string             `bson:"title" json:"title"`
	Message   string             `bson:"message" json:"message"`
	DueDate   *time.Time         `bson:"due_date,omitempty" json:"due_date,omitempty"`
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
