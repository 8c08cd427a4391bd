package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EntryKind string

const (
	EntryAdvance       EntryKind = "ADVANCE"
	EntryCompensation  EntryKind = "COMPENSATION"
	EntryFringeBenefit EntryKind = "FRINGE_BENEFIT"
	EntryFinderFee     EntryKind = "FINDER_FEE"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryAdvance, EntryCompensation, EntryFringeBenefit, EntryFinderFee:
		return true
	}
	return false
}

// FinancialEntry is a staff ledger line.
type FinancialEntry struct {
	Base          `bson:",inline"`
	SoftDelete    `bson:",inline"`
	Kind          EntryKind           `bson:"kind" json:"kind"`
	UserID        primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Amount        float64             `bson:"amount" json:"amount"`
	Currency      string              `bson:"currency" json:"currency"`
	EffectiveDate time.Time           `bson:"effective_date" json:"effective_date"`
	Notes         string              `bson:"notes,omitempty" json:"notes,omitempty"`
	BillID        *primitive.ObjectID `bson:"bill_id,omitempty" json:"bill_id,omitempty"`
	CreatedBy     primitive.ObjectID  `bson:"created_by" json:"created_by"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
}
