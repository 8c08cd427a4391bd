package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type IBase interface {
	GenIDIfEmpty()
	GenID()
	SetID(id primitive.ObjectID)
}

type Base struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = primitive.NewObjectID()
}

func (m *Base) SetID(id primitive.ObjectID) {
	m.ID = id
}

func NewBase() Base {
	return Base{
		ID: primitive.NewObjectID(),
	}
}

// SoftDelete is embedded by entities that are hidden rather than removed.
type SoftDelete struct {
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

func (s SoftDelete) IsDeleted() bool {
	return s.DeletedAt != nil
}
