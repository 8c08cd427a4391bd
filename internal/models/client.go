package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Client is a customer of the firm.
type Client struct {
	Base             `bson:",inline"`
	SoftDelete       `bson:",inline"`
	Name             string              `bson:"name" json:"name"`
	Email            string              `bson:"email" json:"email"`
	Phone            string              `bson:"phone,omitempty" json:"phone,omitempty"`
	ManagerID        *primitive.ObjectID `bson:"manager_id,omitempty" json:"manager_id,omitempty"`
	FinderID         *primitive.ObjectID `bson:"finder_id,omitempty" json:"finder_id,omitempty"`
	FinderFeePercent float64             `bson:"finder_fee_percent" json:"finder_fee_percent"`
	CreatedBy        primitive.ObjectID  `bson:"created_by" json:"created_by"`
	CreatedAt        time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `bson:"updated_at" json:"updated_at"`
}

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "NEW"
	LeadStatusContacted LeadStatus = "CONTACTED"
	LeadStatusQualified LeadStatus = "QUALIFIED"
	LeadStatusConverted LeadStatus = "CONVERTED"
	LeadStatusLost      LeadStatus = "LOST"
)

// Lead is a prospective client that may be converted into a Client.
type Lead struct {
	Base              `bson:",inline"`
	SoftDelete        `bson:",inline"`
	Name              string              `bson:"name" json:"name"`
	Email             string              `bson:"email" json:"email"`
	Company           string              `bson:"company,omitempty" json:"company,omitempty"`
	Status            LeadStatus          `bson:"status" json:"status"`
	ConvertedClientID *primitive.ObjectID `bson:"converted_client_id,omitempty" json:"converted_client_id,omitempty"`
	CreatedBy         primitive.ObjectID  `bson:"created_by" json:"created_by"`
	CreatedAt         time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `bson:"updated_at" json:"updated_at"`
}
