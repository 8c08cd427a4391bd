package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the coarse authorization level of a user.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleStaff    Role = "STAFF"
	RoleClient   Role = "CLIENT"
	RoleExternal Role = "EXTERNAL"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff, RoleClient, RoleExternal:
		return true
	}
	return false
}

// IsInternal reports whether the role belongs to firm staff.
func (r Role) IsInternal() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleStaff
}

// Capabilities are per-user grants layered on top of the role.
type Capabilities struct {
	CanApproveProposals bool `bson:"can_approve_proposals" json:"can_approve_proposals"`
	CanApproveBills     bool `bson:"can_approve_bills" json:"can_approve_bills"`
	CanManageFinance    bool `bson:"can_manage_finance" json:"can_manage_finance"`
}

// User represents a user in the system.
type User struct {
	Base         `bson:",inline"`
	Name         string              `bson:"name" json:"name"`
	Email        string              `bson:"email" json:"email"`
	PasswordHash string              `bson:"password" json:"-"`
	Role         Role                `bson:"role" json:"role"`
	Capabilities Capabilities        `bson:"capabilities" json:"capabilities"`
	ClientID     *primitive.ObjectID `bson:"client_id,omitempty" json:"client_id,omitempty"` // CLIENT portal users only
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}
