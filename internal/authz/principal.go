// Package authz holds the request principal and the role predicates used by
// services to decide who may do what.
package authz

import (
	"greendrake/chambers/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID       primitive.ObjectID
	Role         models.Role
	Capabilities models.Capabilities
	ClientID     *primitive.ObjectID
}

func (p Principal) IsAdmin() bool   { return p.Role == models.RoleAdmin }
func (p Principal) IsManager() bool { return p.Role == models.RoleManager }
func (p Principal) IsStaff() bool   { return p.Role.IsInternal() }

// HasRole reports whether the principal holds any of the given roles.
func (p Principal) HasRole(roles ...models.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// FromUser builds a principal from a stored user.
func FromUser(u *models.User) Principal {
	return Principal{
		UserID:       u.ID,
		Role:         u.Role,
		Capabilities: u.Capabilities,
		ClientID:     u.ClientID,
	}
}
