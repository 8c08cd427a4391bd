package authz

import (
	"testing"

	"greendrake/chambers/internal/models"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCanApprove(t *testing.T) {
	cases := []struct {
		approver, creator models.Role
		want              bool
	}{
		{models.RoleAdmin, models.RoleStaff, true},
		{models.RoleAdmin, models.RoleManager, true},
		{models.RoleAdmin, models.RoleAdmin, true},
		{models.RoleManager, models.RoleStaff, true},
		{models.RoleManager, models.RoleManager, false},
		{models.RoleManager, models.RoleAdmin, false},
		{models.RoleStaff, models.RoleStaff, false},
		{models.RoleClient, models.RoleStaff, false},
		{models.RoleExternal, models.RoleStaff, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanApprove(c.approver, c.creator), "%s approving %s", c.approver, c.creator)
	}
}

func TestCanActAsOwner(t *testing.T) {
	owner := primitive.NewObjectID()
	assert.True(t, CanActAsOwner(Principal{UserID: owner, Role: models.RoleStaff}, owner))
	assert.True(t, CanActAsOwner(Principal{UserID: primitive.NewObjectID(), Role: models.RoleAdmin}, owner))
	assert.False(t, CanActAsOwner(Principal{UserID: primitive.NewObjectID(), Role: models.RoleManager}, owner))
}

func TestUpdatableProposalFields(t *testing.T) {
	owner := primitive.NewObjectID()
	staff := Principal{UserID: owner, Role: models.RoleStaff}
	other := Principal{UserID: primitive.NewObjectID(), Role: models.RoleManager}
	admin := Principal{UserID: primitive.NewObjectID(), Role: models.RoleAdmin}

	assert.Contains(t, UpdatableProposalFields(staff, owner, models.StatusDraft), "items")
	assert.Empty(t, UpdatableProposalFields(staff, owner, models.StatusSubmitted))
	assert.Empty(t, UpdatableProposalFields(other, owner, models.StatusDraft))
	assert.Equal(t, []string{"payment_term"}, UpdatableProposalFields(admin, owner, models.StatusApproved))
}
