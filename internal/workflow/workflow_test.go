package workflow

import (
	"testing"
	"time"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func principal(role models.Role) authz.Principal {
	return authz.Principal{UserID: primitive.NewObjectID(), Role: role}
}

func TestCheckSubmit(t *testing.T) {
	owner := principal(models.RoleStaff)

	assert.NoError(t, CheckSubmit(owner, owner.UserID, true))
	assert.NoError(t, CheckSubmit(principal(models.RoleAdmin), owner.UserID, true))
	assert.ErrorIs(t, CheckSubmit(principal(models.RoleManager), owner.UserID, true), ErrForbidden)
	assert.ErrorIs(t, CheckSubmit(owner, owner.UserID, false), ErrInvalidState)
}

func TestCheckDecision(t *testing.T) {
	t.Run("manager approves staff work", func(t *testing.T) {
		assert.NoError(t, CheckDecision(principal(models.RoleManager), models.RoleStaff, true, models.ApprovalApproved))
	})
	t.Run("manager cannot approve manager work", func(t *testing.T) {
		assert.ErrorIs(t, CheckDecision(principal(models.RoleManager), models.RoleManager, true, models.ApprovalApproved), ErrForbidden)
	})
	t.Run("admin approves manager work", func(t *testing.T) {
		assert.NoError(t, CheckDecision(principal(models.RoleAdmin), models.RoleManager, true, models.ApprovalRejected))
	})
	t.Run("staff never approves", func(t *testing.T) {
		assert.ErrorIs(t, CheckDecision(principal(models.RoleStaff), models.RoleStaff, true, models.ApprovalApproved), ErrForbidden)
	})
	t.Run("already decided parent", func(t *testing.T) {
		assert.ErrorIs(t, CheckDecision(principal(models.RoleAdmin), models.RoleStaff, false, models.ApprovalApproved), ErrInvalidState)
	})
	t.Run("pending is not a decision", func(t *testing.T) {
		assert.ErrorIs(t, CheckDecision(principal(models.RoleAdmin), models.RoleStaff, true, models.ApprovalPending), ErrInvalidState)
	})
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, models.StatusApproved, ProposalStatusFor(models.ApprovalApproved))
	assert.Equal(t, models.StatusRejected, ProposalStatusFor(models.ApprovalRejected))
	assert.Equal(t, models.BillApproved, BillStatusFor(models.ApprovalApproved))
	assert.Equal(t, models.BillDraft, BillStatusFor(models.ApprovalRejected))
}

func TestDistinctApprovers(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	got := DistinctApprovers([]primitive.ObjectID{a, b, a, primitive.NilObjectID, b})
	assert.Equal(t, []primitive.ObjectID{a, b}, got)
	assert.Equal(t, models.RequireNone, NormalizeRequirement(models.RequireAll, 0))
	assert.Equal(t, models.RequireAny, NormalizeRequirement("", 2))
	assert.Equal(t, models.RequireAll, NormalizeRequirement(models.RequireAll, 2))
}

func TestInternalApprovalsComplete(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	required := []primitive.ObjectID{a, b}
	oneApproved := []models.Approval{
		{ApproverID: a, Status: models.ApprovalApproved},
		{ApproverID: b, Status: models.ApprovalPending},
	}
	bothApproved := []models.Approval{
		{ApproverID: a, Status: models.ApprovalApproved},
		{ApproverID: b, Status: models.ApprovalApproved},
	}

	assert.True(t, InternalApprovalsComplete(models.RequireAny, required, oneApproved))
	assert.False(t, InternalApprovalsComplete(models.RequireAll, required, oneApproved))
	assert.True(t, InternalApprovalsComplete(models.RequireAll, required, bothApproved))
	assert.False(t, InternalApprovalsComplete(models.RequireAny, required, nil))
	assert.True(t, InternalApprovalsComplete(models.RequireNone, nil, nil))
}

func TestCheckBillTransition(t *testing.T) {
	assert.NoError(t, CheckBillTransition(models.BillDraft, models.BillSubmitted))
	assert.NoError(t, CheckBillTransition(models.BillApproved, models.BillPaid))
	assert.NoError(t, CheckBillTransition(models.BillSubmitted, models.BillDraft))
	assert.ErrorIs(t, CheckBillTransition(models.BillSubmitted, models.BillSubmitted), ErrInvalidState)
	assert.ErrorIs(t, CheckBillTransition(models.BillPaid, models.BillCancelled), ErrInvalidState)
	assert.ErrorIs(t, CheckBillTransition(models.BillDraft, models.BillPaid), ErrInvalidState)
}

func TestCheckClientToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)
	p := &models.Proposal{
		ClientApprovalToken:          "tok-123",
		ClientApprovalTokenExpiresAt: &expires,
		ClientApprovalStatus:         models.ApprovalPending,
	}

	assert.NoError(t, CheckClientToken(p, "tok-123", now))
	assert.ErrorIs(t, CheckClientToken(p, "tok-12", now), ErrTokenInvalid)
	assert.ErrorIs(t, CheckClientToken(p, "", now), ErrTokenInvalid)
	assert.ErrorIs(t, CheckClientToken(p, "tok-123", expires), ErrTokenExpired)

	require.NoError(t, CheckClientDecision(p, "tok-123", models.ApprovalApproved, now))
	p.ClientApprovalStatus = models.ApprovalApproved
	assert.ErrorIs(t, CheckClientDecision(p, "tok-123", models.ApprovalApproved, now), ErrAlreadyDecided)
}

func TestCheckSendToClient(t *testing.T) {
	assert.ErrorIs(t, CheckSendToClient(&models.Proposal{Status: models.StatusSubmitted}), ErrInvalidState)
	assert.NoError(t, CheckSendToClient(&models.Proposal{Status: models.StatusApproved}))
	assert.ErrorIs(t, CheckSendToClient(&models.Proposal{Status: models.StatusApproved, ClientApprovalStatus: models.ApprovalRejected}), ErrAlreadyDecided)
}

func TestAddDeletionApproval(t *testing.T) {
	requester := principal(models.RoleAdmin)
	first := principal(models.RoleAdmin)
	second := principal(models.RoleAdmin)
	req := &models.UserDeletionRequest{
		TargetUserID: primitive.NewObjectID(),
		RequestedBy:  requester.UserID,
		Status:       models.DeletionPending,
	}

	_, _, err := AddDeletionApproval(req, requester)
	assert.ErrorIs(t, err, ErrSelfApproval)

	_, _, err = AddDeletionApproval(req, principal(models.RoleManager))
	assert.ErrorIs(t, err, ErrForbidden)

	approvers, quorum, err := AddDeletionApproval(req, first)
	require.NoError(t, err)
	assert.False(t, quorum)
	req.ApprovedBy = approvers

	_, _, err = AddDeletionApproval(req, first)
	assert.ErrorIs(t, err, ErrDuplicateApprover)

	approvers, quorum, err = AddDeletionApproval(req, second)
	require.NoError(t, err)
	assert.True(t, quorum)
	assert.Equal(t, []primitive.ObjectID{first.UserID, second.UserID}, approvers)

	req.Status = models.DeletionRejected
	_, _, err = AddDeletionApproval(req, principal(models.RoleAdmin))
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestResolveDeletion(t *testing.T) {
	assert.Equal(t, models.DeletionCompleted, ResolveDeletion(models.ReferenceCensus{}))
	assert.Equal(t, models.DeletionRejected, ResolveDeletion(models.ReferenceCensus{Todos: 1}))
}

func TestProposalDeletionTwoPerson(t *testing.T) {
	requester := principal(models.RoleManager)
	now := time.Now()
	prop := &models.Proposal{}

	require.NoError(t, CheckProposalDeletionRequest(requester, prop))
	assert.ErrorIs(t, CheckProposalDeletionApproval(principal(models.RoleAdmin), prop), ErrInvalidState)

	prop.DeletionRequestedAt = &now
	prop.DeletionRequestedBy = &requester.UserID
	assert.ErrorIs(t, CheckProposalDeletionRequest(requester, prop), ErrAlreadyDecided)
	assert.ErrorIs(t, CheckProposalDeletionApproval(requester, prop), ErrSelfApproval)
	assert.ErrorIs(t, CheckProposalDeletionApproval(principal(models.RoleStaff), prop), ErrForbidden)
	assert.NoError(t, CheckProposalDeletionApproval(principal(models.RoleAdmin), prop))
}
