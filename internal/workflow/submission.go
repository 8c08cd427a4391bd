package workflow

import (
	"fmt"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CheckSubmit verifies that p may submit a record owned by owner which is
// currently in the given status. Only drafts can be submitted.
func CheckSubmit(p authz.Principal, owner primitive.ObjectID, draft bool) error {
	if !authz.CanActAsOwner(p, owner) {
		return fmt.Errorf("%w: only the creator or an admin may submit", ErrForbidden)
	}
	if !draft {
		return fmt.Errorf("%w: only drafts can be submitted", ErrInvalidState)
	}
	return nil
}

// CheckDecision verifies that p may record decision on work created by a user
// with creatorRole while the parent is still awaiting review.
func CheckDecision(p authz.Principal, creatorRole models.Role, submitted bool, decision models.ApprovalStatus) error {
	if !decision.IsDecision() {
		return fmt.Errorf("%w: decision must be APPROVED or REJECTED", ErrInvalidState)
	}
	if !authz.CanApprove(p.Role, creatorRole) {
		return fmt.Errorf("%w: %s cannot approve work created by %s", ErrForbidden, p.Role, creatorRole)
	}
	if !submitted {
		return fmt.Errorf("%w: only submitted records can be decided", ErrInvalidState)
	}
	return nil
}

// ProposalStatusFor maps an approver decision to the proposal's next status.
func ProposalStatusFor(decision models.ApprovalStatus) models.SubmissionStatus {
	if decision == models.ApprovalApproved {
		return models.StatusApproved
	}
	return models.StatusRejected
}

// BillStatusFor maps an approver decision to the bill's next status. Bills
// have no rejected state: a rejected bill goes back to draft for revision.
func BillStatusFor(decision models.ApprovalStatus) models.BillStatus {
	if decision == models.ApprovalApproved {
		return models.BillApproved
	}
	return models.BillDraft
}

// DistinctApprovers drops duplicates and zero ids, keeping first-seen order.
func DistinctApprovers(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// NormalizeRequirement picks the requirement stored on submission.
func NormalizeRequirement(req models.ApprovalRequirement, approvers int) models.ApprovalRequirement {
	if approvers == 0 {
		return models.RequireNone
	}
	if req == models.RequireAll {
		return models.RequireAll
	}
	return models.RequireAny
}

// InternalApprovalsComplete evaluates ANY/ALL completeness over the approval
// rows recorded for a bill.
func InternalApprovalsComplete(req models.ApprovalRequirement, required []primitive.ObjectID, approvals []models.Approval) bool {
	approved := map[primitive.ObjectID]bool{}
	for _, a := range approvals {
		if a.Status == models.ApprovalApproved {
			approved[a.ApproverID] = true
		}
	}
	switch req {
	case models.RequireNone, "":
		return true
	case models.RequireAny:
		return len(approved) > 0
	case models.RequireAll:
		if len(required) == 0 {
			return len(approved) > 0
		}
		for _, id := range required {
			if !approved[id] {
				return false
			}
		}
		return true
	}
	return false
}
