package authz

import (
	"greendrake/chambers/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CanApprove applies the approval hierarchy: work created by STAFF may be
// approved by a MANAGER or ADMIN, work created by a MANAGER only by an ADMIN,
// and an ADMIN may approve anything. Nobody outside it approves.
func CanApprove(approver models.Role, creator models.Role) bool {
	switch approver {
	case models.RoleAdmin:
		return true
	case models.RoleManager:
		return creator == models.RoleStaff
	}
	return false
}

// CanActAsOwner reports whether p is the owner of a record or an ADMIN.
func CanActAsOwner(p Principal, owner primitive.ObjectID) bool {
	return p.IsAdmin() || p.UserID == owner
}

// CanViewAllProposals reports whether p sees proposals created by others.
func CanViewAllProposals(p Principal) bool {
	return p.IsAdmin() || p.IsManager() || p.Capabilities.CanApproveProposals
}

// CanViewAllBills reports whether p sees bills created by others.
func CanViewAllBills(p Principal) bool {
	return p.IsAdmin() || p.IsManager() || p.Capabilities.CanApproveBills
}

// CanManageFinance gates the staff ledger.
func CanManageFinance(p Principal) bool {
	return p.IsAdmin() || p.Capabilities.CanManageFinance
}

// CanApproveProposalDeletion gates the second half of a proposal deletion.
func CanApproveProposalDeletion(p Principal) bool {
	return p.IsAdmin() || p.IsManager() || p.Capabilities.CanApproveProposals
}

// UpdatableProposalFields returns the fields a principal may change on a
// proposal it can see. Owners edit content while the proposal is a draft;
// admins may additionally edit payment terms after submission.
func UpdatableProposalFields(p Principal, owner primitive.ObjectID, status models.SubmissionStatus) []string {
	content := []string{"title", "items", "currency", "client_id", "lead_id", "payment_term"}
	switch {
	case p.IsAdmin() && status == models.StatusDraft:
		return content
	case p.IsAdmin():
		return []string{"payment_term"}
	case p.UserID == owner && status == models.StatusDraft:
		return content
	}
	return nil
}
