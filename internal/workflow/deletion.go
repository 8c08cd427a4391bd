package workflow

import (
	"fmt"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeletionQuorum is the number of distinct approvers a user deletion needs.
const DeletionQuorum = 2

// CheckDeletionRequest verifies p may ask for target to be removed.
func CheckDeletionRequest(p authz.Principal, target primitive.ObjectID) error {
	if !p.IsAdmin() {
		return fmt.Errorf("%w: only admins may request user deletion", ErrForbidden)
	}
	if p.UserID == target {
		return fmt.Errorf("%w: admins cannot request their own deletion", ErrForbidden)
	}
	return nil
}

// AddDeletionApproval validates approver against the request and returns
// the new approver list and whether the quorum has been reached.
func AddDeletionApproval(req *models.UserDeletionRequest, approver authz.Principal) ([]primitive.ObjectID, bool, error) {
	if !approver.IsAdmin() {
		return nil, false, fmt.Errorf("%w: only admins may approve user deletion", ErrForbidden)
	}
	if req.Status != models.DeletionPending {
		return nil, false, fmt.Errorf("%w: request is %s", ErrAlreadyDecided, req.Status)
	}
	if approver.UserID == req.RequestedBy {
		return nil, false, ErrSelfApproval
	}
	if approver.UserID == req.TargetUserID {
		return nil, false, fmt.Errorf("%w: target cannot approve their own deletion", ErrForbidden)
	}
	for _, id := range req.ApprovedBy {
		if id == approver.UserID {
			return nil, false, ErrDuplicateApprover
		}
	}
	approvers := append(append([]primitive.ObjectID{}, req.ApprovedBy...), approver.UserID)
	return approvers, len(approvers) >= DeletionQuorum, nil
}

// ResolveDeletion decides the terminal status once the quorum is met.
func ResolveDeletion(census models.ReferenceCensus) models.DeletionStatus {
	if census.Blocking() {
		return models.DeletionRejected
	}
	return models.DeletionCompleted
}

// CheckProposalDeletionRequest verifies p may ask for a proposal to be deleted.
func CheckProposalDeletionRequest(p authz.Principal, prop *models.Proposal) error {
	if !p.IsStaff() {
		return ErrForbidden
	}
	if prop.IsDeleted() {
		return fmt.Errorf("%w: proposal is already deleted", ErrInvalidState)
	}
	if prop.DeletionRequestedAt != nil {
		return fmt.Errorf("%w: deletion already requested", ErrAlreadyDecided)
	}
	return nil
}

// CheckProposalDeletionApproval enforces the two-person rule on proposals.
func CheckProposalDeletionApproval(p authz.Principal, prop *models.Proposal) error {
	if !authz.CanApproveProposalDeletion(p) {
		return ErrForbidden
	}
	if prop.DeletionRequestedAt == nil || prop.DeletionRequestedBy == nil {
		return fmt.Errorf("%w: no deletion has been requested", ErrInvalidState)
	}
	if prop.IsDeleted() {
		return fmt.Errorf("%w: proposal is already deleted", ErrAlreadyDecided)
	}
	if *prop.DeletionRequestedBy == p.UserID {
		return ErrSelfApproval
	}
	return nil
}
