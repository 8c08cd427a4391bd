package workflow

import (
	"crypto/subtle"
	"fmt"
	"time"

	"greendrake/chambers/internal/models"
)

// CheckClientToken validates an external reviewer's token against the
// proposal. The token must match exactly and be unexpired.
func CheckClientToken(p *models.Proposal, token string, now time.Time) error {
	if p.ClientApprovalToken == "" || token == "" {
		return ErrTokenInvalid
	}
	if subtle.ConstantTimeCompare([]byte(p.ClientApprovalToken), []byte(token)) != 1 {
		return ErrTokenInvalid
	}
	if p.ClientApprovalTokenExpiresAt == nil || !now.Before(*p.ClientApprovalTokenExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// CheckClientDecision validates a client decision on top of the token check.
func CheckClientDecision(p *models.Proposal, token string, decision models.ApprovalStatus, now time.Time) error {
	if err := CheckClientToken(p, token, now); err != nil {
		return err
	}
	if !decision.IsDecision() {
		return fmt.Errorf("%w: decision must be APPROVED or REJECTED", ErrInvalidState)
	}
	if p.ClientApprovalStatus != models.ApprovalPending {
		return fmt.Errorf("%w: client has already responded", ErrAlreadyDecided)
	}
	return nil
}

// CheckSendToClient verifies a proposal can be sent out for client review.
func CheckSendToClient(p *models.Proposal) error {
	if p.Status != models.StatusApproved {
		return fmt.Errorf("%w: only approved proposals can be sent to the client", ErrInvalidState)
	}
	if p.ClientApprovalStatus.IsDecision() {
		return fmt.Errorf("%w: client has already responded", ErrAlreadyDecided)
	}
	return nil
}
