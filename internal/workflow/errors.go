// Package workflow contains the status machines for proposals, bills and
// user deletion requests. Everything here is pure; persistence lives in the
// services package.
package workflow

import "errors"

var (
	ErrForbidden         = errors.New("not permitted")
	ErrInvalidState      = errors.New("invalid state for this operation")
	ErrAlreadyDecided    = errors.New("already decided")
	ErrTokenInvalid      = errors.New("invalid approval token")
	ErrTokenExpired      = errors.New("approval token expired")
	ErrSelfApproval      = errors.New("requester cannot approve their own request")
	ErrDuplicateApprover = errors.New("approver has already approved")
)
