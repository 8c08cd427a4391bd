package workflow

import (
	"fmt"

	"greendrake/chambers/internal/models"
)

var billTransitions = map[models.BillStatus][]models.BillStatus{
	models.BillDraft:     {models.BillSubmitted, models.BillCancelled},
	models.BillSubmitted: {models.BillApproved, models.BillDraft, models.BillCancelled},
	models.BillApproved:  {models.BillPaid, models.BillCancelled, models.BillWrittenOff},
}

// CheckBillTransition reports whether a bill may move from one status to another.
func CheckBillTransition(from, to models.BillStatus) error {
	for _, s := range billTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: bill cannot move from %s to %s", ErrInvalidState, from, to)
}
