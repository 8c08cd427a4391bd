package finance

import (
	"greendrake/chambers/internal/models"

	"github.com/shopspring/decimal"
)

// FinderFee is the referral commission on a paid amount.
func FinderFee(paid float64, percent float64) float64 {
	if percent <= 0 {
		return 0
	}
	return money(dec(paid).Mul(dec(percent)).Div(decimal.NewFromInt(100)))
}

// Balance summarizes a staff member's ledger.
type Balance struct {
	Compensation   float64 `json:"compensation"`
	FringeBenefits float64 `json:"fringe_benefits"`
	FinderFees     float64 `json:"finder_fees"`
	Advances       float64 `json:"advances"`
	Net            float64 `json:"net"`
}

// StaffBalance totals ledger entries by kind. Advances are owed back and
// reduce the net balance.
func StaffBalance(entries []models.FinancialEntry) Balance {
	sums := map[models.EntryKind]decimal.Decimal{}
	for _, e := range entries {
		if e.IsDeleted() {
			continue
		}
		sums[e.Kind] = sums[e.Kind].Add(dec(e.Amount))
	}
	net := sums[models.EntryCompensation].
		Add(sums[models.EntryFringeBenefit]).
		Add(sums[models.EntryFinderFee]).
		Sub(sums[models.EntryAdvance])
	return Balance{
		Compensation:   money(sums[models.EntryCompensation]),
		FringeBenefits: money(sums[models.EntryFringeBenefit]),
		FinderFees:     money(sums[models.EntryFinderFee]),
		Advances:       money(sums[models.EntryAdvance]),
		Net:            money(net),
	}
}
