package finance

import (
	"errors"

	"greendrake/chambers/internal/models"

	"github.com/shopspring/decimal"
)

var ErrInvalidTerm = errors.New("invalid payment term")

// UpfrontDeduction returns the upfront part of base, either a percentage of
// it or a fixed amount.
func UpfrontDeduction(base float64, term *models.PaymentTerm) (float64, error) {
	d, err := upfront(dec(base), term)
	if err != nil {
		return 0, err
	}
	return money(d), nil
}

func upfront(base decimal.Decimal, term *models.PaymentTerm) (decimal.Decimal, error) {
	if term == nil || term.UpfrontType == "" || term.UpfrontValue == 0 {
		return decimal.Zero, nil
	}
	v := dec(term.UpfrontValue)
	if v.IsNegative() {
		return decimal.Zero, ErrInvalidTerm
	}
	var d decimal.Decimal
	switch term.UpfrontType {
	case models.UpfrontPercent:
		if v.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, ErrInvalidTerm
		}
		d = base.Mul(v).Div(decimal.NewFromInt(100))
	case models.UpfrontFixed:
		d = v
	default:
		return decimal.Zero, ErrInvalidTerm
	}
	if d.GreaterThan(base) {
		return decimal.Zero, ErrInvalidTerm
	}
	return d, nil
}

// InstallmentAmount is (base − upfront) / count, rounded to cents half away
// from zero. A base of 1200 with 10% upfront over 3 installments gives 360.
func InstallmentAmount(base float64, term *models.PaymentTerm, count int) (float64, error) {
	if count <= 0 {
		return 0, ErrInvalidTerm
	}
	d, err := upfront(dec(base), term)
	if err != nil {
		return 0, err
	}
	return money(dec(base).Sub(d).Div(decimal.NewFromInt(int64(count)))), nil
}

// InstallmentSchedule splits the remainder after the upfront part into
// count amounts that differ by at most one cent. Leftover cents go to the
// earliest installments, so the schedule always sums to base − upfront.
func InstallmentSchedule(base float64, term *models.PaymentTerm, count int) ([]float64, error) {
	if count <= 0 {
		return nil, ErrInvalidTerm
	}
	d, err := upfront(dec(base), term)
	if err != nil {
		return nil, err
	}
	cents := dec(base).Sub(d).Shift(CentPlaces).Round(0).IntPart()
	share, extra := cents/int64(count), cents%int64(count)
	out := make([]float64, count)
	for i := range out {
		c := share
		if int64(i) < extra {
			c++
		}
		out[i] = money(decimal.New(c, -CentPlaces))
	}
	return out, nil
}
