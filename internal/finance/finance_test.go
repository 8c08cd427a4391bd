package finance

import (
	"testing"
	"time"

	"greendrake/chambers/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func rate(f float64) *float64 { return &f }

func TestUnbilled(t *testing.T) {
	entries := []models.TimesheetEntry{
		{Hours: 2, Rate: rate(150), Billable: true},
		{Hours: 1.5, Rate: rate(100), Billable: true},
		{Hours: 4, Rate: rate(150), Billable: true, Billed: true},
		{Hours: 3, Rate: rate(150), Billable: false},
		{Hours: 5, Billable: true},
	}
	charges := []models.ProjectCharge{
		{Amount: 25.5},
		{Amount: 100, Billed: true},
	}

	assert.Equal(t, 475.5, Unbilled(entries, charges))
	assert.Equal(t, 0.0, Unbilled(nil, nil))
}

func TestBillLines(t *testing.T) {
	entries := []models.TimesheetEntry{
		{Base: models.NewBase(), Hours: 2, Rate: rate(150), Billable: true, Description: "drafting"},
		{Base: models.NewBase(), Hours: 1, Rate: rate(150), Billable: true, Billed: true},
	}
	charges := []models.ProjectCharge{{Base: models.NewBase(), Amount: 40, Description: "filing fee"}}

	lines := BillLines(entries, charges)
	require.Len(t, lines, 2)
	assert.Equal(t, models.LineTime, lines[0].Kind)
	assert.Equal(t, 300.0, lines[0].Amount)
	assert.Equal(t, entries[0].ID, *lines[0].SourceID)
	assert.Equal(t, models.LineCharge, lines[1].Kind)
	assert.Equal(t, 340.0, SumLines(lines))
}

func TestSumItems(t *testing.T) {
	items := []models.ProposalItem{
		{Quantity: 3, UnitPrice: 0.1},
		{Quantity: 1, UnitPrice: 999.99},
	}
	assert.Equal(t, 1000.29, SumItems(items))
	assert.Equal(t, 0.3, items[0].Amount)
}

func TestIsOutstanding(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, IsOutstanding(&models.Bill{Status: models.BillApproved, DueDate: past}, now))
	assert.False(t, IsOutstanding(&models.Bill{Status: models.BillPaid, DueDate: past}, now))
	assert.False(t, IsOutstanding(&models.Bill{Status: models.BillApproved, DueDate: future}, now))
	assert.False(t, IsOutstanding(&models.Bill{Status: models.BillApproved, DueDate: now}, now))
}

func TestIsCollectible(t *testing.T) {
	deleted := time.Now()
	assert.True(t, IsCollectible(&models.Bill{Status: models.BillSubmitted}))
	assert.False(t, IsCollectible(&models.Bill{Status: models.BillDraft}))
	assert.False(t, IsCollectible(&models.Bill{Status: models.BillWrittenOff}))
	assert.False(t, IsCollectible(&models.Bill{Status: models.BillApproved, SoftDelete: models.SoftDelete{DeletedAt: &deleted}}))
}

func TestInstallmentAmount(t *testing.T) {
	term := &models.PaymentTerm{UpfrontType: models.UpfrontPercent, UpfrontValue: 10}
	got, err := InstallmentAmount(1200, term, 3)
	require.NoError(t, err)
	assert.Equal(t, 360.0, got)

	fixed := &models.PaymentTerm{UpfrontType: models.UpfrontFixed, UpfrontValue: 200}
	got, err = InstallmentAmount(1200, fixed, 4)
	require.NoError(t, err)
	assert.Equal(t, 250.0, got)

	got, err = InstallmentAmount(1000, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 333.33, got)

	_, err = InstallmentAmount(1000, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidTerm)

	_, err = InstallmentAmount(100, &models.PaymentTerm{UpfrontType: models.UpfrontFixed, UpfrontValue: 150}, 2)
	assert.ErrorIs(t, err, ErrInvalidTerm)

	_, err = InstallmentAmount(100, &models.PaymentTerm{UpfrontType: models.UpfrontPercent, UpfrontValue: 120}, 2)
	assert.ErrorIs(t, err, ErrInvalidTerm)
}

func TestUpfrontDeduction(t *testing.T) {
	got, err := UpfrontDeduction(1200, &models.PaymentTerm{UpfrontType: models.UpfrontPercent, UpfrontValue: 10})
	require.NoError(t, err)
	assert.Equal(t, 120.0, got)
}

func TestInstallmentSchedule(t *testing.T) {
	tests := []struct {
		name  string
		base  float64
		term  *models.PaymentTerm
		count int
		first float64
		last  float64
	}{
		{"even split", 1200, &models.PaymentTerm{UpfrontType: models.UpfrontPercent, UpfrontValue: 10}, 3, 360, 360},
		{"one leftover cent", 1000, nil, 3, 333.34, 333.33},
		{"share rounds up", 100.50, nil, 60, 1.68, 1.67},
		{"fewer cents than installments", 0.5, &models.PaymentTerm{}, 100, 0.01, 0},
		{"fixed upfront", 1000, &models.PaymentTerm{UpfrontType: models.UpfrontFixed, UpfrontValue: 0.01}, 7, 142.86, 142.85},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InstallmentSchedule(tt.base, tt.term, tt.count)
			require.NoError(t, err)
			require.Len(t, got, tt.count)
			assert.Equal(t, tt.first, got[0])
			assert.Equal(t, tt.last, got[tt.count-1])

			want, err := UpfrontDeduction(tt.base, tt.term)
			require.NoError(t, err)
			sum := decimal.Zero
			for _, a := range got {
				assert.GreaterOrEqual(t, a, 0.0)
				assert.LessOrEqual(t, a-got[tt.count-1], 0.0100001)
				sum = sum.Add(decimal.NewFromFloat(a))
			}
			assert.True(t, sum.Equal(decimal.NewFromFloat(tt.base).Sub(decimal.NewFromFloat(want))), "sum %s", sum)
		})
	}
}

func TestClosedProposalsNotCharged(t *testing.T) {
	noProjects := models.Proposal{Base: models.NewBase(), Status: models.StatusApproved, Amount: 500}
	partlyBilled := models.Proposal{Base: models.NewBase(), Status: models.StatusApproved, Amount: 1000}
	overBilled := models.Proposal{Base: models.NewBase(), Status: models.StatusApproved, Amount: 200}
	draft := models.Proposal{Base: models.NewBase(), Status: models.StatusDraft, Amount: 9999}

	p1, p2 := primitive.NewObjectID(), primitive.NewObjectID()
	projects := map[primitive.ObjectID][]primitive.ObjectID{
		partlyBilled.ID: {p1},
		overBilled.ID:   {p2},
	}
	bills := map[primitive.ObjectID][]models.Bill{
		p1: {
			{Status: models.BillPaid, Amount: 300},
			{Status: models.BillSubmitted, Amount: 100},
			{Status: models.BillDraft, Amount: 400},
			{Status: models.BillCancelled, Amount: 400},
		},
		p2: {{Status: models.BillApproved, Amount: 250}},
	}

	report := ClosedProposalsNotCharged([]models.Proposal{noProjects, partlyBilled, overBilled, draft}, projects, bills)
	assert.Equal(t, 1100.0, report.Total)
	require.Len(t, report.Proposals, 2)
	assert.Equal(t, 600.0, report.Proposals[1].Remaining)
	assert.Equal(t, 400.0, report.Proposals[1].Invoiced)
}

func TestFinderFee(t *testing.T) {
	assert.Equal(t, 125.0, FinderFee(2500, 5))
	assert.Equal(t, 0.0, FinderFee(2500, 0))
}

func TestStaffBalance(t *testing.T) {
	entries := []models.FinancialEntry{
		{Kind: models.EntryCompensation, Amount: 3000},
		{Kind: models.EntryFringeBenefit, Amount: 200},
		{Kind: models.EntryFinderFee, Amount: 125},
		{Kind: models.EntryAdvance, Amount: 500},
	}
	b := StaffBalance(entries)
	assert.Equal(t, 3000.0, b.Compensation)
	assert.Equal(t, 500.0, b.Advances)
	assert.Equal(t, 2825.0, b.Net)
}
