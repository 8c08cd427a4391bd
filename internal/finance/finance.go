// Package finance computes billing aggregates over rows already fetched from
// the store. Amounts are summed with decimal arithmetic and rounded to cents
// on the way out.
package finance

import (
	"time"

	"greendrake/chambers/internal/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CentPlaces is the precision money values are rounded to.
const CentPlaces = 2

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(CentPlaces).Float64()
	return f
}

// Round rounds a float amount to cents, half away from zero.
func Round(f float64) float64 { return money(dec(f)) }

// Unbilled is hours × rate over billable, unbilled timesheet entries plus the
// amount of every unbilled charge. A missing rate counts as zero.
func Unbilled(entries []models.TimesheetEntry, charges []models.ProjectCharge) float64 {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(entryAmount(e))
	}
	for _, c := range charges {
		if !c.Billed {
			total = total.Add(dec(c.Amount))
		}
	}
	return money(total)
}

func entryAmount(e models.TimesheetEntry) decimal.Decimal {
	if !e.Billable || e.Billed || e.Rate == nil {
		return decimal.Zero
	}
	return dec(e.Hours).Mul(dec(*e.Rate))
}

// BillLines turns unbilled rows into bill lines, skipping rows that would
// contribute nothing.
func BillLines(entries []models.TimesheetEntry, charges []models.ProjectCharge) []models.BillLine {
	var lines []models.BillLine
	for _, e := range entries {
		if !e.Billable || e.Billed {
			continue
		}
		rate := 0.0
		if e.Rate != nil {
			rate = *e.Rate
		}
		id := e.ID
		lines = append(lines, models.BillLine{
			Kind:        models.LineTime,
			SourceID:    &id,
			Description: e.Description,
			Quantity:    e.Hours,
			Rate:        rate,
			Amount:      money(entryAmount(e)),
		})
	}
	for _, c := range charges {
		if c.Billed {
			continue
		}
		id := c.ID
		lines = append(lines, models.BillLine{
			Kind:        models.LineCharge,
			SourceID:    &id,
			Description: c.Description,
			Quantity:    1,
			Rate:        c.Amount,
			Amount:      Round(c.Amount),
		})
	}
	return lines
}

// SumLines totals bill lines.
func SumLines(lines []models.BillLine) float64 {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(dec(l.Amount))
	}
	return money(total)
}

// SumItems totals proposal items, filling in each item's amount from
// quantity × unit price.
func SumItems(items []models.ProposalItem) float64 {
	total := decimal.Zero
	for i := range items {
		amt := dec(items[i].Quantity).Mul(dec(items[i].UnitPrice))
		items[i].Amount = money(amt)
		total = total.Add(amt)
	}
	return money(total)
}

// IsOutstanding reports whether a bill is unpaid past its due date.
func IsOutstanding(b *models.Bill, now time.Time) bool {
	return b.Status != models.BillPaid && b.DueDate.Before(now)
}

// IsCollectible reports whether a bill is in a state where payment is being
// chased. Drafts, cancellations and write-offs are not.
func IsCollectible(b *models.Bill) bool {
	return !b.IsDeleted() && (b.Status == models.BillSubmitted || b.Status == models.BillApproved)
}

// invoicedStatuses are bill states that count against a proposal amount.
var invoicedStatuses = map[models.BillStatus]bool{
	models.BillSubmitted: true,
	models.BillApproved:  true,
	models.BillPaid:      true,
}

// CountsAsInvoiced reports whether a bill's amount is charged to the client.
func CountsAsInvoiced(b *models.Bill) bool {
	return !b.IsDeleted() && invoicedStatuses[b.Status]
}

// ProposalCharge is the uncharged remainder of one approved proposal.
type ProposalCharge struct {
	ProposalID primitive.ObjectID `json:"proposal_id"`
	Reference  string             `json:"reference"`
	Amount     float64            `json:"amount"`
	Invoiced   float64            `json:"invoiced"`
	Remaining  float64            `json:"remaining"`
}

// UnchargedReport is the result of ClosedProposalsNotCharged.
type UnchargedReport struct {
	Total     float64          `json:"total"`
	Proposals []ProposalCharge `json:"proposals"`
}

// ClosedProposalsNotCharged sums what approved proposals have not yet
// invoiced. A proposal with no projects counts in full; otherwise the amount
// invoiced on its projects is subtracted and only a positive remainder is
// added. projectsByProposal maps proposal id to its project ids and
// billsByProject maps project id to its bills.
func ClosedProposalsNotCharged(
	proposals []models.Proposal,
	projectsByProposal map[primitive.ObjectID][]primitive.ObjectID,
	billsByProject map[primitive.ObjectID][]models.Bill,
) UnchargedReport {
	report := UnchargedReport{Proposals: []ProposalCharge{}}
	total := decimal.Zero
	for _, p := range proposals {
		if p.Status != models.StatusApproved || p.IsDeleted() {
			continue
		}
		amount := dec(p.Amount)
		invoiced := decimal.Zero
		for _, projectID := range projectsByProposal[p.ID] {
			for i := range billsByProject[projectID] {
				b := &billsByProject[projectID][i]
				if CountsAsInvoiced(b) {
					invoiced = invoiced.Add(dec(b.Amount))
				}
			}
		}
		remaining := amount.Sub(invoiced)
		if !remaining.IsPositive() {
			continue
		}
		total = total.Add(remaining)
		report.Proposals = append(report.Proposals, ProposalCharge{
			ProposalID: p.ID,
			Reference:  p.Reference,
			Amount:     money(amount),
			Invoiced:   money(invoiced),
			Remaining:  money(remaining),
		})
	}
	report.Total = money(total)
	return report
}
