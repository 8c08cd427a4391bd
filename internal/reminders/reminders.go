// Package reminders decides when outstanding invoices and upcoming
// installments should produce notifications.
package reminders

import (
	"sort"
	"time"

	"greendrake/chambers/internal/models"
)

// Action is what the outstanding-invoice scan should do with a bill.
type Action int

const (
	ActionNone Action = iota
	ActionFirstNotice
	ActionReminder
)

func (a Action) String() string {
	switch a {
	case ActionFirstNotice:
		return "first_notice"
	case ActionReminder:
		return "reminder"
	}
	return "none"
}

// Decide returns the reminder action for an outstanding bill. A bill seen
// for the first time gets a first notice; afterwards at most one reminder
// is sent per interval.
func Decide(b *models.Bill, now time.Time, interval time.Duration) Action {
	if b.BecameOutstandingAt == nil || b.LastReminderSentAt == nil {
		return ActionFirstNotice
	}
	if now.Sub(*b.LastReminderSentAt) >= interval {
		return ActionReminder
	}
	return ActionNone
}

// Apply stamps the reminder fields for the given action.
func Apply(b *models.Bill, a Action, now time.Time) {
	switch a {
	case ActionFirstNotice:
		t := now
		b.BecameOutstandingAt = &t
		b.LastReminderSentAt = &t
		b.ReminderCount = 1
	case ActionReminder:
		t := now
		b.LastReminderSentAt = &t
		b.ReminderCount++
	}
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day in UTC.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Step advances t by n periods of f.
func Step(t time.Time, f models.Frequency, n int) (time.Time, bool) {
	switch f {
	case models.FrequencyWeekly:
		return t.AddDate(0, 0, 7*n), true
	case models.FrequencyBiweekly:
		return t.AddDate(0, 0, 14*n), true
	case models.FrequencyMonthly:
		return t.AddDate(0, n, 0), true
	case models.FrequencyQuarterly:
		return t.AddDate(0, 3*n, 0), true
	}
	return t, false
}

// DueDates derives the installment maturity dates of a payment term. An
// explicit date list wins; otherwise dates step from StartDate by Frequency;
// otherwise milestone due dates are used when the term asks for them. The
// first installment falls one period after the start date since the
// upfront part is due at signing. fallbackStart is used when the term has
// no start date (typically the proposal's approval date).
func DueDates(term *models.PaymentTerm, milestones []models.Milestone, fallbackStart time.Time) []time.Time {
	if term == nil {
		return nil
	}
	if len(term.InstallmentDates) > 0 {
		out := append([]time.Time(nil), term.InstallmentDates...)
		sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
		return out
	}
	if term.Frequency != "" && term.InstallmentCount > 0 {
		start := fallbackStart
		if term.StartDate != nil {
			start = *term.StartDate
		}
		out := make([]time.Time, 0, term.InstallmentCount)
		for i := 1; i <= term.InstallmentCount; i++ {
			d, ok := Step(start, term.Frequency, i)
			if !ok {
				return nil
			}
			out = append(out, d)
		}
		return out
	}
	if term.UseMilestones {
		out := make([]time.Time, 0, len(milestones))
		for _, m := range milestones {
			if !m.DueDate.IsZero() {
				out = append(out, m.DueDate)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
		if term.InstallmentCount > 0 && len(out) > term.InstallmentCount {
			out = out[:term.InstallmentCount]
		}
		return out
	}
	return nil
}

// WithinWindow reports whether date falls in [today, today+days] by
// calendar day.
func WithinWindow(date, now time.Time, days int) bool {
	today := StartOfDay(now.UTC())
	d := StartOfDay(date.UTC())
	return !d.Before(today) && !d.After(today.AddDate(0, 0, days))
}

// Upcoming returns the due dates inside the look-ahead window that have not
// been invoiced yet.
func Upcoming(dates []time.Time, invoiced []time.Time, now time.Time, days int) []time.Time {
	var out []time.Time
	for _, d := range dates {
		if !WithinWindow(d, now, days) {
			continue
		}
		billed := false
		for _, inv := range invoiced {
			if SameDay(d, inv) {
				billed = true
				break
			}
		}
		if !billed {
			out = append(out, d)
		}
	}
	return out
}
