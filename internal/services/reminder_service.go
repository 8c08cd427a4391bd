package services

import (
	"context"
	"fmt"
	"time"

	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/email"
	"greendrake/chambers/internal/finance"
	"greendrake/chambers/internal/metrics"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/reminders"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	ScanOutstanding  = "outstanding_invoices"
	ScanInstallments = "installments"
)

// ScanResult summarizes one reminder scan.
type ScanResult struct {
	Scan      string `json:"scan"`
	Checked   int    `json:"checked"`
	Notified  int    `json:"notified"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	StartedAt string `json:"started_at"`
}

type IReminderService interface {
	// CheckOutstandingInvoices notifies about unpaid bills past their due
	// date, at most once per reminder interval. Any error aborts the scan.
	CheckOutstandingInvoices(ctx context.Context) (*ScanResult, error)
	// CheckInstallments notifies about installments falling due within the
	// look-ahead window. Per-recipient failures are logged and skipped.
	CheckInstallments(ctx context.Context) (*ScanResult, error)
}

type reminderService struct {
	db            *mongo.Database
	cfg           *config.Config
	userSvc       IUserService
	notifications INotificationService
	log           zerolog.Logger
	clock         func() time.Time
}

func NewReminderService(db *mongo.Database, cfg *config.Config, userSvc IUserService, notifications INotificationService, log zerolog.Logger) IReminderService {
	return &reminderService{
		db:            db,
		cfg:           cfg,
		userSvc:       userSvc,
		notifications: notifications,
		log:           log.With().Str("component", "reminders").Logger(),
		clock:         now,
	}
}

// recipients resolves the creator and, when set, the client manager.
func (s *reminderService) recipients(ctx context.Context, creatorID primitive.ObjectID, clientID *primitive.ObjectID) ([]models.User, error) {
	ids := []*primitive.ObjectID{&creatorID}
	if clientID != nil {
		var client models.Client
		err := s.db.Collection(db.ClientsCollection).FindOne(ctx, bson.M{"_id": *clientID}).Decode(&client)
		if err != nil && !errIsNotFound(err) {
			return nil, fmt.Errorf("error finding client %s: %w", clientID.Hex(), err)
		}
		ids = append(ids, client.ManagerID)
	}
	return s.userSvc.FindByIDs(ctx, uniqueIDs(ids...))
}

func (s *reminderService) CheckOutstandingInvoices(ctx context.Context) (res *ScanResult, err error) {
	started := s.clock()
	defer func() { metrics.ObserveScan(ScanOutstanding, err, time.Since(started)) }()

	res = &ScanResult{Scan: ScanOutstanding, StartedAt: started.Format(time.RFC3339)}
	bills, err := findOutstanding(ctx, s.db, started)
	if err != nil {
		return nil, err
	}
	res.Checked = len(bills)

	for i := range bills {
		b := &bills[i]
		action := reminders.Decide(b, started, s.cfg.ReminderInterval)
		if action == reminders.ActionNone {
			res.Skipped++
			continue
		}
		if err := s.stampReminder(ctx, b, action, started); err != nil {
			return nil, err
		}
		if err := s.notifyOutstanding(ctx, b, action); err != nil {
			return nil, err
		}
		res.Notified++
		metrics.AddNotifications(ScanOutstanding, action.String(), 1)
	}
	s.log.Info().Int("checked", res.Checked).Int("notified", res.Notified).Msg("outstanding invoice scan finished")
	return res, nil
}

// stampReminder persists the reminder fields. The filter on the previous
// reminder timestamp keeps overlapping scans from reminding twice.
func (s *reminderService) stampReminder(ctx context.Context, b *models.Bill, action reminders.Action, at time.Time) error {
	filter := bson.M{"_id": b.ID, "last_reminder_sent_at": b.LastReminderSentAt}
	if b.LastReminderSentAt == nil {
		filter["last_reminder_sent_at"] = nil
	}
	reminders.Apply(b, action, at)
	set := bson.M{
		"last_reminder_sent_at": b.LastReminderSentAt,
		"reminder_count":        b.ReminderCount,
	}
	if action == reminders.ActionFirstNotice {
		set["became_outstanding_at"] = b.BecameOutstandingAt
	}
	res, err := s.db.Collection(db.BillsCollection).UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("error stamping reminder on bill %s: %w", b.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("bill %s was reminded concurrently", b.ID.Hex())
	}
	return nil
}

func (s *reminderService) notifyOutstanding(ctx context.Context, b *models.Bill, action reminders.Action) error {
	users, err := s.recipients(ctx, b.CreatedBy, &b.ClientID)
	if err != nil {
		return err
	}
	n := Notice{
		Recipients: users,
		Subject:    models.Subject{Kind: models.SubjectInvoice, ID: b.ID},
		DueDate:    &b.DueDate,
		Data: map[string]interface{}{
			"Number":           b.Number,
			"Amount":           fmt.Sprintf("%.2f", b.Amount),
			"Currency":         b.Currency,
			"DueDate":          formatDate(b.DueDate),
			"ReminderCount":    b.ReminderCount,
			"OutstandingSince": formatDate(*b.BecameOutstandingAt),
		},
	}
	if action == reminders.ActionFirstNotice {
		n.Event = models.EventInvoiceOutstanding
		n.Template = email.TemplateInvoiceOutstanding
		n.Title = "Invoice outstanding"
		n.Message = fmt.Sprintf("Invoice %s is past due", b.Number)
	} else {
		n.Event = models.EventInvoiceReminder
		n.Template = email.TemplateInvoiceReminder
		n.Title = "Invoice still outstanding"
		n.Message = fmt.Sprintf("Invoice %s is still unpaid (reminder %d)", b.Number, b.ReminderCount)
	}
	return s.notifications.Notify(ctx, n)
}

func (s *reminderService) CheckInstallments(ctx context.Context) (res *ScanResult, err error) {
	started := s.clock()
	defer func() { metrics.ObserveScan(ScanInstallments, err, time.Since(started)) }()

	res = &ScanResult{Scan: ScanInstallments, StartedAt: started.Format(time.RFC3339)}
	cursor, err := s.db.Collection(db.ProposalsCollection).Find(ctx, notDeleted(bson.M{
		"status": models.StatusApproved,
		"$or": bson.A{
			bson.M{"payment_term.installment_count": bson.M{"$gt": 0}},
			bson.M{"payment_term.installment_dates.0": bson.M{"$exists": true}},
		},
	}))
	if err != nil {
		return nil, fmt.Errorf("error loading proposals with installments: %w", err)
	}
	var proposals []models.Proposal
	if err := cursor.All(ctx, &proposals); err != nil {
		return nil, fmt.Errorf("error decoding proposals: %w", err)
	}

	for i := range proposals {
		prop := &proposals[i]
		res.Checked++
		if err := s.checkProposal(ctx, prop, started, res); err != nil {
			return nil, err
		}
	}
	s.log.Info().Int("checked", res.Checked).Int("notified", res.Notified).Int("failed", res.Failed).Msg("installment scan finished")
	return res, nil
}

func (s *reminderService) checkProposal(ctx context.Context, prop *models.Proposal, at time.Time, res *ScanResult) error {
	dates, err := installmentDates(ctx, s.db, prop)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		return nil
	}
	invoiced, err := invoicedInstallments(ctx, s.db, prop.ID)
	if err != nil {
		return err
	}
	upcoming := reminders.Upcoming(dates, invoiced, at, s.cfg.InstallmentLookaheadDay)
	if len(upcoming) == 0 {
		return nil
	}
	amounts, err := finance.InstallmentSchedule(prop.Amount, prop.PaymentTerm, len(dates))
	if err != nil {
		s.log.Warn().Err(err).Str("proposal_id", prop.ID.Hex()).Msg("skipping proposal with invalid payment term")
		res.Skipped++
		return nil
	}
	users, err := s.recipients(ctx, prop.CreatedBy, prop.ClientID)
	if err != nil {
		return err
	}

	subject := models.Subject{Kind: models.SubjectInstallment, ID: prop.ID}
	for _, due := range upcoming {
		due := reminders.StartOfDay(due.UTC())
		amount := amounts[indexOfDay(dates, due)]
		for _, u := range users {
			exists, err := s.notifications.Exists(ctx, u.ID, subject, models.EventInstallmentDue, &due)
			if err != nil {
				s.log.Error().Err(err).Str("user_id", u.ID.Hex()).Msg("failed to check existing installment notice")
				res.Failed++
				continue
			}
			if exists {
				res.Skipped++
				continue
			}
			err = s.notifications.Notify(ctx, Notice{
				Recipients: []models.User{u},
				Subject:    subject,
				Event:      models.EventInstallmentDue,
				Title:      "Installment due soon",
				Message:    fmt.Sprintf("Installment of %.2f %s for %s is due on %s", amount, prop.Currency, prop.Reference, formatDate(due)),
				DueDate:    &due,
				Template:   email.TemplateInstallmentDue,
				Data: map[string]interface{}{
					"Reference": prop.Reference,
					"Title":     prop.Title,
					"Amount":    fmt.Sprintf("%.2f", amount),
					"Currency":  prop.Currency,
					"DueDate":   formatDate(due),
				},
			})
			if err != nil {
				s.log.Error().Err(err).Str("user_id", u.ID.Hex()).Str("proposal_id", prop.ID.Hex()).Msg("failed to notify installment")
				res.Failed++
				continue
			}
			res.Notified++
			metrics.AddNotifications(ScanInstallments, "due", 1)
		}
	}
	return nil
}

func indexOfDay(dates []time.Time, day time.Time) int {
	for i, d := range dates {
		if reminders.SameDay(d, day) {
			return i
		}
	}
	return len(dates) - 1
}
