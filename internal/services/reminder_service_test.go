package services

import (
	"context"
	"testing"
	"time"

	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/email"
	"greendrake/chambers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func insertBill(t *testing.T, e *env, b models.Bill) primitive.ObjectID {
	t.Helper()
	b.Base = models.NewBase()
	b.Number = "INV-" + b.ID.Hex()
	b.Currency = "USD"
	b.CreatedAt = now()
	_, err := e.db.Collection(db.BillsCollection).InsertOne(context.Background(), b)
	require.NoError(t, err)
	return b.ID
}

func loadBill(t *testing.T, e *env, id primitive.ObjectID) models.Bill {
	t.Helper()
	var b models.Bill
	require.NoError(t, e.db.Collection(db.BillsCollection).FindOne(context.Background(), bson.M{"_id": id}).Decode(&b))
	return b
}

func TestReminders_OutstandingInvoices(t *testing.T) {
	e := newEnv(t, "reminders_outstanding")
	ctx := context.Background()
	admin := e.seedUser(t, models.RoleAdmin, models.Capabilities{})
	creator := e.seedUser(t, models.RoleStaff, models.Capabilities{})
	client := e.seedClient(t, admin, nil)

	ts := now()
	ago := func(days int) *time.Time { v := ts.AddDate(0, 0, -days); return &v }

	fresh := insertBill(t, e, models.Bill{ClientID: client.ID, CreatedBy: creator.UserID, Amount: 100,
		Status: models.BillSubmitted, DueDate: *ago(1)})
	due := insertBill(t, e, models.Bill{ClientID: client.ID, CreatedBy: creator.UserID, Amount: 200,
		Status: models.BillApproved, DueDate: *ago(20), BecameOutstandingAt: ago(15), LastReminderSentAt: ago(8), ReminderCount: 1})
	recent := insertBill(t, e, models.Bill{ClientID: client.ID, CreatedBy: creator.UserID, Amount: 300,
		Status: models.BillSubmitted, DueDate: *ago(20), BecameOutstandingAt: ago(10), LastReminderSentAt: ago(3), ReminderCount: 2})
	insertBill(t, e, models.Bill{ClientID: client.ID, CreatedBy: creator.UserID, Amount: 50,
		Status: models.BillPaid, DueDate: *ago(30)})
	insertBill(t, e, models.Bill{ClientID: client.ID, CreatedBy: creator.UserID, Amount: 60,
		Status: models.BillDraft, DueDate: *ago(30)})
	insertBill(t, e, models.Bill{ClientID: client.ID, CreatedBy: creator.UserID, Amount: 70,
		Status: models.BillSubmitted, DueDate: ts.AddDate(0, 0, 5)})

	res, err := e.reminders.CheckOutstandingInvoices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 2, res.Notified)
	assert.Equal(t, 1, res.Skipped)

	b := loadBill(t, e, fresh)
	assert.Equal(t, 1, b.ReminderCount)
	require.NotNil(t, b.BecameOutstandingAt)
	assert.NotNil(t, b.LastReminderSentAt)

	b = loadBill(t, e, due)
	assert.Equal(t, 2, b.ReminderCount)

	b = loadBill(t, e, recent)
	assert.Equal(t, 2, b.ReminderCount)

	assert.EqualValues(t, 1, e.count(t, db.NotificationsCollection, bson.M{"subject.id": fresh, "event": models.EventInvoiceOutstanding}))
	assert.EqualValues(t, 1, e.count(t, db.NotificationsCollection, bson.M{"subject.id": due, "event": models.EventInvoiceReminder}))
	assert.EqualValues(t, 0, e.count(t, db.NotificationsCollection, bson.M{"subject.id": recent}))
	assert.Len(t, e.mailer.byTemplate(email.TemplateInvoiceReminder), 1)

	res, err = e.reminders.CheckOutstandingInvoices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Notified)
}

func TestReminders_Installments(t *testing.T) {
	e := newEnv(t, "reminders_installments")
	ctx := context.Background()
	admin := e.seedUser(t, models.RoleAdmin, models.Capabilities{})
	manager := e.seedUser(t, models.RoleManager, models.Capabilities{})
	creator := e.seedUser(t, models.RoleStaff, models.Capabilities{})
	client := e.seedClient(t, admin, &manager.UserID)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	soon, later, billed := today.AddDate(0, 0, 3), today.AddDate(0, 0, 40), today.AddDate(0, 0, 5)

	prop := models.Proposal{
		Base:      models.NewBase(),
		Reference: "P-INST",
		Title:     "Retainer",
		ClientID:  &client.ID,
		CreatedBy: creator.UserID,
		Amount:    900,
		Currency:  "USD",
		Status:    models.StatusApproved,
		PaymentTerm: &models.PaymentTerm{
			InstallmentDates: []time.Time{later, soon, billed},
		},
		CreatedAt: now(),
	}
	_, err := e.db.Collection(db.ProposalsCollection).InsertOne(ctx, prop)
	require.NoError(t, err)
	insertBill(t, e, models.Bill{ClientID: client.ID, ProposalID: &prop.ID, CreatedBy: creator.UserID,
		Amount: 300, Status: models.BillSubmitted, DueDate: billed, InstallmentDate: &billed})

	res, err := e.reminders.CheckInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 2, res.Notified)
	assert.EqualValues(t, 2, e.count(t, db.NotificationsCollection, bson.M{"subject.id": prop.ID, "event": models.EventInstallmentDue}))
	assert.EqualValues(t, 1, e.count(t, db.NotificationsCollection, bson.M{"user_id": manager.UserID}))
	sent := e.mailer.byTemplate(email.TemplateInstallmentDue)
	require.Len(t, sent, 2)
	assert.Equal(t, "300.00", sent[0].Data["Amount"])

	res, err = e.reminders.CheckInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Notified)
	assert.Equal(t, 2, res.Skipped)
	assert.EqualValues(t, 2, e.count(t, db.NotificationsCollection, bson.M{"subject.id": prop.ID}))

	plan, err := e.proposals.Installments(ctx, creator, prop.ID)
	require.NoError(t, err)
	require.Len(t, plan.Installments, 3)
	assert.True(t, plan.Installments[1].Invoiced)
	assert.False(t, plan.Installments[0].Invoiced)
}
