package services

import (
	"context"
	"testing"
	"time"

	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/email"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func rateOf(f float64) *float64 { return &f }

func TestBill_GenerateSubmitPay(t *testing.T) {
	e := newEnv(t, "bill_flow")
	ctx := context.Background()
	admin := e.seedUser(t, models.RoleAdmin, models.Capabilities{})
	manager := e.seedUser(t, models.RoleManager, models.Capabilities{CanApproveBills: true, CanManageFinance: true})
	staff := e.seedUser(t, models.RoleStaff, models.Capabilities{})
	finder := e.seedUser(t, models.RoleStaff, models.Capabilities{})

	client, err := e.clients.Create(ctx, admin, ClientInput{
		Name:             "Globex",
		Email:            "ap@globex.test",
		FinderID:         &finder.UserID,
		FinderFeePercent: 10,
	})
	require.NoError(t, err)
	project, err := e.projects.Create(ctx, manager, ProjectInput{Name: "Merger", ClientID: client.ID})
	require.NoError(t, err)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err = e.projects.LogTime(ctx, staff, project.ID, TimesheetInput{Date: day, Hours: 2, Rate: rateOf(100), Billable: true, Description: "Drafting"})
	require.NoError(t, err)
	_, err = e.projects.LogTime(ctx, staff, project.ID, TimesheetInput{Date: day, Hours: 1, Rate: rateOf(100), Billable: false})
	require.NoError(t, err)
	_, err = e.projects.AddCharge(ctx, staff, project.ID, ChargeInput{Description: "Court fee", Amount: 50})
	require.NoError(t, err)

	unbilled, err := e.projects.Unbilled(ctx, staff, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 250.0, unbilled.Amount)
	assert.Equal(t, 1, unbilled.Entries)
	assert.Equal(t, 1, unbilled.Charges)

	bill, err := e.bills.GenerateFromUnbilled(ctx, staff, project.ID, GenerateInput{})
	require.NoError(t, err)
	assert.Equal(t, 250.0, bill.Amount)
	assert.Equal(t, models.BillDraft, bill.Status)
	assert.Len(t, bill.Lines, 2)
	assert.EqualValues(t, 1, e.count(t, db.TimesheetsCollection, bson.M{"bill_id": bill.ID, "billed": true}))
	assert.EqualValues(t, 1, e.count(t, db.ChargesCollection, bson.M{"bill_id": bill.ID, "billed": true}))

	_, err = e.bills.GenerateFromUnbilled(ctx, staff, project.ID, GenerateInput{})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = e.bills.MarkPaid(ctx, manager, bill.ID)
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	bill, err = e.bills.Submit(ctx, staff, bill.ID, SubmitInput{ApproverIDs: []primitive.ObjectID{manager.UserID}})
	require.NoError(t, err)
	assert.True(t, bill.InternalApprovalRequired)

	_, err = e.approvals.Decide(ctx, manager, DecisionInput{BillID: &bill.ID, Status: models.ApprovalApproved})
	require.NoError(t, err)
	bill, err = e.bills.FindByID(ctx, staff, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillApproved, bill.Status)
	assert.True(t, bill.InternalApprovalsComplete)

	_, err = e.bills.MarkPaid(ctx, staff, bill.ID)
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	bill, err = e.bills.MarkPaid(ctx, manager, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillPaid, bill.Status)

	balance, err := e.finance.Balance(ctx, finder, finder.UserID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, balance.FinderFees)
	assert.Equal(t, 25.0, balance.Net)
}

func TestBill_LateRejectionBlocksPaymentSilently(t *testing.T) {
	e := newEnv(t, "bill_late_reject")
	ctx := context.Background()
	admin := e.seedUser(t, models.RoleAdmin, models.Capabilities{})
	manager := e.seedUser(t, models.RoleManager, models.Capabilities{CanApproveBills: true, CanManageFinance: true})
	staff := e.seedUser(t, models.RoleStaff, models.Capabilities{})

	client, err := e.clients.Create(ctx, admin, ClientInput{Name: "Initech", Email: "ap@initech.test"})
	require.NoError(t, err)
	project, err := e.projects.Create(ctx, manager, ProjectInput{Name: "Lease review", ClientID: client.ID})
	require.NoError(t, err)
	_, err = e.projects.AddCharge(ctx, staff, project.ID, ChargeInput{Description: "Filing", Amount: 80})
	require.NoError(t, err)
	bill, err := e.bills.GenerateFromUnbilled(ctx, staff, project.ID, GenerateInput{})
	require.NoError(t, err)

	_, err = e.bills.Submit(ctx, staff, bill.ID, SubmitInput{
		ApproverIDs: []primitive.ObjectID{manager.UserID, admin.UserID},
		Requirement: models.RequireAll,
	})
	require.NoError(t, err)

	_, err = e.approvals.Decide(ctx, manager, DecisionInput{BillID: &bill.ID, Status: models.ApprovalApproved})
	require.NoError(t, err)
	decided := len(e.mailer.byTemplate(email.TemplateApprovalDecided))

	_, err = e.approvals.Decide(ctx, admin, DecisionInput{BillID: &bill.ID, Status: models.ApprovalRejected, Comments: "rate too high"})
	require.NoError(t, err)

	bill, err = e.bills.FindByID(ctx, staff, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillApproved, bill.Status)
	assert.False(t, bill.InternalApprovalsComplete)
	assert.Len(t, e.mailer.byTemplate(email.TemplateApprovalDecided), decided)

	_, err = e.bills.MarkPaid(ctx, manager, bill.ID)
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
}

func TestBill_RejectReturnsToDraftAndCancelReleases(t *testing.T) {
	e := newEnv(t, "bill_reject")
	ctx := context.Background()
	admin := e.seedUser(t, models.RoleAdmin, models.Capabilities{CanManageFinance: true})
	staff := e.seedUser(t, models.RoleStaff, models.Capabilities{})
	client := e.seedClient(t, admin, nil)
	project, err := e.projects.Create(ctx, admin, ProjectInput{Name: "Audit", ClientID: client.ID})
	require.NoError(t, err)
	_, err = e.projects.AddCharge(ctx, staff, project.ID, ChargeInput{Description: "Travel", Amount: 80})
	require.NoError(t, err)

	bill, err := e.bills.GenerateFromUnbilled(ctx, staff, project.ID, GenerateInput{})
	require.NoError(t, err)
	_, err = e.bills.Submit(ctx, staff, bill.ID, SubmitInput{ApproverIDs: []primitive.ObjectID{admin.UserID}})
	require.NoError(t, err)

	_, err = e.approvals.Decide(ctx, admin, DecisionInput{BillID: &bill.ID, Status: models.ApprovalRejected, Comments: "wrong rate"})
	require.NoError(t, err)
	bill, err = e.bills.FindByID(ctx, staff, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillDraft, bill.Status)
	assert.Nil(t, bill.SubmittedAt)

	bill, err = e.bills.Cancel(ctx, staff, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillCancelled, bill.Status)
	assert.EqualValues(t, 1, e.count(t, db.ChargesCollection, bson.M{"project_id": project.ID, "billed": false}))

	_, err = e.bills.Submit(ctx, staff, bill.ID, SubmitInput{})
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
}

func TestFinance_UnchargedProposals(t *testing.T) {
	e := newEnv(t, "finance_uncharged")
	ctx := context.Background()
	admin := e.seedUser(t, models.RoleAdmin, models.Capabilities{CanManageFinance: true})
	client := e.seedClient(t, admin, nil)

	insertApproved := func(ref string, amount float64) primitive.ObjectID {
		p := models.Proposal{Base: models.NewBase(), Reference: ref, Title: ref, ClientID: &client.ID,
			CreatedBy: admin.UserID, Amount: amount, Currency: "USD", Status: models.StatusApproved, CreatedAt: now()}
		_, err := e.db.Collection(db.ProposalsCollection).InsertOne(ctx, p)
		require.NoError(t, err)
		return p.ID
	}
	withoutProject := insertApproved("P-1", 1000)
	withProject := insertApproved("P-2", 1000)

	project, err := e.proposals.ConvertToProject(ctx, admin, withProject, ConvertInput{})
	require.NoError(t, err)
	paid := models.Bill{Base: models.NewBase(), Number: "INV-1", ClientID: client.ID, ProjectID: &project.ID,
		CreatedBy: admin.UserID, Amount: 400, Status: models.BillPaid, DueDate: now(), CreatedAt: now()}
	_, err = e.db.Collection(db.BillsCollection).InsertOne(ctx, paid)
	require.NoError(t, err)

	report, err := e.finance.UnchargedProposals(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 1600.0, report.Total)
	remaining := map[primitive.ObjectID]float64{}
	for _, pc := range report.Proposals {
		remaining[pc.ProposalID] = pc.Remaining
	}
	assert.Equal(t, 1000.0, remaining[withoutProject])
	assert.Equal(t, 600.0, remaining[withProject])
}
