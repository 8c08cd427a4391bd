package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UsersCollection            = "users"
	ClientsCollection          = "clients"
	LeadsCollection            = "leads"
	ProposalsCollection        = "proposals"
	BillsCollection            = "bills"
	ApprovalsCollection        = "approvals"
	ProjectsCollection         = "projects"
	TimesheetsCollection       = "timesheet_entries"
	ChargesCollection          = "project_charges"
	NotificationsCollection    = "notifications"
	TodosCollection            = "todos"
	FinancialEntriesCollection = "financial_entries"
	UserDeletionsCollection    = "user_deletion_requests"
)

// EnsureIndexes creates the indexes the services rely on for uniqueness and
// for the scan queries.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		BillsCollection: {
			{Keys: bson.D{{Key: "number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
			{Keys: bson.D{{Key: "project_id", Value: 1}}},
			{Keys: bson.D{{Key: "proposal_id", Value: 1}, {Key: "installment_date", Value: 1}}},
		},
		ProposalsCollection: {
			{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_by", Value: 1}}},
		},
		ApprovalsCollection: {
			{Keys: bson.D{{Key: "proposal_id", Value: 1}, {Key: "approver_id", Value: 1}}},
			{Keys: bson.D{{Key: "bill_id", Value: 1}, {Key: "approver_id", Value: 1}}},
		},
		TimesheetsCollection: {
			{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "billed", Value: 1}}},
		},
		ChargesCollection: {
			{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "billed", Value: 1}}},
		},
		NotificationsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
