package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/email"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/utils"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type sentEmail struct {
	Template email.Template
	To       []string
	Data     map[string]interface{}
}

// recordingMailer captures queued emails instead of sending them.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (m *recordingMailer) Enqueue(_ context.Context, tmpl email.Template, to []string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{Template: tmpl, To: to, Data: data})
	return nil
}

func (m *recordingMailer) byTemplate(tmpl email.Template) []sentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentEmail
	for _, e := range m.sent {
		if e.Template == tmpl {
			out = append(out, e)
		}
	}
	return out
}

type recordingSignatures struct {
	keys []string
}

func (r *recordingSignatures) EnqueueSignature(_ context.Context, _ primitive.ObjectID, key string) error {
	r.keys = append(r.keys, key)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		AppURL:                  "http://app.test",
		DefaultCurrency:         "USD",
		BulkConcurrency:         4,
		ReminderInterval:        7 * 24 * time.Hour,
		InstallmentLookaheadDay: 7,
		BillPaymentTermDays:     30,
		ClientApprovalTokenTTL:  30 * 24 * time.Hour,
		SignatureKeyPrefix:      "signatures/",
		PasswordRegexp:          "^.{8,}$",
	}
}

// env wires every service against a throwaway database.
type env struct {
	db            *mongo.Database
	cfg           *config.Config
	mailer        *recordingMailer
	signatures    *recordingSignatures
	users         IUserService
	notifications INotificationService
	approvals     IApprovalService
	deletions     IUserDeletionService
	clients       IClientService
	proposals     IProposalService
	bills         IBillService
	projects      IProjectService
	finance       IFinanceService
	todos         ITodoService
	reminders     IReminderService
}

func newEnv(t *testing.T, name string) *env {
	t.Helper()
	database := utils.SetupTestDB(t, "chambers_test_"+name)
	require.NoError(t, db.EnsureIndexes(context.Background(), database))

	cfg := testConfig()
	log := zerolog.Nop()
	e := &env{db: database, cfg: cfg, mailer: &recordingMailer{}, signatures: &recordingSignatures{}}
	e.users = NewUserService(database, cfg)
	e.notifications = NewNotificationService(database, e.mailer, log)
	e.approvals = NewApprovalService(database, e.users, e.notifications, cfg.AppURL, log)
	e.deletions = NewUserDeletionService(database, e.users, e.notifications, log)
	e.clients = NewClientService(database)
	e.proposals = NewProposalService(database, cfg, e.users, e.approvals, e.notifications, e.signatures, log)
	e.bills = NewBillService(database, cfg, e.users, e.approvals, log)
	e.projects = NewProjectService(database)
	e.finance = NewFinanceService(database, cfg)
	e.todos = NewTodoService(database, e.users, e.notifications, log)
	e.reminders = NewReminderService(database, cfg, e.users, e.notifications, log)
	return e
}

// seedUser inserts a user directly, skipping password hashing.
func (e *env) seedUser(t *testing.T, role models.Role, caps models.Capabilities) authz.Principal {
	t.Helper()
	u := &models.User{
		Base:         models.NewBase(),
		Name:         string(role) + " user",
		Role:         role,
		Capabilities: caps,
		CreatedAt:    now(),
		UpdatedAt:    now(),
	}
	u.Email = u.ID.Hex() + "@chambers.test"
	_, err := e.db.Collection(db.UsersCollection).InsertOne(context.Background(), u)
	require.NoError(t, err)
	return authz.FromUser(u)
}

func (e *env) seedClient(t *testing.T, by authz.Principal, manager *primitive.ObjectID) *models.Client {
	t.Helper()
	c, err := e.clients.Create(context.Background(), by, ClientInput{
		Name:      "Acme Ltd",
		Email:     "billing@acme.test",
		ManagerID: manager,
	})
	require.NoError(t, err)
	return c
}

func (e *env) count(t *testing.T, coll string, filter interface{}) int64 {
	t.Helper()
	n, err := e.db.Collection(coll).CountDocuments(context.Background(), filter)
	require.NoError(t, err)
	return n
}
