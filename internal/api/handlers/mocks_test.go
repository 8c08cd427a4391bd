package handlers_test

import (
	"context"

	"greendrake/chambers/internal/api/middleware"
	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Mocks ---

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Create(ctx context.Context, p authz.Principal, in services.CreateUserInput) (*models.User, error) {
	args := m.Called(ctx, p, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserService) FindByRole(ctx context.Context, roles ...models.Role) ([]models.User, error) {
	args := m.Called(ctx, roles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserService) List(ctx context.Context, p authz.Principal) ([]models.User, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserService) UpdateAccess(ctx context.Context, p authz.Principal, userID primitive.ObjectID, role models.Role, caps models.Capabilities) (*models.User, error) {
	args := m.Called(ctx, p, userID, role, caps)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockUserDeletionService struct {
	mock.Mock
}

func (m *MockUserDeletionService) Request(ctx context.Context, p authz.Principal, targetID primitive.ObjectID, reason string) (*models.UserDeletionRequest, error) {
	args := m.Called(ctx, p, targetID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserDeletionRequest), args.Error(1)
}

func (m *MockUserDeletionService) Approve(ctx context.Context, p authz.Principal, requestID primitive.ObjectID) (*models.UserDeletionRequest, error) {
	args := m.Called(ctx, p, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserDeletionRequest), args.Error(1)
}

func (m *MockUserDeletionService) Reject(ctx context.Context, p authz.Principal, requestID primitive.ObjectID) (*models.UserDeletionRequest, error) {
	args := m.Called(ctx, p, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserDeletionRequest), args.Error(1)
}

func (m *MockUserDeletionService) FindByID(ctx context.Context, requestID primitive.ObjectID) (*models.UserDeletionRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserDeletionRequest), args.Error(1)
}

func (m *MockUserDeletionService) List(ctx context.Context, p authz.Principal, status models.DeletionStatus) ([]models.UserDeletionRequest, error) {
	args := m.Called(ctx, p, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UserDeletionRequest), args.Error(1)
}

func (m *MockUserDeletionService) Census(ctx context.Context, userID primitive.ObjectID) (models.ReferenceCensus, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.ReferenceCensus), args.Error(1)
}

type MockProposalService struct {
	mock.Mock
}

func (m *MockProposalService) proposal(args mock.Arguments) (*models.Proposal, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *MockProposalService) review(args mock.Arguments) (*services.ReviewView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReviewView), args.Error(1)
}

func (m *MockProposalService) Create(ctx context.Context, p authz.Principal, in services.ProposalInput) (*models.Proposal, error) {
	return m.proposal(m.Called(ctx, p, in))
}

func (m *MockProposalService) FindByID(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error) {
	return m.proposal(m.Called(ctx, p, id))
}

func (m *MockProposalService) List(ctx context.Context, p authz.Principal, f services.ProposalFilter) ([]models.Proposal, error) {
	args := m.Called(ctx, p, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *MockProposalService) Update(ctx context.Context, p authz.Principal, id primitive.ObjectID, in services.ProposalUpdate) (*models.Proposal, error) {
	return m.proposal(m.Called(ctx, p, id, in))
}

func (m *MockProposalService) Submit(ctx context.Context, p authz.Principal, id primitive.ObjectID, in services.SubmitInput) (*models.Proposal, error) {
	return m.proposal(m.Called(ctx, p, id, in))
}

func (m *MockProposalService) SendToClient(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error) {
	return m.proposal(m.Called(ctx, p, id))
}

func (m *MockProposalService) GetForReview(ctx context.Context, id primitive.ObjectID, token string) (*services.ReviewView, error) {
	return m.review(m.Called(ctx, id, token))
}

func (m *MockProposalService) ClientDecide(ctx context.Context, id primitive.ObjectID, in services.ClientDecisionInput) (*services.ReviewView, error) {
	return m.review(m.Called(ctx, id, in))
}

func (m *MockProposalService) ConvertToProject(ctx context.Context, p authz.Principal, id primitive.ObjectID, in services.ConvertInput) (*models.Project, error) {
	args := m.Called(ctx, p, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProposalService) Installments(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*services.InstallmentPlan, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.InstallmentPlan), args.Error(1)
}

func (m *MockProposalService) RequestDeletion(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error) {
	return m.proposal(m.Called(ctx, p, id))
}

func (m *MockProposalService) ApproveDeletion(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error) {
	return m.proposal(m.Called(ctx, p, id))
}

func (m *MockProposalService) SoftDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	return m.Called(ctx, p, id).Error(0)
}

func (m *MockProposalService) Restore(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	return m.Called(ctx, p, id).Error(0)
}

func (m *MockProposalService) PermanentDelete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	return m.Called(ctx, p, id).Error(0)
}

func (m *MockProposalService) BulkSoftDelete(ctx context.Context, p authz.Principal, ids []primitive.ObjectID) ([]services.BulkResult, error) {
	args := m.Called(ctx, p, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.BulkResult), args.Error(1)
}

type MockProjectService struct {
	mock.Mock
}

func (m *MockProjectService) Create(ctx context.Context, p authz.Principal, in services.ProjectInput) (*models.Project, error) {
	args := m.Called(ctx, p, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectService) FindByID(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Project, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectService) List(ctx context.Context, p authz.Principal, clientID *primitive.ObjectID) ([]models.Project, error) {
	args := m.Called(ctx, p, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Project), args.Error(1)
}

func (m *MockProjectService) Update(ctx context.Context, p authz.Principal, id primitive.ObjectID, in services.ProjectUpdate) (*models.Project, error) {
	args := m.Called(ctx, p, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectService) LogTime(ctx context.Context, p authz.Principal, projectID primitive.ObjectID, in services.TimesheetInput) (*models.TimesheetEntry, error) {
	args := m.Called(ctx, p, projectID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TimesheetEntry), args.Error(1)
}

func (m *MockProjectService) ListTimesheets(ctx context.Context, p authz.Principal, projectID primitive.ObjectID) ([]models.TimesheetEntry, error) {
	args := m.Called(ctx, p, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TimesheetEntry), args.Error(1)
}

func (m *MockProjectService) AddCharge(ctx context.Context, p authz.Principal, projectID primitive.ObjectID, in services.ChargeInput) (*models.ProjectCharge, error) {
	args := m.Called(ctx, p, projectID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProjectCharge), args.Error(1)
}

func (m *MockProjectService) ListCharges(ctx context.Context, p authz.Principal, projectID primitive.ObjectID) ([]models.ProjectCharge, error) {
	args := m.Called(ctx, p, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProjectCharge), args.Error(1)
}

func (m *MockProjectService) Unbilled(ctx context.Context, p authz.Principal, projectID primitive.ObjectID) (*services.UnbilledSummary, error) {
	args := m.Called(ctx, p, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.UnbilledSummary), args.Error(1)
}

type MockReminderService struct {
	mock.Mock
}

func (m *MockReminderService) CheckOutstandingInvoices(ctx context.Context) (*services.ScanResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ScanResult), args.Error(1)
}

func (m *MockReminderService) CheckInstallments(ctx context.Context) (*services.ScanResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ScanResult), args.Error(1)
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) PresignSignatureUpload(ctx context.Context, prefix, contentType string) (string, string, error) {
	args := m.Called(ctx, prefix, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockStorage) PresignGetURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) GetObject(ctx context.Context, key string) ([]byte, string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *MockStorage) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

// --- Helpers ---

// withPrincipal stands in for AuthMiddleware.
func withPrincipal(p authz.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyPrincipal, p)
		c.Next()
	}
}

func staff() authz.Principal {
	return authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleStaff}
}

func admin() authz.Principal {
	return authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleAdmin}
}
