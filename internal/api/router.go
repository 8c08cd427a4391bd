package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"greendrake/chambers/internal/api/handlers"
	"greendrake/chambers/internal/api/middleware"
	"greendrake/chambers/internal/captcha"
	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/email"
	"greendrake/chambers/internal/metrics"
	"greendrake/chambers/internal/services"
	"greendrake/chambers/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Services are the dependencies the API handlers are built from.
type Services struct {
	Users         services.IUserService
	Deletions     services.IUserDeletionService
	Clients       services.IClientService
	Approvals     services.IApprovalService
	Proposals     services.IProposalService
	Bills         services.IBillService
	Projects      services.IProjectService
	Finance       services.IFinanceService
	Todos         services.ITodoService
	Notifications services.INotificationService
	Reminders     services.IReminderService
	// Storage is nil when S3 is not configured.
	Storage storage.IS3Storage
	Health  map[string]handlers.HealthCheck
}

// SetupRouter configures and returns the main Gin engine. The returned
// limiter must be stopped on shutdown.
func SetupRouter(cfg *config.Config, log zerolog.Logger, svc Services) (*gin.Engine, *middleware.RateLimiterMiddleware) {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.CORSMiddleware(cfg.CorsOrigins))

	captchaVerifier := captcha.NewTurnstileVerifier(cfg)
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	authHandler := handlers.NewRestAuthHandler(cfg, svc.Users)
	userHandler := handlers.NewRestUserHandler(svc.Users, svc.Deletions)
	clientHandler := handlers.NewRestClientHandler(svc.Clients)
	approvalHandler := handlers.NewRestApprovalHandler(svc.Approvals)
	proposalHandler := handlers.NewRestProposalHandler(cfg, svc.Proposals, svc.Storage)
	billHandler := handlers.NewRestBillHandler(svc.Bills)
	projectHandler := handlers.NewRestProjectHandler(svc.Projects)
	financeHandler := handlers.NewRestFinanceHandler(svc.Finance)
	todoHandler := handlers.NewRestTodoHandler(svc.Todos, svc.Notifications)
	cronHandler := handlers.NewRestCronHandler(svc.Reminders)
	healthHandler := handlers.NewRestHealthHandler(svc.Health)

	r.GET("/health", healthHandler.Health)
	r.GET(cfg.MetricsPath, gin.WrapH(metrics.Handler()))

	apiGroup := r.Group("/api")
	apiGroup.GET("/health", healthHandler.Health)

	// Public routes: the login form and the tokenized client review page.
	public := apiGroup.Group("")
	public.Use(middleware.CaptchaMiddleware(cfg, captchaVerifier), rateLimiter.Limit())
	{
		public.POST("/auth/login", authHandler.Login)
		public.GET("/proposals/:id/review", proposalHandler.GetReview)
		public.POST("/proposals/:id/review", proposalHandler.SubmitReview)
		public.POST("/proposals/:id/review/signature-upload", proposalHandler.SignatureUploadURL)
	}

	cron := apiGroup.Group("/cron")
	cron.Use(middleware.CronAuth(cfg.CronSecret))
	{
		cron.GET("/check-outstanding-invoices", cronHandler.CheckOutstandingInvoices)
		cron.GET("/check-installments", cronHandler.CheckInstallments)
	}

	// Any signed-in user, client portal users included. Services scope
	// what each role sees.
	authed := apiGroup.Group("")
	authed.Use(middleware.AuthMiddleware(cfg.JwtSecret))
	{
		authed.GET("/auth/me", authHandler.Me)

		authed.GET("/notifications", todoHandler.ListNotifications)
		authed.POST("/notifications/read-all", todoHandler.MarkAllNotificationsRead)
		authed.POST("/notifications/:id/read", todoHandler.MarkNotificationRead)

		authed.GET("/proposals", proposalHandler.ListProposals)
		authed.GET("/proposals/:id", proposalHandler.GetProposal)
		authed.GET("/proposals/:id/installments", proposalHandler.GetInstallments)
		authed.GET("/bills", billHandler.ListBills)
		authed.GET("/bills/:id", billHandler.GetBill)
		authed.GET("/projects", projectHandler.ListProjects)
		authed.GET("/projects/:id", projectHandler.GetProject)
	}

	staff := authed.Group("")
	staff.Use(middleware.StaffMiddleware())
	{
		staff.GET("/users/:id", userHandler.GetUserByID)
		staff.POST("/users/:id/deletion-requests", userHandler.RequestDeletion)

		staff.POST("/clients", clientHandler.CreateClient)
		staff.GET("/clients", clientHandler.ListClients)
		staff.GET("/clients/:id", clientHandler.GetClient)
		staff.PUT("/clients/:id", clientHandler.UpdateClient)
		staff.DELETE("/clients/:id", clientHandler.DeleteClient)
		staff.POST("/leads", clientHandler.CreateLead)
		staff.GET("/leads", clientHandler.ListLeads)
		staff.PUT("/leads/:id/status", clientHandler.UpdateLeadStatus)
		staff.POST("/leads/:id/convert", clientHandler.ConvertLead)

		staff.POST("/proposals", proposalHandler.CreateProposal)
		staff.POST("/proposals/bulk-delete", proposalHandler.BulkDeleteProposals)
		staff.PATCH("/proposals/:id", proposalHandler.UpdateProposal)
		staff.DELETE("/proposals/:id", proposalHandler.DeleteProposal)
		staff.POST("/proposals/:id/submit", proposalHandler.SubmitProposal)
		staff.POST("/proposals/:id/send", proposalHandler.SendToClient)
		staff.POST("/proposals/:id/convert", proposalHandler.ConvertToProject)
		staff.POST("/proposals/:id/deletion-request", proposalHandler.RequestDeletion)
		staff.POST("/proposals/:id/deletion-approve", proposalHandler.ApproveDeletion)
		staff.POST("/proposals/:id/restore", proposalHandler.RestoreProposal)
		staff.GET("/proposals/:id/approvals", approvalHandler.ListForProposal)

		staff.POST("/approvals", approvalHandler.Decide)
		staff.GET("/approvals/pending", approvalHandler.ListPending)

		staff.POST("/bills", billHandler.CreateBill)
		staff.GET("/bills/outstanding", billHandler.ListOutstanding)
		staff.POST("/bills/bulk-delete", billHandler.BulkDeleteBills)
		staff.DELETE("/bills/:id", billHandler.DeleteBill)
		staff.POST("/bills/:id/submit", billHandler.SubmitBill)
		staff.POST("/bills/:id/pay", billHandler.MarkPaid)
		staff.POST("/bills/:id/cancel", billHandler.CancelBill)
		staff.POST("/bills/:id/write-off", billHandler.WriteOffBill)
		staff.POST("/bills/:id/restore", billHandler.RestoreBill)
		staff.GET("/bills/:id/approvals", approvalHandler.ListForBill)

		staff.POST("/projects", projectHandler.CreateProject)
		staff.PATCH("/projects/:id", projectHandler.UpdateProject)
		staff.POST("/projects/:id/timesheets", projectHandler.LogTime)
		staff.GET("/projects/:id/timesheets", projectHandler.ListTimesheets)
		staff.POST("/projects/:id/charges", projectHandler.AddCharge)
		staff.GET("/projects/:id/charges", projectHandler.ListCharges)
		staff.GET("/projects/:id/unbilled", projectHandler.GetUnbilled)
		staff.POST("/projects/:id/bills", billHandler.GenerateBill)

		staff.POST("/finance/entries", financeHandler.RecordEntry)
		staff.GET("/finance/entries", financeHandler.ListEntries)
		staff.DELETE("/finance/entries/:id", financeHandler.DeleteEntry)
		staff.GET("/finance/balance", financeHandler.GetBalance)
		staff.GET("/finance/uncharged-proposals", financeHandler.GetUnchargedProposals)

		staff.POST("/todos", todoHandler.CreateTodo)
		staff.GET("/todos", todoHandler.ListTodos)
		staff.POST("/todos/:id/complete", todoHandler.CompleteTodo)
		staff.DELETE("/todos/:id", todoHandler.DeleteTodo)
	}

	admin := authed.Group("")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.GET("/users", userHandler.ListUsers)
		admin.POST("/users", userHandler.CreateUser)
		admin.PUT("/users/:id/access", userHandler.UpdateAccess)
		admin.GET("/users/:id/deletion-check", userHandler.DeletionCheck)

		admin.GET("/deletion-requests", userHandler.ListDeletionRequests)
		admin.GET("/deletion-requests/:id", userHandler.GetDeletionRequest)
		admin.POST("/deletion-requests/:id/approve", userHandler.ApproveDeletion)
		admin.POST("/deletion-requests/:id/reject", userHandler.RejectDeletion)
	}

	return r, rateLimiter
}

// SetupServiceRouter configures the internal service API used by
// integration tests and operators. It must never be exposed publicly.
func SetupServiceRouter(rdb *redis.Client, log zerolog.Logger, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Info().Msg("shutdown requested via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Warn().Msg("shutdown already signaled")
			}
		case "getTestEmail":
			var args []string // [template, email]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [template, email]"})
				return
			}
			key := email.MockKey(args[1], email.Template(args[0]))
			data, err := pollKey(c.Request.Context(), rdb, key)
			if err == redis.Nil {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", key)})
				return
			}
			if err != nil {
				log.Error().Err(err).Str("key", key).Msg("service API: redis error")
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
				return
			}
			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(data), &emailData); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

// pollKey waits up to two seconds for key to appear, then deletes it.
func pollKey(ctx context.Context, rdb *redis.Client, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		data, err := rdb.Get(ctx, key).Result()
		if err == nil {
			rdb.Del(ctx, key)
			return data, nil
		}
		if err != redis.Nil {
			return "", err
		}
		time.Sleep(200 * time.Millisecond)
	}
	return "", redis.Nil
}
