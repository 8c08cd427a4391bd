package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RestCronHandler exposes the reminder scans to an external scheduler.
type RestCronHandler struct {
	reminderService services.IReminderService
}

func NewRestCronHandler(reminderService services.IReminderService) *RestCronHandler {
	return &RestCronHandler{reminderService: reminderService}
}

type scanFunc func(ctx context.Context) (*services.ScanResult, error)

// CheckOutstandingInvoices handles GET /api/cron/check-outstanding-invoices
func (h *RestCronHandler) CheckOutstandingInvoices(c *gin.Context) {
	h.run(c, h.reminderService.CheckOutstandingInvoices)
}

// CheckInstallments handles GET /api/cron/check-installments
func (h *RestCronHandler) CheckInstallments(c *gin.Context) {
	h.run(c, h.reminderService.CheckInstallments)
}

func (h *RestCronHandler) run(c *gin.Context, scan scanFunc) {
	res, err := scan(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("cron scan failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// RestHealthHandler reports process and dependency liveness.
type RestHealthHandler struct {
	checks map[string]HealthCheck
}

func NewRestHealthHandler(checks map[string]HealthCheck) *RestHealthHandler {
	return &RestHealthHandler{checks: checks}
}

// Health handles GET /health. Any failing dependency turns the answer into 503.
func (h *RestHealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "dependencies": deps})
}
