package handlers_test

import (
	"net/http"
	"testing"

	"greendrake/chambers/internal/api/handlers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestFinanceHandler_RecordEntry_DetailsUseWireNames(t *testing.T) {
	handler := handlers.NewRestFinanceHandler(nil)
	r := gin.New()
	r.POST("/api/finance/entries", withPrincipal(admin()), handler.RecordEntry)

	w := postJSON(r, "/api/finance/entries", `{"kind":"BONUS","amount":0}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	details, ok := decode(t, w)["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{
		"kind":    "must be one of: ADVANCE COMPENSATION FRINGE_BENEFIT FINDER_FEE",
		"user_id": "required",
		"amount":  "gt 0",
	}, details)
}
