package handlers

import (
	"context"
	"net/http"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type proposalTransition func(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Proposal, error)

type billTransition func(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Bill, error)

type deleteFunc func(ctx context.Context, p authz.Principal, id primitive.ObjectID) error

type bulkFunc func(ctx context.Context, p authz.Principal, ids []primitive.ObjectID) ([]services.BulkResult, error)

// BulkResponse reports each item of a bulk operation.
type BulkResponse struct {
	Results   []services.BulkResult `json:"results"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
}

func runDelete(c *gin.Context, fn deleteFunc) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), p, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func runBulkDelete(c *gin.Context, fn bulkFunc) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req BulkDeleteRequest
	if !bindJSON(c, &req) {
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		badID(c, "ids")
		return
	}
	results, err := fn(c.Request.Context(), p, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := BulkResponse{Results: results}
	for _, r := range results {
		if r.OK {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	c.JSON(http.StatusOK, resp)
}
