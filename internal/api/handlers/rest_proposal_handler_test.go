package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greendrake/chambers/internal/api/handlers"
	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"
	"greendrake/chambers/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func proposalTestConfig() *config.Config {
	return &config.Config{SignatureKeyPrefix: "signatures/", SignatureUploadTTL: 15 * time.Minute}
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestRestProposalHandler_GetReview_WithoutToken(t *testing.T) {
	mockProposals := new(MockProposalService)
	handler := handlers.NewRestProposalHandler(proposalTestConfig(), mockProposals, new(MockStorage))
	r := gin.New()
	r.GET("/api/proposals/:id/review", handler.GetReview)

	id := primitive.NewObjectID()
	mockProposals.On("GetForReview", mock.Anything, id, "").Return(nil, workflow.ErrTokenInvalid)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/proposals/"+id.Hex()+"/review", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	mockProposals.AssertExpectations(t)
}

func TestRestProposalHandler_GetReview_ExpiredToken(t *testing.T) {
	mockProposals := new(MockProposalService)
	handler := handlers.NewRestProposalHandler(proposalTestConfig(), mockProposals, new(MockStorage))
	r := gin.New()
	r.GET("/api/proposals/:id/review", handler.GetReview)

	id := primitive.NewObjectID()
	mockProposals.On("GetForReview", mock.Anything, id, "tok").Return(nil, workflow.ErrTokenExpired)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/proposals/"+id.Hex()+"/review?token=tok", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestProposalHandler_SubmitReview_TokenFromQuery(t *testing.T) {
	mockProposals := new(MockProposalService)
	handler := handlers.NewRestProposalHandler(proposalTestConfig(), mockProposals, new(MockStorage))
	r := gin.New()
	r.POST("/api/proposals/:id/review", handler.SubmitReview)

	id := primitive.NewObjectID()
	in := services.ClientDecisionInput{Token: "tok", Status: models.ApprovalApproved, SignerName: "Jo Client"}
	view := &services.ReviewView{ID: id, ClientApprovalStatus: models.ApprovalApproved}
	mockProposals.On("ClientDecide", mock.Anything, id, in).Return(view, nil)

	w := postJSON(r, "/api/proposals/"+id.Hex()+"/review?token=tok", `{"status":"APPROVED","signer_name":"Jo Client"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "APPROVED", decode(t, w)["client_approval_status"])
	mockProposals.AssertExpectations(t)
}

func TestRestProposalHandler_SignatureUploadURL(t *testing.T) {
	mockProposals := new(MockProposalService)
	mockStorage := new(MockStorage)
	handler := handlers.NewRestProposalHandler(proposalTestConfig(), mockProposals, mockStorage)
	r := gin.New()
	r.POST("/api/proposals/:id/review/signature-upload", handler.SignatureUploadURL)

	id := primitive.NewObjectID()
	prefix := "signatures/" + id.Hex() + "/"
	mockProposals.On("GetForReview", mock.Anything, id, "tok").Return(&services.ReviewView{ID: id, ClientApprovalStatus: models.ApprovalPending}, nil)
	mockStorage.On("PresignSignatureUpload", mock.Anything, prefix, "image/png").Return("https://s3.example/put", prefix+"abc.png", nil)

	w := postJSON(r, "/api/proposals/"+id.Hex()+"/review/signature-upload", `{"token":"tok","content_type":"image/png"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.SignatureUploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://s3.example/put", resp.UploadURL)
	assert.Equal(t, prefix+"abc.png", resp.Key)
	mockStorage.AssertExpectations(t)
}

func TestRestProposalHandler_SignatureUploadURL_AlreadyDecided(t *testing.T) {
	mockProposals := new(MockProposalService)
	mockStorage := new(MockStorage)
	handler := handlers.NewRestProposalHandler(proposalTestConfig(), mockProposals, mockStorage)
	r := gin.New()
	r.POST("/api/proposals/:id/review/signature-upload", handler.SignatureUploadURL)

	id := primitive.NewObjectID()
	mockProposals.On("GetForReview", mock.Anything, id, "tok").Return(&services.ReviewView{ID: id, ClientApprovalStatus: models.ApprovalRejected}, nil)

	w := postJSON(r, "/api/proposals/"+id.Hex()+"/review/signature-upload", `{"token":"tok","content_type":"image/jpeg"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	mockStorage.AssertNotCalled(t, "PresignSignatureUpload", mock.Anything, mock.Anything, mock.Anything)
}

func TestRestProposalHandler_SignatureUploadURL_NoStorage(t *testing.T) {
	handler := handlers.NewRestProposalHandler(proposalTestConfig(), new(MockProposalService), nil)
	r := gin.New()
	r.POST("/api/proposals/:id/review/signature-upload", handler.SignatureUploadURL)

	w := postJSON(r, "/api/proposals/"+primitive.NewObjectID().Hex()+"/review/signature-upload", `{"token":"tok","content_type":"image/png"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRestProposalHandler_SignatureUploadURL_RejectsContentType(t *testing.T) {
	handler := handlers.NewRestProposalHandler(proposalTestConfig(), new(MockProposalService), new(MockStorage))
	r := gin.New()
	r.POST("/api/proposals/:id/review/signature-upload", handler.SignatureUploadURL)

	w := postJSON(r, "/api/proposals/"+primitive.NewObjectID().Hex()+"/review/signature-upload", `{"token":"tok","content_type":"image/gif"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestProposalHandler_BulkDelete(t *testing.T) {
	mockProposals := new(MockProposalService)
	handler := handlers.NewRestProposalHandler(proposalTestConfig(), mockProposals, new(MockStorage))
	caller := staff()
	r := gin.New()
	r.POST("/api/proposals/bulk-delete", withPrincipal(caller), handler.BulkDeleteProposals)

	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	mockProposals.On("BulkSoftDelete", mock.Anything, caller, []primitive.ObjectID{a, b}).Return([]services.BulkResult{
		{ID: a, OK: true},
		{ID: b, OK: false, Error: workflow.ErrForbidden.Error()},
	}, nil)

	w := postJSON(r, "/api/proposals/bulk-delete", `{"ids":["`+a.Hex()+`","`+b.Hex()+`"]}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.BulkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	assert.Len(t, resp.Results, 2)
}

func TestRestProposalHandler_BulkDelete_BadInput(t *testing.T) {
	mockProposals := new(MockProposalService)
	handler := handlers.NewRestProposalHandler(proposalTestConfig(), mockProposals, new(MockStorage))
	r := gin.New()
	r.POST("/api/proposals/bulk-delete", withPrincipal(staff()), handler.BulkDeleteProposals)

	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/api/proposals/bulk-delete", `{"ids":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/api/proposals/bulk-delete", `{"ids":["nope"]}`).Code)
	mockProposals.AssertNotCalled(t, "BulkSoftDelete", mock.Anything, mock.Anything, mock.Anything)
}

func TestRestProposalHandler_DeleteProposal_Permanent(t *testing.T) {
	mockProposals := new(MockProposalService)
	handler := handlers.NewRestProposalHandler(proposalTestConfig(), mockProposals, new(MockStorage))
	caller := admin()
	r := gin.New()
	r.DELETE("/api/proposals/:id", withPrincipal(caller), handler.DeleteProposal)

	id := primitive.NewObjectID()
	mockProposals.On("PermanentDelete", mock.Anything, caller, id).Return(nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/api/proposals/"+id.Hex()+"?permanent=true", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockProposals.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything)
	mockProposals.AssertExpectations(t)
}
