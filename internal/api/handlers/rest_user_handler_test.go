package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greendrake/chambers/internal/api/handlers"
	"greendrake/chambers/internal/auth"
	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/models"
	"greendrake/chambers/internal/services"
	"greendrake/chambers/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRestUserHandler_GetUserByID_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", mongo.ErrNoDocuments, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("finding user: %w", mongo.ErrNoDocuments), http.StatusNotFound},
		{"forbidden", workflow.ErrForbidden, http.StatusForbidden},
		{"self approval", workflow.ErrSelfApproval, http.StatusForbidden},
		{"token invalid", workflow.ErrTokenInvalid, http.StatusForbidden},
		{"token expired", workflow.ErrTokenExpired, http.StatusBadRequest},
		{"invalid state", workflow.ErrInvalidState, http.StatusBadRequest},
		{"validation", &services.ValidationError{Message: "bad", Details: map[string]string{"x": "y"}}, http.StatusBadRequest},
		{"already decided", workflow.ErrAlreadyDecided, http.StatusConflict},
		{"duplicate approver", workflow.ErrDuplicateApprover, http.StatusConflict},
		{"email exists", services.ErrEmailExists, http.StatusConflict},
		{"deletion pending", services.ErrDeletionPending, http.StatusConflict},
		{"credentials", services.ErrInvalidCredentials, http.StatusUnauthorized},
		{"disconnected", mongo.ErrClientDisconnected, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockUserSvc := new(MockUserService)
			handler := handlers.NewRestUserHandler(mockUserSvc, new(MockUserDeletionService))
			r := gin.New()
			r.GET("/api/users/:id", withPrincipal(staff()), handler.GetUserByID)

			userID := primitive.NewObjectID()
			mockUserSvc.On("FindByID", mock.Anything, userID).Return(nil, tc.err)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/api/users/"+userID.Hex(), nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			body := decode(t, w)
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", body["error"])
			}
		})
	}
}

func TestRestUserHandler_GetUserByID_InvalidID(t *testing.T) {
	handler := handlers.NewRestUserHandler(new(MockUserService), new(MockUserDeletionService))
	r := gin.New()
	r.GET("/api/users/:id", withPrincipal(staff()), handler.GetUserByID)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/users/not-an-id", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid id format", decode(t, w)["error"])
}

func TestRestUserHandler_RequiresPrincipal(t *testing.T) {
	handler := handlers.NewRestUserHandler(new(MockUserService), new(MockUserDeletionService))
	r := gin.New()
	r.GET("/api/users", handler.ListUsers)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/users", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRestUserHandler_CreateUser_ValidationDetails(t *testing.T) {
	mockUserSvc := new(MockUserService)
	handler := handlers.NewRestUserHandler(mockUserSvc, new(MockUserDeletionService))
	r := gin.New()
	r.POST("/api/users", withPrincipal(admin()), handler.CreateUser)

	body := `{"name":"Ann","email":"not-an-email","password":"secret123","role":"OWNER"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	details, ok := decode(t, w)["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "must be a valid email", details["email"])
	assert.Contains(t, details["role"], "must be one of")
	mockUserSvc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestRestUserHandler_ApproveDeletion(t *testing.T) {
	mockDeletion := new(MockUserDeletionService)
	handler := handlers.NewRestUserHandler(new(MockUserService), mockDeletion)
	caller := admin()
	r := gin.New()
	r.POST("/api/deletion-requests/:id/approve", withPrincipal(caller), handler.ApproveDeletion)

	requestID := primitive.NewObjectID()
	done := &models.UserDeletionRequest{
		Base:       models.Base{ID: requestID},
		Status:     models.DeletionCompleted,
		ApprovedBy: []primitive.ObjectID{primitive.NewObjectID(), caller.UserID},
	}
	mockDeletion.On("Approve", mock.Anything, caller, requestID).Return(done, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/deletion-requests/"+requestID.Hex()+"/approve", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var got models.UserDeletionRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.DeletionCompleted, got.Status)
	assert.Len(t, got.ApprovedBy, 2)
	mockDeletion.AssertExpectations(t)
}

func TestRestUserHandler_ApproveDeletion_SecondVoteBySameAdmin(t *testing.T) {
	mockDeletion := new(MockUserDeletionService)
	handler := handlers.NewRestUserHandler(new(MockUserService), mockDeletion)
	caller := admin()
	r := gin.New()
	r.POST("/api/deletion-requests/:id/approve", withPrincipal(caller), handler.ApproveDeletion)

	requestID := primitive.NewObjectID()
	mockDeletion.On("Approve", mock.Anything, caller, requestID).Return(nil, workflow.ErrDuplicateApprover)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/deletion-requests/"+requestID.Hex()+"/approve", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRestUserHandler_GetDeletionRequest_AdminOnly(t *testing.T) {
	mockDeletion := new(MockUserDeletionService)
	handler := handlers.NewRestUserHandler(new(MockUserService), mockDeletion)
	r := gin.New()
	r.GET("/api/deletion-requests/:id", withPrincipal(staff()), handler.GetDeletionRequest)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/deletion-requests/"+primitive.NewObjectID().Hex(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	mockDeletion.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestRestUserHandler_DeletionCheck(t *testing.T) {
	mockUsers := new(MockUserService)
	mockDeletion := new(MockUserDeletionService)
	handler := handlers.NewRestUserHandler(mockUsers, mockDeletion)
	r := gin.New()
	r.GET("/api/users/:id/deletion-check", withPrincipal(admin()), handler.DeletionCheck)

	userID := primitive.NewObjectID()
	mockUsers.On("FindByID", mock.Anything, userID).Return(&models.User{Base: models.Base{ID: userID}}, nil)
	mockDeletion.On("Census", mock.Anything, userID).Return(models.ReferenceCensus{Bills: 2, Todos: 1}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/users/"+userID.Hex()+"/deletion-check", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got handlers.DeletionCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.False(t, got.Deletable)
	assert.Equal(t, map[string]int64{"bills": 2, "todos": 1}, got.Blocking)
	assert.EqualValues(t, 2, got.Census.Bills)
}

func TestRestUserHandler_DeletionCheck_UnknownUser(t *testing.T) {
	mockUsers := new(MockUserService)
	mockDeletion := new(MockUserDeletionService)
	handler := handlers.NewRestUserHandler(mockUsers, mockDeletion)
	r := gin.New()
	r.GET("/api/users/:id/deletion-check", withPrincipal(admin()), handler.DeletionCheck)

	userID := primitive.NewObjectID()
	mockUsers.On("FindByID", mock.Anything, userID).Return(nil, mongo.ErrNoDocuments)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/users/"+userID.Hex()+"/deletion-check", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockDeletion.AssertNotCalled(t, "Census", mock.Anything, mock.Anything)
}

func TestRestAuthHandler_Login(t *testing.T) {
	cfg := &config.Config{JwtSecret: "test-secret", JwtTTL: time.Hour}
	mockUserSvc := new(MockUserService)
	handler := handlers.NewRestAuthHandler(cfg, mockUserSvc)
	r := gin.New()
	r.POST("/api/auth/login", handler.Login)

	user := &models.User{Base: models.NewBase(), Name: "Ann", Email: "ann@example.com", Role: models.RoleManager}
	mockUserSvc.On("Authenticate", mock.Anything, "ann@example.com", "secret123").Return(user, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"ann@example.com","password":"secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := auth.ValidateJWT(resp.Token, cfg.JwtSecret)
	require.NoError(t, err)
	p, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, user.ID, p.UserID)
	assert.Equal(t, models.RoleManager, p.Role)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
}

func TestRestAuthHandler_Login_BadCredentials(t *testing.T) {
	mockUserSvc := new(MockUserService)
	handler := handlers.NewRestAuthHandler(&config.Config{JwtSecret: "s", JwtTTL: time.Hour}, mockUserSvc)
	r := gin.New()
	r.POST("/api/auth/login", handler.Login)

	mockUserSvc.On("Authenticate", mock.Anything, "ann@example.com", "wrong").Return(nil, services.ErrInvalidCredentials)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"ann@example.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, services.ErrInvalidCredentials.Error(), decode(t, w)["error"])
}
