package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"greendrake/chambers/internal/api/middleware"
	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/db"
	"greendrake/chambers/internal/services"
	"greendrake/chambers/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// errorStatus pairs each sentinel with the status it answers to.
var errorStatus = []struct {
	err    error
	status int
}{
	{mongo.ErrNoDocuments, http.StatusNotFound},
	{workflow.ErrForbidden, http.StatusForbidden},
	{workflow.ErrSelfApproval, http.StatusForbidden},
	{workflow.ErrTokenInvalid, http.StatusForbidden},
	{workflow.ErrTokenExpired, http.StatusBadRequest},
	{workflow.ErrInvalidState, http.StatusBadRequest},
	{workflow.ErrAlreadyDecided, http.StatusConflict},
	{workflow.ErrDuplicateApprover, http.StatusConflict},
	{services.ErrEmailExists, http.StatusConflict},
	{services.ErrDeletionPending, http.StatusConflict},
	{services.ErrInvalidCredentials, http.StatusUnauthorized},
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	if db.IsConnectionError(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes the error response for err. Internal failures are
// attached to the gin context for the request logger and replaced by a
// generic message.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(status, gin.H{"error": ve.Message, "details": ve.Details})
	case status == http.StatusNotFound:
		c.JSON(status, gin.H{"error": "Not found"})
	case status == http.StatusServiceUnavailable:
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Database unavailable"})
	case status == http.StatusInternalServerError:
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Internal server error"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

// bindJSON decodes the body into req and answers 400 with per-field details
// when binding fails.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fieldName(fe)] = ruleText(fe)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": details})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}
	return true
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonName)
	}
}

// jsonName makes validator report fields by their wire name.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// fieldName drops the request struct prefix from the namespace, leaving
// "email" or "payment_term.upfront_value".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func ruleText(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt", "gte", "lt", "lte", "min", "max":
		return fe.Tag() + " " + fe.Param()
	}
	return "invalid"
}

// parseID reads an ObjectID path parameter, answering 400 when malformed.
func parseID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " format"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// optionalID parses a hex id that may be empty.
func optionalID(hex string) (*primitive.ObjectID, error) {
	if hex == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseIDs(hexes []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		id, err := primitive.ObjectIDFromHex(h)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// principal returns the caller or answers 401.
func principal(c *gin.Context) (authz.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return p, ok
}

func badID(c *gin.Context, field string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": map[string]string{field: "invalid id"}})
}
