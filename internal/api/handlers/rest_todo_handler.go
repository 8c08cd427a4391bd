package handlers

import (
	"net/http"
	"strconv"
	"time"

	"greendrake/chambers/internal/services"

	"github.com/gin-gonic/gin"
)

// RestTodoHandler serves todos and the caller's notification inbox.
type RestTodoHandler struct {
	todoService         services.ITodoService
	notificationService services.INotificationService
}

func NewRestTodoHandler(todoService services.ITodoService, notificationService services.INotificationService) *RestTodoHandler {
	return &RestTodoHandler{todoService: todoService, notificationService: notificationService}
}

type TodoRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	AssigneeID  string     `json:"assignee_id"`
	ProjectID   string     `json:"project_id"`
	DueDate     *time.Time `json:"due_date"`
}

// CreateTodo handles POST /api/todos. The caller is the assignee unless
// assignee_id names someone else.
func (h *RestTodoHandler) CreateTodo(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req TodoRequest
	if !bindJSON(c, &req) {
		return
	}
	assignee, err := optionalID(req.AssigneeID)
	if err != nil {
		badID(c, "assignee_id")
		return
	}
	projectID, err := optionalID(req.ProjectID)
	if err != nil {
		badID(c, "project_id")
		return
	}
	in := services.TodoInput{Title: req.Title, Description: req.Description, AssigneeID: p.UserID, ProjectID: projectID, DueDate: req.DueDate}
	if assignee != nil {
		in.AssigneeID = *assignee
	}
	todo, err := h.todoService.Create(c.Request.Context(), p, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, todo)
}

// ListTodos handles GET /api/todos?completed=true
func (h *RestTodoHandler) ListTodos(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	todos, err := h.todoService.List(c.Request.Context(), p, c.Query("completed") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, todos)
}

// CompleteTodo handles POST /api/todos/:id/complete
func (h *RestTodoHandler) CompleteTodo(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	todo, err := h.todoService.Complete(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, todo)
}

// DeleteTodo handles DELETE /api/todos/:id
func (h *RestTodoHandler) DeleteTodo(c *gin.Context) {
	runDelete(c, h.todoService.Delete)
}

// ListNotifications handles GET /api/notifications?unread=true&limit=
func (h *RestTodoHandler) ListNotifications(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	limit := int64(50)
	if v := c.Query("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": map[string]string{"limit": "must be between 1 and 200"}})
			return
		}
		limit = n
	}
	list, err := h.notificationService.ListForUser(c.Request.Context(), p, c.Query("unread") == "true", limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (h *RestTodoHandler) MarkNotificationRead(c *gin.Context) {
	runDelete(c, h.notificationService.MarkRead)
}

// MarkAllNotificationsRead handles POST /api/notifications/read-all
func (h *RestTodoHandler) MarkAllNotificationsRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	n, err := h.notificationService.MarkAllRead(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
