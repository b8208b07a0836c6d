package tasks

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tasktrack/internal/authkit"
	"go.uber.org/zap"
)

// localDateTimeLayout is accepted for due dates sent without a zone; they are read as UTC.
const localDateTimeLayout = "2006-01-02T15:04:05"

var errInvalidDueDate = errors.New("tasks.invalid_due_date")

// TaskRequest is the JSON body accepted by create and update.
type TaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	DueDate     *string `json:"dueDate"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
}

// TaskResponse is the JSON representation of a task.
type TaskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Overdue     bool       `json:"overdue"`
}

// Handlers exposes the task service over HTTP.
type Handlers struct {
	service *Service
	logger  *zap.Logger
}

// NewHandlers constructs the task HTTP handlers.
func NewHandlers(service *Service, logger *zap.Logger) *Handlers {
	if service == nil {
		panic("task service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{service: service, logger: logger}
}

// Mount registers the task routes on a router that already requires a session.
func (handlers *Handlers) Mount(router gin.IRouter) {
	group := router.Group("/tasks")
	group.GET("", handlers.handleList)
	group.GET("/status/:status", handlers.handleListByStatus)
	group.GET("/overdue", handlers.handleListOverdue)
	group.GET("/:id", handlers.handleGet)
	group.POST("", handlers.handleCreate)
	group.PUT("/:id", handlers.handleUpdate)
	group.PATCH("/:id/status", handlers.handleChangeStatus)
	group.DELETE("/:id", handlers.handleDelete)
}

func (handlers *Handlers) handleList(contextGin *gin.Context) {
	principal, ok := handlers.principal(contextGin)
	if !ok {
		return
	}
	found, err := handlers.service.List(contextGin.Request.Context(), principal)
	handlers.respondList(contextGin, found, err)
}

func (handlers *Handlers) handleListByStatus(contextGin *gin.Context) {
	principal, ok := handlers.principal(contextGin)
	if !ok {
		return
	}
	status, parseErr := ParseStatus(contextGin.Param("status"))
	if parseErr != nil {
		handlers.respondError(contextGin, parseErr)
		return
	}
	found, err := handlers.service.ListByStatus(contextGin.Request.Context(), principal, status)
	handlers.respondList(contextGin, found, err)
}

func (handlers *Handlers) handleListOverdue(contextGin *gin.Context) {
	principal, ok := handlers.principal(contextGin)
	if !ok {
		return
	}
	found, err := handlers.service.ListOverdue(contextGin.Request.Context(), principal)
	handlers.respondList(contextGin, found, err)
}

func (handlers *Handlers) handleGet(contextGin *gin.Context) {
	principal, ok := handlers.principal(contextGin)
	if !ok {
		return
	}
	task, err := handlers.service.Get(contextGin.Request.Context(), principal, contextGin.Param("id"))
	handlers.respondTask(contextGin, http.StatusOK, task, err)
}

func (handlers *Handlers) handleCreate(contextGin *gin.Context) {
	principal, ok := handlers.principal(contextGin)
	if !ok {
		return
	}
	draft, bindErr := bindDraft(contextGin)
	if bindErr != nil {
		handlers.respondError(contextGin, bindErr)
		return
	}
	task, err := handlers.service.Create(contextGin.Request.Context(), principal, draft)
	handlers.respondTask(contextGin, http.StatusCreated, task, err)
}

func (handlers *Handlers) handleUpdate(contextGin *gin.Context) {
	principal, ok := handlers.principal(contextGin)
	if !ok {
		return
	}
	draft, bindErr := bindDraft(contextGin)
	if bindErr != nil {
		handlers.respondError(contextGin, bindErr)
		return
	}
	task, err := handlers.service.Update(contextGin.Request.Context(), principal, contextGin.Param("id"), draft)
	handlers.respondTask(contextGin, http.StatusOK, task, err)
}

func (handlers *Handlers) handleChangeStatus(contextGin *gin.Context) {
	principal, ok := handlers.principal(contextGin)
	if !ok {
		return
	}
	status, parseErr := ParseStatus(contextGin.Query("status"))
	if parseErr != nil {
		handlers.respondError(contextGin, parseErr)
		return
	}
	task, err := handlers.service.ChangeStatus(contextGin.Request.Context(), principal, contextGin.Param("id"), status)
	handlers.respondTask(contextGin, http.StatusOK, task, err)
}

func (handlers *Handlers) handleDelete(contextGin *gin.Context) {
	principal, ok := handlers.principal(contextGin)
	if !ok {
		return
	}
	if err := handlers.service.Delete(contextGin.Request.Context(), principal, contextGin.Param("id")); err != nil {
		handlers.respondError(contextGin, err)
		return
	}
	contextGin.Status(http.StatusNoContent)
}

func (handlers *Handlers) principal(contextGin *gin.Context) (authkit.Principal, bool) {
	principal, ok := authkit.PrincipalFromContext(contextGin)
	if !ok {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return authkit.Principal{}, false
	}
	return principal, true
}

func (handlers *Handlers) respondList(contextGin *gin.Context, found []Task, err error) {
	if err != nil {
		handlers.respondError(contextGin, err)
		return
	}
	now := handlers.service.Now()
	payload := make([]TaskResponse, 0, len(found))
	for _, task := range found {
		payload = append(payload, newTaskResponse(task, now))
	}
	contextGin.JSON(http.StatusOK, payload)
}

func (handlers *Handlers) respondTask(contextGin *gin.Context, status int, task Task, err error) {
	if err != nil {
		handlers.respondError(contextGin, err)
		return
	}
	contextGin.JSON(status, newTaskResponse(task, handlers.service.Now()))
}

func (handlers *Handlers) respondError(contextGin *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidTask), errors.Is(err, errInvalidDueDate):
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, ErrTaskNotFound):
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, authkit.ErrUnauthorized):
		contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		handlers.logger.Error("task request failed",
			zap.String("code", "tasks.request_failed"),
			zap.String("path", contextGin.FullPath()),
			zap.Error(err))
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func bindDraft(contextGin *gin.Context) (Draft, error) {
	var request TaskRequest
	if bindErr := contextGin.ShouldBindJSON(&request); bindErr != nil {
		return Draft{}, errors.Join(ErrInvalidTask, bindErr)
	}
	draft := Draft{
		Title:       request.Title,
		Description: request.Description,
		Priority:    request.Priority,
		Status:      request.Status,
	}
	if request.DueDate != nil && strings.TrimSpace(*request.DueDate) != "" {
		due, parseErr := parseDueDate(*request.DueDate)
		if parseErr != nil {
			return Draft{}, parseErr
		}
		draft.DueDate = &due
	}
	return draft, nil
}

func parseDueDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(localDateTimeLayout, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.DateOnly, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, errInvalidDueDate
}

func newTaskResponse(task Task, now time.Time) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		DueDate:     task.DueDate,
		Priority:    task.Priority,
		Status:      task.Status,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		Overdue:     task.Overdue(now),
	}
}
