package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tyemirov/tasktrack/internal/authkit"
	"go.uber.org/zap"
)

// Service applies ownership rules on top of a Store. Single-task operations
// load the task first, so a missing id is reported before any ownership check.
type Service struct {
	store  Store
	guard  *authkit.AccessGuard
	clock  authkit.Clock
	logger *zap.Logger
	newID  func() string
}

// NewService constructs a Service.
func NewService(store Store, guard *authkit.AccessGuard, clock authkit.Clock, logger *zap.Logger) *Service {
	if store == nil || guard == nil {
		panic("task store and access guard are required")
	}
	if clock == nil {
		clock = authkit.NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		guard:  guard,
		clock:  clock,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Now exposes the service clock so callers compute overdue flags consistently.
func (service *Service) Now() time.Time {
	return service.clock.Now().UTC()
}

// List returns the principal's tasks, newest first.
func (service *Service) List(ctx context.Context, principal authkit.Principal) ([]Task, error) {
	return service.store.ListTasksByOwner(ctx, principal.IdentityID)
}

// ListByStatus returns the principal's tasks in the given status.
func (service *Service) ListByStatus(ctx context.Context, principal authkit.Principal, status Status) ([]Task, error) {
	return service.store.ListTasksByOwnerAndStatus(ctx, principal.IdentityID, status)
}

// ListOverdue returns the principal's unfinished tasks whose due date has passed.
func (service *Service) ListOverdue(ctx context.Context, principal authkit.Principal) ([]Task, error) {
	return service.store.ListOverdueTasks(ctx, principal.IdentityID, service.Now())
}

// Get returns one task owned by the principal.
func (service *Service) Get(ctx context.Context, principal authkit.Principal, taskID string) (Task, error) {
	return service.load(ctx, principal, taskID)
}

// Create stores a new task owned by the principal.
func (service *Service) Create(ctx context.Context, principal authkit.Principal, draft Draft) (Task, error) {
	valid, validationErr := draft.validate()
	if validationErr != nil {
		return Task{}, validationErr
	}
	now := service.Now()
	created, createErr := service.store.CreateTask(ctx, Task{
		ID:          service.newID(),
		OwnerID:     principal.IdentityID,
		Title:       valid.title,
		Description: valid.description,
		DueDate:     valid.dueDate,
		Priority:    valid.priority,
		Status:      valid.status,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if createErr != nil {
		return Task{}, createErr
	}
	service.logger.Debug("task created",
		zap.String("code", "tasks.create"),
		zap.String("task_id", created.ID),
		zap.String("identity_id", principal.IdentityID))
	return created, nil
}

// Update replaces the editable fields of a task. The status is kept when the
// draft does not name one.
func (service *Service) Update(ctx context.Context, principal authkit.Principal, taskID string, draft Draft) (Task, error) {
	existing, loadErr := service.load(ctx, principal, taskID)
	if loadErr != nil {
		return Task{}, loadErr
	}
	valid, validationErr := draft.validate()
	if validationErr != nil {
		return Task{}, validationErr
	}
	existing.Title = valid.title
	existing.Description = valid.description
	existing.DueDate = valid.dueDate
	existing.Priority = valid.priority
	if valid.hasStatus {
		existing.Status = valid.status
	}
	existing.UpdatedAt = service.Now()
	return service.store.UpdateTask(ctx, existing)
}

// ChangeStatus moves a task to the given status.
func (service *Service) ChangeStatus(ctx context.Context, principal authkit.Principal, taskID string, status Status) (Task, error) {
	existing, loadErr := service.load(ctx, principal, taskID)
	if loadErr != nil {
		return Task{}, loadErr
	}
	existing.Status = status
	existing.UpdatedAt = service.Now()
	return service.store.UpdateTask(ctx, existing)
}

// Delete removes a task owned by the principal.
func (service *Service) Delete(ctx context.Context, principal authkit.Principal, taskID string) error {
	if _, loadErr := service.load(ctx, principal, taskID); loadErr != nil {
		return loadErr
	}
	return service.store.DeleteTask(ctx, taskID)
}

func (service *Service) load(ctx context.Context, principal authkit.Principal, taskID string) (Task, error) {
	task, findErr := service.store.FindTask(ctx, taskID)
	if findErr != nil {
		return Task{}, findErr
	}
	if authorizeErr := service.guard.Authorize(task.OwnerID, principal); authorizeErr != nil {
		return Task{}, fmt.Errorf("tasks.%s: %w", taskID, authorizeErr)
	}
	return task, nil
}
