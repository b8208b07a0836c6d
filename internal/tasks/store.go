package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tyemirov/tasktrack/internal/database"
	"gorm.io/gorm"
)

// Store persists tasks. Every listing is scoped to a single owner.
type Store interface {
	CreateTask(ctx context.Context, task Task) (Task, error)
	FindTask(ctx context.Context, taskID string) (Task, error)
	ListTasksByOwner(ctx context.Context, ownerID string) ([]Task, error)
	ListTasksByOwnerAndStatus(ctx context.Context, ownerID string, status Status) ([]Task, error)
	ListOverdueTasks(ctx context.Context, ownerID string, now time.Time) ([]Task, error)
	UpdateTask(ctx context.Context, task Task) (Task, error)
	DeleteTask(ctx context.Context, taskID string) error
}

// TaskRecord is the GORM model for tasks.
type TaskRecord struct {
	ID                string `gorm:"column:id;primaryKey"`
	OwnerID           string `gorm:"column:owner_id;index;not null"`
	Title             string `gorm:"column:title;not null"`
	Description       string `gorm:"column:description;not null;default:''"`
	DueDateUnix       *int64 `gorm:"column:due_date_unix;index"`
	Priority          string `gorm:"column:priority;not null"`
	Status            string `gorm:"column:status;not null;index"`
	CreatedAtUnixNano int64  `gorm:"column:created_at_unix_nano;not null"`
	UpdatedAtUnixNano int64  `gorm:"column:updated_at_unix_nano;not null"`
}

func (TaskRecord) TableName() string {
	return "tasks"
}

// GormStore implements Store using GORM.
type GormStore struct {
	db          *gorm.DB
	driverLabel string
}

// NewGormStore wraps an open GORM handle; the tasks table must be migrated.
func NewGormStore(gormDB *gorm.DB, driverLabel string) *GormStore {
	return &GormStore{db: gormDB, driverLabel: driverLabel}
}

// OpenGormStore connects to the database URL and migrates the tasks table.
func OpenGormStore(ctx context.Context, databaseURL string) (*GormStore, error) {
	gormDB, driverLabel, err := database.Open(ctx, databaseURL, &TaskRecord{})
	if err != nil {
		return nil, fmt.Errorf("task_store.open: %w", err)
	}
	return NewGormStore(gormDB, driverLabel), nil
}

// CreateTask inserts a new task row.
func (store *GormStore) CreateTask(ctx context.Context, task Task) (Task, error) {
	record := newTaskRecord(task)
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return Task{}, fmt.Errorf("task_store.create.%s: %w", store.driverLabel, err)
	}
	return record.toTask(), nil
}

// FindTask loads a task regardless of owner; ownership is checked by the caller.
func (store *GormStore) FindTask(ctx context.Context, taskID string) (Task, error) {
	var record TaskRecord
	err := store.db.WithContext(ctx).Where("id = ?", taskID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Task{}, fmt.Errorf("task_store.find.%s: %w", store.driverLabel, ErrTaskNotFound)
		}
		return Task{}, fmt.Errorf("task_store.find.%s: %w", store.driverLabel, err)
	}
	return record.toTask(), nil
}

// ListTasksByOwner returns the owner's tasks, newest first.
func (store *GormStore) ListTasksByOwner(ctx context.Context, ownerID string) ([]Task, error) {
	var records []TaskRecord
	err := store.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at_unix_nano DESC").
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("task_store.list.%s: %w", store.driverLabel, err)
	}
	return toTasks(records), nil
}

// ListTasksByOwnerAndStatus returns the owner's tasks in one status, newest first.
func (store *GormStore) ListTasksByOwnerAndStatus(ctx context.Context, ownerID string, status Status) ([]Task, error) {
	var records []TaskRecord
	err := store.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, string(status)).
		Order("created_at_unix_nano DESC").
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("task_store.list_status.%s: %w", store.driverLabel, err)
	}
	return toTasks(records), nil
}

// ListOverdueTasks returns the owner's unfinished tasks due before now, earliest due first.
func (store *GormStore) ListOverdueTasks(ctx context.Context, ownerID string, now time.Time) ([]Task, error) {
	var records []TaskRecord
	err := store.db.WithContext(ctx).
		Where("owner_id = ? AND due_date_unix IS NOT NULL AND due_date_unix < ? AND status <> ?", ownerID, now.Unix(), string(StatusDone)).
		Order("due_date_unix ASC").
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("task_store.list_overdue.%s: %w", store.driverLabel, err)
	}
	return toTasks(records), nil
}

// UpdateTask overwrites the editable fields of an existing task.
func (store *GormStore) UpdateTask(ctx context.Context, task Task) (Task, error) {
	record := newTaskRecord(task)
	result := store.db.WithContext(ctx).Model(&TaskRecord{}).Where("id = ?", record.ID).Updates(map[string]any{
		"title":                record.Title,
		"description":          record.Description,
		"due_date_unix":        record.DueDateUnix,
		"priority":             record.Priority,
		"status":               record.Status,
		"updated_at_unix_nano": record.UpdatedAtUnixNano,
	})
	if result.Error != nil {
		return Task{}, fmt.Errorf("task_store.update.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return Task{}, fmt.Errorf("task_store.update.%s: %w", store.driverLabel, ErrTaskNotFound)
	}
	return store.FindTask(ctx, record.ID)
}

// DeleteTask removes a task by id.
func (store *GormStore) DeleteTask(ctx context.Context, taskID string) error {
	result := store.db.WithContext(ctx).Where("id = ?", taskID).Delete(&TaskRecord{})
	if result.Error != nil {
		return fmt.Errorf("task_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task_store.delete.%s: %w", store.driverLabel, ErrTaskNotFound)
	}
	return nil
}

func newTaskRecord(task Task) TaskRecord {
	record := TaskRecord{
		ID:                task.ID,
		OwnerID:           task.OwnerID,
		Title:             task.Title,
		Description:       task.Description,
		Priority:          string(task.Priority),
		Status:            string(task.Status),
		CreatedAtUnixNano: task.CreatedAt.UnixNano(),
		UpdatedAtUnixNano: task.UpdatedAt.UnixNano(),
	}
	if task.DueDate != nil {
		dueUnix := task.DueDate.Unix()
		record.DueDateUnix = &dueUnix
	}
	return record
}

func (record TaskRecord) toTask() Task {
	task := Task{
		ID:          record.ID,
		OwnerID:     record.OwnerID,
		Title:       record.Title,
		Description: record.Description,
		Priority:    Priority(record.Priority),
		Status:      Status(record.Status),
		CreatedAt:   time.Unix(0, record.CreatedAtUnixNano).UTC(),
		UpdatedAt:   time.Unix(0, record.UpdatedAtUnixNano).UTC(),
	}
	if record.DueDateUnix != nil {
		due := time.Unix(*record.DueDateUnix, 0).UTC()
		task.DueDate = &due
	}
	return task
}

func toTasks(records []TaskRecord) []Task {
	result := make([]Task, 0, len(records))
	for _, record := range records {
		result = append(result, record.toTask())
	}
	return result
}
