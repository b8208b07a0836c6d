package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Status tracks a task through its lifecycle.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

var (
	// ErrTaskNotFound indicates no task has the requested id.
	ErrTaskNotFound = errors.New("tasks.not_found")
	// ErrInvalidTask indicates the submitted task fields failed validation.
	ErrInvalidTask = errors.New("tasks.invalid")
)

// ParsePriority accepts the upper-case priority names.
func ParsePriority(raw string) (Priority, error) {
	switch candidate := Priority(strings.ToUpper(strings.TrimSpace(raw))); candidate {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, raw)
	}
}

// ParseStatus accepts the upper-case status names.
func ParseStatus(raw string) (Status, error) {
	switch candidate := Status(strings.ToUpper(strings.TrimSpace(raw))); candidate {
	case StatusTodo, StatusInProgress, StatusDone:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTask, raw)
	}
}

// Task is a unit of work owned by exactly one identity.
type Task struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	DueDate     *time.Time
	Priority    Priority
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Overdue reports whether the task is past due and not yet done.
func (task Task) Overdue(now time.Time) bool {
	return task.DueDate != nil && task.DueDate.Before(now) && task.Status != StatusDone
}

// Draft carries the caller-editable fields of a task.
type Draft struct {
	Title       string
	Description string
	DueDate     *time.Time
	Priority    string
	Status      string
}

type validDraft struct {
	title       string
	description string
	dueDate     *time.Time
	priority    Priority
	status      Status
	hasStatus   bool
}

func (draft Draft) validate() (validDraft, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return validDraft{}, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if strings.TrimSpace(draft.Priority) == "" {
		return validDraft{}, fmt.Errorf("%w: priority is required", ErrInvalidTask)
	}
	priority, priorityErr := ParsePriority(draft.Priority)
	if priorityErr != nil {
		return validDraft{}, priorityErr
	}
	result := validDraft{
		title:       title,
		description: draft.Description,
		priority:    priority,
		status:      StatusTodo,
	}
	if draft.DueDate != nil {
		due := draft.DueDate.UTC()
		result.dueDate = &due
	}
	if strings.TrimSpace(draft.Status) != "" {
		status, statusErr := ParseStatus(draft.Status)
		if statusErr != nil {
			return validDraft{}, statusErr
		}
		result.status = status
		result.hasStatus = true
	}
	return result, nil
}
