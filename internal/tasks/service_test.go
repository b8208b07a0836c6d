package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tyemirov/tasktrack/internal/authkit"
	"go.uber.org/zap/zaptest"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

// countingStore records which mutations reached the store.
type countingStore struct {
	Store
	updates int
	deletes int
}

func (store *countingStore) UpdateTask(ctx context.Context, task Task) (Task, error) {
	store.updates++
	return store.Store.UpdateTask(ctx, task)
}

func (store *countingStore) DeleteTask(ctx context.Context, taskID string) error {
	store.deletes++
	return store.Store.DeleteTask(ctx, taskID)
}

var (
	ownerA = authkit.Principal{IdentityID: "identity-a", Email: "a@x.com"}
	ownerB = authkit.Principal{IdentityID: "identity-b", Email: "b@x.com"}
)

func newTestService(t *testing.T, now time.Time) (*Service, *countingStore, *authkit.CounterMetrics) {
	t.Helper()
	store := &countingStore{Store: openTestStore(t)}
	metrics := authkit.NewCounterMetrics()
	service := NewService(store, authkit.NewAccessGuard(metrics, zaptest.NewLogger(t)), fixedClock{timestamp: now}, zaptest.NewLogger(t))
	return service, store, metrics
}

func TestServiceCreateAssignsOwnerAndDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	service, _, _ := newTestService(t, now)

	created, err := service.Create(context.Background(), ownerA, Draft{Title: "Write", Priority: "HIGH"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.OwnerID != ownerA.IdentityID {
		t.Fatalf("unexpected ownership %#v", created)
	}
	if created.Status != StatusTodo || !created.CreatedAt.Equal(now) {
		t.Fatalf("unexpected defaults %#v", created)
	}

	if _, err := service.Create(context.Background(), ownerA, Draft{Title: " ", Priority: "HIGH"}); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}

func TestServiceForeignTaskIsForbidden(t *testing.T) {
	service, store, metrics := newTestService(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	owned, err := service.Create(ctx, ownerA, Draft{Title: "Owned by A", Priority: "LOW"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := service.Get(ctx, ownerB, owned.ID); !errors.Is(err, authkit.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on get, got %v", err)
	}
	if _, err := service.Update(ctx, ownerB, owned.ID, Draft{Title: "Hijack", Priority: "LOW"}); !errors.Is(err, authkit.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on update, got %v", err)
	}
	if _, err := service.ChangeStatus(ctx, ownerB, owned.ID, StatusDone); !errors.Is(err, authkit.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on status change, got %v", err)
	}
	if err := service.Delete(ctx, ownerB, owned.ID); !errors.Is(err, authkit.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on delete, got %v", err)
	}
	if store.updates != 0 || store.deletes != 0 {
		t.Fatalf("expected no mutations, got %d updates and %d deletes", store.updates, store.deletes)
	}
	if metrics.Count("access.denied") != 4 {
		t.Fatalf("expected 4 denials, got %d", metrics.Count("access.denied"))
	}

	unchanged, err := service.Get(ctx, ownerA, owned.ID)
	if err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if unchanged.Title != "Owned by A" || unchanged.Status != StatusTodo {
		t.Fatalf("expected task to be unchanged, got %#v", unchanged)
	}
}

func TestServiceMissingTaskIsNotFoundBeforeOwnership(t *testing.T) {
	service, _, metrics := newTestService(t, time.Now().UTC())
	ctx := context.Background()

	if _, err := service.Get(ctx, ownerB, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if err := service.Delete(ctx, ownerB, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if metrics.Count("access.denied") != 0 {
		t.Fatalf("expected no access denials for missing tasks")
	}
}

func TestServiceUpdateKeepsStatusWhenOmitted(t *testing.T) {
	service, _, _ := newTestService(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	created, err := service.Create(ctx, ownerA, Draft{Title: "Draft", Priority: "LOW", Status: "IN_PROGRESS"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := service.Update(ctx, ownerA, created.ID, Draft{Title: "Final", Description: "details", Priority: "HIGH"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Final" || updated.Priority != PriorityHigh || updated.Status != StatusInProgress {
		t.Fatalf("unexpected update result %#v", updated)
	}

	done, err := service.ChangeStatus(ctx, ownerA, created.ID, StatusDone)
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if done.Status != StatusDone {
		t.Fatalf("expected DONE, got %s", done.Status)
	}
}

func TestServiceListOverdueUsesServiceClock(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	service, _, _ := newTestService(t, now)
	ctx := context.Background()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	if _, err := service.Create(ctx, ownerA, Draft{Title: "late", Priority: "LOW", DueDate: &past}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Create(ctx, ownerA, Draft{Title: "on time", Priority: "LOW", DueDate: &future}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Create(ctx, ownerB, Draft{Title: "someone else's", Priority: "LOW", DueDate: &past}); err != nil {
		t.Fatalf("create: %v", err)
	}

	overdue, err := service.ListOverdue(ctx, ownerA)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].Title != "late" {
		t.Fatalf("unexpected overdue tasks %#v", overdue)
	}
}
