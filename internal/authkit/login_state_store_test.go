package authkit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLoginStateStoreIssueAndConsume(t *testing.T) {
	t.Parallel()
	store := NewMemoryLoginStateStore(2 * time.Minute).(*memoryLoginStateStore)
	store.now = func() time.Time { return time.Unix(1000, 0) }

	state, err := store.Issue(context.Background(), "verifier-1")
	if err != nil {
		t.Fatalf("issue state: %v", err)
	}
	if state == "" {
		t.Fatalf("expected state")
	}

	verifier, err := store.Consume(context.Background(), state)
	if err != nil {
		t.Fatalf("consume state: %v", err)
	}
	if verifier != "verifier-1" {
		t.Fatalf("expected bound verifier, got %q", verifier)
	}

	if _, err := store.Consume(context.Background(), state); !errors.Is(err, ErrLoginStateNotFound) {
		t.Fatalf("expected ErrLoginStateNotFound, got %v", err)
	}
}

func TestMemoryLoginStateStoreExpiry(t *testing.T) {
	t.Parallel()
	store := NewMemoryLoginStateStore(time.Minute).(*memoryLoginStateStore)
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }

	state, err := store.Issue(context.Background(), "verifier-1")
	if err != nil {
		t.Fatalf("issue state: %v", err)
	}

	current = current.Add(2 * time.Minute)

	if _, err := store.Consume(context.Background(), state); !errors.Is(err, ErrLoginStateExpired) {
		t.Fatalf("expected ErrLoginStateExpired, got %v", err)
	}
}

func TestMemoryLoginStateStoreIssuesDistinctStates(t *testing.T) {
	t.Parallel()
	store := NewMemoryLoginStateStore(time.Minute)

	seen := make(map[string]struct{})
	for index := 0; index < 32; index++ {
		state, err := store.Issue(context.Background(), "verifier")
		if err != nil {
			t.Fatalf("issue state: %v", err)
		}
		if _, duplicate := seen[state]; duplicate {
			t.Fatalf("duplicate state issued: %s", state)
		}
		seen[state] = struct{}{}
	}
}
