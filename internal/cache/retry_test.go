package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/logging"
)

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

func newTestRetrying(attempts int) *Retrying {
	return &Retrying{
		logger:         zap.NewNop(),
		retryAttempts:  attempts,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}
}

func TestExecuteWithRetryRetriesTransientErrors(t *testing.T) {
	r := newTestRetrying(3)

	attempts := 0
	err := r.executeWithRetry(context.Background(), "test.operation", "key-1", func() error {
		attempts++
		if attempts < 2 {
			return transientTestError{}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteWithRetryReturnsOperationError(t *testing.T) {
	r := newTestRetrying(2)

	attempts := 0
	err := r.executeWithRetry(context.Background(), "test.operation", "key-2", func() error {
		attempts++
		return errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "test.operation" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if opErr.RequestID != "key-2" {
		t.Fatalf("unexpected key: %s", opErr.RequestID)
	}
}

func TestGetDoesNotRetryMiss(t *testing.T) {
	r := NewRetrying(NewMemoryCache(time.Minute, time.Minute), zap.NewNop())

	if _, err := r.Get(context.Background(), "absent"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}

	if err := r.Set(context.Background(), "present", "value", time.Minute); err != nil {
		t.Fatalf("expected set to succeed, got %v", err)
	}
	got, err := r.Get(context.Background(), "present")
	if err != nil || got != "value" {
		t.Fatalf("expected cached value, got %q (%v)", got, err)
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	if err := c.Set(context.Background(), "k", "v", time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := c.Get(context.Background(), "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}
