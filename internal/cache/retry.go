package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/logging"
)

// Retrying retries transient failures of the wrapped cache with exponential backoff.
type Retrying struct {
	inner          Cache
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRetrying wraps inner with three attempts starting at 50ms backoff.
func NewRetrying(inner Cache, logger *zap.Logger) *Retrying {
	return &Retrying{
		inner:          inner,
		logger:         logger.Named("cache"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Set writes through to the wrapped cache.
func (r *Retrying) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return r.executeWithRetry(ctx, "cache.set", key, func() error {
		return r.inner.Set(ctx, key, value, expiration)
	})
}

// Get reads from the wrapped cache. Misses are returned as ErrMiss without retrying.
func (r *Retrying) Get(ctx context.Context, key string) (string, error) {
	var result string
	err := r.executeWithRetry(ctx, "cache.get", key, func() error {
		value, err := r.inner.Get(ctx, key)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func (r *Retrying) executeWithRetry(ctx context.Context, operation, key string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, key, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, key)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, key, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, ErrMiss) {
			return err
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("cache operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, key, err)
		}

		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, key, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
