// Package loader acquires the classifier handle once per process and
// publishes it to the rest of the pipeline.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/logging"
	"github.com/example/snapclassify/internal/session"
)

// DefaultModelID is the model requested when none is configured.
const DefaultModelID = "Factral/test25"

var (
	// ErrModelLoad wraps any failure to acquire the classifier.
	ErrModelLoad = errors.New("model load failed")
	// ErrModelNotReady is returned while no handle has been published.
	ErrModelNotReady = errors.New("model not ready")
	// ErrAlreadyStarted is returned by Load when acquisition already ran or is running.
	ErrAlreadyStarted = errors.New("model loader already started")
)

// Dispatcher receives lifecycle events.
type Dispatcher interface {
	Dispatch(ev session.Event) session.State
}

// Config selects the model to acquire.
type Config struct {
	Task      string
	ModelID   string
	Quantized bool
}

// Decorator wraps a freshly acquired handle before it is published.
type Decorator func(classifier.Classifier) classifier.Classifier

// Loader is a one-shot future for the classifier handle.
type Loader struct {
	registry   classifier.Registry
	cfg        Config
	dispatcher Dispatcher
	decorate   []Decorator
	logger     *zap.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
	handle  classifier.Classifier
	err     error
}

// New constructs a loader. Nothing is acquired until Start or Load is called.
func New(registry classifier.Registry, cfg Config, dispatcher Dispatcher, logger *zap.Logger, decorate ...Decorator) *Loader {
	if cfg.Task == "" {
		cfg.Task = classifier.TaskImageClassification
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	return &Loader{
		registry:   registry,
		cfg:        cfg,
		dispatcher: dispatcher,
		decorate:   decorate,
		logger:     logger.Named("model_loader"),
		done:       make(chan struct{}),
	}
}

// ModelID returns the identifier the loader acquires.
func (l *Loader) ModelID() string {
	return l.cfg.ModelID
}

// Start launches acquisition in the background. It returns false when the
// loader was already started.
func (l *Loader) Start(ctx context.Context) bool {
	if !l.claim() {
		return false
	}
	go l.run(ctx)
	return true
}

// Load acquires the handle synchronously.
func (l *Loader) Load(ctx context.Context) (classifier.Classifier, error) {
	if !l.claim() {
		return nil, ErrAlreadyStarted
	}
	l.run(ctx)
	return l.Handle()
}

func (l *Loader) claim() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return false
	}
	l.started = true
	return true
}

func (l *Loader) run(ctx context.Context) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(l.logger, "loader.acquire", requestID).With(
		zap.String("model_id", l.cfg.ModelID),
		zap.String("task", l.cfg.Task),
		zap.Bool("quantized", l.cfg.Quantized),
	)
	l.dispatch(session.ModelLoadStarted{})
	start := time.Now()

	handle, err := l.registry.Acquire(ctx, l.cfg.Task, l.cfg.ModelID, classifier.AcquireOptions{Quantized: l.cfg.Quantized})
	if err == nil && handle == nil {
		err = errors.New("registry returned no classifier")
	}
	if err != nil {
		wrapped := logging.NewOperationError("loader.acquire", requestID, fmt.Errorf("%w: %w", ErrModelLoad, err))
		opLogger.Error("failed to load model", zap.Error(wrapped))
		l.publish(nil, wrapped, session.ModelLoadFailed{Reason: err.Error()})
		return
	}

	for _, d := range l.decorate {
		handle = d(handle)
	}
	opLogger.Info("model loaded", zap.Duration("elapsed", time.Since(start)))
	l.publish(handle, nil, session.ModelLoaded{})
}

// publish makes the outcome visible to Handle, then to the session, and
// only then releases waiters.
func (l *Loader) publish(handle classifier.Classifier, err error, ev session.Event) {
	l.mu.Lock()
	l.handle = handle
	l.err = err
	l.mu.Unlock()
	l.dispatch(ev)
	close(l.done)
}

func (l *Loader) dispatch(ev session.Event) {
	if l.dispatcher != nil {
		l.dispatcher.Dispatch(ev)
	}
}

// Done is closed once acquisition finished, successfully or not.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// Ready reports whether a handle is available.
func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle != nil
}

// Handle returns the published classifier without blocking. While loading,
// and after a failed load, the error matches ErrModelNotReady.
func (l *Loader) Handle() (classifier.Classifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle != nil {
		return l.handle, nil
	}
	if l.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelNotReady, l.err)
	}
	return nil, ErrModelNotReady
}

// Wait blocks until acquisition finished or ctx is done.
func (l *Loader) Wait(ctx context.Context) (classifier.Classifier, error) {
	select {
	case <-l.done:
		return l.Handle()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
