package usecase

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
	"github.com/example/snapclassify/internal/picker"
	"github.com/example/snapclassify/internal/session"
)

// ErrClassification wraps failures of the classifier call.
var ErrClassification = errors.New("classification failed")

// HandleProvider exposes the classifier handle once it has been loaded.
type HandleProvider interface {
	Handle() (classifier.Classifier, error)
}

// SessionStore is the state holder the pipeline drives.
type SessionStore interface {
	Dispatch(ev session.Event) session.State
	Snapshot() session.State
}

// ClassificationUseCase orchestrates image selection and classification for one session.
type ClassificationUseCase struct {
	store       SessionStore
	handles     HandleProvider
	pickOptions picker.Options
	topK        int
	logger      *zap.Logger
	now         func() time.Time

	mu          sync.Mutex
	inflight    context.CancelFunc
	inflightGen uint64
	metrics     metricsCounter
}

// NewClassificationUseCase constructs a new use case instance.
func NewClassificationUseCase(store SessionStore, handles HandleProvider, pickOptions picker.Options, logger *zap.Logger) *ClassificationUseCase {
	return &ClassificationUseCase{
		store:       store,
		handles:     handles,
		pickOptions: pickOptions,
		topK:        1,
		logger:      logger.Named("classification_usecase"),
		now:         time.Now,
	}
}

// SelectImage runs the picker and, on a selection, classifies the new image.
// Failures are reflected in the returned state and never returned as errors.
func (uc *ClassificationUseCase) SelectImage(ctx context.Context, p picker.Picker) session.State {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.select_image", requestID)

	res, err := p.Pick(ctx, uc.pickOptions)
	switch {
	case errors.Is(err, picker.ErrPermissionDenied):
		opLogger.Warn("media access refused", zap.Error(err))
		return uc.store.Dispatch(session.PermissionDenied{Reason: err.Error()})
	case err != nil:
		wrapped := logging.NewOperationError("usecase.pick_image", requestID, err)
		opLogger.Error("image selection failed", zap.Error(wrapped))
		return uc.store.Dispatch(session.PickFailed{Reason: err.Error()})
	case res.Cancelled:
		opLogger.Info("image selection cancelled")
		return uc.store.Dispatch(session.PickCancelled{})
	}

	state, classifyCtx := uc.beginSelection(ctx, session.Image{
		Ref:         session.ImageRef(res.Image),
		ContentType: res.ContentType,
		Data:        res.RawBytes,
	})
	defer uc.release(state.Generation)
	opLogger.Info("image selected",
		zap.String("image", res.Image),
		zap.Int("bytes", len(res.RawBytes)),
		zap.Uint64("generation", state.Generation),
	)

	return uc.classify(classifyCtx, requestID, state.Generation, res.RawBytes)
}

// Classify runs the loaded classifier against image for the given session generation.
func (uc *ClassificationUseCase) Classify(ctx context.Context, generation uint64, image []byte) session.State {
	return uc.classify(ctx, uuid.NewString(), generation, image)
}

func (uc *ClassificationUseCase) classify(ctx context.Context, requestID string, generation uint64, image []byte) session.State {
	opLogger := logging.WithOperation(uc.logger, "usecase.classify", requestID).With(zap.Uint64("generation", generation))

	handle, err := uc.handles.Handle()
	if err != nil {
		opLogger.Warn("classification requested before model is ready", zap.Error(err))
		return uc.store.Dispatch(session.ModelNotReady{Generation: generation})
	}

	uc.store.Dispatch(session.AnalysisStarted{Generation: generation})
	start := uc.now()

	pred, err := uc.invoke(ctx, handle, image)
	latency := uc.now().Sub(start)
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		if current := uc.store.Snapshot(); current.Generation != generation {
			opLogger.Info("classification superseded by a newer selection", zap.Uint64("current_generation", current.Generation))
			return current
		}
		opLogger.Warn("classification cancelled by caller", zap.Error(logging.NewSessionError("usecase.classify", requestID, generation, err)))
		return uc.store.Dispatch(session.AnalysisFailed{Generation: generation, Reason: err.Error()})
	}
	if err != nil {
		wrapped := logging.NewSessionError("usecase.classify", requestID, generation, fmt.Errorf("%w: %w", ErrClassification, err))
		opLogger.Error("classification failed", zap.Error(wrapped), zap.Duration("latency", latency))
		uc.record(false, 0, latency)
		return uc.store.Dispatch(session.AnalysisFailed{Generation: generation, Reason: err.Error()})
	}

	opLogger.Info("classification complete",
		zap.String("label", pred.Label),
		zap.Float64("score", pred.Score),
		zap.Duration("latency", latency),
	)
	uc.record(true, pred.Score, latency)
	return uc.store.Dispatch(session.AnalysisSucceeded{
		Generation: generation,
		Prediction: session.Prediction{Label: pred.Label, Score: pred.Score},
	})
}

func (uc *ClassificationUseCase) invoke(ctx context.Context, handle classifier.Classifier, image []byte) (classifier.Prediction, error) {
	if len(image) == 0 {
		return classifier.Prediction{}, errors.New("no image data")
	}
	preds, err := handle.Classify(ctx, image, classifier.InvokeOptions{TopK: uc.topK})
	if err != nil {
		return classifier.Prediction{}, err
	}
	if len(preds) == 0 {
		return classifier.Prediction{}, fmt.Errorf("%w: classifier returned no predictions", classifier.ErrInvalidPrediction)
	}
	if err := classifier.Validate(preds[0]); err != nil {
		return classifier.Prediction{}, err
	}
	return preds[0], nil
}

// beginSelection publishes img and takes over the in-flight slot under one
// lock, so a slower, older selection can never cancel a newer one.
func (uc *ClassificationUseCase) beginSelection(ctx context.Context, img session.Image) (session.State, context.Context) {
	next, cancel := context.WithCancel(ctx)

	uc.mu.Lock()
	state := uc.store.Dispatch(session.ImageSelected{Image: img})
	prev := uc.inflight
	uc.inflight, uc.inflightGen = cancel, state.Generation
	uc.mu.Unlock()

	if prev != nil {
		prev()
	}
	return state, next
}

// release frees the context of generation once its classification returned.
func (uc *ClassificationUseCase) release(generation uint64) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.inflight != nil && uc.inflightGen == generation {
		uc.inflight()
		uc.inflight = nil
	}
}

// Reset clears the selected image and prediction.
func (uc *ClassificationUseCase) Reset() session.State {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.inflight != nil {
		uc.inflight()
		uc.inflight = nil
	}
	return uc.store.Dispatch(session.Reset{})
}

// Snapshot returns the current session state.
func (uc *ClassificationUseCase) Snapshot() session.State {
	return uc.store.Snapshot()
}

// DenyMediaAccess records a refused media-library request on the session.
func (uc *ClassificationUseCase) DenyMediaAccess(reason string) session.State {
	return uc.SelectImage(context.Background(), picker.UploadPicker{Denied: errors.New(reason)})
}
