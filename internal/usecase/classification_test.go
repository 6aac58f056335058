package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/loader"
	"github.com/example/snapclassify/internal/picker"
	"github.com/example/snapclassify/internal/session"
)

type stubPicker struct {
	result picker.Result
	err    error
	opts   picker.Options
}

func (s *stubPicker) Pick(ctx context.Context, opts picker.Options) (picker.Result, error) {
	s.opts = opts
	return s.result, s.err
}

type stubHandles struct {
	handle classifier.Classifier
}

func (s *stubHandles) Handle() (classifier.Classifier, error) {
	if s.handle == nil {
		return nil, loader.ErrModelNotReady
	}
	return s.handle, nil
}

type stubClassifier struct {
	mu    sync.Mutex
	preds []classifier.Prediction
	err   error
	calls int
	opts  classifier.InvokeOptions
}

func (s *stubClassifier) Classify(ctx context.Context, image []byte, opts classifier.InvokeOptions) ([]classifier.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.opts = opts
	return s.preds, s.err
}

func readyStore() *session.Store {
	store := session.NewStore(zap.NewNop())
	store.Dispatch(session.ModelLoadStarted{})
	store.Dispatch(session.ModelLoaded{})
	return store
}

func picked(ref string) *stubPicker {
	return &stubPicker{result: picker.Result{Image: ref, ContentType: "image/jpeg", RawBytes: []byte("jpeg-" + ref)}}
}

func TestSelectImageClassifiesWithTopOne(t *testing.T) {
	cls := &stubClassifier{preds: []classifier.Prediction{{Label: "cat", Score: 0.92}}}
	uc := NewClassificationUseCase(readyStore(), &stubHandles{handle: cls}, picker.DefaultOptions(), zap.NewNop())
	p := picked("A")

	state := uc.SelectImage(context.Background(), p)

	if state.Status != session.StatusComplete {
		t.Fatalf("expected complete, got %s", state.Status)
	}
	if state.Image == nil || state.Image.Ref != "A" {
		t.Fatalf("expected image A, got %+v", state.Image)
	}
	pred, ok := state.Prediction()
	if !ok || pred.Label != "cat" || pred.Score != 0.92 {
		t.Fatalf("unexpected prediction %+v (%v)", pred, ok)
	}
	if cls.opts.TopK != 1 {
		t.Fatalf("expected topK=1, got %d", cls.opts.TopK)
	}
	if !p.opts.AllowEditing || p.opts.AspectRatio != (picker.AspectRatio{Width: 4, Height: 3}) || p.opts.Quality != 1 || !p.opts.ReturnRawBytes {
		t.Fatalf("unexpected picker options %+v", p.opts)
	}
}

func TestSelectImageWithoutModelReportsNotReady(t *testing.T) {
	store := session.NewStore(zap.NewNop())
	store.Dispatch(session.ModelLoadStarted{})
	uc := NewClassificationUseCase(store, &stubHandles{}, picker.DefaultOptions(), zap.NewNop())

	state := uc.SelectImage(context.Background(), picked("B"))

	if state.Status != session.StatusModelNotReady {
		t.Fatalf("expected model not ready, got %s", state.Status)
	}
	if state.Image == nil || state.Image.Ref != "B" {
		t.Fatalf("expected image B to be kept, got %+v", state.Image)
	}
	if _, ok := state.Prediction(); ok {
		t.Fatal("expected no prediction")
	}
}

func TestSelectImageClassifierFailure(t *testing.T) {
	cls := &stubClassifier{err: errors.New("inference exploded")}
	uc := NewClassificationUseCase(readyStore(), &stubHandles{handle: cls}, picker.DefaultOptions(), zap.NewNop())

	state := uc.SelectImage(context.Background(), picked("C"))

	if state.Status != session.StatusAnalysisFailed {
		t.Fatalf("expected analysis failed, got %s", state.Status)
	}
	if state.Image.Ref != "C" {
		t.Fatalf("expected image C, got %s", state.Image.Ref)
	}
	if state.Result.Kind != session.ResultFailed || state.Result.Reason != "inference exploded" {
		t.Fatalf("unexpected result %+v", state.Result)
	}
	summary := uc.GetMetricsSummary()
	if summary.TotalRequests != 1 || summary.SuccessfulRequests != 0 {
		t.Fatalf("unexpected metrics %+v", summary)
	}
}

func TestSelectImageRejectsInvalidPrediction(t *testing.T) {
	cases := map[string][]classifier.Prediction{
		"empty":       nil,
		"no label":    {{Label: "", Score: 0.5}},
		"score range": {{Label: "cat", Score: 1.5}},
	}
	for name, preds := range cases {
		t.Run(name, func(t *testing.T) {
			cls := &stubClassifier{preds: preds}
			uc := NewClassificationUseCase(readyStore(), &stubHandles{handle: cls}, picker.DefaultOptions(), zap.NewNop())
			if state := uc.SelectImage(context.Background(), picked("D")); state.Status != session.StatusAnalysisFailed {
				t.Fatalf("expected analysis failed, got %s", state.Status)
			}
		})
	}
}

func TestSelectImageCancelledKeepsState(t *testing.T) {
	cls := &stubClassifier{preds: []classifier.Prediction{{Label: "cat", Score: 0.8}}}
	uc := NewClassificationUseCase(readyStore(), &stubHandles{handle: cls}, picker.DefaultOptions(), zap.NewNop())
	before := uc.SelectImage(context.Background(), picked("A"))

	after := uc.SelectImage(context.Background(), &stubPicker{result: picker.Result{Cancelled: true}})

	if after.Status != before.Status || after.Image != before.Image || after.Result != before.Result {
		t.Fatalf("expected unchanged state, got %+v", after)
	}
	if after.Notice != session.NoticeCancelled {
		t.Fatalf("expected cancel notice, got %q", after.Notice)
	}
	if cls.calls != 1 {
		t.Fatalf("expected no new classification, got %d calls", cls.calls)
	}
}

func TestSelectImagePickerErrors(t *testing.T) {
	uc := NewClassificationUseCase(readyStore(), &stubHandles{}, picker.DefaultOptions(), zap.NewNop())

	state := uc.SelectImage(context.Background(), &stubPicker{err: picker.ErrPermissionDenied})
	if state.Status != session.StatusPermissionDenied {
		t.Fatalf("expected permission denied, got %s", state.Status)
	}

	state = uc.SelectImage(context.Background(), &stubPicker{err: picker.ErrUnsupportedMedia})
	if state.Status != session.StatusPickerFailed {
		t.Fatalf("expected picker failed, got %s", state.Status)
	}
	if state.Image != nil {
		t.Fatal("expected no image after a failed pick")
	}
}

func TestResetClearsSession(t *testing.T) {
	cls := &stubClassifier{preds: []classifier.Prediction{{Label: "cat", Score: 0.8}}}
	uc := NewClassificationUseCase(readyStore(), &stubHandles{handle: cls}, picker.DefaultOptions(), zap.NewNop())
	uc.SelectImage(context.Background(), picked("A"))

	state := uc.Reset()

	if state.Status != session.StatusReady || state.Image != nil || state.Result.Kind != session.ResultNone {
		t.Fatalf("unexpected state after reset: %+v", state)
	}
	if uc.Snapshot().Status != session.StatusReady {
		t.Fatal("expected snapshot to reflect reset")
	}
}

type blockingClassifier struct {
	started chan struct{}
}

func (b *blockingClassifier) Classify(ctx context.Context, image []byte, opts classifier.InvokeOptions) ([]classifier.Prediction, error) {
	if string(image) == "jpeg-slow" {
		close(b.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []classifier.Prediction{{Label: "fresh", Score: 0.6}}, nil
}

func TestNewSelectionSupersedesInFlightClassification(t *testing.T) {
	cls := &blockingClassifier{started: make(chan struct{})}
	uc := NewClassificationUseCase(readyStore(), &stubHandles{handle: cls}, picker.DefaultOptions(), zap.NewNop())

	done := make(chan session.State, 1)
	go func() { done <- uc.SelectImage(context.Background(), picked("slow")) }()

	select {
	case <-cls.started:
	case <-time.After(2 * time.Second):
		t.Fatal("slow classification did not start")
	}

	state := uc.SelectImage(context.Background(), picked("fast"))
	if state.Status != session.StatusComplete || state.Image.Ref != "fast" {
		t.Fatalf("expected fresh result, got %+v", state)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded classification did not return")
	}

	final := uc.Snapshot()
	pred, ok := final.Prediction()
	if !ok || pred.Label != "fresh" || final.Image.Ref != "fast" {
		t.Fatalf("stale result leaked into session: %+v", final)
	}
	if summary := uc.GetMetricsSummary(); summary.TotalRequests != 1 {
		t.Fatalf("expected superseded run to be excluded from metrics, got %+v", summary)
	}
}

// hookStore lets a test run code right after an event was applied.
type hookStore struct {
	*session.Store
	onDispatch func(ev session.Event)
}

func (h *hookStore) Dispatch(ev session.Event) session.State {
	state := h.Store.Dispatch(ev)
	if h.onDispatch != nil {
		h.onDispatch(ev)
	}
	return state
}

func TestOverlappingSelectionsNewestWins(t *testing.T) {
	cls := classifier.ClassifierFunc(func(ctx context.Context, image []byte, opts classifier.InvokeOptions) ([]classifier.Prediction, error) {
		if string(image) == "jpeg-older" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []classifier.Prediction{{Label: "newer", Score: 0.7}}, nil
	})
	store := &hookStore{Store: readyStore()}
	uc := NewClassificationUseCase(store, &stubHandles{handle: cls}, picker.DefaultOptions(), zap.NewNop())

	newerSelected := make(chan struct{})
	newerDone := make(chan session.State, 1)
	var once sync.Once
	store.onDispatch = func(ev session.Event) {
		sel, ok := ev.(session.ImageSelected)
		if !ok {
			return
		}
		switch sel.Image.Ref {
		case "older":
			once.Do(func() {
				go func() { newerDone <- uc.SelectImage(context.Background(), picked("newer")) }()
				// let the newer selection try to overtake the older one
				select {
				case <-newerSelected:
				case <-time.After(100 * time.Millisecond):
				}
			})
		case "newer":
			close(newerSelected)
		}
	}

	olderDone := make(chan session.State, 1)
	go func() { olderDone <- uc.SelectImage(context.Background(), picked("older")) }()

	for _, ch := range []chan session.State{olderDone, newerDone} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("selection did not return")
		}
	}

	final := uc.Snapshot()
	pred, ok := final.Prediction()
	if !ok || pred.Label != "newer" || final.Image.Ref != "newer" {
		t.Fatalf("expected the newest selection to win, got %+v", final)
	}
	if final.Status != session.StatusComplete {
		t.Fatalf("expected complete, got %s", final.Status)
	}
}

func TestCallerCancellationFailsCurrentAnalysis(t *testing.T) {
	cls := &blockingClassifier{started: make(chan struct{})}
	uc := NewClassificationUseCase(readyStore(), &stubHandles{handle: cls}, picker.DefaultOptions(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan session.State, 1)
	go func() { done <- uc.SelectImage(ctx, picked("slow")) }()

	select {
	case <-cls.started:
	case <-time.After(2 * time.Second):
		t.Fatal("classification did not start")
	}
	cancel()

	var state session.State
	select {
	case state = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled classification did not return")
	}
	if state.Status != session.StatusAnalysisFailed || state.Result.Reason != context.Canceled.Error() {
		t.Fatalf("expected cancelled analysis to fail, got %+v", state)
	}
	if state.Image == nil || state.Image.Ref != "slow" {
		t.Fatalf("expected image to be kept, got %+v", state.Image)
	}
	if summary := uc.GetMetricsSummary(); summary.TotalRequests != 0 {
		t.Fatalf("expected cancellation to be excluded from metrics, got %+v", summary)
	}
}
