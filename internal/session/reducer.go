package session

// Event is a transition input for Reduce.
type Event interface {
	event()
}

type (
	ModelLoadStarted struct{}
	ModelLoaded      struct{}
	ModelLoadFailed  struct{ Reason string }
	PickCancelled    struct{}
	PermissionDenied struct{ Reason string }
	PickFailed       struct{ Reason string }
	ImageSelected    struct{ Image Image }
	ModelNotReady    struct{ Generation uint64 }
	AnalysisStarted  struct{ Generation uint64 }
	Reset            struct{}

	AnalysisSucceeded struct {
		Generation uint64
		Prediction Prediction
	}
	AnalysisFailed struct {
		Generation uint64
		Reason     string
	}
)

func (ModelLoadStarted) event()  {}
func (ModelLoaded) event()       {}
func (ModelLoadFailed) event()   {}
func (PickCancelled) event()     {}
func (PermissionDenied) event()  {}
func (PickFailed) event()        {}
func (ImageSelected) event()     {}
func (ModelNotReady) event()     {}
func (AnalysisStarted) event()   {}
func (AnalysisSucceeded) event() {}
func (AnalysisFailed) event()    {}
func (Reset) event()             {}

// Reduce applies ev to s and returns the next state. Analysis events whose
// generation is not the current one are stale and leave s unchanged.
func Reduce(s State, ev Event) State {
	next := s
	next.Notice = ""

	switch e := ev.(type) {
	case ModelLoadStarted:
		if s.Model != ModelUnloaded {
			return s
		}
		next.Model = ModelLoading
		if s.Status == StatusIdle {
			next.Status = StatusLoading
		}

	case ModelLoaded:
		if s.Model == ModelFailed {
			return s
		}
		next.Model = ModelReady
		switch s.Status {
		case StatusIdle, StatusLoading, StatusModelNotReady:
			next.Status = StatusReady
		}

	case ModelLoadFailed:
		if s.Model == ModelReady {
			return s
		}
		// no handle was ever published, so nothing picked since can be analysing
		next.Model = ModelFailed
		next.Status = StatusModelFailed
		next.Notice = e.Reason

	case PickCancelled:
		next.Notice = NoticeCancelled

	case PermissionDenied:
		next.Status = StatusPermissionDenied
		next.Notice = e.Reason

	case PickFailed:
		next.Status = StatusPickerFailed
		next.Notice = e.Reason

	case ImageSelected:
		img := e.Image
		next.Image = &img
		next.Result = Result{}
		next.Generation = s.Generation + 1

	case ModelNotReady:
		if e.Generation != s.Generation {
			return s
		}
		next.Status = StatusModelNotReady
		next.Result = Result{}

	case AnalysisStarted:
		if e.Generation != s.Generation {
			return s
		}
		next.Status = StatusAnalyzing
		next.Result = Result{Kind: ResultPending}

	case AnalysisSucceeded:
		if e.Generation != s.Generation {
			return s
		}
		next.Status = StatusComplete
		next.Result = Result{Kind: ResultSuccess, Prediction: e.Prediction}

	case AnalysisFailed:
		if e.Generation != s.Generation {
			return s
		}
		next.Status = StatusAnalysisFailed
		next.Result = Result{Kind: ResultFailed, Reason: e.Reason}

	case Reset:
		next.Status = StatusReady
		next.Image = nil
		next.Result = Result{}
		next.Generation = s.Generation + 1

	default:
		return s
	}

	return next
}
