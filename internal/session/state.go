// Package session holds the observable state of one classification session
// and the pure reducer that moves it between statuses.
package session

import "fmt"

// Status is the lifecycle position of a session.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusModelFailed
	StatusPermissionDenied
	StatusPickerFailed
	StatusModelNotReady
	StatusAnalyzing
	StatusComplete
	StatusAnalysisFailed
)

var statusNames = map[Status]string{
	StatusIdle:             "idle",
	StatusLoading:          "loading",
	StatusReady:            "ready",
	StatusModelFailed:      "model_failed",
	StatusPermissionDenied: "permission_denied",
	StatusPickerFailed:     "picker_failed",
	StatusModelNotReady:    "model_not_ready",
	StatusAnalyzing:        "analyzing",
	StatusComplete:         "complete",
	StatusAnalysisFailed:   "analysis_failed",
}

var statusText = map[Status]string{
	StatusIdle:             "Idle",
	StatusLoading:          "Loading model...",
	StatusReady:            "Ready",
	StatusModelFailed:      "Failed to load model",
	StatusPermissionDenied: "Media library permission denied",
	StatusPickerFailed:     "Failed to select image",
	StatusModelNotReady:    "Model not loaded yet",
	StatusAnalyzing:        "Analyzing...",
	StatusComplete:         "Analysis complete",
	StatusAnalysisFailed:   "Analysis failed",
}

// NoticeCancelled is shown when the picker returns without an image.
const NoticeCancelled = "Image selection canceled or invalid"

// String returns the machine-readable status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Text returns the human-readable status line.
func (s Status) Text() string {
	return statusText[s]
}

// MarshalText lets statuses serialize by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ImageRef is an opaque handle to a picked image (file path or upload id).
type ImageRef string

// Image is the currently selected image.
type Image struct {
	Ref         ImageRef
	ContentType string
	Data        []byte
}

// Prediction is the top label produced by a classifier.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Percent formats the score the way the status screen shows it.
func (p Prediction) Percent() string {
	return fmt.Sprintf("%.2f%%", p.Score*100)
}

// ResultKind tags the outcome of the current analysis.
type ResultKind int

const (
	ResultNone ResultKind = iota
	ResultPending
	ResultSuccess
	ResultFailed
)

func (k ResultKind) String() string {
	switch k {
	case ResultPending:
		return "pending"
	case ResultSuccess:
		return "success"
	case ResultFailed:
		return "failed"
	default:
		return "none"
	}
}

// Result separates "no prediction yet" from "prediction failed".
type Result struct {
	Kind       ResultKind
	Prediction Prediction
	Reason     string
}

// ModelState tracks the loader outcome apart from the pick status, so a
// late load failure is never hidden behind a selection or reset.
type ModelState int

const (
	ModelUnloaded ModelState = iota
	ModelLoading
	ModelReady
	ModelFailed
)

func (m ModelState) String() string {
	switch m {
	case ModelLoading:
		return "loading"
	case ModelReady:
		return "loaded"
	case ModelFailed:
		return "failed"
	default:
		return "unloaded"
	}
}

// MarshalText lets model states serialize by name.
func (m ModelState) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// State is one immutable snapshot of a session. Reduce never mutates its input.
type State struct {
	Status     Status
	Model      ModelState
	Notice     string
	Image      *Image
	Result     Result
	Generation uint64
}

// New returns the state of a session whose model loader has not started.
func New() State {
	return State{Status: StatusIdle}
}

// Prediction reports the stored prediction when the analysis completed.
func (s State) Prediction() (Prediction, bool) {
	if s.Status != StatusComplete || s.Result.Kind != ResultSuccess {
		return Prediction{}, false
	}
	return s.Result.Prediction, true
}

// HasImage reports whether an image is selected.
func (s State) HasImage() bool {
	return s.Image != nil
}
