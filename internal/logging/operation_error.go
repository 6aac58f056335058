package logging

import (
	"fmt"
	"strings"
)

// OperationError annotates an error with the operation that failed, the
// request it belonged to and, for session work, the image generation.
type OperationError struct {
	Operation  string
	RequestID  string
	Generation uint64
	Err        error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var tags []string
	if e.RequestID != "" {
		tags = append(tags, "request_id="+e.RequestID)
	}
	if e.Generation != 0 {
		tags = append(tags, fmt.Sprintf("generation=%d", e.Generation))
	}
	if len(tags) == 0 {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Operation, strings.Join(tags, " "), e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err with the operation and request it occurred in.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// NewSessionError is NewOperationError for work tied to one image generation.
func NewSessionError(operation, requestID string, generation uint64, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Generation: generation, Err: err}
}
