package analysis

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCancelled      = errors.New("analysis cancelled")
	ErrTimeout        = errors.New("analysis timed out")
	ErrEngine         = errors.New("engine failure")
	ErrInvalidRequest = errors.New("invalid analysis request")
)

// Reason tells why a request was cancelled.
type Reason string

const (
	ReasonSuperseded Reason = "superseded"
	ReasonStopped    Reason = "stopped"
	ReasonContext    Reason = "context"
	ReasonClosed     Reason = "closed"
)

type CancelledError struct {
	RequestID uint64
	Reason    Reason
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("analysis %d cancelled: %s", e.RequestID, e.Reason)
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

type TimeoutError struct {
	RequestID uint64
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("analysis %d timed out after %s", e.RequestID, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// EngineError wraps a failure of the engine channel while a request was
// active.
type EngineError struct {
	RequestID uint64
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("analysis %d: engine: %v", e.RequestID, e.Err)
}

func (e *EngineError) Is(target error) bool {
	return target == ErrEngine
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
