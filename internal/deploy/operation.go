// Package deploy drives the platform package deployment service: it orders
// artifacts so frameworks install before the apps that need them and turns
// the service's completion callbacks into blocking calls.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the state reported by a deployment operation.
type Status int

const (
	StatusStarted Status = iota
	StatusCompleted
	StatusCanceled
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusCompleted:
		return "completed"
	case StatusCanceled:
		return "canceled"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// terminal reports whether no further callbacks follow s.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusError
}

// Result carries the service's error code and text. Code 0 means success.
type Result struct {
	Code    int
	Message string
}

// Operation is an in-flight deployment. The handler runs once the operation
// reaches a status; it may run immediately if that already happened.
type Operation interface {
	OnCompleted(func(Status, Result))
}

var (
	// ErrCanceled means the deployment service canceled the operation.
	ErrCanceled = errors.New("deployment canceled")
	// ErrTimeout means the operation did not finish in time.
	ErrTimeout = errors.New("deployment timed out")
)

// Error is a deployment failure reported by the service.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("deployment failed with code 0x%08X", uint32(e.Code))
	}
	return fmt.Sprintf("deployment failed with code 0x%08X: %s", uint32(e.Code), e.Message)
}

// Await blocks until op reaches a terminal status, ctx is done or timeout
// elapses. A timeout of zero waits without limit. Success requires
// StatusCompleted with code 0.
func Await(ctx context.Context, op Operation, timeout time.Duration) error {
	type outcome struct {
		status Status
		result Result
	}
	done := make(chan outcome, 1)

	op.OnCompleted(func(s Status, r Result) {
		if !s.terminal() {
			return
		}
		select {
		case done <- outcome{s, r}:
		default:
		}
	})

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case o := <-done:
		return outcomeError(o.status, o.result)
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

func outcomeError(s Status, r Result) error {
	switch s {
	case StatusCompleted:
		if r.Code == 0 {
			return nil
		}
		return &Error{Code: r.Code, Message: r.Message}
	case StatusCanceled:
		return ErrCanceled
	default:
		return &Error{Code: r.Code, Message: r.Message}
	}
}

// AsyncOperation is an Operation completed by its producer.
type AsyncOperation struct {
	mu       sync.Mutex
	done     bool
	status   Status
	result   Result
	handlers []func(Status, Result)
}

// NewOperation returns a pending operation.
func NewOperation() *AsyncOperation {
	return &AsyncOperation{}
}

// Completed returns an operation that already finished.
func Completed(s Status, r Result) *AsyncOperation {
	op := NewOperation()
	op.Complete(s, r)
	return op
}

// OnCompleted implements Operation.
func (o *AsyncOperation) OnCompleted(fn func(Status, Result)) {
	o.mu.Lock()
	if o.done {
		s, r := o.status, o.result
		o.mu.Unlock()
		fn(s, r)
		return
	}
	o.handlers = append(o.handlers, fn)
	o.mu.Unlock()
}

// Complete records the final status and notifies handlers. Later calls are
// ignored.
func (o *AsyncOperation) Complete(s Status, r Result) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.done = true
	o.status, o.result = s, r
	handlers := o.handlers
	o.handlers = nil
	o.mu.Unlock()

	for _, h := range handlers {
		h(s, r)
	}
}
