package deploy

import (
	"context"
	"errors"
	"testing"
	"time"
)

// manualOperation reports a scripted sequence of statuses when a handler is
// attached.
type manualOperation struct {
	events []Status
	result Result
}

func (m manualOperation) OnCompleted(fn func(Status, Result)) {
	for _, s := range m.events {
		fn(s, m.result)
	}
}

// silentOperation never completes.
type silentOperation struct{}

func (silentOperation) OnCompleted(func(Status, Result)) {}

func TestAwait(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		result   Result
		wantErr  bool
		wantCode int
		wantIs   error
	}{
		{name: "completed ok", status: StatusCompleted},
		{name: "completed with code 3", status: StatusCompleted, result: Result{Code: 3}, wantErr: true, wantCode: 3},
		{name: "error status", status: StatusError, result: Result{Code: -2147009293, Message: "blocked"}, wantErr: true, wantCode: -2147009293},
		{name: "canceled", status: StatusCanceled, wantErr: true, wantIs: ErrCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation()
			go op.Complete(tt.status, tt.result)

			err := Await(context.Background(), op, time.Second)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if tt.wantIs != nil {
				if !errors.Is(err, tt.wantIs) {
					t.Errorf("expected %v, got %v", tt.wantIs, err)
				}
				return
			}
			var derr *Error
			if !errors.As(err, &derr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if derr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", derr.Code, tt.wantCode)
			}
		})
	}
}

func TestAwait_IgnoresNonTerminalStatus(t *testing.T) {
	op := manualOperation{events: []Status{StatusStarted, StatusStarted, StatusCompleted}}
	if err := Await(context.Background(), op, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAwait_FirstTerminalStatusWins(t *testing.T) {
	op := manualOperation{events: []Status{StatusCanceled, StatusCompleted}}
	if err := Await(context.Background(), op, time.Second); !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
}

func TestAwait_AlreadyCompleted(t *testing.T) {
	op := Completed(StatusCompleted, Result{})
	if err := Await(context.Background(), op, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAwait_Timeout(t *testing.T) {
	err := Await(context.Background(), silentOperation{}, 10*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestAwait_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Await(ctx, silentOperation{}, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAsyncOperation_LateHandlerAndDoubleComplete(t *testing.T) {
	op := NewOperation()
	op.Complete(StatusCompleted, Result{Code: 7})
	op.Complete(StatusCompleted, Result{Code: 0})

	var got Result
	op.OnCompleted(func(_ Status, r Result) { got = r })
	if got.Code != 7 {
		t.Errorf("late handler saw code %d, want 7", got.Code)
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Code: -2147009293, Message: "package could not be registered"}
	want := "deployment failed with code 0x80073CF3: package could not be registered"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if got := (&Error{Code: 3}).Error(); got != "deployment failed with code 0x00000003" {
		t.Errorf("Error() = %q", got)
	}
}
