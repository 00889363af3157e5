package tool

import (
	"context"
	"strings"
	"sync"
)

// Call records one invocation seen by a FakeRunner.
type Call struct {
	Name string
	Args []string
}

// FakeRunner is a scriptable Runner for tests. Respond is consulted for every
// call; when nil the call succeeds with empty output.
type FakeRunner struct {
	Respond func(name string, args []string) (Output, error)

	mu    sync.Mutex
	calls []Call
}

// Run records the call and returns the scripted response.
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) (Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	f.mu.Unlock()

	if f.Respond == nil {
		return Output{}, nil
	}
	return f.Respond(name, args)
}

// Calls returns a copy of the recorded invocations.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Joined returns the call arguments joined by spaces, convenient for substring checks.
func (c Call) Joined() string {
	return strings.Join(c.Args, " ")
}
