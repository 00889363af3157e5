package deploy

import (
	"context"
	"sync"
)

// PlatformCall records one FakePlatform invocation.
type PlatformCall struct {
	Op     string
	Target string
	Mode   Mode
}

// FakePlatform is an in-memory Platform for tests. Operations complete on a
// separate goroutine, like the real service.
type FakePlatform struct {
	// AddOutcome decides how an add completes; nil means success.
	AddOutcome func(path string, mode Mode) (Status, Result)
	// RemoveOutcome decides how a remove completes; nil means success.
	RemoveOutcome func(fullName string) (Status, Result)
	// FindErr, when set, is returned by every lookup.
	FindErr error

	mu       sync.Mutex
	packages map[string]*Package
	calls    []PlatformCall
}

// SetInstalled registers pkg under its family name.
func (f *FakePlatform) SetInstalled(pkg *Package) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.packages == nil {
		f.packages = make(map[string]*Package)
	}
	f.packages[pkg.FamilyName] = pkg
}

// AddPackage implements Platform.
func (f *FakePlatform) AddPackage(_ context.Context, path string, mode Mode) (Operation, error) {
	f.record(PlatformCall{Op: "add", Target: path, Mode: mode})
	s, r := StatusCompleted, Result{}
	if f.AddOutcome != nil {
		s, r = f.AddOutcome(path, mode)
	}
	return completeLater(s, r), nil
}

// RemovePackage implements Platform.
func (f *FakePlatform) RemovePackage(_ context.Context, fullName string) (Operation, error) {
	f.record(PlatformCall{Op: "remove", Target: fullName})
	s, r := StatusCompleted, Result{}
	if f.RemoveOutcome != nil {
		s, r = f.RemoveOutcome(fullName)
	}
	if s == StatusCompleted && r.Code == 0 {
		f.mu.Lock()
		for family, pkg := range f.packages {
			if pkg.FullName == fullName {
				delete(f.packages, family)
			}
		}
		f.mu.Unlock()
	}
	return completeLater(s, r), nil
}

// FindPackage implements Platform.
func (f *FakePlatform) FindPackage(_ context.Context, _ string, familyName string) (*Package, error) {
	f.record(PlatformCall{Op: "find", Target: familyName})
	if f.FindErr != nil {
		return nil, f.FindErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pkg, ok := f.packages[familyName]
	if !ok {
		return nil, ErrPackageNotFound
	}
	cp := *pkg
	return &cp, nil
}

// Calls returns a copy of the recorded invocations.
func (f *FakePlatform) Calls() []PlatformCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PlatformCall(nil), f.calls...)
}

// CallsOf returns the recorded invocations of op.
func (f *FakePlatform) CallsOf(op string) []PlatformCall {
	var out []PlatformCall
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakePlatform) record(c PlatformCall) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func completeLater(s Status, r Result) *AsyncOperation {
	op := NewOperation()
	go op.Complete(s, r)
	return op
}
