package testerr

import (
	"errors"
	"sync"
)

// Err is the error returned by failing dependencies in tests.
var Err = errors.New("test error")

// FailingDep tracks the calls made to a dependency and decides which of
// them fail. It is safe for concurrent use.
type FailingDep struct {
	mu                sync.Mutex
	CallIndex         int
	Err               error
	FailAllAfterIndex bool
	FailAtIndex       int
}

// NewFailingDeps will create failure cases for a number of calls to a dependency.
//
// Dependencies will fail in two ways:
// - A single failure, then all calls after succesful.
// - All calls will fail after a number of succesful calls.
func NewFailingDeps(err error, expectCalls int) []*FailingDep {
	deps := make([]*FailingDep, 0, expectCalls*2)
	for i := 0; i < expectCalls; i++ {
		deps = append(deps, &FailingDep{
			CallIndex:         -1,
			Err:               err,
			FailAllAfterIndex: true,
			FailAtIndex:       i,
		}, &FailingDep{
			CallIndex:         -1,
			Err:               err,
			FailAllAfterIndex: false,
			FailAtIndex:       i,
		})
	}

	return deps
}

// AlwaysFail returns a dependency that fails every call.
func AlwaysFail(err error) *FailingDep {
	return &FailingDep{
		CallIndex:         -1,
		Err:               err,
		FailAllAfterIndex: true,
		FailAtIndex:       0,
	}
}

// NeverFail returns a dependency that never fails, but still counts calls.
func NeverFail() *FailingDep {
	return &FailingDep{
		CallIndex:   -1,
		FailAtIndex: -1,
	}
}

func (dep *FailingDep) next() error {
	dep.mu.Lock()
	defer dep.mu.Unlock()

	dep.CallIndex++

	if dep.FailAtIndex == dep.CallIndex {
		return dep.Err
	}

	if dep.FailAllAfterIndex && dep.CallIndex > dep.FailAtIndex {
		return dep.Err
	}

	return nil
}

// Calls returns the number of calls made so far.
func (dep *FailingDep) Calls() int {
	dep.mu.Lock()
	defer dep.mu.Unlock()
	return dep.CallIndex + 1
}

// MaybeFailErrFunc fails the call or calls f, depending on the call index.
func MaybeFailErrFunc(dep *FailingDep, f func() error) error {
	if err := dep.next(); err != nil {
		return err
	}

	return f()
}

// MaybeFail fails the call or calls f, depending on the call index.
func MaybeFail[T any](dep *FailingDep, f func() (T, error)) (T, error) {
	if err := dep.next(); err != nil {
		var zero T
		return zero, err
	}

	return f()
}
