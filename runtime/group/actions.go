package group

import (
	"github.com/viant/apool/model/option"
	"github.com/viant/apool/runtime/process"
)

// GetCallback resolves a parked get request: exactly one of session or err
// is set. Callbacks run outside the pool lock and may re-enter the pool.
type GetCallback func(session *process.Session, err error)

// DisableCallback acknowledges a parked disable request once it is resolved:
// its process reached the disabled state, was enabled again, or left the
// group.
type DisableCallback func(p *process.Process, result DisableResult)

// DisableResult reports how a disable request completed.
type DisableResult int

const (
	// DisabledImmediately is returned by Disable when the process reached
	// the disabled state before Disable returned; the caller invokes its own
	// callback. Parked callbacks also receive it when their request is
	// resolved.
	DisabledImmediately DisableResult = iota
	// DisablePending means the request was parked until a replacement
	// process is attached; the callback fires later.
	DisablePending
)

// Actions collects work that must run after the pool lock is released,
// typically user callbacks that may re-enter the pool. Every mutator pushes
// its deferred work here and the lock holder runs it once outside the lock.
type Actions struct {
	funcs []func()
}

// Add appends a deferred action.
func (a *Actions) Add(fn func()) {
	a.funcs = append(a.funcs, fn)
}

// Run invokes all collected actions in order. A panicking action is logged
// and does not prevent the remaining ones from running.
func (a *Actions) Run() {
	for _, fn := range a.funcs {
		a.invoke(fn)
	}
	a.funcs = nil
}

func (a *Actions) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("callback panicked: %v", r)
		}
	}()
	fn()
}

type getWaiter struct {
	options  *option.Options
	callback GetCallback
}

type disableWaiter struct {
	process  *process.Process
	callback DisableCallback
}
