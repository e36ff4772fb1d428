// Package process defines the worker process handle managed by a group and
// the sessions checked out against it.
package process

import (
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/viant/apool/internal/idgen"
	"github.com/viant/apool/internal/pqueue"
)

// Enablement is the scheduling state of a process within its group.
type Enablement int

const (
	// Enabled processes accept new sessions.
	Enabled Enablement = iota
	// Disabling processes finish their current sessions but accept no new
	// ones; they still count towards the group total.
	Disabling
	// Disabled processes are parked on the group's disabled list.
	Disabled
)

// String returns the enablement name.
func (e Enablement) String() string {
	switch e {
	case Enabled:
		return "enabled"
	case Disabling:
		return "disabling"
	case Disabled:
		return "disabled"
	}
	return "unknown"
}

// Owner is the group backref; kept as a small interface so this package does
// not depend on the group package.
type Owner interface {
	Name() string
}

// Process is a handle on one worker process. All fields except the backref
// are guarded by the pool lock; the backref has its own mutex so liveness
// and telemetry probes can read it without the pool lock.
type Process struct {
	ID          string
	PID         int
	Concurrency int
	MaxRequests int

	// Enablement and Item are group bookkeeping, guarded by the pool lock.
	Enablement Enablement
	Item       *pqueue.Item[*Process]

	sessionCount int32
	processed    int64

	mux   sync.Mutex
	owner Owner
}

// New returns a process handle for pid. pid <= 0 denotes an in-memory
// process with no OS counterpart.
func New(pid int, concurrency int) *Process {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Process{
		ID:          idgen.New(),
		PID:         pid,
		Concurrency: concurrency,
	}
}

// SetOwner records the owning group.
func (p *Process) SetOwner(owner Owner) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.owner = owner
}

// Owner returns the owning group, or nil when detached.
func (p *Process) Owner() Owner {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.owner
}

// Usage returns the number of open sessions, the priority key the group
// schedules by.
func (p *Process) Usage() int {
	return int(atomic.LoadInt32(&p.sessionCount))
}

// Processed returns the number of sessions this process has completed.
func (p *Process) Processed() int {
	return int(atomic.LoadInt64(&p.processed))
}

// AtFullCapacity reports whether the process can take no further session,
// either because its concurrency is saturated or because it has served its
// request budget.
func (p *Process) AtFullCapacity() bool {
	if p.Usage() >= p.Concurrency {
		return true
	}
	return p.MaxRequests > 0 && p.Processed() >= p.MaxRequests
}

// OpenSession checks out a new session against this process.
func (p *Process) OpenSession() *Session {
	atomic.AddInt32(&p.sessionCount, 1)
	return &Session{ID: idgen.New(), process: p}
}

// CloseSession releases the slot held by a session.
func (p *Process) CloseSession() {
	atomic.AddInt32(&p.sessionCount, -1)
	atomic.AddInt64(&p.processed, 1)
}

// IsAlive reports whether the underlying OS process still exists. In-memory
// processes are always alive.
func (p *Process) IsAlive() bool {
	if p.PID <= 0 {
		return true
	}
	alive, err := process.PidExists(int32(p.PID))
	if err != nil {
		return true
	}
	return alive
}

// Session is one checked-out unit of work on a process. Close and
// InitiateFailure run the hooks the group installed; each session fires its
// hooks at most once.
type Session struct {
	ID      string
	process *Process

	closeOnce sync.Once
	onClose   func(*Session)
	onFailure func(*Session)
}

// Process returns the process this session is checked out against, nil for
// dummy sessions.
func (s *Session) Process() *Process { return s.process }

// OnClose installs the close hook.
func (s *Session) OnClose(fn func(*Session)) { s.onClose = fn }

// OnInitiateFailure installs the failure hook.
func (s *Session) OnInitiateFailure(fn func(*Session)) { s.onFailure = fn }

// Close releases the session after a successfully served request.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// InitiateFailure releases the session after the worker failed to serve it.
func (s *Session) InitiateFailure() {
	s.closeOnce.Do(func() {
		if s.onFailure != nil {
			s.onFailure(s)
		}
	})
}

// NewDummy returns a session bound to no process; used to satisfy noop gets
// whose only purpose is waking the group up.
func NewDummy() *Session {
	return &Session{ID: idgen.New()}
}
