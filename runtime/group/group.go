// Package group implements the per-application scheduler at the heart of
// the pool: it routes session requests to the least used worker process,
// parks requests when all workers are saturated, coordinates asynchronous
// spawning and the enable, disable and restart transitions, and keeps the
// cross-cutting invariants between the process lists, the waitlists and the
// spawning flag.
//
// All exported mutators expect the pool lock to be held by the caller and
// collect deferred callbacks into an Actions value the caller runs after
// releasing the lock. Session hooks and the spawn driver acquire the lock
// themselves.
package group

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/op/go-logging"
	"github.com/viant/apool/internal/clock"
	"github.com/viant/apool/internal/idgen"
	"github.com/viant/apool/internal/pqueue"
	"github.com/viant/apool/model/option"
	"github.com/viant/apool/runtime/process"
	"github.com/viant/apool/service/event"
	"github.com/viant/apool/service/restart"
	"github.com/viant/apool/service/spawner"
	"time"
)

var log = logging.MustGetLogger("apool/group")

// ErrProcessVanished indicates a worker disappeared between scheduling
// decisions, typically because its OS process died.
var ErrProcessVanished = errors.New("process vanished")

// disablingPenalty pushes disabling processes, and processes that served
// their request budget, behind every other enabled one in the priority index
// so they stop receiving new sessions while keeping the index aligned with
// the process list.
const disablingPenalty = 1 << 30

// Config supplies a group's collaborators. Lock is the pool lock shared by
// every group of the pool; CanSpawn consults pool-wide capacity and is
// called with that lock held.
type Config struct {
	Options         *option.Options
	Spawner         spawner.Spawner
	Lock            *sync.Mutex
	CanSpawn        func() bool
	Events          *event.Service
	Restart         *restart.Checker
	CheckInvariants bool
}

// Group schedules the worker processes of one application.
type Group struct {
	name    string
	secret  string
	options *option.Options

	lock     *sync.Mutex
	canSpawn func() bool
	events   *event.Service
	restart  *restart.Checker
	spawner  spawner.Spawner

	processes         []*process.Process
	disabledProcesses []*process.Process
	pq                *pqueue.Index[*process.Process]

	count          int
	disablingCount int
	disabledCount  int

	getWaitlist     []*getWaiter
	disableWaitlist []*disableWaiter

	spawning   bool
	generation int

	ctx    context.Context
	cancel context.CancelFunc

	checkInvariants bool

	superMux sync.Mutex
	super    interface{}
}

// New creates a group for config.Options. The options are deep copied and
// receive a fresh group secret.
func New(ctx context.Context, config Config) (*Group, error) {
	if config.Options == nil {
		return nil, fmt.Errorf("group options were nil")
	}
	if config.Spawner == nil {
		return nil, fmt.Errorf("group spawner was nil")
	}
	if config.Lock == nil {
		config.Lock = &sync.Mutex{}
	}
	if config.CanSpawn == nil {
		config.CanSpawn = func() bool { return true }
	}
	opts := config.Options.Persist()
	opts.Init()
	opts.ClearPerRequestFields()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.GroupSecret = idgen.NewSecret()
	ctx, cancel := context.WithCancel(ctx)
	return &Group{
		name:            opts.AppGroupName,
		secret:          opts.GroupSecret,
		options:         opts,
		lock:            config.Lock,
		canSpawn:        config.CanSpawn,
		events:          config.Events,
		restart:         config.Restart,
		spawner:         config.Spawner,
		pq:              pqueue.New[*process.Process](),
		ctx:             ctx,
		cancel:          cancel,
		checkInvariants: config.CheckInvariants,
	}, nil
}

// Name returns the group's application group name.
func (g *Group) Name() string { return g.name }

// Secret returns the opaque token spawned workers use to authenticate
// callbacks.
func (g *Group) Secret() string { return g.secret }

// Options returns the group's effective options; callers must hold the
// pool lock.
func (g *Group) Options() *option.Options { return g.options }

// Count returns the number of enabled plus disabling processes.
func (g *Group) Count() int { return g.count }

// DisablingCount returns the number of disabling processes.
func (g *Group) DisablingCount() int { return g.disablingCount }

// DisabledCount returns the number of disabled processes.
func (g *Group) DisabledCount() int { return g.disabledCount }

// Spawning reports whether a spawn driver is active.
func (g *Group) Spawning() bool { return g.spawning }

// WaitlistSize returns the number of parked get requests.
func (g *Group) WaitlistSize() int { return len(g.getWaitlist) }

// Processes returns the enabled plus disabling processes.
func (g *Group) Processes() []*process.Process { return g.processes }

// DisabledProcesses returns the disabled processes.
func (g *Group) DisabledProcesses() []*process.Process { return g.disabledProcesses }

// DrainWaitlist serves parked get requests while capacity allows.
func (g *Group) DrainWaitlist(post *Actions) { g.drainGetWaitlist(post) }

// VerifyInvariants panics when the group state is inconsistent; a no-op
// unless invariant checking was enabled at construction.
func (g *Group) VerifyInvariants() { g.verifyInvariants() }

// SetSuper records the owning container backref; it is the only state
// readable without the pool lock.
func (g *Group) SetSuper(super interface{}) {
	g.superMux.Lock()
	defer g.superMux.Unlock()
	g.super = super
}

// Super returns the owning container backref.
func (g *Group) Super() interface{} {
	g.superMux.Lock()
	defer g.superMux.Unlock()
	return g.super
}

// Usage counts the group's processes with an in-flight spawn as one extra
// unit; a group with zero usage is a garbage collection candidate.
func (g *Group) Usage() int {
	ret := g.count
	if g.spawning {
		ret++
	}
	return ret
}

// GarbageCollectable reports whether the owning pool may destroy this
// group: nothing running, nothing parked, nothing disabled and the spawner
// idle past the configured timeout.
func (g *Group) GarbageCollectable(now time.Time) bool {
	if g.options.SpawnerTimeout == 0 {
		return false
	}
	return g.Usage() == 0 &&
		len(g.getWaitlist) == 0 &&
		g.disabledCount == 0 &&
		now.Sub(g.spawner.LastUsed()) > g.options.SpawnerTimeout
}

// Shutdown detaches everything, fails parked get requests and releases the
// spawner on its own goroutine.
func (g *Group) Shutdown(post *Actions) {
	g.DetachAll(post)
	g.assignErrorToGetWaiters(fmt.Errorf("group %v is shutting down", g.name), post)
	g.generation++
	g.spawning = false
	g.cancel()
	spawnerRef := g.spawner
	post.Add(func() {
		go func() {
			if err := spawnerRef.Cleanup(context.Background()); err != nil {
				log.Warningf("spawner cleanup for %v: %v", g.name, err)
			}
		}()
	})
	g.verifyInvariants()
}

func (g *Group) keyFor(p *process.Process) int {
	key := p.Usage()
	if p.Enablement == process.Disabling || (p.MaxRequests > 0 && p.Processed() >= p.MaxRequests) {
		key += disablingPenalty
	}
	return key
}

func (g *Group) allEnabledAtFullCapacity() bool {
	for _, p := range g.processes {
		if p.Enablement == process.Enabled && !p.AtFullCapacity() {
			return false
		}
	}
	return true
}

func (g *Group) underProcessLimits() bool {
	if g.options.MaxProcesses > 0 && g.count >= g.options.MaxProcesses {
		return false
	}
	return g.canSpawn()
}

func (g *Group) publish(kind event.Kind, p *process.Process) {
	if g.events == nil {
		return
	}
	evt := event.NewEvent(kind, g.name)
	if p != nil {
		evt.ProcessID = p.ID
		evt.PID = p.PID
	}
	g.events.Publish(evt)
}

// verifyInvariants panics when the group state is inconsistent. It runs
// before every lock release when invariant checking is on.
func (g *Group) verifyInvariants() {
	if !g.checkInvariants {
		return
	}
	assertf := func(ok bool, format string, args ...interface{}) {
		if !ok {
			panic(fmt.Sprintf("group %v: invariant violated: %v", g.name, fmt.Sprintf(format, args...)))
		}
	}
	assertf(g.count >= 0, "count %v < 0", g.count)
	assertf(g.disablingCount >= 0 && g.disablingCount <= g.count,
		"disablingCount %v outside [0, %v]", g.disablingCount, g.count)
	assertf(g.disabledCount >= 0, "disabledCount %v < 0", g.disabledCount)
	assertf(len(g.processes) == g.count, "processes %v != count %v", len(g.processes), g.count)
	assertf(len(g.disabledProcesses) == g.disabledCount,
		"disabledProcesses %v != disabledCount %v", len(g.disabledProcesses), g.disabledCount)
	assertf((len(g.processes) == 0) == (g.pq.Len() == 0),
		"processes %v vs priority index %v", len(g.processes), g.pq.Len())
	if g.count > 0 && g.disablingCount == g.count {
		assertf(g.spawning, "all %v processes disabling yet not spawning", g.count)
	}
	if len(g.getWaitlist) > 0 {
		assertf(len(g.processes) == 0 || g.allEnabledAtFullCapacity(),
			"get waitlist parked while an enabled process has capacity")
	}
	if len(g.processes) == 0 && !g.spawning {
		assertf(len(g.getWaitlist) == 0, "get waitlist parked with no processes and no spawn")
	}
	assertf(len(g.disableWaitlist) >= g.disablingCount,
		"disableWaitlist %v < disablingCount %v", len(g.disableWaitlist), g.disablingCount)
	for _, p := range g.processes {
		assertf(p.Enablement == process.Enabled || p.Enablement == process.Disabling,
			"process %v on active list is %v", p.ID, p.Enablement)
	}
	for _, p := range g.disabledProcesses {
		assertf(p.Enablement == process.Disabled,
			"process %v on disabled list is %v", p.ID, p.Enablement)
	}
}

// GarbageCollect is a convenience predicate against the shared clock.
func (g *Group) GarbageCollect() bool {
	return g.GarbageCollectable(clock.Now())
}
