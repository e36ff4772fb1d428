// Package pool implements the top level container: a named group per
// application, one lock serializing all group mutations and the pool wide
// process cap.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/op/go-logging"
	"github.com/viant/apool/model/option"
	"github.com/viant/apool/runtime/group"
	"github.com/viant/apool/runtime/process"
	"github.com/viant/apool/service/event"
	"github.com/viant/apool/service/restart"
	"github.com/viant/apool/service/spawner"
	"github.com/viant/apool/tracing"
)

var log = logging.MustGetLogger("apool/pool")

// Config bounds the pool.
type Config struct {
	// MaxProcesses caps processes across all groups; 0 means unlimited.
	MaxProcesses int
	// CheckInvariants makes every group verify its state before releasing
	// the lock, panicking on violation.
	CheckInvariants bool
}

// Pool owns the groups and the lock they share.
type Pool struct {
	mu       sync.Mutex
	groups   map[string]*group.Group
	config   Config
	registry *spawner.Registry
	events   *event.Service
	restart  *restart.Checker
}

// New creates an empty pool. The registry resolves spawners by application
// type when a group is first created.
func New(config Config, registry *spawner.Registry, events *event.Service, checker *restart.Checker) *Pool {
	return &Pool{
		groups:   make(map[string]*group.Group),
		config:   config,
		registry: registry,
		events:   events,
		restart:  checker,
	}
}

// Get routes a session request to the group named by opts, creating the
// group on first use. The hybrid contract of group.Get applies: a non-nil
// session means the callback will never fire; a nil session with a nil
// error means the callback fires exactly once later.
func (p *Pool) Get(ctx context.Context, opts *option.Options, callback group.GetCallback) (*process.Session, error) {
	ctx, span := tracing.StartSpan(ctx, "pool.get")
	if err := opts.Validate(); err != nil {
		tracing.EndSpan(span, err)
		return nil, err
	}
	post := &group.Actions{}
	p.mu.Lock()
	g, err := p.groupFor(ctx, opts)
	if err != nil {
		p.mu.Unlock()
		tracing.EndSpan(span, err)
		return nil, err
	}
	session := g.Get(ctx, opts, callback, post)
	p.mu.Unlock()
	post.Run()
	tracing.EndSpan(span.WithAttributes(map[string]string{"appGroupName": g.Name()}), nil)
	return session, nil
}

// groupFor returns the group for opts, creating it on first use. Callers
// must hold the pool lock.
func (p *Pool) groupFor(ctx context.Context, opts *option.Options) (*group.Group, error) {
	name := opts.AppGroupName
	if name == "" {
		name = opts.AppRoot
	}
	if g, ok := p.groups[name]; ok {
		return g, nil
	}
	spawnerInstance, err := p.registry.New(opts.AppType)
	if err != nil {
		return nil, fmt.Errorf("cannot create group %v: %w", name, err)
	}
	g, err := group.New(ctx, group.Config{
		Options:         opts,
		Spawner:         spawnerInstance,
		Lock:            &p.mu,
		CanSpawn:        p.belowCapacity,
		Events:          p.events,
		Restart:         p.restart,
		CheckInvariants: p.config.CheckInvariants,
	})
	if err != nil {
		return nil, err
	}
	g.SetSuper(p)
	p.groups[name] = g
	log.Debugf("created group %v", name)
	return g, nil
}

// belowCapacity reports whether the pool wide cap leaves room for one more
// process; called with the pool lock held.
func (p *Pool) belowCapacity() bool {
	if p.config.MaxProcesses == 0 {
		return true
	}
	return p.processCountLocked() < p.config.MaxProcesses
}

func (p *Pool) processCountLocked() int {
	total := 0
	for _, g := range p.groups {
		total += g.Count() + g.DisabledCount()
	}
	return total
}

// ProcessCount returns the number of processes across all groups.
func (p *Pool) ProcessCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processCountLocked()
}

// AtFullCapacity reports whether the pool wide cap is exhausted.
func (p *Pool) AtFullCapacity() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.belowCapacity()
}

// DetachProcess removes a process from its group, respawning and draining
// parked requests as the freed or missing capacity dictates. It is the
// entry point for out-of-band removals such as memory limit enforcement
// and vanished process detection.
func (p *Pool) DetachProcess(proc *process.Process, reason error) {
	post := &group.Actions{}
	p.mu.Lock()
	owner, ok := proc.Owner().(*group.Group)
	if !ok || owner == nil {
		p.mu.Unlock()
		return
	}
	if reason != nil {
		log.Warningf("detaching process %v of %v: %v", proc.PID, owner.Name(), reason)
	}
	owner.Detach(proc, post)
	if owner.ShouldSpawn() {
		owner.Spawn()
	}
	owner.DrainWaitlist(post)
	owner.VerifyInvariants()
	p.mu.Unlock()
	post.Run()
}

// DisableProcess takes a process out of scheduling; see group.Disable for
// the pending semantics.
func (p *Pool) DisableProcess(proc *process.Process, callback group.DisableCallback) group.DisableResult {
	post := &group.Actions{}
	p.mu.Lock()
	owner, ok := proc.Owner().(*group.Group)
	if !ok || owner == nil {
		p.mu.Unlock()
		return group.DisabledImmediately
	}
	result := owner.Disable(proc, callback)
	owner.VerifyInvariants()
	p.mu.Unlock()
	post.Run()
	return result
}

// EnableProcess returns a disabling or disabled process to scheduling.
func (p *Pool) EnableProcess(proc *process.Process) {
	post := &group.Actions{}
	p.mu.Lock()
	owner, ok := proc.Owner().(*group.Group)
	if ok && owner != nil {
		owner.Enable(proc, post)
		owner.DrainWaitlist(post)
		owner.VerifyInvariants()
	}
	p.mu.Unlock()
	post.Run()
}

// RestartGroup flushes a group's process generation.
func (p *Pool) RestartGroup(name string) error {
	post := &group.Actions{}
	p.mu.Lock()
	g, ok := p.groups[name]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("unknown group: %v", name)
	}
	_, span := tracing.StartSpan(context.Background(), "group.restart")
	g.Restart(g.Options(), post)
	p.mu.Unlock()
	post.Run()
	tracing.EndSpan(span, nil)
	return nil
}

// DetachGroup shuts a group down and removes it from the pool.
func (p *Pool) DetachGroup(name string) error {
	post := &group.Actions{}
	p.mu.Lock()
	g, ok := p.groups[name]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("unknown group: %v", name)
	}
	g.Shutdown(post)
	g.SetSuper(nil)
	delete(p.groups, name)
	p.mu.Unlock()
	post.Run()
	return nil
}

// CollectGarbage destroys groups that report themselves collectable and
// returns how many were destroyed.
func (p *Pool) CollectGarbage(now time.Time) int {
	post := &group.Actions{}
	p.mu.Lock()
	var victims []string
	for name, g := range p.groups {
		if g.GarbageCollectable(now) {
			victims = append(victims, name)
		}
	}
	for _, name := range victims {
		g := p.groups[name]
		g.Shutdown(post)
		g.SetSuper(nil)
		delete(p.groups, name)
		log.Debugf("collected idle group %v", name)
	}
	p.mu.Unlock()
	post.Run()
	return len(victims)
}

// Shutdown tears down every group.
func (p *Pool) Shutdown() {
	post := &group.Actions{}
	p.mu.Lock()
	for name, g := range p.groups {
		g.Shutdown(post)
		g.SetSuper(nil)
		delete(p.groups, name)
	}
	p.mu.Unlock()
	post.Run()
}
