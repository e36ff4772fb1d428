package group

import (
	"context"
	"errors"

	"github.com/viant/apool/model/option"
	"github.com/viant/apool/service/event"
	"github.com/viant/apool/tracing"
)

// ShouldSpawn reports whether a spawn driver should start: none is running
// and either the group is below its process floor, or every enabled process
// is saturated and both the per-group and pool-wide caps leave room.
func (g *Group) ShouldSpawn() bool {
	if g.spawning {
		return false
	}
	if g.count < g.options.MinProcesses {
		return true
	}
	return g.allEnabledAtFullCapacity() && g.underProcessLimits()
}

// Spawn launches a spawn driver bound to a snapshot of the current options.
// It is idempotent while a driver is running.
func (g *Group) Spawn() {
	if g.spawning {
		return
	}
	g.spawning = true
	snapshot := g.options.Persist()
	go g.drive(g.ctx, g.generation, snapshot)
}

// drive is the spawn driver loop: spawn one process without the lock, then
// attach it and serve parked requests under the lock, until the target
// count is met or a terminal spawn error occurs. A driver whose generation
// went stale (restart, shutdown) abandons its result without touching the
// group.
func (g *Group) drive(ctx context.Context, generation int, opts *option.Options) {
	for {
		spawnCtx, span := tracing.StartSpan(ctx, "group.spawn")
		proc, err := g.spawner.Spawn(spawnCtx, opts)
		tracing.EndSpan(span, err)

		post := &Actions{}
		g.lock.Lock()
		if g.generation != generation {
			g.lock.Unlock()
			return
		}
		if err != nil {
			g.spawning = false
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Debugf("spawn for %v cancelled", g.name)
				g.assignErrorToGetWaiters(context.Canceled, post)
			} else {
				log.Errorf("spawn for %v failed: %v", g.name, err)
				g.publish(event.SpawnFailed, nil)
				g.assignErrorToGetWaiters(err, post)
			}
			g.verifyInvariants()
			g.lock.Unlock()
			post.Run()
			return
		}

		proc.MaxRequests = opts.MaxRequests
		g.Attach(proc, post)
		g.publish(event.ProcessSpawned, proc)
		g.drainGetWaitlist(post)

		more := g.count < opts.MinProcesses ||
			(len(g.getWaitlist) > 0 && g.allEnabledAtFullCapacity() && g.underProcessLimits())
		if !more {
			g.spawning = false
		}
		g.verifyInvariants()
		g.lock.Unlock()
		post.Run()
		if !more {
			return
		}
	}
}
