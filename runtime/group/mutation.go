package group

import (
	"github.com/viant/apool/runtime/process"
	"github.com/viant/apool/service/event"
)

func removeProcess(list []*process.Process, p *process.Process) []*process.Process {
	for i, candidate := range list {
		if candidate == p {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Attach adds a freshly spawned process to the group as enabled and then
// resolves the whole disable waitlist: waiters whose process is still
// disabling see it promoted to disabled, every callback is deferred into
// post and the waitlist is cleared.
func (g *Group) Attach(p *process.Process, post *Actions) {
	p.Enablement = process.Enabled
	p.SetOwner(g)
	g.processes = append(g.processes, p)
	p.Item = g.pq.Push(p, g.keyFor(p))
	g.count++

	waiters := g.disableWaitlist
	g.disableWaitlist = nil
	for _, waiter := range waiters {
		if waiter.process.Enablement == process.Disabling {
			g.promoteToDisabled(waiter.process)
		}
		g.deferDisableCallback(waiter, post)
	}
}

// promoteToDisabled moves a disabling process to the disabled list.
func (g *Group) promoteToDisabled(p *process.Process) {
	p.Enablement = process.Disabled
	g.processes = removeProcess(g.processes, p)
	g.pq.Erase(p.Item)
	p.Item = nil
	g.disabledProcesses = append(g.disabledProcesses, p)
	g.count--
	g.disablingCount--
	g.disabledCount++
}

func (g *Group) deferDisableCallback(waiter *disableWaiter, post *Actions) {
	if waiter.callback == nil {
		return
	}
	callback, proc := waiter.callback, waiter.process
	post.Add(func() { callback(proc, DisabledImmediately) })
}

// Detach removes a process from the group regardless of its state. Disable
// waiters keyed to the process are resolved; their callback firing is the
// acknowledgement that the process is gone.
func (g *Group) Detach(p *process.Process, post *Actions) {
	switch p.Enablement {
	case process.Enabled:
		g.processes = removeProcess(g.processes, p)
		g.pq.Erase(p.Item)
		p.Item = nil
		g.count--
	case process.Disabling:
		g.processes = removeProcess(g.processes, p)
		g.pq.Erase(p.Item)
		p.Item = nil
		g.count--
		g.disablingCount--
		g.resolveDisableWaiters(p, post)
	case process.Disabled:
		g.disabledProcesses = removeProcess(g.disabledProcesses, p)
		g.disabledCount--
	}
	p.SetOwner(nil)
	g.publish(event.ProcessDetached, p)
}

func (g *Group) resolveDisableWaiters(p *process.Process, post *Actions) {
	remaining := g.disableWaitlist[:0]
	for _, waiter := range g.disableWaitlist {
		if waiter.process == p {
			g.deferDisableCallback(waiter, post)
			continue
		}
		remaining = append(remaining, waiter)
	}
	g.disableWaitlist = remaining
}

// DetachAll clears both process lists and the disable waitlist; parked get
// requests stay parked and are the caller's responsibility.
func (g *Group) DetachAll(post *Actions) {
	for _, p := range g.processes {
		p.SetOwner(nil)
		p.Item = nil
	}
	for _, p := range g.disabledProcesses {
		p.SetOwner(nil)
	}
	g.processes = nil
	g.disabledProcesses = nil
	g.pq.Clear()
	g.count = 0
	g.disablingCount = 0
	g.disabledCount = 0
	for _, waiter := range g.disableWaitlist {
		g.deferDisableCallback(waiter, post)
	}
	g.disableWaitlist = nil
}

// Enable returns a disabling or disabled process to the enabled state.
func (g *Group) Enable(p *process.Process, post *Actions) {
	switch p.Enablement {
	case process.Disabling:
		p.Enablement = process.Enabled
		g.disablingCount--
		g.pq.Rekey(p.Item, g.keyFor(p))
		g.resolveDisableWaiters(p, post)
	case process.Disabled:
		p.Enablement = process.Enabled
		g.disabledProcesses = removeProcess(g.disabledProcesses, p)
		g.disabledCount--
		g.processes = append(g.processes, p)
		p.Item = g.pq.Push(p, g.keyFor(p))
		g.count++
	}
}

// Disable takes a process out of scheduling. When other enabled processes
// remain the transition completes immediately and the caller invokes its
// own callback. When the process is the last enabled one it flips to
// disabling, a replacement spawn starts even past the process caps, and the
// callback is parked until the replacement attaches.
func (g *Group) Disable(p *process.Process, callback DisableCallback) DisableResult {
	switch p.Enablement {
	case process.Enabled:
		if g.count-g.disablingCount > 1 {
			p.Enablement = process.Disabled
			g.processes = removeProcess(g.processes, p)
			g.pq.Erase(p.Item)
			p.Item = nil
			g.count--
			g.disabledProcesses = append(g.disabledProcesses, p)
			g.disabledCount++
			return DisabledImmediately
		}
		p.Enablement = process.Disabling
		g.disablingCount++
		g.pq.Rekey(p.Item, g.keyFor(p))
		g.disableWaitlist = append(g.disableWaitlist, &disableWaiter{process: p, callback: callback})
		// the last enabled process needs a replacement regardless of the
		// process caps
		g.Spawn()
		return DisablePending
	case process.Disabling:
		g.disableWaitlist = append(g.disableWaitlist, &disableWaiter{process: p, callback: callback})
		return DisablePending
	}
	return DisabledImmediately
}
