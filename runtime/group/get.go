package group

import (
	"context"

	"github.com/viant/apool/model/option"
	"github.com/viant/apool/runtime/process"
)

// Get routes a session request. The contract is hybrid: when an enabled
// process has spare capacity the session is returned synchronously and the
// callback never fires; otherwise nil is returned and the callback fires
// exactly once later, with either a session or an error. Callers must hold
// the pool lock and run post afterwards.
func (g *Group) Get(ctx context.Context, opts *option.Options, callback GetCallback, post *Actions) *process.Session {
	if opts == nil {
		opts = g.options
	}
	if g.restart != nil && g.restart.NeedsRestart(ctx, opts) {
		g.Restart(opts, post)
	} else {
		g.options.Merge(opts)
	}
	if !opts.Noop && g.ShouldSpawn() {
		g.Spawn()
	}
	if opts.Noop {
		g.verifyInvariants()
		return process.NewDummy()
	}
	if g.count == 0 {
		g.getWaitlist = append(g.getWaitlist, &getWaiter{options: opts, callback: callback})
		g.verifyInvariants()
		return nil
	}
	top := g.pq.Top()
	if top == nil || top.Value.Enablement != process.Enabled || top.Value.AtFullCapacity() {
		g.getWaitlist = append(g.getWaitlist, &getWaiter{options: opts, callback: callback})
		g.verifyInvariants()
		return nil
	}
	session := g.newSession(top.Value)
	g.verifyInvariants()
	return session
}

// newSession opens a session on p and reorders it in the priority index
// with its new usage. The session carries the group's close and failure
// hooks.
func (g *Group) newSession(p *process.Process) *process.Session {
	session := p.OpenSession()
	session.OnClose(func(s *process.Session) { g.onSessionClose(p, s) })
	session.OnInitiateFailure(func(s *process.Session) { g.onSessionInitiateFailure(p, s) })
	g.pq.Rekey(p.Item, g.keyFor(p))
	return session
}

// drainGetWaitlist serves parked get requests in FIFO order while an
// enabled process has capacity; satisfied callbacks are deferred into post.
func (g *Group) drainGetWaitlist(post *Actions) {
	for len(g.getWaitlist) > 0 {
		top := g.pq.Top()
		if top == nil || top.Value.Enablement != process.Enabled || top.Value.AtFullCapacity() {
			return
		}
		waiter := g.getWaitlist[0]
		g.getWaitlist = g.getWaitlist[1:]
		session := g.newSession(top.Value)
		callback := waiter.callback
		post.Add(func() { callback(session, nil) })
	}
}

// assignErrorToGetWaiters fails every parked get request with err.
func (g *Group) assignErrorToGetWaiters(err error, post *Actions) {
	for _, waiter := range g.getWaitlist {
		callback := waiter.callback
		post.Add(func() { callback(nil, err) })
	}
	g.getWaitlist = nil
}

// onSessionClose runs on the session owner's goroutine when a session is
// closed after a served request.
func (g *Group) onSessionClose(p *process.Process, _ *process.Session) {
	post := &Actions{}
	g.lock.Lock()
	p.CloseSession()
	g.sessionReturned(p, post)
	g.verifyInvariants()
	g.lock.Unlock()
	post.Run()
}

// onSessionInitiateFailure runs when the worker could not serve the
// session; the process is treated as broken and detached.
func (g *Group) onSessionInitiateFailure(p *process.Process, _ *process.Session) {
	post := &Actions{}
	g.lock.Lock()
	p.CloseSession()
	if p.Owner() == g {
		log.Warningf("detaching process %v of %v after session initiation failure", p.PID, g.name)
		g.Detach(p, post)
		if g.ShouldSpawn() {
			g.Spawn()
		}
		g.drainGetWaitlist(post)
	}
	g.verifyInvariants()
	g.lock.Unlock()
	post.Run()
}

// sessionReturned restores p's scheduling position after a session ended
// and serves whatever the freed capacity allows.
func (g *Group) sessionReturned(p *process.Process, post *Actions) {
	if p.Owner() != g {
		return
	}
	switch p.Enablement {
	case process.Disabling:
		if p.Usage() == 0 {
			g.promoteToDisabled(p)
			g.resolveDisableWaiters(p, post)
		} else {
			g.pq.Rekey(p.Item, g.keyFor(p))
		}
	case process.Enabled:
		if p.MaxRequests > 0 && p.Processed() >= p.MaxRequests && p.Usage() == 0 {
			// served its request budget; replace it
			log.Debugf("process %v of %v reached max requests, detaching", p.PID, g.name)
			g.Detach(p, post)
		} else {
			g.pq.Rekey(p.Item, g.keyFor(p))
		}
	default:
		return
	}
	if g.ShouldSpawn() {
		g.Spawn()
	}
	g.drainGetWaitlist(post)
}
