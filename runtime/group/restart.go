package group

import (
	"github.com/viant/apool/model/option"
	"github.com/viant/apool/service/event"
)

// Restart flushes the current process generation: every process is
// detached (in-flight sessions finish on their own), the group options are
// replaced with a snapshot of opts and a fresh spawn starts. Parked get
// requests stay parked and are served by the new generation.
func (g *Group) Restart(opts *option.Options, post *Actions) {
	log.Noticef("restarting %v", g.name)
	g.DetachAll(post)

	fresh := opts.Persist()
	fresh.Init()
	fresh.ClearPerRequestFields()
	fresh.AppGroupName = g.name
	fresh.GroupSecret = g.secret
	g.options = fresh

	if g.restart != nil {
		g.restart.Forget(fresh)
	}

	// a driver of the old generation abandons its result
	g.generation++
	g.spawning = false
	g.publish(event.GroupRestarted, nil)
	g.Spawn()
	g.verifyInvariants()
}
