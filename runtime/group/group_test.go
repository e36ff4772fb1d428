package group

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/apool/model/option"
	"github.com/viant/apool/runtime/process"
	"github.com/viant/apool/service/spawner"
	"github.com/viant/apool/service/spawner/memory"
)

func newTestGroup(t *testing.T, opts *option.Options, spw spawner.Spawner) (*Group, *sync.Mutex) {
	t.Helper()
	lock := &sync.Mutex{}
	g, err := New(context.Background(), Config{
		Options:         opts,
		Spawner:         spw,
		Lock:            lock,
		CheckInvariants: true,
	})
	assert.NoError(t, err)
	return g, lock
}

func doGet(g *Group, lock *sync.Mutex, opts *option.Options, callback GetCallback) *process.Session {
	post := &Actions{}
	lock.Lock()
	session := g.Get(context.Background(), opts, callback, post)
	lock.Unlock()
	post.Run()
	return session
}

func locked[T any](lock *sync.Mutex, fn func() T) T {
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func eventually(t *testing.T, message string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	assert.Fail(t, message)
}

func TestGroup_ColdStartReachesProcessFloor(t *testing.T) {
	opts := option.New("/srv/app")
	opts.AppType = "memory"
	opts.MinProcesses = 2

	spw := &memory.Spawner{}
	g, lock := newTestGroup(t, opts, spw)

	served := make(chan *process.Session, 1)
	session := doGet(g, lock, opts, func(s *process.Session, err error) {
		assert.NoError(t, err)
		served <- s
	})
	assert.Nil(t, session, "cold group parks the first request")

	select {
	case s := <-served:
		assert.NotNil(t, s)
		assert.NotNil(t, s.Process())
		defer s.Close()
	case <-time.After(2 * time.Second):
		assert.Fail(t, "parked request was never served")
	}

	eventually(t, "group never reached its process floor", func() bool {
		return locked(lock, func() bool { return g.Count() == 2 && !g.Spawning() })
	})
	assert.Equal(t, 0, locked(lock, func() int { return g.WaitlistSize() }))
}

func TestGroup_SaturationServesParkedRequestsInOrder(t *testing.T) {
	opts := option.New("/srv/app")
	opts.AppType = "memory"
	opts.MaxProcesses = 1

	spw := &memory.Spawner{}
	g, lock := newTestGroup(t, opts, spw)

	first := make(chan *process.Session, 1)
	assert.Nil(t, doGet(g, lock, opts, func(s *process.Session, err error) {
		assert.NoError(t, err)
		first <- s
	}))
	var session1 *process.Session
	select {
	case session1 = <-first:
	case <-time.After(2 * time.Second):
		assert.Fail(t, "first request was never served")
		return
	}

	var mux sync.Mutex
	var order []int
	sessions := make(chan *process.Session, 2)
	park := func(rank int) {
		assert.Nil(t, doGet(g, lock, opts, func(s *process.Session, err error) {
			assert.NoError(t, err)
			mux.Lock()
			order = append(order, rank)
			mux.Unlock()
			sessions <- s
		}))
	}
	park(1)
	park(2)
	assert.Equal(t, 2, locked(lock, func() int { return g.WaitlistSize() }))
	assert.Equal(t, 1, locked(lock, func() int { return g.Count() }), "the process cap blocks a second spawn")

	session1.Close()
	session2 := <-sessions
	session2.Close()
	session3 := <-sessions
	session3.Close()

	mux.Lock()
	assert.Equal(t, []int{1, 2}, order)
	mux.Unlock()
	assert.Equal(t, 0, locked(lock, func() int { return g.WaitlistSize() }))
}

func TestGroup_DisableLastEnabledSpawnsReplacement(t *testing.T) {
	opts := option.New("/srv/app")
	opts.AppType = "memory"

	spw := &memory.Spawner{}
	g, lock := newTestGroup(t, opts, spw)

	served := make(chan *process.Session, 1)
	doGet(g, lock, opts, func(s *process.Session, err error) {
		assert.NoError(t, err)
		served <- s
	})
	session := <-served
	session.Close()
	victim := session.Process()

	acknowledged := make(chan DisableResult, 1)
	result := locked(lock, func() DisableResult {
		defer g.VerifyInvariants()
		return g.Disable(victim, func(p *process.Process, r DisableResult) {
			acknowledged <- r
		})
	})
	assert.Equal(t, DisablePending, result, "the last enabled process cannot disable immediately")
	assert.Equal(t, process.Disabling, victim.Enablement)

	select {
	case <-acknowledged:
	case <-time.After(2 * time.Second):
		assert.Fail(t, "disable was never acknowledged")
	}
	lock.Lock()
	assert.Equal(t, process.Disabled, victim.Enablement)
	assert.Equal(t, 1, g.Count(), "a replacement took over")
	assert.Equal(t, 1, g.DisabledCount())
	assert.Equal(t, 0, g.DisablingCount())
	lock.Unlock()
}

func TestGroup_DisableWithPeersCompletesImmediately(t *testing.T) {
	opts := option.New("/srv/app")
	opts.AppType = "memory"
	opts.MinProcesses = 2

	spw := &memory.Spawner{}
	g, lock := newTestGroup(t, opts, spw)

	served := make(chan *process.Session, 1)
	doGet(g, lock, opts, func(s *process.Session, err error) {
		assert.NoError(t, err)
		served <- s
	})
	session := <-served
	session.Close()
	eventually(t, "group never reached its process floor", func() bool {
		return locked(lock, func() bool { return g.Count() == 2 && !g.Spawning() })
	})

	victim := locked(lock, func() *process.Process { return g.Processes()[0] })
	result := locked(lock, func() DisableResult {
		defer g.VerifyInvariants()
		return g.Disable(victim, nil)
	})
	assert.Equal(t, DisabledImmediately, result)
	lock.Lock()
	assert.Equal(t, process.Disabled, victim.Enablement)
	assert.Equal(t, 1, g.Count())
	assert.Equal(t, 1, g.DisabledCount())
	lock.Unlock()

	post := &Actions{}
	lock.Lock()
	g.Enable(victim, post)
	g.VerifyInvariants()
	assert.Equal(t, process.Enabled, victim.Enablement)
	assert.Equal(t, 2, g.Count())
	assert.Equal(t, 0, g.DisabledCount())
	lock.Unlock()
	post.Run()
}

func TestGroup_RestartFlushesProcessGeneration(t *testing.T) {
	opts := option.New("/srv/app")
	opts.AppType = "memory"

	spw := &memory.Spawner{}
	g, lock := newTestGroup(t, opts, spw)

	served := make(chan *process.Session, 1)
	doGet(g, lock, opts, func(s *process.Session, err error) {
		assert.NoError(t, err)
		served <- s
	})
	session := <-served
	session.Close()
	old := session.Process()

	post := &Actions{}
	lock.Lock()
	g.Restart(opts, post)
	lock.Unlock()
	post.Run()

	assert.Nil(t, old.Owner(), "detached processes lose their group backref")
	eventually(t, "restart never produced a fresh process", func() bool {
		return locked(lock, func() bool {
			if g.Count() != 1 || g.Spawning() {
				return false
			}
			return g.Processes()[0].ID != old.ID
		})
	})
}

func TestGroup_SpawnFailureFailsParkedRequests(t *testing.T) {
	boom := errors.New("boot loader crashed")
	opts := option.New("/srv/app")
	opts.AppType = "memory"

	spw := &memory.Spawner{FailWith: boom}
	g, lock := newTestGroup(t, opts, spw)

	failed := make(chan error, 1)
	session := doGet(g, lock, opts, func(s *process.Session, err error) {
		assert.Nil(t, s)
		failed <- err
	})
	assert.Nil(t, session)

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		assert.Fail(t, "spawn failure was never propagated")
	}
	lock.Lock()
	assert.Equal(t, 0, g.WaitlistSize(), "a terminal spawn error clears the waitlist")
	assert.False(t, g.Spawning())
	lock.Unlock()
}

func TestGroup_CancelledSpawnReportsCancellation(t *testing.T) {
	opts := option.New("/srv/app")
	opts.AppType = "memory"

	spw := &memory.Spawner{FailWith: context.Canceled}
	g, lock := newTestGroup(t, opts, spw)

	failed := make(chan error, 1)
	doGet(g, lock, opts, func(s *process.Session, err error) {
		failed <- err
	})
	select {
	case err := <-failed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		assert.Fail(t, "cancellation was never propagated")
	}
}

func TestGroup_ShutdownFailsParkedRequests(t *testing.T) {
	opts := option.New("/srv/app")
	opts.AppType = "memory"

	spw := &memory.Spawner{Delay: time.Minute}
	g, lock := newTestGroup(t, opts, spw)

	failed := make(chan error, 1)
	doGet(g, lock, opts, func(s *process.Session, err error) {
		failed <- err
	})

	post := &Actions{}
	lock.Lock()
	g.Shutdown(post)
	lock.Unlock()
	post.Run()

	select {
	case err := <-failed:
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "shutting down")
	case <-time.After(2 * time.Second):
		assert.Fail(t, "shutdown never failed the parked request")
	}
}

func TestGroup_MaxRequestsRetiresProcess(t *testing.T) {
	opts := option.New("/srv/app")
	opts.AppType = "memory"
	opts.MaxRequests = 1
	opts.Concurrency = 2

	spw := &memory.Spawner{}
	g, lock := newTestGroup(t, opts, spw)

	served := make(chan *process.Session, 1)
	doGet(g, lock, opts, func(s *process.Session, err error) {
		assert.NoError(t, err)
		served <- s
	})
	session := <-served
	veteran := session.Process()
	session.Close()

	assert.Nil(t, veteran.Owner(), "a process past its request budget is detached")
	eventually(t, "retired process was never replaced", func() bool {
		return locked(lock, func() bool {
			if g.Count() != 1 || g.Spawning() {
				return false
			}
			return g.Processes()[0].ID != veteran.ID
		})
	})
}

func TestGroup_GarbageCollectableWhenIdle(t *testing.T) {
	opts := option.New("/srv/app")
	opts.AppType = "memory"
	opts.SpawnerTimeout = time.Millisecond

	spw := &memory.Spawner{}
	g, lock := newTestGroup(t, opts, spw)

	lock.Lock()
	assert.True(t, g.GarbageCollectable(time.Now()), "an idle group with no processes is collectable")
	lock.Unlock()

	served := make(chan *process.Session, 1)
	doGet(g, lock, opts, func(s *process.Session, err error) {
		served <- s
	})
	session := <-served
	defer session.Close()
	lock.Lock()
	assert.False(t, g.GarbageCollectable(time.Now()), "a group with processes is kept")
	lock.Unlock()
}

func TestGroup_NoopRequestReturnsDummySession(t *testing.T) {
	opts := option.New("/srv/app")
	opts.AppType = "memory"

	spw := &memory.Spawner{}
	g, lock := newTestGroup(t, opts, spw)

	request := opts.Persist()
	request.Noop = true
	session := doGet(g, lock, request, nil)
	assert.NotNil(t, session)
	assert.Nil(t, session.Process())

	lock.Lock()
	assert.Equal(t, 0, g.Count(), "a noop request spawns nothing")
	assert.False(t, g.Spawning())
	lock.Unlock()
}
