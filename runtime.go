package apool

import (
	"context"
	"time"

	"github.com/viant/apool/internal/clock"
	"github.com/viant/apool/model/option"
	"github.com/viant/apool/runtime/group"
	"github.com/viant/apool/runtime/pool"
	"github.com/viant/apool/runtime/process"
	"github.com/viant/apool/service/analytics"
	"github.com/viant/apool/service/event"
	"github.com/viant/apool/service/restart"

	"golang.org/x/sync/errgroup"
)

// Runtime drives the assembled pool: the event dispatch loop, the analytics
// sweeper and the idle group collector run on its supervision group.
type Runtime struct {
	pool       *pool.Pool
	events     *event.Service
	collector  *analytics.Collector
	checker    *restart.Checker
	gcInterval time.Duration

	cancel context.CancelFunc
	wg     *errgroup.Group
}

// Pool returns the underlying pool for direct access.
func (r *Runtime) Pool() *pool.Pool {
	return r.pool
}

// Get routes a session request to the group named by opts, creating the
// group on first use. A non-nil session means the callback will never fire;
// a nil session with a nil error means the callback fires exactly once
// later.
func (r *Runtime) Get(ctx context.Context, opts *option.Options, callback group.GetCallback) (*process.Session, error) {
	return r.pool.Get(ctx, opts, callback)
}

// GetSession is a blocking convenience over Get: it waits for a parked
// request to be served or ctx to be cancelled.
func (r *Runtime) GetSession(ctx context.Context, opts *option.Options) (*process.Session, error) {
	type outcome struct {
		session *process.Session
		err     error
	}
	done := make(chan outcome, 1)
	session, err := r.pool.Get(ctx, opts, func(session *process.Session, err error) {
		done <- outcome{session: session, err: err}
	})
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ret := <-done:
		return ret.session, ret.err
	}
}

// DisableProcess takes a process out of scheduling.
func (r *Runtime) DisableProcess(proc *process.Process, callback group.DisableCallback) group.DisableResult {
	return r.pool.DisableProcess(proc, callback)
}

// EnableProcess returns a disabling or disabled process to scheduling.
func (r *Runtime) EnableProcess(proc *process.Process) {
	r.pool.EnableProcess(proc)
}

// DetachProcess removes a process from its group.
func (r *Runtime) DetachProcess(proc *process.Process, reason error) {
	r.pool.DetachProcess(proc, reason)
}

// RestartGroup flushes a group's process generation.
func (r *Runtime) RestartGroup(name string) error {
	return r.pool.RestartGroup(name)
}

// DetachGroup shuts a group down and removes it from the pool.
func (r *Runtime) DetachGroup(name string) error {
	return r.pool.DetachGroup(name)
}

// Inspect captures a point-in-time snapshot of the pool.
func (r *Runtime) Inspect() *pool.Snapshot {
	return r.pool.Inspect()
}

// ProcessCount returns the number of processes across all groups.
func (r *Runtime) ProcessCount() int {
	return r.pool.ProcessCount()
}

// WatchRestartDir registers dir with the restart checker's file watcher so
// touched restart files bypass the stat throttle.
func (r *Runtime) WatchRestartDir(ctx context.Context, dir string) error {
	return r.checker.Watch(ctx, dir)
}

// Start launches the event dispatch loop, the analytics sweeper and the
// idle group collector. It returns immediately; the loops stop when ctx is
// cancelled or Shutdown is called.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	wg, ctx := errgroup.WithContext(ctx)
	r.wg = wg
	wg.Go(func() error {
		return r.events.Dispatch(ctx)
	})
	wg.Go(func() error {
		return r.collector.Run(ctx)
	})
	if r.gcInterval > 0 {
		wg.Go(func() error {
			ticker := time.NewTicker(r.gcInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					r.pool.CollectGarbage(clock.Now())
				}
			}
		})
	}
	return nil
}

// Shutdown stops the supervision loops and tears down every group.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	var err error
	if r.wg != nil {
		err = r.wg.Wait()
	}
	r.pool.Shutdown()
	return err
}
