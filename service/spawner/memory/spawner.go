// Package memory provides a spawner that fabricates in-memory processes,
// used by tests and by noop application types.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/apool/internal/clock"
	"github.com/viant/apool/model/option"
	"github.com/viant/apool/runtime/process"
	"github.com/viant/apool/service/spawner"
)

// Spawner fabricates process handles without any OS counterpart. The zero
// value is usable; Delay and FailWith configure test behaviour.
type Spawner struct {
	// Delay is how long each Spawn blocks before returning.
	Delay time.Duration
	// FailWith, when set, makes every Spawn fail with a terminal error.
	FailWith error
	// FailAfter, when positive, makes spawns fail once that many succeeded.
	FailAfter int

	spawned  int64
	mux      sync.Mutex
	lastUsed time.Time
}

// Spawn fabricates a new in-memory process.
func (s *Spawner) Spawn(ctx context.Context, opts *option.Options) (*process.Process, error) {
	s.mux.Lock()
	s.lastUsed = clock.Now()
	s.mux.Unlock()
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailWith != nil {
		return nil, spawner.NewError(opts.AppGroupName, s.FailWith)
	}
	if s.FailAfter > 0 && s.Spawned() >= s.FailAfter {
		return nil, spawner.NewError(opts.AppGroupName, context.DeadlineExceeded)
	}
	atomic.AddInt64(&s.spawned, 1)
	return process.New(0, opts.Concurrency), nil
}

// Spawned returns how many processes this spawner has produced.
func (s *Spawner) Spawned() int {
	return int(atomic.LoadInt64(&s.spawned))
}

// Cleanup implements spawner.Spawner; there is nothing to release.
func (s *Spawner) Cleanup(ctx context.Context) error { return nil }

// LastUsed returns the time of the most recent Spawn.
func (s *Spawner) LastUsed() time.Time {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.lastUsed
}

var _ spawner.Spawner = (*Spawner)(nil)
