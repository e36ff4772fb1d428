// Package restart decides whether a group's application requested a restart
// through its restart files.
package restart

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/op/go-logging"
	"github.com/viant/afs"
	"github.com/viant/apool/internal/clock"
	"github.com/viant/apool/model/option"
)

var log = logging.MustGetLogger("apool/restart")

type fileStat struct {
	checkedAt time.Time
	exists    bool
	modTime   time.Time
}

// Checker answers whether a group needs a restart. A restart is requested
// either by the always-restart file existing, or by the restart file's
// modification time advancing past the last observed one. File stats are
// cached for the options' StatThrottle interval so hot paths do not hit the
// filesystem on every get.
type Checker struct {
	fs      afs.Service
	mux     sync.Mutex
	stats   map[string]*fileStat
	seen    map[string]time.Time
	watcher *fsnotify.Watcher
}

// NewChecker creates a restart checker over the local filesystem.
func NewChecker() *Checker {
	return &Checker{
		fs:    afs.New(),
		stats: make(map[string]*fileStat),
		seen:  make(map[string]time.Time),
	}
}

// NeedsRestart reports whether the application behind opts asked to be
// restarted. The first sighting of a restart file only records its
// modification time; later advances trigger the restart.
func (c *Checker) NeedsRestart(ctx context.Context, opts *option.Options) bool {
	if opts.RestartDir == "" {
		return false
	}
	always := c.stat(ctx, opts.AlwaysRestartFile(), opts.StatThrottle)
	if always.exists {
		return true
	}
	restart := c.stat(ctx, opts.RestartFile(), opts.StatThrottle)
	if !restart.exists {
		return false
	}

	c.mux.Lock()
	defer c.mux.Unlock()
	path := opts.RestartFile()
	last, ok := c.seen[path]
	if !ok {
		c.seen[path] = restart.modTime
		return false
	}
	if restart.modTime.After(last) {
		c.seen[path] = restart.modTime
		return true
	}
	return false
}

func (c *Checker) stat(ctx context.Context, path string, throttle time.Duration) fileStat {
	now := clock.Now()
	c.mux.Lock()
	cached, ok := c.stats[path]
	if ok && now.Sub(cached.checkedAt) < throttle {
		ret := *cached
		c.mux.Unlock()
		return ret
	}
	c.mux.Unlock()

	ret := fileStat{checkedAt: now}
	object, err := c.fs.Object(ctx, path)
	if err == nil && object != nil {
		ret.exists = true
		ret.modTime = object.ModTime()
	}

	c.mux.Lock()
	c.stats[path] = &ret
	c.mux.Unlock()
	return ret
}

// Watch registers dir with an fsnotify watcher so restart file changes
// invalidate the stat cache ahead of the throttle window. The watcher is
// optional; polling alone remains correct without it.
func (c *Checker) Watch(ctx context.Context, dir string) error {
	c.mux.Lock()
	watcher := c.watcher
	c.mux.Unlock()
	if watcher == nil {
		created, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		c.mux.Lock()
		c.watcher = created
		c.mux.Unlock()
		go c.watch(ctx, created)
		watcher = created
	}
	return watcher.Add(dir)
}

func (c *Checker) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			c.mux.Lock()
			delete(c.stats, evt.Name)
			c.mux.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warningf("restart watcher: %v", err)
		}
	}
}

// Forget drops all cached state for opts' restart files; called when a
// group restarts so the next sighting re-baselines the modification time.
func (c *Checker) Forget(opts *option.Options) {
	c.mux.Lock()
	defer c.mux.Unlock()
	delete(c.stats, opts.RestartFile())
	delete(c.stats, opts.AlwaysRestartFile())
	delete(c.seen, opts.RestartFile())
}
