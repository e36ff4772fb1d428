// Package command provides a spawner that boots worker OS processes by
// running the group's start command through a local shell session.
package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/op/go-logging"
	"github.com/viant/apool/internal/clock"
	"github.com/viant/apool/model/option"
	"github.com/viant/apool/runtime/process"
	"github.com/viant/apool/service/spawner"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
)

var log = logging.MustGetLogger("apool/spawner")

// Spawner launches worker processes with the options' StartCommand. One
// shell session is kept per spawner and reused across spawns; groups own
// one spawner each, so the session environment is stable.
type Spawner struct {
	mux      sync.Mutex
	service  *gosh.Service
	lastUsed time.Time
}

// Spawn starts the options' StartCommand in the background and returns a
// handle on the resulting OS process.
func (s *Spawner) Spawn(ctx context.Context, opts *option.Options) (*process.Process, error) {
	if opts.StartCommand == "" {
		return nil, spawner.NewError(opts.AppGroupName, fmt.Errorf("startCommand was empty"))
	}
	if opts.SpawnerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.SpawnerTimeout)
		defer cancel()
	}
	session, err := s.session(ctx, opts)
	if err != nil {
		return nil, spawner.NewError(opts.AppGroupName, err)
	}
	if opts.AppRoot != "" {
		if _, _, err = session.Run(ctx, fmt.Sprintf("cd %v", opts.AppRoot)); err != nil {
			return nil, spawner.NewError(opts.AppGroupName, fmt.Errorf("failed to enter app root: %w", err))
		}
	}
	command := fmt.Sprintf("(%v) > /dev/null 2>&1 & echo $!", opts.StartCommand)
	timeoutMs := int(opts.SpawnerTimeout.Milliseconds())
	stdout, status, err := session.Run(ctx, command, runner.WithTimeout(timeoutMs))
	if err != nil {
		return nil, spawner.NewError(opts.AppGroupName, err)
	}
	if status != 0 {
		return nil, spawner.NewError(opts.AppGroupName, fmt.Errorf("start command exited with status %v: %v", status, stdout))
	}
	pid, err := parsePid(stdout)
	if err != nil {
		return nil, spawner.NewError(opts.AppGroupName, err)
	}
	log.Debugf("spawned pid %v for %v", pid, opts.AppGroupName)
	return process.New(pid, opts.Concurrency), nil
}

func parsePid(output string) (int, error) {
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("unable to determine spawned pid from output: %q", output)
}

func (s *Spawner) session(ctx context.Context, opts *option.Options) (*gosh.Service, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.lastUsed = clock.Now()
	if s.service != nil {
		return s.service, nil
	}
	var runnerOptions []runner.Option
	if len(opts.Environment) > 0 {
		runnerOptions = append(runnerOptions, runner.WithEnvironment(opts.Environment))
	}
	service, err := gosh.New(ctx, local.New(runnerOptions...))
	if err != nil {
		return nil, fmt.Errorf("failed to open shell session: %w", err)
	}
	s.service = service
	return service, nil
}

// Cleanup closes the shell session held between spawns.
func (s *Spawner) Cleanup(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.service == nil {
		return nil
	}
	err := s.service.Close()
	s.service = nil
	return err
}

// LastUsed returns the time of the most recent Spawn.
func (s *Spawner) LastUsed() time.Time {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.lastUsed
}

var _ spawner.Spawner = (*Spawner)(nil)
