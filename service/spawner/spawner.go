// Package spawner defines how worker processes are brought up for a group.
package spawner

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/apool/model/option"
	"github.com/viant/apool/runtime/process"
)

// Spawner starts one worker process per Spawn call. Implementations are
// called without any pool lock held and may take as long as the supplied
// context allows.
type Spawner interface {
	// Spawn starts a worker for the supplied options snapshot.
	Spawn(ctx context.Context, opts *option.Options) (*process.Process, error)

	// Cleanup releases resources held between spawns.
	Cleanup(ctx context.Context) error

	// LastUsed returns the time of the most recent Spawn.
	LastUsed() time.Time
}

// Error is a terminal spawn failure. It stops the spawn driver and is
// propagated to every waiter parked on the group.
type Error struct {
	AppGroupName string
	Err          error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("failed to spawn process for %v: %v", e.AppGroupName, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as a terminal spawn failure for appGroupName.
func NewError(appGroupName string, err error) *Error {
	return &Error{AppGroupName: appGroupName, Err: err}
}
