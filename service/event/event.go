// Package event delivers pool lifecycle notifications to registered
// listeners over an in-memory queue.
package event

import (
	"time"

	"github.com/viant/apool/internal/clock"
	"github.com/viant/apool/internal/idgen"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	// ProcessSpawned fires after a spawned process was attached to its group.
	ProcessSpawned Kind = "process.spawned"
	// ProcessDetached fires after Detach removed a single process from its
	// group. DetachAll (restart, shutdown) does not emit it.
	ProcessDetached Kind = "process.detached"
	// GroupRestarted fires when a restart flush detached a group's processes.
	GroupRestarted Kind = "group.restarted"
	// SpawnFailed fires when a spawn attempt ends in a terminal error.
	SpawnFailed Kind = "spawn.failed"
	// GroupSnapshot carries periodic telemetry for groups with analytics on.
	GroupSnapshot Kind = "group.snapshot"
)

// Event describes one lifecycle occurrence within the pool.
type Event struct {
	ID           string                 `json:"id"`
	Kind         Kind                   `json:"kind"`
	AppGroupName string                 `json:"appGroupName,omitempty"`
	ProcessID    string                 `json:"processID,omitempty"`
	PID          int                    `json:"pid,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

// NewEvent returns an event of the supplied kind for appGroupName.
func NewEvent(kind Kind, appGroupName string) *Event {
	return &Event{
		ID:           idgen.New(),
		Kind:         kind,
		AppGroupName: appGroupName,
		CreatedAt:    clock.Now(),
		Data:         make(map[string]interface{}),
	}
}
