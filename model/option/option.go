// Package option defines the per-application pool options and the rules for
// merging per-request overrides into a group's stored options.
package option

import (
	"fmt"
	"path"
	"time"
)

// Options describes how a group's processes are spawned and scheduled.
// AppRoot, AppType and AppGroupName identify the group and never change for
// its lifetime; the mutable subset may be updated by later requests via
// Merge.
type Options struct {
	// Identity (immutable once a group exists)
	AppRoot      string `json:"appRoot,omitempty" yaml:"appRoot,omitempty"`
	AppType      string `json:"appType,omitempty" yaml:"appType,omitempty"`
	AppGroupName string `json:"appGroupName,omitempty" yaml:"appGroupName,omitempty"`

	// Spawn parameters
	StartCommand string            `json:"startCommand,omitempty" yaml:"startCommand,omitempty"`
	Environment  map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	Concurrency  int               `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	RestartDir   string            `json:"restartDir,omitempty" yaml:"restartDir,omitempty"`

	// Mutable subset, see Merge; MaxProcesses is not merged
	MinProcesses   int           `json:"minProcesses,omitempty" yaml:"minProcesses,omitempty"`
	MaxProcesses   int           `json:"maxProcesses,omitempty" yaml:"maxProcesses,omitempty"`
	MaxRequests    int           `json:"maxRequests,omitempty" yaml:"maxRequests,omitempty"`
	StatThrottle   time.Duration `json:"statThrottle,omitempty" yaml:"statThrottle,omitempty"`
	SpawnerTimeout time.Duration `json:"spawnerTimeout,omitempty" yaml:"spawnerTimeout,omitempty"`
	MemoryLimit    int           `json:"memoryLimit,omitempty" yaml:"memoryLimit,omitempty"`
	Analytics      bool          `json:"analytics,omitempty" yaml:"analytics,omitempty"`
	UnionStationKey string       `json:"unionStationKey,omitempty" yaml:"unionStationKey,omitempty"`

	// Per-request only; cleared before the options are stored on a group
	Noop bool `json:"-" yaml:"-"`

	// GroupSecret is derived when the group is created; external values are
	// rejected.
	GroupSecret string `json:"-" yaml:"-"`
}

// New returns Options for appRoot with defaults applied.
func New(appRoot string) *Options {
	ret := &Options{AppRoot: appRoot}
	ret.Init()
	return ret
}

// Init applies defaults in place.
func (o *Options) Init() {
	if o.AppGroupName == "" {
		o.AppGroupName = o.AppRoot
	}
	if o.Concurrency == 0 {
		o.Concurrency = 1
	}
	if o.MinProcesses == 0 {
		o.MinProcesses = 1
	}
	if o.StatThrottle == 0 {
		o.StatThrottle = time.Second
	}
	if o.SpawnerTimeout == 0 {
		o.SpawnerTimeout = 90 * time.Second
	}
	if o.RestartDir == "" && o.AppRoot != "" {
		o.RestartDir = path.Join(o.AppRoot, "tmp")
	}
}

// Validate reports identity problems that would make the options unusable.
func (o *Options) Validate() error {
	if o.AppGroupName == "" && o.AppRoot == "" {
		return fmt.Errorf("option: appRoot and appGroupName were both empty")
	}
	if o.GroupSecret != "" {
		return fmt.Errorf("option: groupSecret cannot be supplied externally")
	}
	if o.MinProcesses < 0 || o.MaxProcesses < 0 {
		return fmt.Errorf("option: process bounds cannot be negative")
	}
	return nil
}

// Merge copies the mutable subset of other into o. Identity fields and spawn
// parameters are left untouched.
func (o *Options) Merge(other *Options) {
	o.MaxRequests = other.MaxRequests
	o.MinProcesses = other.MinProcesses
	o.StatThrottle = other.StatThrottle
	o.SpawnerTimeout = other.SpawnerTimeout
	o.MemoryLimit = other.MemoryLimit
	o.Analytics = other.Analytics
	o.UnionStationKey = other.UnionStationKey
}

// Persist returns a deep copy suitable for snapshotting at spawn time, so
// an in-flight spawn is unaffected by later merges.
func (o *Options) Persist() *Options {
	ret := *o
	if len(o.Environment) > 0 {
		ret.Environment = make(map[string]string, len(o.Environment))
		for k, v := range o.Environment {
			ret.Environment[k] = v
		}
	}
	return &ret
}

// ClearPerRequestFields zeroes fields that only make sense for a single get.
func (o *Options) ClearPerRequestFields() {
	o.Noop = false
}

// RestartFile returns the path whose mtime advance forces a restart.
func (o *Options) RestartFile() string {
	return path.Join(o.RestartDir, "restart.txt")
}

// AlwaysRestartFile returns the path whose existence forces a restart on
// every request.
func (o *Options) AlwaysRestartFile() string {
	return path.Join(o.RestartDir, "always_restart.txt")
}
