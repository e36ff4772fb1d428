package pool

import (
	"github.com/viant/apool/runtime/process"
)

// ProcessInfo is a point-in-time view of one worker process.
type ProcessInfo struct {
	ID         string `json:"id"`
	PID        int    `json:"pid"`
	Usage      int    `json:"usage"`
	Processed  int    `json:"processed"`
	Enablement string `json:"enablement"`
}

// GroupInfo is a point-in-time view of one group.
type GroupInfo struct {
	Name           string        `json:"name"`
	Count          int           `json:"count"`
	DisablingCount int           `json:"disablingCount"`
	DisabledCount  int           `json:"disabledCount"`
	Spawning       bool          `json:"spawning"`
	WaitlistSize   int           `json:"waitlistSize"`
	Processes      []ProcessInfo `json:"processes,omitempty"`
}

// Snapshot is a point-in-time view of the whole pool.
type Snapshot struct {
	ProcessCount int         `json:"processCount"`
	MaxProcesses int         `json:"maxProcesses"`
	Groups       []GroupInfo `json:"groups,omitempty"`
}

// Inspect captures a consistent snapshot of the pool for telemetry.
func (p *Pool) Inspect() *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := &Snapshot{
		ProcessCount: p.processCountLocked(),
		MaxProcesses: p.config.MaxProcesses,
	}
	for _, g := range p.groups {
		info := GroupInfo{
			Name:           g.Name(),
			Count:          g.Count(),
			DisablingCount: g.DisablingCount(),
			DisabledCount:  g.DisabledCount(),
			Spawning:       g.Spawning(),
			WaitlistSize:   g.WaitlistSize(),
		}
		for _, proc := range g.Processes() {
			info.Processes = append(info.Processes, processInfo(proc))
		}
		for _, proc := range g.DisabledProcesses() {
			info.Processes = append(info.Processes, processInfo(proc))
		}
		ret.Groups = append(ret.Groups, info)
	}
	return ret
}

func processInfo(proc *process.Process) ProcessInfo {
	return ProcessInfo{
		ID:         proc.ID,
		PID:        proc.PID,
		Usage:      proc.Usage(),
		Processed:  proc.Processed(),
		Enablement: proc.Enablement.String(),
	}
}

// Sample is one process handed to the analytics collector together with
// the group policy that applies to it.
type Sample struct {
	Group           string
	Process         *process.Process
	MemoryLimit     int
	Analytics       bool
	UnionStationKey string
}

// SampleProcesses captures every live process with its group's analytics
// policy; memory gathering happens outside the lock.
func (p *Pool) SampleProcesses() []Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ret []Sample
	for _, g := range p.groups {
		opts := g.Options()
		for _, proc := range g.Processes() {
			ret = append(ret, Sample{
				Group:           g.Name(),
				Process:         proc,
				MemoryLimit:     opts.MemoryLimit,
				Analytics:       opts.Analytics,
				UnionStationKey: opts.UnionStationKey,
			})
		}
		for _, proc := range g.DisabledProcesses() {
			ret = append(ret, Sample{
				Group:       g.Name(),
				Process:     proc,
				MemoryLimit: opts.MemoryLimit,
			})
		}
	}
	return ret
}
