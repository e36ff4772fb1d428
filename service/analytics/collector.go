// Package analytics periodically samples worker processes, enforces the
// per-process memory limit, detaches processes whose OS counterpart
// vanished and exports pool telemetry.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus"
	gops "github.com/shirou/gopsutil/v3/process"
	"github.com/viant/apool/runtime/group"
	"github.com/viant/apool/runtime/pool"
	"github.com/viant/apool/service/event"
	"github.com/viant/apool/tracing"
	"github.com/viant/toolbox"
)

var log = logging.MustGetLogger("apool/analytics")

// DefaultInterval is how often the collector sweeps when not configured.
const DefaultInterval = 4 * time.Second

// Collector drives the analytics sweep.
type Collector struct {
	pool     *pool.Pool
	events   *event.Service
	interval time.Duration

	processMemory *prometheus.GaugeVec
	groupCount    *prometheus.GaugeVec
	groupWaitlist *prometheus.GaugeVec
	poolProcesses prometheus.Gauge
	poolCapacity  prometheus.Gauge
}

// New creates a collector over p. Metrics are registered with registerer;
// pass nil for the default prometheus registerer.
func New(p *pool.Pool, events *event.Service, interval time.Duration, registerer prometheus.Registerer) (*Collector, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	ret := &Collector{
		pool:     p,
		events:   events,
		interval: interval,
		processMemory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "apool_process_memory_bytes",
			Help: "Resident set size per worker process.",
		}, []string{"group", "pid"}),
		groupCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "apool_group_processes",
			Help: "Processes per group by enablement state.",
		}, []string{"group", "state"}),
		groupWaitlist: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "apool_group_waitlist",
			Help: "Parked get requests per group.",
		}, []string{"group"}),
		poolProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "apool_pool_processes",
			Help: "Total processes across all groups.",
		}),
		poolCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "apool_pool_capacity",
			Help: "Configured pool wide process cap, 0 when unlimited.",
		}),
	}
	collectors := []prometheus.Collector{
		ret.processMemory, ret.groupCount, ret.groupWaitlist, ret.poolProcesses, ret.poolCapacity,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return ret, nil
}

// Run sweeps until ctx is cancelled; the first sweep happens one interval
// after start.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep runs one collection pass: sample processes under the pool lock,
// gather memory outside it, then detach offenders and export telemetry.
func (c *Collector) Sweep(ctx context.Context) {
	_, span := tracing.StartSpan(ctx, "analytics.sweep")
	defer tracing.EndSpan(span, nil)

	samples := c.pool.SampleProcesses()
	for _, sample := range samples {
		proc := sample.Process
		if proc.PID <= 0 {
			continue
		}
		rss, alive := memoryOf(proc.PID)
		if !alive {
			c.pool.DetachProcess(proc, group.ErrProcessVanished)
			continue
		}
		c.processMemory.WithLabelValues(sample.Group, fmt.Sprint(proc.PID)).Set(float64(rss))
		if sample.MemoryLimit > 0 && rss > uint64(sample.MemoryLimit)*1024*1024 {
			c.pool.DetachProcess(proc,
				fmt.Errorf("memory limit exceeded: %v MB used, %v MB allowed", rss/1024/1024, sample.MemoryLimit))
		}
	}
	c.export()
}

// memoryOf returns the RSS of pid and whether the process still exists.
func memoryOf(pid int) (uint64, bool) {
	proc, err := gops.NewProcess(int32(pid))
	if err != nil {
		return 0, false
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		exists, existsErr := gops.PidExists(int32(pid))
		if existsErr == nil && !exists {
			return 0, false
		}
		return 0, true
	}
	return info.RSS, true
}

func (c *Collector) export() {
	snapshot := c.pool.Inspect()
	c.poolProcesses.Set(float64(snapshot.ProcessCount))
	c.poolCapacity.Set(float64(snapshot.MaxProcesses))
	for _, info := range snapshot.Groups {
		c.groupCount.WithLabelValues(info.Name, "enabled").Set(float64(info.Count - info.DisablingCount))
		c.groupCount.WithLabelValues(info.Name, "disabling").Set(float64(info.DisablingCount))
		c.groupCount.WithLabelValues(info.Name, "disabled").Set(float64(info.DisabledCount))
		c.groupWaitlist.WithLabelValues(info.Name).Set(float64(info.WaitlistSize))
	}
	c.publishSnapshots(snapshot)
}

// publishSnapshots emits one snapshot event per analytics enabled group.
func (c *Collector) publishSnapshots(snapshot *pool.Snapshot) {
	if c.events == nil {
		return
	}
	policies := make(map[string]pool.Sample)
	for _, sample := range c.pool.SampleProcesses() {
		if sample.Analytics {
			policies[sample.Group] = sample
		}
	}
	for _, info := range snapshot.Groups {
		policy, ok := policies[info.Name]
		if !ok {
			continue
		}
		evt := event.NewEvent(event.GroupSnapshot, info.Name)
		if text, err := toolbox.AsJSONText(info); err == nil {
			evt.Data["snapshot"] = text
		}
		evt.Data["unionStationKey"] = policy.UnionStationKey
		c.events.Publish(evt)
	}
}
