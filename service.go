package apool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/apool/runtime/pool"
	"github.com/viant/apool/service/analytics"
	"github.com/viant/apool/service/event"
	"github.com/viant/apool/service/restart"
	"github.com/viant/apool/service/spawner"
	"github.com/viant/apool/service/spawner/command"
	"github.com/viant/apool/service/spawner/memory"
)

// AppTypeCommand identifies the built-in shell command spawner.
const AppTypeCommand = "command"

// AppTypeMemory identifies the built-in in-memory spawner.
const AppTypeMemory = "memory"

type spawnerRegistration struct {
	appType   string
	prototype spawner.Spawner
}

// Service assembles the pool with its collaborators.
type Service struct {
	config        *Config
	events        *event.Service
	eventHandlers []event.Handler
	spawners      []spawnerRegistration
	registerer    prometheus.Registerer
	registry      *spawner.Registry
	checker       *restart.Checker
	runtime       *Runtime
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	s.ensureBaseSetup()
	aPool := pool.New(pool.Config{
		MaxProcesses:    s.config.MaxProcesses,
		CheckInvariants: s.config.CheckInvariants,
	}, s.registry, s.events, s.checker)
	collector, err := analytics.New(aPool, s.events, s.config.AnalyticsInterval, s.registerer)
	if err != nil {
		return err
	}
	s.runtime = &Runtime{
		pool:       aPool,
		events:     s.events,
		collector:  collector,
		checker:    s.checker,
		gcInterval: s.config.GCInterval,
	}
	return nil
}

func (s *Service) ensureBaseSetup() {
	if s.events == nil {
		s.events = event.New()
	}
	for _, handler := range s.eventHandlers {
		s.events.Subscribe(handler)
	}
	if s.checker == nil {
		s.checker = restart.NewChecker()
	}
	s.registry = spawner.NewRegistry()
	s.registry.Register(AppTypeCommand, &command.Spawner{})
	s.registry.Register(AppTypeMemory, &memory.Spawner{})
	for _, registration := range s.spawners {
		s.registry.Register(registration.appType, registration.prototype)
	}
}

// Runtime returns the assembled runtime.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// RegisterSpawner adds a spawner prototype under appType after construction.
func (s *Service) RegisterSpawner(appType string, prototype spawner.Spawner) {
	s.registry.Register(appType, prototype)
}

// New assembles a service from options.
func New(options ...Option) (*Service, error) {
	ret := &Service{config: DefaultConfig()}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}
