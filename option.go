package apool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/apool/service/event"
	"github.com/viant/apool/service/spawner"
	"github.com/viant/apool/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises a Service.
type Option func(s *Service)

// WithConfig replaces the whole configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithMaxProcesses caps worker processes across all groups; 0 means
// unlimited.
func WithMaxProcesses(count int) Option {
	return func(s *Service) { s.config.MaxProcesses = count }
}

// WithEventService sets the event service.
func WithEventService(service *event.Service) Option {
	return func(s *Service) { s.events = service }
}

// WithEventHandler subscribes handlers before the dispatch loop starts.
func WithEventHandler(handlers ...event.Handler) Option {
	return func(s *Service) { s.eventHandlers = append(s.eventHandlers, handlers...) }
}

// WithSpawner registers a spawner prototype under appType, replacing the
// built-in registration if one exists.
func WithSpawner(appType string, prototype spawner.Spawner) Option {
	return func(s *Service) {
		s.spawners = append(s.spawners, spawnerRegistration{appType: appType, prototype: prototype})
	}
}

// WithMetricsRegisterer sets the prometheus registerer the analytics
// collector registers its gauges with; nil selects the default registerer.
func WithMetricsRegisterer(registerer prometheus.Registerer) Option {
	return func(s *Service) { s.registerer = registerer }
}

// WithCheckInvariants turns on group state verification before every pool
// lock release. Intended for tests.
func WithCheckInvariants() Option {
	return func(s *Service) { s.config.CheckInvariants = true }
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. The function is safe to call multiple times, the first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter. This enables integrations with exporters other than the
// built-in stdout exporter, for example OTLP, Jaeger or Zipkin. The function
// is safe to call multiple times, the first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
