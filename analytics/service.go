package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hanziquest/core"
)

// Subscriber is the slice of the engine the service listens on.
type Subscriber interface {
	Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func()
}

// Service ties Metrics, an Aggregator and an Exporter to a running engine.
type Service struct {
	Metrics    *Metrics
	Aggregator *Aggregator

	exporter Exporter
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger
	unsub    []func()
}

type ServiceOption func(*Service)

func WithExporter(e Exporter) ServiceOption { return func(s *Service) { s.exporter = e } }

func WithInterval(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService subscribes to every domain event type on sub. Day buckets use loc.
func NewService(sub Subscriber, loc *time.Location, opts ...ServiceOption) *Service {
	s := &Service{
		interval: time.Minute,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Metrics = NewMetrics(loc)
	s.Aggregator = NewAggregator(s.Metrics, s.log)
	for _, typ := range core.EventTypes {
		s.unsub = append(s.unsub, sub.Subscribe(typ, s.Metrics.OnEvent))
	}
	return s
}

// Summary reports the live counters.
func (s *Service) Summary(limit int) Summary {
	return s.Metrics.Summary(s.now(), limit)
}

// Run aggregates and exports on every interval until ctx is done, then
// flushes the exporter one last time.
func (s *Service) Run(ctx context.Context) {
	s.Aggregator.Start(ctx, s.interval, s.now, func(data []AggregatedData) {
		s.export(ctx, data)
	})
	if s.exporter == nil {
		return
	}
	s.export(context.WithoutCancel(ctx), s.Aggregator.Aggregate(s.now()))
	if err := s.exporter.Close(); err != nil {
		s.log.Warn("analytics exporter close failed", zap.Error(err))
	}
}

func (s *Service) export(ctx context.Context, data []AggregatedData) {
	if s.exporter == nil {
		return
	}
	for _, d := range data {
		if err := s.exporter.Export(ctx, d); err != nil {
			s.log.Warn("analytics export failed",
				zap.String("period", string(d.Period)),
				zap.String("key", d.Key),
				zap.Error(err))
		}
	}
	if err := s.exporter.Flush(ctx); err != nil {
		s.log.Warn("analytics flush failed", zap.Error(err))
	}
}

// Close stops listening for engine events.
func (s *Service) Close() {
	for _, u := range s.unsub {
		u()
	}
	s.unsub = nil
}
