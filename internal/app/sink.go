package app

import (
	"context"

	"github.com/texlink/texlink/internal/observability"
	"github.com/texlink/texlink/internal/orders"
)

// MetricsSink decorates an orders.Sink with transition counters.
type MetricsSink struct {
	next    orders.Sink
	metrics *observability.Metrics
}

// NewMetricsSink builds MetricsSink instance.
func NewMetricsSink(next orders.Sink, metrics *observability.Metrics) *MetricsSink {
	return &MetricsSink{next: next, metrics: metrics}
}

func (s *MetricsSink) HandleOrderCreated(ctx context.Context, evt orders.OrderCreatedEvent) error {
	return s.next.HandleOrderCreated(ctx, evt)
}

func (s *MetricsSink) HandleOrderStatusChanged(ctx context.Context, evt orders.OrderStatusChangedEvent) error {
	s.metrics.ObserveTransition(string(evt.NewStatus))
	return s.next.HandleOrderStatusChanged(ctx, evt)
}

func (s *MetricsSink) HandleOrderFinalized(ctx context.Context, evt orders.OrderFinalizedEvent) error {
	return s.next.HandleOrderFinalized(ctx, evt)
}
