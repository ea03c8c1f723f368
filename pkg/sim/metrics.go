package sim

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trafficlab/roadsim/log"
)

// simMetrics exposes per-rank gauges. With telemetry disabled the global
// meter provider is a no-op, so registration is unconditional.
type simMetrics struct {
	rank         int
	ticks        atomic.Int64
	onSegment    atomic.Int64
	handoffBatch atomic.Int64
	handoffTotal atomic.Int64
}

//nolint:funlen // plain metric registration
func newSimMetrics(rank int) *simMetrics {
	m := &simMetrics{rank: rank}
	meter := otel.GetMeterProvider().Meter("roadsim.sim")
	register := func(metricName, desc, unit string, valueProvider func() int64) {
		if _, err := meter.Int64ObservableGauge(
			metricName,
			metric.WithDescription(desc),
			metric.WithUnit(unit),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(valueProvider(),
					metric.WithAttributes(attribute.Int("rank", m.rank)))
				return nil
			})); err != nil {
			log.Error("failed to register metric",
				log.String("metric", metricName),
				log.ErrorField(err))
		}
	}
	type data struct {
		name  string
		desc  string
		unit  string
		value func() int64
	}
	for _, d := range []*data{
		{
			"roadsim.ticks", "Number of processed ticks", "{count}",
			m.ticks.Load,
		},
		{
			"roadsim.vehicles.segment", "Vehicles currently on the segment", "{count}",
			m.onSegment.Load,
		},
		{
			"roadsim.handoff.batch", "Size of the last outbound handoff batch", "{count}",
			m.handoffBatch.Load,
		},
		{
			"roadsim.handoff.total", "Total vehicles handed to the right neighbor", "{count}",
			m.handoffTotal.Load,
		},
	} {
		register(d.name, d.desc, d.unit, d.value)
	}
	return m
}

func (m *simMetrics) observeTick(vehiclesOnSegment int) {
	m.ticks.Add(1)
	m.onSegment.Store(int64(vehiclesOnSegment))
}

func (m *simMetrics) observeHandoff(batchSize int) {
	m.handoffBatch.Store(int64(batchSize))
	m.handoffTotal.Add(int64(batchSize))
}
