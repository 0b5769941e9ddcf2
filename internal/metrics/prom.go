// README: Prometheus collectors for route operations and settlement.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records route lifecycle metrics.
type PromSink struct {
	operations *prometheus.CounterVec
	created    prometheus.Counter
	settled    prometheus.Histogram
}

// NewPromSink registers the collectors on reg, or on the default registerer
// when reg is nil. Collectors that are already registered are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lastmile_route_operations_total",
		Help: "Route operations by outcome",
	}, []string{"operation", "outcome"})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lastmile_routes_created_total",
		Help: "Routes created, single and batch",
	})
	settled := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lastmile_route_final_value",
		Help:    "Final value of validated routes",
		Buckets: prometheus.ExponentialBuckets(50, 2, 8),
	})

	if err := reg.Register(operations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			operations = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(created); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			created = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(settled); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			settled = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	return &PromSink{operations: operations, created: created, settled: settled}, nil
}

func (s *PromSink) ObserveOperation(op, outcome string) {
	s.operations.WithLabelValues(op, outcome).Inc()
}

func (s *PromSink) RoutesCreated(n int) {
	s.created.Add(float64(n))
}

func (s *PromSink) RouteSettled(finalValue float64) {
	s.settled.Observe(finalValue)
}
