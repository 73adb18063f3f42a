// Package metrics publishes Prometheus counters for the graph engine and
// its adapters. The Recorder type plugs into the core's observer interfaces
// so the core never imports Prometheus.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/propagation"
)

var (
	burstsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowgraph_propagation_bursts_total",
		Help: "Propagation bursts by trigger.",
	}, []string{"trigger"})

	writesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowgraph_propagation_writes_total",
		Help: "Input slot writes performed by propagation.",
	})

	truncatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowgraph_propagation_truncated_total",
		Help: "Bursts stopped by the step bound or cancellation.",
	})

	transformsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowgraph_transforms_total",
		Help: "Transforms applied by kind and result.",
	}, []string{"kind", "result"})

	connectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowgraph_connections_total",
		Help: "Connection attempts by result.",
	}, []string{"result"})

	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowgraph_invocations_total",
		Help: "External invocations by mode and result.",
	}, []string{"mode", "result"})

	streamFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowgraph_stream_frames_total",
		Help: "Streaming frames applied to the graph.",
	})

	diagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowgraph_diagnostics_total",
		Help: "Diagnostics reported by severity.",
	}, []string{"severity"})
)

// Recorder feeds engine events into the package counters. The zero value is
// ready to use.
type Recorder struct{}

// TransformApplied implements transform.Observer.
func (Recorder) TransformApplied(kind graph.TransformType, ok bool) {
	name := string(kind)
	if name == "" {
		name = "none"
	}
	transformsTotal.WithLabelValues(name, result(ok)).Inc()
}

// BurstFinished implements propagation.Observer.
func (Recorder) BurstFinished(trigger propagation.Trigger, stats propagation.BurstStats) {
	burstsTotal.WithLabelValues(string(trigger)).Inc()
	writesTotal.Add(float64(stats.Writes))
	if stats.Truncated {
		truncatedTotal.Inc()
	}
}

// Report implements diag.Sink by counting diagnostics.
func (Recorder) Report(_ context.Context, d diag.Diagnostic) {
	diagnosticsTotal.WithLabelValues(string(d.Severity)).Inc()
}

// ConnectionAttempted counts a connection attempt.
func (Recorder) ConnectionAttempted(ok bool) {
	connectionsTotal.WithLabelValues(result(ok)).Inc()
}

// InvocationFinished counts an external invocation.
func (Recorder) InvocationFinished(mode string, ok bool) {
	invocationsTotal.WithLabelValues(mode, result(ok)).Inc()
}

// StreamFrameApplied counts one applied stream frame.
func (Recorder) StreamFrameApplied() {
	streamFramesTotal.Inc()
}

func result(ok bool) string {
	return strconv.FormatBool(ok)
}
