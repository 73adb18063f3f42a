package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
	"github.com/seehiong/micronaut-optimizer/internal/core/propagation"
	"github.com/seehiong/micronaut-optimizer/internal/core/transform"
)

// Compile-time checks that Recorder plugs into the core.
var (
	_ transform.Observer   = Recorder{}
	_ propagation.Observer = Recorder{}
	_ diag.Sink            = Recorder{}
)

func TestRecorder(t *testing.T) {
	var r Recorder

	before := testutil.ToFloat64(transformsTotal.WithLabelValues("none", "true"))
	r.TransformApplied(graph.TransformNone, true)
	assert.Equal(t, before+1, testutil.ToFloat64(transformsTotal.WithLabelValues("none", "true")))

	bursts := testutil.ToFloat64(burstsTotal.WithLabelValues("submit"))
	writes := testutil.ToFloat64(writesTotal)
	truncated := testutil.ToFloat64(truncatedTotal)
	r.BurstFinished(propagation.TriggerSubmit, propagation.BurstStats{Writes: 3, Truncated: true})
	assert.Equal(t, bursts+1, testutil.ToFloat64(burstsTotal.WithLabelValues("submit")))
	assert.Equal(t, writes+3, testutil.ToFloat64(writesTotal))
	assert.Equal(t, truncated+1, testutil.ToFloat64(truncatedTotal))

	warnings := testutil.ToFloat64(diagnosticsTotal.WithLabelValues("warning"))
	r.Report(context.Background(), diag.New(diag.Warning, "test", "x"))
	assert.Equal(t, warnings+1, testutil.ToFloat64(diagnosticsTotal.WithLabelValues("warning")))

	failed := testutil.ToFloat64(invocationsTotal.WithLabelValues("stream", "false"))
	r.InvocationFinished("stream", false)
	assert.Equal(t, failed+1, testutil.ToFloat64(invocationsTotal.WithLabelValues("stream", "false")))

	rejected := testutil.ToFloat64(connectionsTotal.WithLabelValues("false"))
	r.ConnectionAttempted(false)
	assert.Equal(t, rejected+1, testutil.ToFloat64(connectionsTotal.WithLabelValues("false")))

	frames := testutil.ToFloat64(streamFramesTotal)
	r.StreamFrameApplied()
	assert.Equal(t, frames+1, testutil.ToFloat64(streamFramesTotal))
}
