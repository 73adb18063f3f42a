package diag

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiAndRecorder(t *testing.T) {
	var a, b Recorder
	sink := Multi(&a, nil, &b)

	sink.Report(context.Background(), New(Warning, "transform", "bad row %d", 2).WithNode("n1"))
	sink.Report(context.Background(), New(Error, "connection", "cycle"))

	assert.Len(t, a.All(), 2)
	assert.Len(t, b.All(), 2)
	assert.Equal(t, 1, a.Count(Warning))
	assert.Equal(t, "bad row 2", a.All()[0].Message)
	assert.Equal(t, "n1", a.All()[0].NodeID)

	a.Reset()
	assert.Empty(t, a.All())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogSink(logger).Report(context.Background(),
		New(Error, "invocation", "request failed").WithNode("n3").WithErr(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "source=invocation")
	assert.Contains(t, out, "node_id=n3")
	assert.Contains(t, out, "error=boom")
}

func TestDiagnosticString(t *testing.T) {
	assert.Equal(t, "[info] graph: ok", New(Info, "graph", "ok").String())
	assert.Equal(t, "[success] invocation (node n2): done", New(Success, "invocation", "done").WithNode("n2").String())
}
