package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seehiong/micronaut-optimizer/internal/core/diag"
	"github.com/seehiong/micronaut-optimizer/internal/core/transform"
	"github.com/seehiong/micronaut-optimizer/internal/core/value"
	"github.com/seehiong/micronaut-optimizer/internal/infrastructure/logging"
)

const invocationSource = "invocation"

// InvokeMode selects the external service a node is run through.
type InvokeMode string

const (
	// ModeStream posts input 0 to the node's endpoint and applies every
	// streamed frame
	ModeStream InvokeMode = "stream"
	// ModeRemoteLLM asks the remote language model once
	ModeRemoteLLM InvokeMode = "remote-llm"
	// ModeLocalLLM asks the local language model once
	ModeLocalLLM InvokeMode = "local-llm"
)

// InvokeModes lists every mode.
var InvokeModes = []InvokeMode{ModeStream, ModeRemoteLLM, ModeLocalLLM}

// Valid reports whether m is a known mode.
func (m InvokeMode) Valid() bool {
	switch m {
	case ModeStream, ModeRemoteLLM, ModeLocalLLM:
		return true
	}
	return false
}

// InvocationResult describes a finished invocation.
type InvocationResult struct {
	ID         string        `json:"id"`
	NodeID     string        `json:"node_id"`
	Mode       InvokeMode    `json:"mode"`
	Generation uint64        `json:"generation"`
	Applied    int           `json:"applied"`
	Stale      bool          `json:"stale,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// call is what an invocation captured from its node under the lock.
type call struct {
	result      InvocationResult
	endpoint    string
	payload     value.Value
	instruction string
}

// Invoke runs a node through an external service and blocks until the
// service is done. Each result replaces the node's output and fans out, but
// only while the node still exists and no newer invocation or restore has
// happened since this one began. A failed call leaves the output untouched.
func (s *Session) Invoke(ctx context.Context, nodeID string, mode InvokeMode) (InvocationResult, error) {
	ctx = s.ctx(ctx)
	if !mode.Valid() {
		return InvocationResult{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	c, err := s.begin(ctx, nodeID, mode)
	if err != nil {
		return InvocationResult{}, err
	}
	logger := logging.FromContext(ctx).With(
		"node_id", nodeID, "mode", string(mode),
		"invocation_id", c.result.ID, "generation", c.result.Generation)
	ctx = logging.WithLogger(ctx, logger)
	logger.Debug("invocation started")
	started := c.result
	s.publish(Event{Type: EventInvocationStarted, NodeID: nodeID, Invocation: &started})

	start := time.Now()
	err = s.run(ctx, c)
	c.result.Duration = time.Since(start)
	s.finish(ctx, c, err)
	return c.result, err
}

func (s *Session) begin(ctx context.Context, nodeID string, mode InvokeMode) (*call, error) {
	if !s.configured(mode) {
		err := fmt.Errorf("%w: %s", ErrInvokerMissing, mode)
		s.report(ctx, diag.New(diag.Error, invocationSource, "%v", err).WithNode(nodeID).WithErr(err))
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.findLocked(nodeID)
	if err != nil {
		s.report(ctx, diag.New(diag.Error, invocationSource, "%v", err).WithErr(err))
		return nil, err
	}
	payload, ok := node.Input(0)
	if !ok || payload.IsNull() {
		s.report(ctx, diag.New(diag.Warning, invocationSource,
			"Data is null or undefined. Skipping API request.").WithNode(nodeID).WithErr(ErrMissingPayload))
		return nil, ErrMissingPayload
	}

	s.lastGen++
	s.generations[nodeID] = s.lastGen
	c := &call{
		result: InvocationResult{
			ID:         uuid.NewString(),
			NodeID:     nodeID,
			Mode:       mode,
			Generation: s.lastGen,
		},
		endpoint: node.APIEndpoint,
		payload:  payload,
	}
	if instr, ok := node.Input(1); ok {
		c.instruction, _ = transform.CastToString(instr).AsText()
	}
	return c, nil
}

func (s *Session) configured(mode InvokeMode) bool {
	switch mode {
	case ModeStream:
		return s.stream != nil
	case ModeRemoteLLM:
		return s.remoteLLM != nil
	case ModeLocalLLM:
		return s.localLLM != nil
	}
	return false
}

func (s *Session) run(ctx context.Context, c *call) error {
	switch c.result.Mode {
	case ModeStream:
		_, err := s.stream.Stream(ctx, c.endpoint, c.payload, func(ctx context.Context, frame value.Value) error {
			if err := s.apply(ctx, c, frame); err != nil {
				return err
			}
			s.metrics.StreamFrameApplied()
			return nil
		})
		return err
	case ModeRemoteLLM:
		return s.complete(ctx, c, s.remoteLLM)
	default:
		return s.complete(ctx, c, s.localLLM)
	}
}

func (s *Session) complete(ctx context.Context, c *call, llm Completer) error {
	text, err := llm.Complete(ctx, c.instruction, c.payload)
	if err != nil {
		return err
	}
	return s.apply(ctx, c, value.Text(text))
}

// apply installs one result as the node's output and fans it out, provided
// the invocation is still current.
func (s *Session) apply(ctx context.Context, c *call, out value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.graph.FindNode(c.result.NodeID)
	if node == nil || s.generations[c.result.NodeID] != c.result.Generation {
		return ErrStaleInvocation
	}
	node.UpdateOutputData(out)
	c.result.Applied++
	s.publish(Event{Type: EventNodeOutput, NodeID: node.ID, Output: &out})

	if _, err := s.engine.Fanout(ctx, node.ID); err != nil {
		return fmt.Errorf("fanout: %w", err)
	}
	return nil
}

func (s *Session) finish(ctx context.Context, c *call, err error) {
	nodeID := c.result.NodeID
	logger := logging.FromContext(ctx)
	s.metrics.InvocationFinished(string(c.result.Mode), err == nil)

	switch {
	case err == nil:
		logger.Debug("invocation finished", "applied", c.result.Applied, "duration", c.result.Duration)
		s.report(ctx, diag.New(diag.Success, invocationSource, "%s", successMessage(c.result.Mode, nodeID)).WithNode(nodeID))
	case errors.Is(err, ErrStaleInvocation):
		c.result.Stale = true
		c.result.Error = err.Error()
		s.report(ctx, diag.New(diag.Info, invocationSource,
			"dropping result for node %s: a newer invocation or edit superseded it", nodeID).WithNode(nodeID).WithErr(err))
	default:
		c.result.Error = err.Error()
		s.report(ctx, diag.New(diag.Error, invocationSource, "%s failed:\n%v", failureLabel(c.result.Mode), err).WithNode(nodeID).WithErr(err))
	}
	finished := c.result
	s.publish(Event{Type: EventInvocationFinished, NodeID: nodeID, Invocation: &finished})
}

func successMessage(mode InvokeMode, nodeID string) string {
	switch mode {
	case ModeRemoteLLM:
		return "LLM processed the data successfully!"
	case ModeLocalLLM:
		return "Local LLM processed the data successfully!"
	default:
		return "Optimized problem for node: " + nodeID
	}
}

func failureLabel(mode InvokeMode) string {
	switch mode {
	case ModeRemoteLLM:
		return "LLM request"
	case ModeLocalLLM:
		return "Local LLM request"
	default:
		return "API request"
	}
}

// Generation returns the current invocation generation of a node; zero when
// none is outstanding.
func (s *Session) Generation(nodeID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[nodeID]
}
