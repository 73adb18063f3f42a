// Package flowgraph provides a minimal public façade for building and
// driving editor sessions without importing internal packages. It re-exports
// the core graph and value types and exposes a Runtime that wires sessions
// to the configured invocation adapters and snapshot store.
package flowgraph
