package usecases

import "errors"

// Session errors
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrStaleInvocation  = errors.New("invocation superseded")
	ErrUnknownMode      = errors.New("unknown invocation mode")
	ErrInvokerMissing   = errors.New("no invoker configured for mode")
	ErrMissingPayload   = errors.New("node has no payload on input 0")
	ErrSnapshotRequired = errors.New("no snapshot store configured")
)
