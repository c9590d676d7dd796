package cnst

// Reserved event types produced by the server itself. All other event types
// are free-form strings chosen by the engine.
const (
	// EventServerShutdown is broadcast to every subscriber before the server drains
	EventServerShutdown = "server_shutdown"
	// EventOperationError is published to a session when its engine fails
	EventOperationError = "operation_error"
)
