package cnst

import "errors"

var (
	// ErrSessionNotFound is returned when a session id is unknown
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInactive is returned when a session exists but no longer accepts operations
	ErrSessionInactive = errors.New("session inactive")
	// ErrSessionExists is returned when a session id is already registered
	ErrSessionExists = errors.New("session already exists")
	// ErrQueueFull is returned when a session's operation queue is at capacity
	ErrQueueFull = errors.New("operation queue full")
	// ErrNotQueueable is returned when an interrupt is submitted through the queued path
	ErrNotQueueable = errors.New("interrupt is not a queueable operation")
	// ErrUnknownKind is returned for an operation kind outside the known set
	ErrUnknownKind = errors.New("unknown operation kind")
)
