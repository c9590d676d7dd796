package gate

// Kind identifies what a submitted operation asks the engine to do.
type Kind string

const (
	KindUserInput    Kind = "user_input"
	KindExecApproval Kind = "exec_approval"
	KindInterrupt    Kind = "interrupt"
	KindUndo         Kind = "undo"
	KindCompact      Kind = "compact"
	KindShutdown     Kind = "shutdown"
)

// Valid reports whether k is one of the known operation kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindUserInput, KindExecApproval, KindInterrupt, KindUndo, KindCompact, KindShutdown:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// Operation is a unit of work submitted into a session's queue. The
// payload is opaque to the gate; only the engine interprets it.
type Operation struct {
	Kind    Kind           `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}
