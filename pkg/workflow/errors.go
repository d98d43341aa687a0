package workflow

import "fmt"

// ValidationError reports a structural problem found while compiling a
// workflow definition. Node or Edge identifies the offending element when the
// problem is scoped to one.
type ValidationError struct {
	Node   string
	Edge   string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Node != "":
		return fmt.Sprintf("invalid workflow node %q: %s", e.Node, e.Reason)
	case e.Edge != "":
		return fmt.Sprintf("invalid workflow edge %s: %s", e.Edge, e.Reason)
	default:
		return fmt.Sprintf("invalid workflow: %s", e.Reason)
	}
}

// ExecutionError reports a fatal failure during a workflow run. The session
// state written before the failing step is preserved.
type ExecutionError struct {
	Node string
	Step int
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("workflow execution failed at node %q (step %d): %v", e.Node, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
