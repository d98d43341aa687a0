package workflow

import (
	"context"
	"fmt"

	"kubeagentic/pkg/logx"
)

// DefaultMaxSteps bounds a single workflow run. Graphs with cycles are legal;
// the guard turns a runaway walk into an ExecutionError instead of a hung
// request.
const DefaultMaxSteps = 50

// NoResponseMessage is returned when a run terminates without any node
// writing the response key.
const NoResponseMessage = "No response generated from workflow"

// Executor walks a compiled graph against per-conversation session state.
type Executor struct {
	graph    *CompiledGraph
	sessions *SessionStore
	maxSteps int
	observer func(conversationID string, steps int)
	logger   *logx.Logger
}

// NewExecutor pairs a compiled graph with a session store. Non-positive
// maxSteps selects DefaultMaxSteps.
func NewExecutor(graph *CompiledGraph, sessions *SessionStore, maxSteps int) *Executor {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Executor{
		graph:    graph,
		sessions: sessions,
		maxSteps: maxSteps,
		logger:   logx.NewLogger("workflow"),
	}
}

// SetStepsObserver registers a callback invoked after every run with the
// number of steps executed, including failed runs. Set it before the executor
// sees traffic.
func (e *Executor) SetStepsObserver(fn func(conversationID string, steps int)) {
	e.observer = fn
}

// Run executes the graph for one user message and returns the conversation's
// response text.
//
// The run holds the conversation's lock end to end, so concurrent messages
// for the same conversation execute one at a time. State written by completed
// nodes persists even when a later node fails.
func (e *Executor) Run(ctx context.Context, conversationID, userInput string) (string, error) {
	var response string
	steps := 0
	err := e.sessions.WithLock(conversationID, func(state map[string]string) error {
		state[KeyUserInput] = userInput

		current := e.graph.entry
		for {
			steps++
			if steps > e.maxSteps {
				return &ExecutionError{
					Node: current,
					Step: steps,
					Err:  fmt.Errorf("exceeded maximum of %d steps, aborting run", e.maxSteps),
				}
			}

			node := e.graph.nodes[current]
			e.logger.Debug("Step %d: executing %s node %s", steps, node.kind, node.name)
			result, err := node.action(ctx, state)
			if err != nil {
				return &ExecutionError{Node: current, Step: steps, Err: err}
			}
			for _, key := range node.outputs {
				state[key] = result
			}

			next, ok := e.nextNode(current, state)
			if !ok {
				break
			}
			current = next
		}

		if v, ok := state[KeyResponse]; ok {
			response = v
		} else {
			response = NoResponseMessage
		}
		return nil
	})
	if e.observer != nil {
		e.observer(conversationID, steps)
	}
	if err != nil {
		return "", err
	}
	return response, nil
}

// nextNode selects the successor of current: edges are considered in
// declaration order, and the first unconditional edge or satisfied condition
// wins. No eligible edge means the node is terminal.
func (e *Executor) nextNode(current string, state map[string]string) (string, bool) {
	for _, edge := range e.graph.edges[current] {
		if edge.cond == nil || edge.cond.Eval(state) {
			return edge.to, true
		}
	}
	return "", false
}
