package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"kubeagentic/pkg/agent/llm"
	"kubeagentic/pkg/logx"
)

// CompiledGraph is the immutable, traversal-ready form of a Spec. Compilation
// reads only the definition it is given; it performs no I/O and never calls
// the LLM client it binds.
type CompiledGraph struct {
	entry string
	nodes map[string]*compiledNode
	edges map[string][]compiledEdge
}

// Entry returns the name of the entrypoint node.
func (g *CompiledGraph) Entry() string {
	return g.entry
}

// Len returns the number of nodes in the graph.
func (g *CompiledGraph) Len() int {
	return len(g.nodes)
}

type compiledNode struct {
	name    string
	kind    string
	outputs []string
	action  nodeAction
}

// compiledEdge is an outgoing edge. A nil cond means the edge is
// unconditional.
type compiledEdge struct {
	to   string
	cond *Condition
}

// nodeAction executes one node against the current session state and returns
// the node's result text.
type nodeAction func(ctx context.Context, state map[string]string) (string, error)

var validGraphTypes = map[string]bool{
	GraphTypeSequential:   true,
	GraphTypeParallel:     true,
	GraphTypeConditional:  true,
	GraphTypeHierarchical: true,
}

// Compile validates a workflow definition and binds every node to an action.
// It returns a ValidationError identifying the offending node or edge on the
// first structural problem found.
func Compile(spec *Spec, client llm.LLMClient, systemPrompt string) (*CompiledGraph, error) {
	if spec == nil {
		return nil, &ValidationError{Reason: "workflow definition is missing"}
	}
	if client == nil {
		return nil, fmt.Errorf("llm client is required to compile a workflow")
	}
	if spec.GraphType != "" && !validGraphTypes[spec.GraphType] {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown graph type %q", spec.GraphType)}
	}
	if len(spec.Nodes) == 0 {
		return nil, &ValidationError{Reason: "workflow must define at least one node"}
	}

	logger := logx.NewLogger("workflow")
	g := &CompiledGraph{
		nodes: make(map[string]*compiledNode, len(spec.Nodes)),
		edges: make(map[string][]compiledEdge),
	}

	for i := range spec.Nodes {
		node := &spec.Nodes[i]
		if node.Name == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("node at index %d has no name", i)}
		}
		if _, exists := g.nodes[node.Name]; exists {
			return nil, &ValidationError{Node: node.Name, Reason: "duplicate node name"}
		}
		compiled, err := compileNode(node, client, systemPrompt, logger)
		if err != nil {
			return nil, err
		}
		g.nodes[node.Name] = compiled
	}

	g.entry = spec.Entrypoint
	if g.entry == "" {
		g.entry = DefaultEntrypoint
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, &ValidationError{Reason: fmt.Sprintf("entrypoint %q does not reference a defined node", g.entry)}
	}

	unconditional := make(map[string]bool)
	for _, edge := range spec.Edges {
		label := fmt.Sprintf("%q -> %q", edge.From, edge.To)
		if _, ok := g.nodes[edge.From]; !ok {
			return nil, &ValidationError{Edge: label, Reason: fmt.Sprintf("references unknown node %q", edge.From)}
		}
		if _, ok := g.nodes[edge.To]; !ok {
			return nil, &ValidationError{Edge: label, Reason: fmt.Sprintf("references unknown node %q", edge.To)}
		}
		var cond *Condition
		if edge.Condition != "" {
			parsed, err := ParseCondition(edge.Condition)
			if err != nil {
				return nil, &ValidationError{Edge: label, Reason: fmt.Sprintf("invalid condition: %v", err)}
			}
			cond = parsed
		} else {
			if unconditional[edge.From] {
				return nil, &ValidationError{Edge: label, Reason: "node already has an unconditional outgoing edge"}
			}
			unconditional[edge.From] = true
		}
		g.edges[edge.From] = append(g.edges[edge.From], compiledEdge{to: edge.To, cond: cond})
	}

	for _, ep := range spec.Endpoints {
		if _, ok := g.nodes[ep]; !ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("endpoint %q does not reference a defined node", ep)}
		}
	}

	return g, nil
}

func compileNode(node *NodeSpec, client llm.LLMClient, systemPrompt string, logger *logx.Logger) (*compiledNode, error) {
	compiled := &compiledNode{name: node.Name, kind: node.Type}
	switch node.Type {
	case NodeTypeLLM:
		prompt := node.Prompt
		if prompt == "" {
			prompt = DefaultPrompt
		}
		tmpl, err := ParseTemplate(prompt)
		if err != nil {
			return nil, &ValidationError{Node: node.Name, Reason: fmt.Sprintf("invalid prompt template: %v", err)}
		}
		compiled.outputs = node.Outputs
		if len(compiled.outputs) == 0 {
			compiled.outputs = []string{KeyResponse}
		}
		compiled.action = newLLMAction(node.Name, tmpl, node.Inputs, client, systemPrompt, logger)
	case NodeTypeTool:
		compiled.outputs = node.Outputs
		if len(compiled.outputs) == 0 {
			compiled.outputs = []string{"tool_result"}
		}
		compiled.action = newToolAction(node.Tool, node.Inputs)
	default:
		return nil, &ValidationError{Node: node.Name, Reason: fmt.Sprintf("node type must be %q or %q, got %q", NodeTypeLLM, NodeTypeTool, node.Type)}
	}
	return compiled, nil
}

// newLLMAction binds a prompt template and input whitelist to a completion
// call. When the node declares inputs, the template sees only those state
// keys; otherwise it may read the whole state.
func newLLMAction(name string, tmpl *Template, inputs []string, client llm.LLMClient, systemPrompt string, logger *logx.Logger) nodeAction {
	allowed := append([]string(nil), inputs...)
	return func(ctx context.Context, state map[string]string) (string, error) {
		vars := state
		if len(allowed) > 0 {
			vars = make(map[string]string, len(allowed))
			for _, key := range allowed {
				if v, ok := state[key]; ok {
					vars[key] = v
				}
			}
		}

		prompt, err := tmpl.Render(vars)
		if err != nil {
			// Missing variables are a definition problem, not a runtime
			// failure: the node proceeds with the unformatted template text.
			logger.Warn("Node %s: %v, using unformatted prompt", name, err)
			prompt = tmpl.Source()
		}

		messages := make([]llm.CompletionMessage, 0, 2)
		if systemPrompt != "" {
			messages = append(messages, llm.NewSystemMessage(systemPrompt))
		}
		messages = append(messages, llm.NewUserMessage(prompt))

		resp, err := client.Complete(ctx, llm.NewCompletionRequest(messages))
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
}

// newToolAction builds the stub action for tool nodes: no tool is invoked,
// the node records which tool would run and with what inputs.
func newToolAction(toolName string, inputs []string) nodeAction {
	if toolName == "" {
		toolName = DefaultToolName
	}
	declared := append([]string(nil), inputs...)
	return func(_ context.Context, state map[string]string) (string, error) {
		collected := make(map[string]string, len(declared))
		for _, key := range declared {
			collected[key] = state[key]
		}
		payload, err := json.Marshal(collected)
		if err != nil {
			return "", fmt.Errorf("failed to encode tool inputs: %w", err)
		}
		return fmt.Sprintf("Tool %s executed with inputs: %s", toolName, payload), nil
	}
}
