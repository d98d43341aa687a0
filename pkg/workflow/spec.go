// Package workflow compiles declarative node/edge graph definitions into
// executable graphs and runs them against per-conversation session state.
//
// A workflow definition arrives as JSON (inline in the environment) or as a
// YAML/JSON file. Compile validates the definition and binds each node to an
// action; Executor walks the compiled graph one conversation at a time.
package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Graph type labels carried from the deployment manifest. The executor treats
// every graph as a step-by-step walk; the label is informational.
const (
	GraphTypeSequential   = "sequential"
	GraphTypeParallel     = "parallel"
	GraphTypeConditional  = "conditional"
	GraphTypeHierarchical = "hierarchical"
)

// Node kinds.
const (
	NodeTypeLLM  = "llm"
	NodeTypeTool = "tool"
)

// Defaults applied during compilation when the definition omits a field.
const (
	DefaultEntrypoint = "start"
	DefaultPrompt     = "{user_input}"
	DefaultToolName   = "unknown"
)

// Session state keys managed by the executor.
const (
	KeyConversationID = "conversation_id"
	KeyUserInput      = "user_input"
	KeyResponse       = "response"
)

// Spec is a declarative workflow definition as written in a deployment
// manifest. Field names match the manifest schema, so the same struct decodes
// the inline JSON form and the YAML file form.
type Spec struct {
	GraphType  string     `json:"graphType,omitempty" yaml:"graphType,omitempty"`
	Nodes      []NodeSpec `json:"nodes" yaml:"nodes"`
	Edges      []EdgeSpec `json:"edges,omitempty" yaml:"edges,omitempty"`
	Entrypoint string     `json:"entrypoint,omitempty" yaml:"entrypoint,omitempty"`
	Endpoints  []string   `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
}

// NodeSpec declares a single workflow node.
//
// Inputs lists the session state keys the node may read. For llm nodes an
// empty list means the prompt template may read any state key. Outputs lists
// the state keys the node's result is written to; it defaults per node type
// during compilation.
type NodeSpec struct {
	Name    string   `json:"name" yaml:"name"`
	Type    string   `json:"type" yaml:"type"`
	Prompt  string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Tool    string   `json:"tool,omitempty" yaml:"tool,omitempty"`
	Inputs  []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// EdgeSpec declares a directed edge. An empty Condition makes the edge
// unconditional; otherwise the edge is taken only when the condition
// evaluates true against the current session state.
type EdgeSpec struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ParseSpec decodes a workflow definition from JSON, the form used for
// inline definitions passed through the environment.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("workflow definition is not valid JSON: %w", err)
	}
	return &spec, nil
}

// LoadSpecFile reads a workflow definition from a YAML or JSON file.
// YAML is tried first, then JSON, so both formats work with either extension.
func LoadSpecFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	var spec Spec
	if yamlErr := yaml.Unmarshal(data, &spec); yamlErr != nil {
		spec = Spec{}
		if jsonErr := json.Unmarshal(data, &spec); jsonErr != nil {
			return nil, fmt.Errorf("workflow file %s is neither valid YAML (%v) nor valid JSON (%v)", path, yamlErr, jsonErr)
		}
	}
	return &spec, nil
}
