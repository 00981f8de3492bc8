package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// AgentType selects the behavior bound to a graph node.
type AgentType string

const (
	AgentClassifier AgentType = "classifier"
	AgentGatekeeper AgentType = "gatekeeper"
	AgentScorer     AgentType = "scorer"
	AgentResponder  AgentType = "responder"
)

// Valid reports whether t is one of the four known agent types.
func (t AgentType) Valid() bool {
	switch t {
	case AgentClassifier, AgentGatekeeper, AgentScorer, AgentResponder:
		return true
	}
	return false
}

// IsJudgment reports whether nodes of this type produce a routed judgment.
func (t AgentType) IsJudgment() bool {
	return t == AgentClassifier || t == AgentGatekeeper || t == AgentScorer
}

// EndNode is the pseudo-destination recorded when a run terminates.
const EndNode = "__end__"

// NoMatchedCondition is recorded on a route trace when no edge fired.
const NoMatchedCondition = "N/A"

// DecisionConfig is the type-specific judgment configuration of a node.
// Exactly one field is meaningful, selected by the owning node's AgentType:
// Options for classifiers, Question for gatekeepers, Instruction for scorers.
type DecisionConfig struct {
	Options     []string `json:"options,omitempty"`
	Question    string   `json:"question,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
}

// AgentNode is a single unit of the workflow graph.
type AgentNode struct {
	Name           string          `json:"name"`
	AgentType      AgentType       `json:"agentType"`
	OutputField    string          `json:"outputField,omitempty"`
	DecisionConfig *DecisionConfig `json:"decisionConfig,omitempty"`
	PromptName     string          `json:"promptName,omitempty"`
}

// Validate checks that the node's attributes agree with its agent type.
func (n AgentNode) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("name is required")
	}
	if n.Name == EndNode {
		return fmt.Errorf("name %q is reserved", EndNode)
	}
	if !n.AgentType.Valid() {
		return fmt.Errorf("unknown agent type %q", n.AgentType)
	}
	if n.AgentType == AgentResponder {
		if n.OutputField != "" {
			return fmt.Errorf("responder %q must not declare an output field", n.Name)
		}
		if n.DecisionConfig != nil {
			return fmt.Errorf("responder %q must not declare a decision config", n.Name)
		}
		return nil
	}

	if n.OutputField == "" {
		return fmt.Errorf("%s %q requires an output field", n.AgentType, n.Name)
	}
	if n.PromptName != "" {
		return fmt.Errorf("%s %q must not bind a prompt", n.AgentType, n.Name)
	}
	cfg := n.DecisionConfig
	if cfg == nil {
		return fmt.Errorf("%s %q requires a decision config", n.AgentType, n.Name)
	}
	switch n.AgentType {
	case AgentClassifier:
		if len(cfg.Options) == 0 || cfg.Question != "" || cfg.Instruction != "" {
			return fmt.Errorf("classifier %q requires options only", n.Name)
		}
		seen := make(map[string]bool, len(cfg.Options))
		for _, opt := range cfg.Options {
			if opt == "" {
				return fmt.Errorf("classifier %q has an empty option", n.Name)
			}
			if seen[opt] {
				return fmt.Errorf("classifier %q repeats option %q", n.Name, opt)
			}
			seen[opt] = true
		}
	case AgentGatekeeper:
		if cfg.Question == "" || len(cfg.Options) > 0 || cfg.Instruction != "" {
			return fmt.Errorf("gatekeeper %q requires a question only", n.Name)
		}
	case AgentScorer:
		if cfg.Instruction == "" || len(cfg.Options) > 0 || cfg.Question != "" {
			return fmt.Errorf("scorer %q requires an instruction only", n.Name)
		}
	}
	return nil
}

// Operator is a condition comparison operator.
type Operator string

const (
	OpEq  Operator = "eq"
	OpGt  Operator = "gt"
	OpLt  Operator = "lt"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpGt, OpLt, OpGte, OpLte:
		return true
	}
	return false
}

// Ordering reports whether op compares numerically.
func (op Operator) Ordering() bool {
	return op == OpGt || op == OpLt || op == OpGte || op == OpLte
}

// Symbol returns the mathematical symbol for op.
func (op Operator) Symbol() string {
	switch op {
	case OpEq:
		return "="
	case OpGt:
		return ">"
	case OpLt:
		return "<"
	case OpGte:
		return "≥"
	case OpLte:
		return "≤"
	}
	return string(op)
}

// Condition guards an edge. Value holds a string, bool or float64.
type Condition struct {
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// UnmarshalJSON accepts only scalar operands. JSON numbers decode to float64.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Operator Operator        `json:"operator"`
		Value    json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := DecodeScalar(raw.Value)
	if err != nil {
		return fmt.Errorf("condition value: %w", err)
	}
	c.Operator = raw.Operator
	c.Value = v
	return nil
}

// Validate checks the operator and operand types.
func (c Condition) Validate() error {
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	switch c.Value.(type) {
	case string, bool:
		if c.Operator.Ordering() {
			return fmt.Errorf("operator %q requires a numeric operand", c.Operator)
		}
	case float64:
	default:
		return fmt.Errorf("operand must be a string, boolean or number, got %T", c.Value)
	}
	return nil
}

// String renders the condition as "op value", the form recorded on traces.
func (c Condition) String() string {
	return string(c.Operator) + " " + FormatValue(c.Value)
}

// DecodeScalar decodes a JSON string, boolean or number. Anything else,
// including null, is rejected.
func DecodeScalar(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing value")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case 'n':
		return nil, fmt.Errorf("null is not a valid value")
	case '{', '[':
		return nil, fmt.Errorf("value must be a scalar")
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, err
		}
		return f, nil
	}
}

// FormatValue renders a judgment or operand value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// Edge routes execution from SrcNode to DestNode when Condition holds.
// A nil Condition always fires.
type Edge struct {
	SrcNode   string     `json:"srcNode"`
	DestNode  string     `json:"destNode"`
	Condition *Condition `json:"condition"`
}

// Graph is a snapshot of the persisted workflow graph. Edges are keyed by
// source node and kept in insertion order.
type Graph struct {
	EntryNode string               `json:"entryNode"`
	Nodes     map[string]AgentNode `json:"nodes"`
	Edges     map[string][]Edge    `json:"edges"`
}

// NewGraph returns an empty graph with initialized maps.
func NewGraph() Graph {
	return Graph{
		Nodes: make(map[string]AgentNode),
		Edges: make(map[string][]Edge),
	}
}

// Clone returns a deep copy of g.
func (g Graph) Clone() Graph {
	out := Graph{
		EntryNode: g.EntryNode,
		Nodes:     make(map[string]AgentNode, len(g.Nodes)),
		Edges:     make(map[string][]Edge, len(g.Edges)),
	}
	for name, n := range g.Nodes {
		if n.DecisionConfig != nil {
			cfg := *n.DecisionConfig
			cfg.Options = append([]string(nil), cfg.Options...)
			n.DecisionConfig = &cfg
		}
		out.Nodes[name] = n
	}
	for src, edges := range g.Edges {
		cp := make([]Edge, len(edges))
		for i, e := range edges {
			if e.Condition != nil {
				c := *e.Condition
				e.Condition = &c
			}
			cp[i] = e
		}
		out.Edges[src] = cp
	}
	return out
}

// EdgeCount returns the total number of edges.
func (g Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.Edges {
		n += len(edges)
	}
	return n
}
