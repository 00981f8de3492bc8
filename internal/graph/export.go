package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// Export formats.
const (
	FormatMermaid = "mermaid"
	FormatJSON    = "json"
)

// Export renders g in the given format.
func Export(g model.Graph, format string) ([]byte, error) {
	switch format {
	case "", FormatMermaid:
		return []byte(ToMermaid(g)), nil
	case FormatJSON:
		return json.MarshalIndent(g, "", "  ")
	}
	return nil, fmt.Errorf("graph: unknown export format %q", format)
}

// ToMermaid renders g as a Mermaid flowchart. Node shapes follow the agent
// type and edge labels show the condition.
func ToMermaid(g model.Graph) string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")

	names := sortedNodeNames(g)
	ids := make(map[string]string, len(names))
	for i, name := range names {
		ids[name] = "n" + strconv.Itoa(i)
	}

	for _, name := range names {
		node := g.Nodes[name]
		label := mermaidLabel(name + "<br/>" + string(node.AgentType))
		switch node.AgentType {
		case model.AgentClassifier:
			fmt.Fprintf(&sb, "    %s{%s}\n", ids[name], label)
		case model.AgentGatekeeper:
			fmt.Fprintf(&sb, "    %s{{%s}}\n", ids[name], label)
		case model.AgentScorer:
			fmt.Fprintf(&sb, "    %s[/%s/]\n", ids[name], label)
		default:
			fmt.Fprintf(&sb, "    %s([%s])\n", ids[name], label)
		}
	}

	for _, src := range sortedEdgeSources(g) {
		for _, e := range g.Edges[src] {
			from, okFrom := ids[e.SrcNode]
			to, okTo := ids[e.DestNode]
			if !okFrom || !okTo {
				continue
			}
			if e.Condition == nil {
				fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
				continue
			}
			fmt.Fprintf(&sb, "    %s -->|%s| %s\n", from, mermaidLabel(e.Condition.String()), to)
		}
	}

	if id, ok := ids[g.EntryNode]; ok {
		sb.WriteString("    classDef entry stroke-width:3px\n")
		fmt.Fprintf(&sb, "    class %s entry\n", id)
	}
	return sb.String()
}

func mermaidLabel(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "#quot;") + `"`
}
