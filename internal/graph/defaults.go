package graph

import "github.com/Mike1ife/RAGentFlow/internal/model"

// Names used by the default example graph. The prompts are seeded by the
// prompts migration.
const (
	DefaultEntry            = "classify"
	DefaultBillingResponder = "respond_billing"
	DefaultTechResponder    = "respond_tech"
	DefaultBillingPrompt    = "billing_support"
	DefaultTechPrompt       = "technical_support"
)

// DefaultGraph returns the example support-routing graph: a classifier that
// sends billing questions and technical questions to separate responders.
func DefaultGraph() model.Graph {
	g := model.NewGraph()
	g.EntryNode = DefaultEntry
	g.Nodes[DefaultEntry] = model.AgentNode{
		Name:        DefaultEntry,
		AgentType:   model.AgentClassifier,
		OutputField: "category",
		DecisionConfig: &model.DecisionConfig{
			Options: []string{"billing", "technical"},
		},
	}
	g.Nodes[DefaultBillingResponder] = model.AgentNode{
		Name:       DefaultBillingResponder,
		AgentType:  model.AgentResponder,
		PromptName: DefaultBillingPrompt,
	}
	g.Nodes[DefaultTechResponder] = model.AgentNode{
		Name:       DefaultTechResponder,
		AgentType:  model.AgentResponder,
		PromptName: DefaultTechPrompt,
	}
	g.Edges[DefaultEntry] = []model.Edge{
		{SrcNode: DefaultEntry, DestNode: DefaultBillingResponder, Condition: &model.Condition{Operator: model.OpEq, Value: "billing"}},
		{SrcNode: DefaultEntry, DestNode: DefaultTechResponder, Condition: &model.Condition{Operator: model.OpEq, Value: "technical"}},
	}
	return g
}
