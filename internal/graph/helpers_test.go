package graph_test

import "github.com/Mike1ife/RAGentFlow/internal/model"

func classifier(name string, options ...string) model.AgentNode {
	return model.AgentNode{
		Name:           name,
		AgentType:      model.AgentClassifier,
		OutputField:    name + "_out",
		DecisionConfig: &model.DecisionConfig{Options: options},
	}
}

func gatekeeper(name string) model.AgentNode {
	return model.AgentNode{
		Name:           name,
		AgentType:      model.AgentGatekeeper,
		OutputField:    name + "_out",
		DecisionConfig: &model.DecisionConfig{Question: "Is " + name + " satisfied?"},
	}
}

func scorer(name string) model.AgentNode {
	return model.AgentNode{
		Name:           name,
		AgentType:      model.AgentScorer,
		OutputField:    name + "_out",
		DecisionConfig: &model.DecisionConfig{Instruction: "Rate " + name + " from 1 to 10"},
	}
}

func responder(name, prompt string) model.AgentNode {
	return model.AgentNode{Name: name, AgentType: model.AgentResponder, PromptName: prompt}
}

func edge(src, dest string, c *model.Condition) model.Edge {
	return model.Edge{SrcNode: src, DestNode: dest, Condition: c}
}

// build assembles a graph from nodes and edges in the given order.
func build(entry string, nodes []model.AgentNode, es ...model.Edge) model.Graph {
	g := model.NewGraph()
	g.EntryNode = entry
	for _, n := range nodes {
		g.Nodes[n.Name] = n
	}
	for _, e := range es {
		g.Edges[e.SrcNode] = append(g.Edges[e.SrcNode], e)
	}
	return g
}
