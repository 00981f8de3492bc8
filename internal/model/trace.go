package model

import "time"

// Trace is one node's execution record within a run. It is implemented by
// RouteTrace and RespondTrace only.
type Trace interface {
	AgentName() string
	isTrace()
}

// RouteTrace records a judgment node and where the router sent execution.
type RouteTrace struct {
	Agent            string    `json:"agent"`
	AgentType        AgentType `json:"agentType"`
	OutputField      string    `json:"outputField"`
	OutputValue      any       `json:"outputValue"`
	Reason           string    `json:"reason"`
	NextNode         string    `json:"nextNode"`
	MatchedCondition string    `json:"matchedCondition"`
}

func (t RouteTrace) AgentName() string { return t.Agent }
func (RouteTrace) isTrace()            {}

// RespondTrace records a responder's rendered prompt and generated answer.
type RespondTrace struct {
	Agent     string    `json:"agent"`
	AgentType AgentType `json:"agentType"`
	Prompt    string    `json:"prompt"`
	Output    string    `json:"output"`
}

func (t RespondTrace) AgentName() string { return t.Agent }
func (RespondTrace) isTrace()            {}

// RetrievedChunk is a knowledge-base chunk kept for a run's context.
// Distance is the vector distance; Score is the rerank relevance.
type RetrievedChunk struct {
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
	Content    string  `json:"content"`
	Distance   float64 `json:"distance"`
	Score      float64 `json:"score"`
}

// Result is the immutable outcome of one simulation run.
type Result struct {
	Query       string           `json:"query"`
	Chunks      []RetrievedChunk `json:"chunks"`
	Context     string           `json:"context"`
	Traces      []Trace          `json:"traces"`
	Graph       Graph            `json:"graph"`
	CompletedAt time.Time        `json:"completedAt"`
}
