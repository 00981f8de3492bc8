package model

// Requirement is a named readiness check.
type Requirement struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Requirement names reported by the validator.
const (
	RequirementRespondersHavePrompts = "responders_have_prompts"
	RequirementFilesUploaded         = "files_uploaded"
)

// DuplicateCondition lists destinations that share one condition key on a
// single source node. Only the first of them can ever fire.
type DuplicateCondition struct {
	SrcNode   string   `json:"srcNode"`
	DestNodes []string `json:"destNodes"`
	Condition string   `json:"condition"`
}

// MissingRoute is a coverage gap on a judgment node.
type MissingRoute struct {
	SrcNode      string `json:"srcNode"`
	MissingValue string `json:"missingValue"`
}

// Validation is the structural health report for a graph.
type Validation struct {
	CanProceed          bool                 `json:"canProceed"`
	Requirements        []Requirement        `json:"requirements"`
	UnreachableAgents   []string             `json:"unreachableAgents"`
	DuplicateConditions []DuplicateCondition `json:"duplicateConditions"`
	MissingRoutes       []MissingRoute       `json:"missingRoutes"`
}
