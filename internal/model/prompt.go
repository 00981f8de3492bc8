package model

import (
	"fmt"
	"sort"
	"time"
)

// TemplateKind names a prompt template in the catalog.
type TemplateKind string

const (
	TemplateGuided     TemplateKind = "guided_template"
	TemplateStructured TemplateKind = "structured_template"
	TemplateRaw        TemplateKind = "raw_template"
)

// InputVariable describes one fill-in slot of a template.
type InputVariable struct {
	InputRole   string `json:"inputRole" yaml:"input_role"`
	Description string `json:"description" yaml:"description"`
}

// PromptTemplate is a catalog entry.
type PromptTemplate struct {
	Name                string                   `json:"name" yaml:"name"`
	Description         string                   `json:"description" yaml:"description"`
	ContextSystemPrompt string                   `json:"contextSystemPrompt" yaml:"context_system_prompt"`
	Template            string                   `json:"template" yaml:"template"`
	InputVariables      map[string]InputVariable `json:"inputVariables" yaml:"input_variables"`
}

// VariableNames returns the template's input variable names, sorted.
func (t PromptTemplate) VariableNames() []string {
	names := make([]string, 0, len(t.InputVariables))
	for name := range t.InputVariables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckValues verifies values supplies exactly the template's variables.
func (t PromptTemplate) CheckValues(values map[string]string) error {
	for name := range t.InputVariables {
		if _, ok := values[name]; !ok {
			return fmt.Errorf("missing variable %q for %s", name, t.Name)
		}
	}
	for name := range values {
		if _, ok := t.InputVariables[name]; !ok {
			return fmt.Errorf("unknown variable %q for %s", name, t.Name)
		}
	}
	return nil
}

// Prompt is a saved prompt bound to responders by name.
type Prompt struct {
	Name          string            `json:"name"`
	Template      TemplateKind      `json:"template"`
	VariableValue map[string]string `json:"variableValue"`
	UseContext    bool              `json:"useContext"`
	SavedAt       time.Time         `json:"savedAt,omitzero"`
}
