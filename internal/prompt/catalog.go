// Package prompt manages the template catalog and the saved responder
// prompts built from it, and renders them for a run.
package prompt

import (
	_ "embed"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

//go:embed templates.yaml
var catalogYAML []byte

// Kinds lists the template kinds in display order.
var Kinds = []model.TemplateKind{model.TemplateGuided, model.TemplateStructured, model.TemplateRaw}

// Catalog holds the parsed template kinds.
type Catalog struct {
	templates map[model.TemplateKind]model.PromptTemplate
	parsed    map[model.TemplateKind]*template.Template
	// parsed templates with the context system prompt prepended
	withContext map[model.TemplateKind]*template.Template
}

// LoadCatalog parses the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses a catalog document. Every kind in Kinds must be
// present and every template must parse.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw map[model.TemplateKind]model.PromptTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("prompt: parse catalog: %w", err)
	}
	c := &Catalog{
		templates:   make(map[model.TemplateKind]model.PromptTemplate, len(raw)),
		parsed:      make(map[model.TemplateKind]*template.Template, len(raw)),
		withContext: make(map[model.TemplateKind]*template.Template, len(raw)),
	}
	for _, kind := range Kinds {
		t, ok := raw[kind]
		if !ok {
			return nil, fmt.Errorf("prompt: catalog is missing %s", kind)
		}
		plain, err := parse(kind, t.Template)
		if err != nil {
			return nil, err
		}
		full, err := parse(kind, t.ContextSystemPrompt+"\n---\n"+t.Template)
		if err != nil {
			return nil, err
		}
		c.templates[kind] = t
		c.parsed[kind] = plain
		c.withContext[kind] = full
	}
	return c, nil
}

func parse(kind model.TemplateKind, text string) (*template.Template, error) {
	t, err := template.New(string(kind)).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("prompt: parse %s: %w", kind, err)
	}
	return t, nil
}

// Template returns the catalog entry for kind.
func (c *Catalog) Template(kind model.TemplateKind) (model.PromptTemplate, error) {
	t, ok := c.templates[kind]
	if !ok {
		return model.PromptTemplate{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, kind)
	}
	return t, nil
}
