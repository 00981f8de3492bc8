package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Mike1ife/RAGentFlow/internal/model"
	"github.com/Mike1ife/RAGentFlow/internal/storage"
)

var (
	ErrPromptExists    = errors.New("prompt: already exists")
	ErrPromptNotFound  = errors.New("prompt: not found")
	ErrUnknownTemplate = errors.New("prompt: unknown template")
	ErrInvalidPrompt   = errors.New("prompt: invalid")
)

// Store persists saved prompts. storage.DB implements it.
type Store interface {
	ListPrompts(ctx context.Context) ([]model.Prompt, error)
	GetPrompt(ctx context.Context, name string) (model.Prompt, error)
	InsertPrompt(ctx context.Context, p model.Prompt) error
	UpdatePrompt(ctx context.Context, p model.Prompt) error
	DeletePrompt(ctx context.Context, name string) error
}

// Manager validates and persists saved prompts and renders them for
// responders. It implements graph.PromptRenderer.
type Manager struct {
	catalog *Catalog
	store   Store
	logger  *slog.Logger
}

// NewManager creates a Manager.
func NewManager(catalog *Catalog, store Store, logger *slog.Logger) *Manager {
	return &Manager{catalog: catalog, store: store, logger: logger}
}

// Template returns the catalog entry for kind.
func (m *Manager) Template(kind model.TemplateKind) (model.PromptTemplate, error) {
	return m.catalog.Template(kind)
}

// List returns every saved prompt, most recently saved first.
func (m *Manager) List(ctx context.Context) ([]model.Prompt, error) {
	prompts, err := m.store.ListPrompts(ctx)
	if err != nil {
		return nil, fmt.Errorf("prompt: list: %w", err)
	}
	return prompts, nil
}

// Names returns the saved prompt names in List order.
func (m *Manager) Names(ctx context.Context) ([]string, error) {
	prompts, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(prompts))
	for i, p := range prompts {
		names[i] = p.Name
	}
	return names, nil
}

// Create saves a new prompt.
func (m *Manager) Create(ctx context.Context, p model.Prompt) error {
	if err := m.check(p); err != nil {
		return err
	}
	if err := m.store.InsertPrompt(ctx, p); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("%w: %q", ErrPromptExists, p.Name)
		}
		return fmt.Errorf("prompt: create: %w", err)
	}
	m.logger.Info("prompt: created", "name", p.Name, "template", p.Template)
	return nil
}

// Update replaces the variables and context flag of an existing prompt.
// The template kind cannot change.
func (m *Manager) Update(ctx context.Context, p model.Prompt) error {
	existing, err := m.get(ctx, p.Name)
	if err != nil {
		return err
	}
	if p.Template == "" {
		p.Template = existing.Template
	}
	if p.Template != existing.Template {
		return fmt.Errorf("%w: %q uses %s, not %s", ErrInvalidPrompt, p.Name, existing.Template, p.Template)
	}
	if err := m.check(p); err != nil {
		return err
	}
	if err := m.store.UpdatePrompt(ctx, p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrPromptNotFound, p.Name)
		}
		return fmt.Errorf("prompt: update: %w", err)
	}
	return nil
}

// Delete removes a saved prompt. Responders bound to it fail at run time
// until they are rebound.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := m.store.DeletePrompt(ctx, name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrPromptNotFound, name)
		}
		return fmt.Errorf("prompt: delete: %w", err)
	}
	return nil
}

// Render fills the saved prompt promptName with its variables, query and
// contextText. With useContext the catalog's context system prompt and a
// "---" separator come first.
func (m *Manager) Render(ctx context.Context, promptName, query, contextText string) (string, error) {
	p, err := m.get(ctx, promptName)
	if err != nil {
		return "", err
	}
	set := m.catalog.parsed
	if p.UseContext {
		set = m.catalog.withContext
	}
	t, ok := set[p.Template]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, p.Template)
	}

	data := make(map[string]string, len(p.VariableValue)+2)
	for k, v := range p.VariableValue {
		data[k] = v
	}
	data["query"] = query
	data["context"] = contextText

	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("prompt: render %q: %w", promptName, err)
	}
	return sb.String(), nil
}

func (m *Manager) get(ctx context.Context, name string) (model.Prompt, error) {
	p, err := m.store.GetPrompt(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Prompt{}, fmt.Errorf("%w: %q", ErrPromptNotFound, name)
	}
	if err != nil {
		return model.Prompt{}, fmt.Errorf("prompt: get: %w", err)
	}
	return p, nil
}

func (m *Manager) check(p model.Prompt) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPrompt)
	}
	t, err := m.catalog.Template(p.Template)
	if err != nil {
		return err
	}
	if err := t.CheckValues(p.VariableValue); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPrompt, err)
	}
	return nil
}
