package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// ListPrompts returns all saved prompts, most recently saved first.
func (db *DB) ListPrompts(ctx context.Context) ([]model.Prompt, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT name, template, variable_value, use_context, saved_at
		FROM prompt
		ORDER BY saved_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list prompts: %w", err)
	}
	defer rows.Close()

	prompts := []model.Prompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// GetPrompt returns the prompt called name.
func (db *DB) GetPrompt(ctx context.Context, name string) (model.Prompt, error) {
	row := db.pool.QueryRow(ctx, `
		SELECT name, template, variable_value, use_context, saved_at
		FROM prompt
		WHERE name = $1`, name)
	p, err := scanPrompt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Prompt{}, ErrNotFound
	}
	if err != nil {
		return model.Prompt{}, fmt.Errorf("storage: get prompt: %w", err)
	}
	return p, nil
}

// InsertPrompt saves a new prompt. A duplicate name returns ErrConflict.
func (db *DB) InsertPrompt(ctx context.Context, p model.Prompt) error {
	values, err := json.Marshal(p.VariableValue)
	if err != nil {
		return fmt.Errorf("storage: insert prompt: %w", err)
	}
	_, err = db.pool.Exec(ctx, `
		INSERT INTO prompt (name, template, variable_value, use_context)
		VALUES ($1, $2, $3, $4)`,
		p.Name, p.Template, values, p.UseContext,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("storage: insert prompt %q: %w", p.Name, ErrConflict)
		}
		return fmt.Errorf("storage: insert prompt: %w", err)
	}
	return nil
}

// UpdatePrompt replaces a prompt's variables and context flag and bumps
// saved_at. The template kind is fixed at creation.
func (db *DB) UpdatePrompt(ctx context.Context, p model.Prompt) error {
	values, err := json.Marshal(p.VariableValue)
	if err != nil {
		return fmt.Errorf("storage: update prompt: %w", err)
	}
	tag, err := db.pool.Exec(ctx, `
		UPDATE prompt
		SET variable_value = $2, use_context = $3, saved_at = now()
		WHERE name = $1`,
		p.Name, values, p.UseContext,
	)
	if err != nil {
		return fmt.Errorf("storage: update prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePrompt deletes the prompt called name.
func (db *DB) DeletePrompt(ctx context.Context, name string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM prompt WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("storage: delete prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPrompt(row pgx.Row) (model.Prompt, error) {
	var (
		p      model.Prompt
		values []byte
	)
	if err := row.Scan(&p.Name, &p.Template, &values, &p.UseContext, &p.SavedAt); err != nil {
		return model.Prompt{}, err
	}
	p.VariableValue = map[string]string{}
	if err := json.Unmarshal(values, &p.VariableValue); err != nil {
		return model.Prompt{}, fmt.Errorf("decode variables of %q: %w", p.Name, err)
	}
	return p, nil
}
