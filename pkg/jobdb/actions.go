package jobdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

const actionColumns = "id, name, slug, description, input_sequence, result_regex, timeout_seconds, is_enabled"

// SyncActions upserts the catalog by slug. Stored actions missing from the
// catalog are disabled rather than deleted so old jobs keep their reference.
func (s *Store) SyncActions(ctx context.Context, actions []types.ActionDefinition) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := toMillis(time.Now())
	slugs := make([]any, 0, len(actions))
	for _, a := range actions {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO actions (name, slug, description, input_sequence, result_regex, timeout_seconds, is_enabled, updated_at) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?) "+
				"ON CONFLICT(slug) DO UPDATE SET name = excluded.name, description = excluded.description, "+
				"input_sequence = excluded.input_sequence, result_regex = excluded.result_regex, "+
				"timeout_seconds = excluded.timeout_seconds, is_enabled = excluded.is_enabled, updated_at = excluded.updated_at",
			a.Name,
			a.Slug,
			a.Description,
			a.InputSequence,
			a.ResultRegex,
			a.TimeoutSeconds,
			a.IsEnabled,
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert action %q: %w", a.Slug, err)
		}
		slugs = append(slugs, a.Slug)
	}

	disable := "UPDATE actions SET is_enabled = 0, updated_at = ? WHERE is_enabled = 1"
	args := []any{now}
	if len(slugs) > 0 {
		disable += " AND slug NOT IN (?" + strings.Repeat(", ?", len(slugs)-1) + ")"
		args = append(args, slugs...)
	}
	res, err := tx.ExecContext(ctx, disable, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to disable removed actions: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("disabled actions missing from catalog", "count", n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(actions), nil
}

func (s *Store) ListActions(ctx context.Context) ([]*types.ActionDefinition, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+actionColumns+" FROM actions ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := []*types.ActionDefinition{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *Store) GetAction(ctx context.Context, id int64) (*types.ActionDefinition, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+actionColumns+" FROM actions WHERE id = ?", id)
	return notFound(scanAction(row))
}

func (s *Store) GetActionBySlug(ctx context.Context, slug string) (*types.ActionDefinition, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+actionColumns+" FROM actions WHERE slug = ?", slug)
	return notFound(scanAction(row))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(row scanner) (*types.ActionDefinition, error) {
	var a types.ActionDefinition
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Slug,
		&a.Description,
		&a.InputSequence,
		&a.ResultRegex,
		&a.TimeoutSeconds,
		&a.IsEnabled,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func notFound[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	return v, err
}
