package jobdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

const pointColumns = "id, group_number, point_number, name, read_only, last_value, last_updated_at"

// UpsertPoint registers a point or updates its name and read-only flag.
// Cached values are left alone.
func (s *Store) UpsertPoint(ctx context.Context, p *types.Point) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO points (group_number, point_number, name, read_only) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT(group_number, point_number) DO UPDATE SET name = excluded.name, read_only = excluded.read_only",
		p.GroupNumber,
		p.PointNumber,
		p.Name,
		p.ReadOnly,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert point %d/%d: %w", p.GroupNumber, p.PointNumber, err)
	}
	return nil
}

func (s *Store) GetPoint(ctx context.Context, group, point int) (*types.Point, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pointColumns+" FROM points WHERE group_number = ? AND point_number = ?", group, point)
	return notFound(scanPoint(row))
}

func (s *Store) ListPoints(ctx context.Context, group int) ([]*types.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+pointColumns+" FROM points WHERE group_number = ? ORDER BY point_number", group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []*types.Point{}
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// UpdatePointValues stores the values of parsed summary rows for points
// already registered in group. Returns how many points changed.
func (s *Store) UpdatePointValues(ctx context.Context, group int, rows []types.ParsedPoint, at time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	updated := 0
	for _, row := range rows {
		if !row.IsParsed() {
			continue
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE points SET last_value = ?, last_updated_at = ? WHERE group_number = ? AND point_number = ?",
			row.Value,
			toMillis(at),
			group,
			*row.PointNumber,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update point %d/%d: %w", group, *row.PointNumber, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return updated, nil
}

func scanPoint(row scanner) (*types.Point, error) {
	var (
		p         types.Point
		lastValue sql.NullString
		updatedAt sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.GroupNumber, &p.PointNumber, &p.Name, &p.ReadOnly, &lastValue, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.LastValue = lastValue.String
	p.LastUpdatedAt = timePtr(updatedAt)
	return &p, nil
}
