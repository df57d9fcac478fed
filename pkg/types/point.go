package types

import "time"

// Point is the cached telemetry for one panel point.
type Point struct {
	ID            int64      `json:"id" db:"id" toml:"-"`
	GroupNumber   int        `json:"group_number" db:"group_number" toml:"group"`
	PointNumber   int        `json:"point_number" db:"point_number" toml:"point"`
	Name          string     `json:"name" db:"name" toml:"name"`
	ReadOnly      bool       `json:"read_only" db:"read_only" toml:"read_only"`
	LastValue     string     `json:"last_value,omitempty" db:"last_value" toml:"-"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty" db:"last_updated_at" toml:"-"`
}

// ParsedPoint is one row of a group summary screen.
// PointNumber is nil for lines that could not be parsed.
type ParsedPoint struct {
	PointNumber *int   `json:"point_number"`
	Name        string `json:"name"`
	Value       string `json:"value"`
	RawLine     string `json:"raw_line"`
}

// IsParsed reports whether the row carried a point number.
func (p ParsedPoint) IsParsed() bool {
	return p.PointNumber != nil
}
