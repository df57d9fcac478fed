package types

import "time"

// ActionDefinition describes one ASCII command macro and how to read its reply.
// Records are maintained outside the core and are read-only to it.
type ActionDefinition struct {
	ID             int64  `json:"id" db:"id" toml:"-"`
	Name           string `json:"name" db:"name" toml:"name"`
	Slug           string `json:"slug" db:"slug" toml:"slug"`
	Description    string `json:"description,omitempty" db:"description" toml:"description"`
	InputSequence  string `json:"input_sequence" db:"input_sequence" toml:"input_sequence"`
	ResultRegex    string `json:"result_regex" db:"result_regex" toml:"result_regex"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" db:"timeout_seconds" toml:"timeout_seconds"`
	IsEnabled      bool   `json:"is_enabled" db:"is_enabled" toml:"is_enabled"`
}

// EffectiveTimeout returns the action override, or def when none is set.
func (a *ActionDefinition) EffectiveTimeout(def time.Duration) time.Duration {
	if a == nil || a.TimeoutSeconds <= 0 {
		return def
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}
