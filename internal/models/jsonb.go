package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"maps"
)

// JSONB holds vendor-specific, non-secret provider options in a Postgres
// jsonb column. A nil map is stored as {}.
type JSONB map[string]any

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("JSONB: %w", err)
	}
	return b, nil
}

func (j *JSONB) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONB: expected []byte, got %T", value)
	}

	if len(b) == 0 {
		*j = nil
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("JSONB: %w", err)
	}
	*j = out
	return nil
}

// Clone copies the top level of j. Nested values are shared.
func (j JSONB) Clone() JSONB {
	return maps.Clone(j)
}
