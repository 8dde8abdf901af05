package models

import (
	"database/sql/driver"
	"fmt"

	json "github.com/goccy/go-json"
)

// JSON column helpers. These serialize Go values into TEXT columns and
// implement sql.Scanner / driver.Valuer so GORM can use them directly.

// JSONStringArray is a []string stored as a JSON TEXT column.
type JSONStringArray []string

// Scan implements sql.Scanner.
func (a *JSONStringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	data, err := asBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, a)
}

// Value implements driver.Valuer.
func (a JSONStringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	return string(data), err
}

// JSONMethodArray is a []Method stored as a JSON TEXT column.
type JSONMethodArray []Method

// Scan implements sql.Scanner.
func (a *JSONMethodArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	data, err := asBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, a)
}

// Value implements driver.Valuer.
func (a JSONMethodArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	return string(data), err
}

// JSONClassification stores a Classification as a JSON TEXT column.
type JSONClassification struct {
	Classification *Classification
}

// Scan implements sql.Scanner.
func (c *JSONClassification) Scan(value interface{}) error {
	if value == nil {
		c.Classification = nil
		return nil
	}
	data, err := asBytes(value)
	if err != nil {
		return err
	}
	var parsed Classification
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	c.Classification = &parsed
	return nil
}

// Value implements driver.Valuer.
func (c JSONClassification) Value() (driver.Value, error) {
	if c.Classification == nil {
		return nil, nil
	}
	data, err := json.Marshal(c.Classification)
	return string(data), err
}

// JSONStep stores a full Step document as a JSON TEXT column.
type JSONStep struct {
	Step Step
}

// Scan implements sql.Scanner.
func (s *JSONStep) Scan(value interface{}) error {
	if value == nil {
		s.Step = Step{}
		return nil
	}
	data, err := asBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.Step)
}

// Value implements driver.Valuer.
func (s JSONStep) Value() (driver.Value, error) {
	data, err := json.Marshal(s.Step)
	return string(data), err
}

// JSONPhaseHistory stores []PhaseRecord as a JSON TEXT column.
type JSONPhaseHistory []PhaseRecord

// Scan implements sql.Scanner.
func (h *JSONPhaseHistory) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	data, err := asBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, h)
}

// Value implements driver.Valuer.
func (h JSONPhaseHistory) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	data, err := json.Marshal(h)
	return string(data), err
}

func asBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}
