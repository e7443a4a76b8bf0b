package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Manifest открытый JSON-документ, который передал разработчик.
// Ядро читает из него только несколько полей по имени.
type Manifest map[string]any

// String возвращает первое непустое строковое значение по одному из ключей
func (m Manifest) String(keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// StringSlice возвращает список строк по одному из ключей
func (m Manifest) StringSlice(keys ...string) []string {
	for _, key := range keys {
		raw, ok := m[key].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (m Manifest) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Manifest) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = Manifest{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported manifest type %T", src)
	}

	out := Manifest{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode manifest: %w", err)
	}
	*m = out
	return nil
}
