package filetype

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v2"
)

// Entry maps one source header to one target column.
type Entry struct {
	Source string
	Target string
}

// ColumnMap is an ordered source-header to target-column mapping. Order is
// the order of the settings document and becomes the sink column order.
type ColumnMap []Entry

// Keys returns the source headers in order.
func (m ColumnMap) Keys() []string {
	out := make([]string, len(m))
	for i, e := range m {
		out[i] = e.Source
	}
	return out
}

// Values returns the target columns in order.
func (m ColumnMap) Values() []string {
	out := make([]string, len(m))
	for i, e := range m {
		out[i] = e.Target
	}
	return out
}

// MarshalJSON writes the map as a JSON object, preserving order.
func (m ColumnMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Source)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Target)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order.
func (m *ColumnMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("columns: expected object, got %v", tok)
	}

	var out ColumnMap
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("columns: expected string key, got %v", kt)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("columns: value for %q: %w", key, err)
		}
		out = append(out, Entry{Source: key, Target: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = out
	return nil
}

// MarshalYAML writes the map as an ordered YAML mapping.
func (m ColumnMap) MarshalYAML() (interface{}, error) {
	out := make(yaml.MapSlice, len(m))
	for i, e := range m {
		out[i] = yaml.MapItem{Key: e.Source, Value: e.Target}
	}
	return out, nil
}

// UnmarshalYAML reads an ordered YAML mapping.
func (m *ColumnMap) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw yaml.MapSlice
	if err := unmarshal(&raw); err != nil {
		return err
	}
	out := make(ColumnMap, 0, len(raw))
	for _, item := range raw {
		key, ok := item.Key.(string)
		if !ok {
			return fmt.Errorf("columns: key %v is not a string", item.Key)
		}
		val, ok := item.Value.(string)
		if !ok {
			return fmt.Errorf("columns: value for %q is not a string", key)
		}
		out = append(out, Entry{Source: key, Target: val})
	}
	*m = out
	return nil
}
