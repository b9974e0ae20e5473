// Package stats extracts named statistics from wrapped tool output.
package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Entry is one named statistic.
type Entry struct {
	Name  string
	Value any
}

// Table is an insertion-ordered mapping of statistic name to value.
// Values are strings or JSON numbers. The zero value is ready to use.
type Table struct {
	entries []Entry
	index   map[string]int
}

// Set stores value under name. Replacing an existing name keeps its position.
func (t *Table) Set(name string, value any) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if i, ok := t.index[name]; ok {
		t.entries[i].Value = value
		return
	}
	t.index[name] = len(t.entries)
	t.entries = append(t.entries, Entry{Name: name, Value: value})
}

// Get returns the value stored under name.
func (t Table) Get(name string) (any, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.entries[i].Value, true
}

// Len returns the number of statistics.
func (t Table) Len() int { return len(t.entries) }

// Entries returns a copy of the statistics in insertion order.
func (t Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Keys returns the statistic names in insertion order.
func (t Table) Keys() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Name
	}
	return out
}

// MarshalJSON encodes the table as a JSON object in insertion order.
func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range t.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("statistic %q: %w", e.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order of the input.
// Only string and number values are accepted.
func (t *Table) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("statistics table: expected object, got %v", tok)
	}

	*t = Table{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("statistics table: unexpected key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("statistic %q: %w", name, err)
		}
		switch value.(type) {
		case string, json.Number:
		default:
			return fmt.Errorf("statistic %q: value must be a string or number, got %T", name, value)
		}
		t.Set(name, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// Block is the result of one extraction: statistics shown in the report and
// statistics retained in the document but hidden.
type Block struct {
	Visible   Table `json:"visible"`
	Invisible Table `json:"invisible"`
}

// Empty reports whether the block holds no statistics at all.
func (b Block) Empty() bool {
	return b.Visible.Len() == 0 && b.Invisible.Len() == 0
}
