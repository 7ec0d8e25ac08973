package content

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Document is the open-shaped payload of a section. Its fields are defined
// per section type by convention only.
type Document map[string]interface{}

// Clone returns a deep copy so drafts never alias committed content.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Document:
		return t.Clone()
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// Equal compares two documents by their JSON encoding.
func (d Document) Equal(other Document) bool {
	a, errA := d.MarshalCanonical()
	b, errB := other.MarshalCanonical()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// MarshalCanonical encodes the document as JSON with sorted keys. A nil
// document encodes as {}.
func (d Document) MarshalCanonical() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(d))
}

// ParseDocument turns operator text into a Document. JSON and YAML mappings
// are accepted; anything else (scalars, lists, syntax errors) is rejected.
func ParseDocument(raw string) (Document, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("document is empty")
	}

	var parsed interface{}
	if err := yaml.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	m, ok := normalize(parsed).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("document must be a mapping, got %T", parsed)
	}
	return Document(m), nil
}

// DecodeJSON reads a stored document. Empty input yields an empty document.
// Numbers are kept as json.Number so large integers survive unchanged.
func DecodeJSON(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode document: trailing data")
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// normalize converts YAML's map[interface{}]interface{} nodes into string
// keyed maps so the result round-trips through JSON.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, vv := range t {
			t[k] = normalize(vv)
		}
		return t
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, vv := range t {
			m[fmt.Sprint(k)] = normalize(vv)
		}
		return m
	case []interface{}:
		for i, vv := range t {
			t[i] = normalize(vv)
		}
		return t
	default:
		return v
	}
}
