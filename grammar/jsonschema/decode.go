// Package jsonschema decodes the JSON-schema subset used for grammar
// rule generation: typed nodes, objects with ordered properties,
// arrays with items/prefixItems, and string enums.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Schema is one node of a JSON schema.
type Schema struct {
	// Name is the property name this node was decoded under, or ""
	// for the root.
	Name string `json:"-"`

	// Type is the declared type, if any. See EffectiveType.
	Type string `json:"type"`

	// Properties holds object properties in document order. Order
	// matters: generated rules and extraction priority both follow it.
	Properties Properties `json:"properties"`

	// PrefixItems are the per-position schemas of a tuple.
	PrefixItems []*Schema `json:"prefixItems"`

	// Items is the schema for remaining list items. A JSON value of
	// true decodes as the empty schema; false and null decode as nil.
	Items *Schema `json:"-"`

	// Enum restricts a string to a fixed set of values.
	Enum []json.RawMessage `json:"enum"`

	// Minimum and Maximum bound numeric values. Enforcing them is the
	// caller's responsibility.
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
}

// Decode parses data as a schema document.
func Decode(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("jsonschema: %w", err)
	}
	return &s, nil
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	type plain Schema
	aux := struct {
		Items json.RawMessage `json:"items"`
		*plain
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch {
	case len(aux.Items) == 0:
	case aux.Items[0] == '{':
		var item Schema
		if err := json.Unmarshal(aux.Items, &item); err != nil {
			return err
		}
		s.Items = &item
	case aux.Items[0] == 't':
		s.Items = &Schema{}
	case aux.Items[0] == 'f', aux.Items[0] == 'n':
	default:
		return errors.New("jsonschema: items must be a schema or a boolean")
	}
	return nil
}

// EffectiveType resolves the type of a node with no declared Type:
// properties imply "object", items imply "array", and a bare node is
// the unconstrained "value".
func (s *Schema) EffectiveType() string {
	if s.Type != "" {
		return s.Type
	}
	if len(s.Properties) > 0 {
		return "object"
	}
	if len(s.PrefixItems) > 0 || s.Items != nil {
		return "array"
	}
	return "value"
}

// Properties is an ordered list of property schemas. encoding/json
// alone would lose document order, so decoding walks the raw tokens.
type Properties []*Schema

func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("jsonschema: properties must be an object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("jsonschema: property name %v is not a string", tok)
		}

		var s Schema
		if err := dec.Decode(&s); err != nil {
			return err
		}
		s.Name = name
		*p = append(*p, &s)
	}
	return nil
}
