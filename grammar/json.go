package grammar

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fencegen/fence/extract"
	"github.com/fencegen/fence/grammar/jsonschema"
)

// jsonRules are the shared JSON terminal rules (RFC 7159) referenced
// by schema-derived rules. Emitted once per assembled grammar.
const jsonRules = `unicode ::= \x{hex}{2} | \u{hex}{4} | \U{hex}{8} ;
null    ::= "null" ;
object  ::= "{" (kv ("," kv)*)? "}" ;
array   ::= "[" (value ("," value)*)? "]" ;
kv      ::= string ":" value ;
integer ::= "0" | [1-9] [0-9]* ;
number  ::= "-"? integer frac? exp? ;
frac    ::= "." [0-9]+ ;
exp     ::= ("e" | "E") ("+" | "-") [0-9]+ ;
string  ::= "\"" char* "\"" ;
escape  ::= ["/" | "b" | "f" | "n" | "r" | "t" | unicode] ;
char    ::= [^"\\] | escape ;
space   ::= (" " | "\t" | "\n" | "\r")* ;
hex     ::= [0-9] | [a-f] | [A-F] ;
boolean ::= "true" | "false" ;
value   ::= object | array | string | number | boolean | "null" ;
`

// JSON extracts one JSON value and constrains generation to the shape
// of an optional JSON schema. With a nil schema any object or array is
// accepted.
type JSON struct {
	extract.Nonterminal
	rules string
}

// NewJSON builds a JSON extractor. schema may be nil; otherwise it
// must decode as the supported JSON-schema subset (objects with
// ordered properties, arrays with items/prefixItems, string enums and
// the primitive types).
func NewJSON(base, capture string, schema []byte) (*JSON, error) {
	n := extract.NewNonterminal(base, capture)

	if schema == nil {
		return &JSON{
			Nonterminal: n,
			rules:       fmt.Sprintf("%s ::= object | array ;", n.Reference()),
		}, nil
	}

	s, err := jsonschema.Decode(schema)
	if err != nil {
		return nil, err
	}

	var b builder
	b.pad = rulePad(n.Reference(), s)
	if err := schemaRules(&b, n.Reference(), s); err != nil {
		return nil, err
	}
	return &JSON{Nonterminal: n, rules: strings.TrimSuffix(b.String(), "\n")}, nil
}

// Extract decodes a single JSON value off the input and returns the
// undecoded tail. Leading whitespace is consumed; anything else before
// the value is a failure.
func (j *JSON) Extract(s string) (string, any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", nil, false
	}
	return s[dec.InputOffset():], v, true
}

func (j *JSON) Definition() string { return j.rules }
func (j *JSON) Preamble() string   { return jsonRules }

// rulePad computes the widest rule name so schemaRules can align ::=
// marks across the emitted block.
func rulePad(name string, s *jsonschema.Schema) int {
	pad := len(name)
	for _, p := range s.Properties {
		pad = max(pad, rulePad(childName(name, p.Name), p))
	}
	for i, p := range s.PrefixItems {
		pad = max(pad, rulePad(fmt.Sprintf("%s_%d", name, i), p))
	}
	if s.Items != nil {
		pad = max(pad, rulePad(name+"_item", s.Items))
	}
	return pad
}

// schemaRules emits one rule per schema node, children before parents
// so every reference is defined before use.
func schemaRules(b *builder, name string, s *jsonschema.Schema) error {
	typ := s.EffectiveType()

	switch typ {
	case "object":
		for _, p := range s.Properties {
			if err := schemaRules(b, childName(name, p.Name), p); err != nil {
				return err
			}
		}
	case "array":
		for i, p := range s.PrefixItems {
			if err := schemaRules(b, fmt.Sprintf("%s_%d", name, i), p); err != nil {
				return err
			}
		}
		if s.Items != nil {
			if err := schemaRules(b, name+"_item", s.Items); err != nil {
				return err
			}
		}
	}

	b.begin(name)
	switch typ {
	case "object":
		if len(s.Properties) == 0 {
			b.ref("object")
			break
		}
		b.lit("{")
		for i, p := range s.Properties {
			if i > 0 {
				b.lit(",")
			}
			b.lit(`"` + p.Name + `"`)
			b.lit(":")
			b.ref(childName(name, p.Name))
		}
		b.lit("}")
	case "array":
		if len(s.PrefixItems) == 0 && s.Items == nil {
			b.ref("array")
			break
		}
		b.lit("[")
		for i := range s.PrefixItems {
			if i > 0 {
				b.lit(",")
			}
			b.ref(fmt.Sprintf("%s_%d", name, i))
		}
		if s.Items != nil {
			b.ref("(")
			if len(s.PrefixItems) > 0 {
				b.lit(",")
			}
			b.ref(name + "_item")
			b.ref(")*")
		}
		b.lit("]")
	case "string":
		if len(s.Enum) == 0 {
			b.ref("string")
			break
		}
		b.ref("(")
		for i, e := range s.Enum {
			if i > 0 {
				b.ref("|")
			}
			b.lit(string(e))
		}
		b.ref(")")
	case "number", "integer", "boolean", "null", "value":
		b.ref(typ)
	default:
		return fmt.Errorf("grammar: %s: unsupported schema type %q", name, typ)
	}
	return nil
}

// childName derives a rule name for a property, keeping only
// identifier-safe characters from the property name.
func childName(parent, prop string) string {
	var sb strings.Builder
	for _, r := range prop {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return parent + "_" + sb.String()
}
