// Package extract provides composable extractors that recover typed
// values from generated text and emit the grammar fragments used to
// constrain that text in the first place.
//
// An extractor is pure: Extract may be called repeatedly, on output
// from any number of completed generations, without affecting the
// grammar text it emits.
package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// Extractor parses one piece of structured output and describes its
// shape as grammar text.
type Extractor interface {
	// Extract parses s and returns the unconsumed remainder and the
	// extracted value. ok is false when s does not match; that is an
	// ordinary parse failure, not an error.
	Extract(s string) (rest string, value any, ok bool)

	// Reference is the string other grammar rules use to refer to
	// this extractor.
	Reference() string

	// Definition is the extractor's own grammar rule, or "" when the
	// reference needs no definition of its own.
	Definition() string

	// CaptureName is the name the extracted value is captured under,
	// or "" when the extractor does not capture.
	CaptureName() string
}

// Nonterminal names a grammar rule. With a capture name c, the
// effective reference is base_c so several captures can reuse one base
// nonterminal within a grammar without colliding.
//
// Nonterminal does not itself implement Extractor: it names a rule, it
// does not know how to parse one. Concrete extractors embed it to get
// the reference and capture plumbing.
type Nonterminal struct {
	name    string
	capture string
}

func NewNonterminal(base, capture string) Nonterminal {
	if capture != "" {
		base = base + "_" + capture
	}
	return Nonterminal{name: base, capture: capture}
}

func (n Nonterminal) Reference() string   { return n.name }
func (n Nonterminal) Definition() string  { return "" }
func (n Nonterminal) CaptureName() string { return n.capture }

func (n Nonterminal) String() string { return "${" + n.name + "}" }

// Literal matches a fixed string. It never captures; capturing a
// literal would only ever yield the literal back.
type Literal struct {
	literal  string
	anchored bool
}

// NewLiteral returns a lenient literal extractor: Extract finds the
// leftmost occurrence of the literal anywhere in the input, tolerating
// incidental text before the structured payload.
func NewLiteral(literal string) *Literal {
	return &Literal{literal: literal}
}

// NewAnchoredLiteral returns a strict literal extractor: the literal
// must appear at the very start of the input.
func NewAnchoredLiteral(literal string) *Literal {
	return &Literal{literal: literal, anchored: true}
}

func (l *Literal) Extract(s string) (string, any, bool) {
	if l.anchored {
		if !strings.HasPrefix(s, l.literal) {
			return "", nil, false
		}
		return s[len(l.literal):], l.literal, true
	}

	i := strings.Index(s, l.literal)
	if i < 0 {
		return "", nil, false
	}
	return s[i+len(l.literal):], l.literal, true
}

func (l *Literal) Reference() string   { return strconv.Quote(l.literal) }
func (l *Literal) Definition() string  { return "" }
func (l *Literal) CaptureName() string { return "" }

func (l *Literal) String() string { return "${" + l.Reference() + "}" }

// Choice tries a fixed sequence of extractors in construction order
// and stops at the first success. The emitted alternation uses the
// same order, so grammar priority and extraction priority cannot
// drift apart.
type Choice struct {
	Nonterminal
	choices []Extractor
}

func NewChoice(base, capture string, choices ...Extractor) *Choice {
	return &Choice{
		Nonterminal: NewNonterminal(base, capture),
		choices:     choices,
	}
}

// Extract returns the result of the first succeeding alternative.
// Later alternatives are never attempted once one succeeds.
func (c *Choice) Extract(s string) (string, any, bool) {
	for _, e := range c.choices {
		if rest, v, ok := e.Extract(s); ok {
			return rest, v, true
		}
	}
	return "", nil, false
}

func (c *Choice) Definition() string {
	refs := make([]string, len(c.choices))
	for i, e := range c.choices {
		refs[i] = e.Reference()
	}
	return fmt.Sprintf("%s ::= %s ;", c.Reference(), strings.Join(refs, " | "))
}

// Extractors returns the alternatives in priority order.
func (c *Choice) Extractors() []Extractor { return c.choices }
