// Package grammar assembles extractor definitions into the grammar
// text consumed by a grammar-compiling engine.
//
// Rules use a simple EBNF form, name ::= rhs_1 | rhs_2 ;, with
// terminals as quoted literals and nonterminals as bare identifiers.
// The text is authoritatively parsed only by the engine; this package
// just guarantees it is assembled collision-free and in extraction
// priority order.
package grammar

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/fencegen/fence/extract"
)

// nested is implemented by extractors built from other extractors,
// whose definitions must also end up in the assembled grammar.
type nested interface {
	Extractors() []extract.Extractor
}

// preambled is implemented by extractors that need a shared block of
// terminal rules, emitted once per grammar no matter how many
// extractors require it.
type preambled interface {
	Preamble() string
}

// Assemble emits the grammar for a sequence of extractors: every
// non-empty definition exactly once, in first-use order, followed by a
// start rule concatenating the extractors' references in order.
//
// Duplicate capture names and conflicting redefinitions of one
// reference are build-time errors, not something to hand the engine.
func Assemble(start string, extractors ...extract.Extractor) (string, error) {
	if len(extractors) == 0 {
		return "", fmt.Errorf("grammar: no extractors for rule %q", start)
	}

	var (
		preambles []string
		defs      = make(map[string]string)
		captures  = make(map[string]bool)
		order     []string
	)

	var walk func(e extract.Extractor) error
	walk = func(e extract.Extractor) error {
		if name := e.CaptureName(); name != "" {
			if captures[name] {
				return fmt.Errorf("grammar: duplicate capture name %q", name)
			}
			captures[name] = true
		}
		if p, ok := e.(preambled); ok {
			if pre := p.Preamble(); pre != "" && !slices.Contains(preambles, pre) {
				preambles = append(preambles, pre)
			}
		}
		if def := e.Definition(); def != "" {
			ref := e.Reference()
			if prev, ok := defs[ref]; ok {
				if prev != def {
					return fmt.Errorf("grammar: conflicting definitions for %s", ref)
				}
			} else {
				defs[ref] = def
				order = append(order, ref)
			}
		}
		if n, ok := e.(nested); ok {
			for _, sub := range n.Extractors() {
				if err := walk(sub); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, e := range extractors {
		if err := walk(e); err != nil {
			return "", err
		}
	}

	var b bytes.Buffer
	for _, pre := range preambles {
		b.WriteString(pre)
		b.WriteString("\n")
	}
	for _, ref := range order {
		b.WriteString(defs[ref])
		b.WriteString("\n")
	}
	refs := make([]string, len(extractors))
	for i, e := range extractors {
		refs[i] = e.Reference()
	}
	fmt.Fprintf(&b, "%s ::= %s ;\n", start, strings.Join(refs, " "))
	return b.String(), nil
}

// builder accumulates EBNF rules, padding rule names so the ::= marks
// line up the way a human would write them.
type builder struct {
	b    bytes.Buffer
	pad  int
	open bool
}

// begin starts a new rule, terminating the previous one if needed.
func (b *builder) begin(name string) {
	b.end()
	fmt.Fprintf(&b.b, "%-*s ::=", b.pad, name)
	b.open = true
}

// end terminates the current rule, if any.
func (b *builder) end() {
	if b.open {
		b.b.WriteString(" ;\n")
		b.open = false
	}
}

// lit appends a quoted terminal to the current rule.
func (b *builder) lit(s string) {
	b.b.WriteString(" ")
	b.b.WriteString(strconv.Quote(s))
}

// ref appends a bare nonterminal (or grouping operator) to the
// current rule.
func (b *builder) ref(s string) {
	b.b.WriteString(" ")
	b.b.WriteString(s)
}

func (b *builder) String() string {
	b.end()
	return b.b.String()
}
