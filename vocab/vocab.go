// Package vocab builds the token vocabulary handed to a
// grammar-compiling engine: a bijection between token ids and byte
// strings, with tokenizer-internal whitespace spellings rewritten to
// the literal characters grammar text is authored against.
package vocab

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"
)

// Tokenizer is the surface consumed from the tokenizer collaborator.
type Tokenizer interface {
	Encode(s string) ([]int32, error)
	Decode(ids []int32) (string, error)
}

// whitespace strings whose tokenizer-internal spelling must be
// rewritten to the literal character, e.g. Ġ for a leading space or Ċ
// for a newline in byte-level BPE vocabularies.
var whitespace = []string{" ", "\n", "\t", "\n\n"}

// Vocabulary is an id <-> token-string bijection.
type Vocabulary struct {
	values []string
	ids    map[string]int32
}

// shard size for parallel canonicalization; real vocabularies run to
// hundreds of thousands of entries
const shardSize = 8192

// New builds a canonicalized vocabulary from the tokenizer's raw
// token-string to id mapping. For each of space, newline, tab and
// double-newline, if the tokenizer's single-token spelling differs
// from the literal character, every entry containing that spelling is
// rewritten to the literal. Duplicate ids, or entries that collide
// after rewriting, are errors: the result must stay a bijection.
func New(t Tokenizer, entries map[string]int32) (*Vocabulary, error) {
	rewrites, err := whitespaceRewrites(t, entries)
	if err != nil {
		return nil, err
	}

	keys := maps.Keys(entries)
	slices.Sort(keys)

	canonical := keys
	if len(rewrites) > 0 {
		canonical = rewriteAll(keys, rewrites)
	}

	var maxID int32 = -1
	for _, id := range entries {
		if id < 0 {
			return nil, fmt.Errorf("vocab: negative token id %d", id)
		}
		maxID = max(maxID, id)
	}

	v := &Vocabulary{
		values: make([]string, maxID+1),
		ids:    make(map[string]int32, len(entries)),
	}
	filled := make([]bool, maxID+1)
	for i, key := range keys {
		id := entries[key]
		value := canonical[i]
		if filled[id] {
			return nil, fmt.Errorf("vocab: duplicate token id %d", id)
		}
		if prev, ok := v.ids[value]; ok {
			return nil, fmt.Errorf("vocab: tokens %d and %d both canonicalize to %q", prev, id, value)
		}
		filled[id] = true
		v.values[id] = value
		v.ids[value] = id
	}
	return v, nil
}

// whitespaceRewrites asks the tokenizer for its single-token spelling
// of each whitespace string and maps spellings that differ from the
// literal back to it.
func whitespaceRewrites(t Tokenizer, entries map[string]int32) (map[string]string, error) {
	byID := make(map[int32]string, len(entries))
	for value, id := range entries {
		byID[id] = value
	}

	rewrites := make(map[string]string)
	for _, ws := range whitespace {
		ids, err := t.Encode(ws)
		if err != nil {
			return nil, fmt.Errorf("vocab: encode %q: %w", ws, err)
		}
		if len(ids) != 1 {
			continue
		}
		if spelling, ok := byID[ids[0]]; ok && spelling != ws {
			rewrites[spelling] = ws
		}
	}
	return rewrites, nil
}

// rewriteAll applies the rewrites to every key, sharding the work
// across goroutines. Order is preserved.
func rewriteAll(keys []string, rewrites map[string]string) []string {
	pairs := make([]string, 0, 2*len(rewrites))
	for spelling, literal := range rewrites {
		pairs = append(pairs, spelling, literal)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(keys))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < len(keys); start += shardSize {
		start := start
		end := min(start+shardSize, len(keys))
		g.Go(func() error {
			for i := start; i < end; i++ {
				out[i] = r.Replace(keys[i])
			}
			return nil
		})
	}
	g.Wait()
	return out
}

// Len returns the size of the id space, including any unassigned ids
// below the maximum.
func (v *Vocabulary) Len() int { return len(v.values) }

// Decode returns the canonical token string for id, or "" if the id
// is unassigned.
func (v *Vocabulary) Decode(id int32) string {
	if id < 0 || int(id) >= len(v.values) {
		return ""
	}
	return v.values[id]
}

// Encode returns the id of a canonical token string, or -1 if absent.
func (v *Vocabulary) Encode(s string) int32 {
	if id, ok := v.ids[s]; ok {
		return id
	}
	return -1
}

// Values returns the canonical token string for every id, indexed by
// id. The caller must not modify the returned slice.
func (v *Vocabulary) Values() []string { return v.values }
