// Package logits drives one grammar state machine per sequence in a
// generation batch, masking next-token scores each step so only
// grammar-valid continuations remain reachable.
package logits

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Formatter is one sequence's compiled grammar automaton, produced by
// an external grammar-compiling engine. Implementations are expected
// to be pointer-shaped; a Formatter handle must not be shared between
// lanes.
type Formatter interface {
	// AcceptToken feeds one token to the automaton. An error means
	// the token is not accepted in the current state.
	AcceptToken(id int32) error

	// ComputeAllowedTokens refreshes the allowed-token set for the
	// automaton's current state. Called before every MaskLogits.
	ComputeAllowedTokens()

	// MaskLogits masks disallowed positions in scores. The engine may
	// mutate scores in place and return it, or return a fresh slice.
	MaskLogits(scores []float32) []float32

	// IsCompleted reports whether a complete structure has been
	// accepted. A completed automaton stays completed until Reset.
	IsCompleted() bool

	// Reset returns the automaton to its initial state.
	Reset()
}

// Config controls one lane of the batch.
type Config struct {
	// ResetOnCompletion resets a completed formatter at the start of
	// a later generation, so one Processor can serve several calls.
	ResetOnCompletion bool

	// ReadPrompt feeds the prompt tokens to the formatter on the
	// first step, letting the automaton account for structure already
	// present before generation starts, e.g. a few-shot example.
	ReadPrompt bool
}

var (
	// ErrBatch is returned when the batch width disagrees with the
	// number of lanes.
	ErrBatch = errors.New("logits: batch size mismatch")

	// ErrHistory is returned when the token history does not grow by
	// exactly one token per step, or lanes disagree on its length.
	ErrHistory = errors.New("logits: malformed token history")

	// ErrInconsistent is returned when a formatter rejects a token
	// that a previous mask should have made unreachable. It indicates
	// the host loop sampled outside the masked scores.
	ErrInconsistent = errors.New("logits: formatter rejected a generated token")
)

type lane struct {
	fm     Formatter
	config Config
}

// Processor masks a batch of score rows against per-lane grammar
// automata. It is invoked synchronously once per generation step and
// retains no reference to the matrices between calls.
type Processor struct {
	lanes []lane
	eos   int32

	// history length seen at the previous step, -1 before the first
	lastLen int
}

// NewProcessor builds a processor over one formatter per lane and a
// shared end-of-sequence token id. configs may be nil, in which case
// every lane reads its prompt and never auto-resets; a non-nil configs
// must have exactly one entry per formatter.
func NewProcessor(formatters []Formatter, eos int32, configs []Config) (*Processor, error) {
	if configs == nil {
		configs = make([]Config, len(formatters))
		for i := range configs {
			configs[i] = Config{ReadPrompt: true}
		}
	}
	if len(configs) != len(formatters) {
		return nil, fmt.Errorf("logits: %d formatters but %d configs", len(formatters), len(configs))
	}

	seen := make(map[Formatter]int, len(formatters))
	lanes := make([]lane, len(formatters))
	for i, fm := range formatters {
		if fm == nil {
			return nil, fmt.Errorf("logits: formatter %d is nil", i)
		}
		if j, ok := seen[fm]; ok {
			return nil, fmt.Errorf("logits: lanes %d and %d share one formatter", j, i)
		}
		seen[fm] = i
		lanes[i] = lane{fm: fm, config: configs[i]}
	}

	return &Processor{lanes: lanes, eos: eos, lastLen: -1}, nil
}

// Apply advances every lane's automaton by the newly generated token
// and masks the corresponding score row in place. inputIDs holds each
// lane's full token history; all lanes share one history length, which
// must grow by exactly one token per call after the first.
//
// Precondition violations abort before any automaton is advanced or
// any row written.
func (p *Processor) Apply(inputIDs [][]int32, scores [][]float32) error {
	if len(inputIDs) != len(p.lanes) || len(scores) != len(p.lanes) {
		return fmt.Errorf("%w: %d lanes, %d histories, %d score rows",
			ErrBatch, len(p.lanes), len(inputIDs), len(scores))
	}
	if len(p.lanes) == 0 {
		return nil
	}

	width := len(inputIDs[0])
	for i, ids := range inputIDs {
		if len(ids) != width {
			return fmt.Errorf("%w: lane %d has %d tokens, lane 0 has %d",
				ErrHistory, i, len(ids), width)
		}
	}

	switch {
	case p.lastLen < 0:
		// first step: the prompt establishes the baseline
		p.lastLen = width
		slog.Debug("prompt baseline established", "lanes", len(p.lanes), "tokens", width)
		for i := range p.lanes {
			ln := &p.lanes[i]
			if ln.config.ResetOnCompletion && ln.fm.IsCompleted() {
				ln.fm.Reset()
			}
			if !ln.config.ReadPrompt {
				continue
			}
			for _, id := range inputIDs[i] {
				if err := ln.fm.AcceptToken(id); err != nil {
					return fmt.Errorf("logits: lane %d: prompt token %d: %w", i, id, err)
				}
			}
		}
	case width != p.lastLen+1:
		return fmt.Errorf("%w: grew from %d to %d tokens, want exactly one more",
			ErrHistory, p.lastLen, width)
	default:
		p.lastLen = width
		for i := range p.lanes {
			id := inputIDs[i][width-1]
			if id == p.eos {
				// the automaton never sees end-of-sequence
				continue
			}
			if err := p.lanes[i].fm.AcceptToken(id); err != nil {
				return fmt.Errorf("%w: lane %d token %d: %v", ErrInconsistent, i, id, err)
			}
		}
	}

	negInf := float32(math.Inf(-1))
	for i := range p.lanes {
		row := scores[i]
		fm := p.lanes[i].fm

		if fm.IsCompleted() {
			// once the structure is complete, end-of-sequence is the
			// only legal continuation
			for j := range row {
				row[j] = negInf
			}
			if n := int(p.eos); n >= 0 && n < len(row) {
				row[n] = 0
			}
			continue
		}

		fm.ComputeAllowedTokens()
		masked := fm.MaskLogits(row)
		if len(masked) != 0 && (len(row) == 0 || &masked[0] != &row[0]) {
			// the engine produced a replacement row
			copy(row, masked)
		}
	}
	return nil
}
