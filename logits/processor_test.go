package logits

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const eos int32 = 3

// fakeFormatter is a scriptable automaton: it records every accepted
// token, masks everything outside allowed to -Inf, and reports
// completion once completeAt has been accepted.
type fakeFormatter struct {
	allowed    []int32
	completeAt int32 // token that completes the structure, -1 for never
	rejectAt   int32 // token the automaton rejects, -1 for none

	accepted  []int32
	completed bool
	computed  int
	resets    int
	replace   bool // MaskLogits returns a fresh slice
}

func newFake(allowed ...int32) *fakeFormatter {
	return &fakeFormatter{allowed: allowed, completeAt: -1, rejectAt: -1}
}

func (f *fakeFormatter) AcceptToken(id int32) error {
	if f.rejectAt >= 0 && id == f.rejectAt {
		return errors.New("token not accepted in current state")
	}
	f.accepted = append(f.accepted, id)
	if f.completeAt >= 0 && id == f.completeAt {
		f.completed = true
	}
	return nil
}

func (f *fakeFormatter) ComputeAllowedTokens() { f.computed++ }

func (f *fakeFormatter) MaskLogits(scores []float32) []float32 {
	out := scores
	if f.replace {
		out = slices.Clone(scores)
	}
	for i := range out {
		if !slices.Contains(f.allowed, int32(i)) {
			out[i] = float32(math.Inf(-1))
		}
	}
	return out
}

func (f *fakeFormatter) IsCompleted() bool { return f.completed }
func (f *fakeFormatter) Reset()            { f.resets++; f.completed = false; f.accepted = nil }

func rows(n, vocab int) [][]float32 {
	s := make([][]float32, n)
	for i := range s {
		s[i] = make([]float32, vocab)
		for j := range s[i] {
			s[i][j] = 1
		}
	}
	return s
}

func history(n int, ids ...int32) [][]int32 {
	h := make([][]int32, n)
	for i := range h {
		h[i] = slices.Clone(ids)
	}
	return h
}

func TestPromptReplayAndCompletion(t *testing.T) {
	// two lanes, reset_on_completion on, read_prompt off: the first
	// call must not feed any tokens and must mask both rows
	f0 := newFake(0, 1)
	f0.completeAt = 2
	f1 := newFake(1, 2)

	configs := []Config{
		{ResetOnCompletion: true},
		{ResetOnCompletion: true},
	}
	p, err := NewProcessor([]Formatter{f0, f1}, eos, configs)
	if err != nil {
		t.Fatal(err)
	}

	scores := rows(2, 5)
	if err := p.Apply(history(2, 10, 11, 12, 13, 14), scores); err != nil {
		t.Fatal(err)
	}
	if len(f0.accepted) != 0 || len(f1.accepted) != 0 {
		t.Fatalf("prompt fed with read_prompt off: %v / %v", f0.accepted, f1.accepted)
	}
	if f0.computed != 1 || f1.computed != 1 {
		t.Fatalf("allowed sets computed %d/%d times, want 1/1", f0.computed, f1.computed)
	}

	negInf := float32(math.Inf(-1))
	want := [][]float32{
		{1, 1, negInf, negInf, negInf},
		{negInf, 1, 1, negInf, negInf},
	}
	if diff := cmp.Diff(want, scores); diff != "" {
		t.Fatalf("first-step mask mismatch (-want +got):\n%s", diff)
	}

	// step two: lane 0 generates its completing token, lane 1 does not
	scores = rows(2, 5)
	hist := [][]int32{
		{10, 11, 12, 13, 14, 2},
		{10, 11, 12, 13, 14, 1},
	}
	if err := p.Apply(hist, scores); err != nil {
		t.Fatal(err)
	}

	want = [][]float32{
		{negInf, negInf, negInf, 0, negInf}, // eos only
		{negInf, 1, 1, negInf, negInf},      // lane 1 unaffected
	}
	if diff := cmp.Diff(want, scores); diff != "" {
		t.Fatalf("second-step mask mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryMustGrowByOne(t *testing.T) {
	f0, f1 := newFake(0), newFake(0)
	p, err := NewProcessor([]Formatter{f0, f1}, eos, make([]Config, 2))
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Apply(history(2, 10, 11), rows(2, 4)); err != nil {
		t.Fatal(err)
	}
	fed := len(f0.accepted)

	// two new tokens at once is host-loop misuse
	scores := rows(2, 4)
	unmasked := rows(2, 4)
	err = p.Apply(history(2, 10, 11, 12, 13), scores)
	if !errors.Is(err, ErrHistory) {
		t.Fatalf("err = %v, want ErrHistory", err)
	}
	if diff := cmp.Diff(unmasked, scores); diff != "" {
		t.Errorf("rows written on precondition failure (-want +got):\n%s", diff)
	}
	if len(f0.accepted) != fed {
		t.Errorf("automaton advanced on precondition failure")
	}

	// the failed call must not have moved the baseline
	if err := p.Apply(history(2, 10, 11, 12), rows(2, 4)); err != nil {
		t.Errorf("valid follow-up step rejected: %v", err)
	}
}

func TestUnevenLanes(t *testing.T) {
	p, err := NewProcessor([]Formatter{newFake(0), newFake(0)}, eos, nil)
	if err != nil {
		t.Fatal(err)
	}
	hist := [][]int32{{10, 11}, {10}}
	if err := p.Apply(hist, rows(2, 4)); !errors.Is(err, ErrHistory) {
		t.Fatalf("err = %v, want ErrHistory", err)
	}
}

func TestBatchWidthMismatch(t *testing.T) {
	p, err := NewProcessor([]Formatter{newFake(0)}, eos, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(history(2, 10), rows(2, 4)); !errors.Is(err, ErrBatch) {
		t.Fatalf("err = %v, want ErrBatch", err)
	}
	if err := p.Apply(history(1, 10), rows(2, 4)); !errors.Is(err, ErrBatch) {
		t.Fatalf("err = %v, want ErrBatch", err)
	}
}

func TestDefaultConfigReadsPrompt(t *testing.T) {
	f := newFake(0, 1, 2)
	p, err := NewProcessor([]Formatter{f}, eos, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(history(1, 10, 11, 12), rows(1, 4)); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int32{10, 11, 12}, f.accepted); diff != "" {
		t.Errorf("prompt tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestEOSNeverFed(t *testing.T) {
	f := newFake(0, 1, 2)
	p, err := NewProcessor([]Formatter{f}, eos, []Config{{}})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(history(1, 10), rows(1, 4)); err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(history(1, 10, eos), rows(1, 4)); err != nil {
		t.Fatal(err)
	}
	if len(f.accepted) != 0 {
		t.Errorf("end-of-sequence token fed to the automaton: %v", f.accepted)
	}
}

func TestResetOnCompletion(t *testing.T) {
	f := newFake(0)
	f.completed = true
	p, err := NewProcessor([]Formatter{f}, eos, []Config{{ResetOnCompletion: true, ReadPrompt: true}})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(history(1, 10), rows(1, 4)); err != nil {
		t.Fatal(err)
	}
	if f.resets != 1 {
		t.Errorf("resets = %d, want 1", f.resets)
	}
	// prompt replay happens after the reset
	if diff := cmp.Diff([]int32{10}, f.accepted); diff != "" {
		t.Errorf("prompt tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestCompletedStickyWithoutReset(t *testing.T) {
	f := newFake(0)
	f.completed = true
	p, err := NewProcessor([]Formatter{f}, eos, []Config{{}})
	if err != nil {
		t.Fatal(err)
	}
	scores := rows(1, 4)
	if err := p.Apply(history(1, 10), scores); err != nil {
		t.Fatal(err)
	}
	if f.resets != 0 {
		t.Errorf("resets = %d, want 0", f.resets)
	}
	negInf := float32(math.Inf(-1))
	want := [][]float32{{negInf, negInf, negInf, 0}}
	if diff := cmp.Diff(want, scores); diff != "" {
		t.Errorf("completed-lane mask mismatch (-want +got):\n%s", diff)
	}
}

func TestReplacementRowWrittenBack(t *testing.T) {
	f := newFake(1)
	f.replace = true
	p, err := NewProcessor([]Formatter{f}, eos, []Config{{}})
	if err != nil {
		t.Fatal(err)
	}
	scores := rows(1, 3)
	if err := p.Apply(history(1, 10), scores); err != nil {
		t.Fatal(err)
	}
	negInf := float32(math.Inf(-1))
	want := [][]float32{{negInf, 1, negInf}}
	if diff := cmp.Diff(want, scores); diff != "" {
		t.Errorf("replacement row not written back (-want +got):\n%s", diff)
	}
}

func TestRejectedTokenIsFatal(t *testing.T) {
	f := newFake(0, 1)
	f.rejectAt = 2
	p, err := NewProcessor([]Formatter{f}, eos, []Config{{}})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(history(1, 10), rows(1, 4)); err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(history(1, 10, 2), rows(1, 4)); !errors.Is(err, ErrInconsistent) {
		t.Fatalf("err = %v, want ErrInconsistent", err)
	}
}

func TestConfigCountMismatch(t *testing.T) {
	_, err := NewProcessor([]Formatter{newFake(0), newFake(0)}, eos, []Config{{}})
	if err == nil {
		t.Fatal("want error for config count mismatch")
	}
}

func TestSharedFormatterRejected(t *testing.T) {
	f := newFake(0)
	_, err := NewProcessor([]Formatter{f, f}, eos, nil)
	if err == nil {
		t.Fatal("want error for one formatter shared across lanes")
	}
}
