package operator

import (
	"testing"

	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/kmer"
)

// sliceNode is a minimal Node backed by an in-memory sorted record slice,
// standing in for a reader in these tests.
type sliceNode struct {
	recs      []bundle.Record
	pos       int
	cancelled bool
}

func newSliceNode(t *testing.T, pairs map[string]uint32) *sliceNode {
	t.Helper()
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	// map iteration order is random, so the keys are sorted here; for
	// fixed-width ACGT strings, string order matches Canonical 2-bit order.
	recs := make([]bundle.Record, 0, len(pairs))
	for _, k := range sortedKeys(keys) {
		v, err := kmer.Encode(k, kmer.Canonical)
		if err != nil {
			t.Fatal(err)
		}
		recs = append(recs, bundle.Record{Kmer: v, Counter: pairs[k]})
	}
	return &sliceNode{recs: recs}
}

func sortedKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (s *sliceNode) NextBundle() (*bundle.Bundle, bool) {
	if s.pos >= len(s.recs) {
		return nil, false
	}
	b := bundle.New(bundle.DefaultCapacity)
	for s.pos < len(s.recs) && !b.Full() {
		b.Append(s.recs[s.pos])
		s.pos++
	}
	return b, true
}

func (s *sliceNode) IgnoreRest() { s.cancelled = true; s.pos = len(s.recs) }

func drain(t *testing.T, n Node) map[string]uint32 {
	t.Helper()
	out := map[string]uint32{}
	for {
		b, ok := n.NextBundle()
		if !ok {
			break
		}
		for !b.Empty() {
			r := b.Pop()
			out[r.Kmer.Decode(kmer.Canonical)] = r.Counter
		}
	}
	return out
}

func TestUnionSum(t *testing.T) {
	a := newSliceNode(t, map[string]uint32{"AAAA": 3, "ACGT": 1})
	b := newSliceNode(t, map[string]uint32{"ACGT": 2, "TTTT": 5})
	got := drain(t, Union(a, b, CombinerSum))
	want := map[string]uint32{"AAAA": 3, "ACGT": 3, "TTTT": 5}
	assertEqual(t, got, want)
}

func TestIntersectMin(t *testing.T) {
	a := newSliceNode(t, map[string]uint32{"AAAA": 3, "ACGT": 1, "GGGG": 7})
	b := newSliceNode(t, map[string]uint32{"ACGT": 2, "GGGG": 4})
	got := drain(t, Intersect(a, b, CombinerMin))
	want := map[string]uint32{"ACGT": 1, "GGGG": 4}
	assertEqual(t, got, want)
}

func TestKmersSubtract(t *testing.T) {
	a := newSliceNode(t, map[string]uint32{"AAAA": 3, "ACGT": 1, "GGGG": 7})
	b := newSliceNode(t, map[string]uint32{"ACGT": 9})
	got := drain(t, KmersSubtract(a, b))
	want := map[string]uint32{"AAAA": 3, "GGGG": 7}
	assertEqual(t, got, want)
}

func TestCountersSubtract(t *testing.T) {
	a := newSliceNode(t, map[string]uint32{"AAAA": 3, "ACGT": 5})
	b := newSliceNode(t, map[string]uint32{"AAAA": 3, "ACGT": 2})
	got := drain(t, CountersSubtract(a, b, CombinerDiff))
	want := map[string]uint32{"ACGT": 3}
	assertEqual(t, got, want)
}

func TestIntersectCancelsOtherSideOnExhaustion(t *testing.T) {
	a := newSliceNode(t, map[string]uint32{"AAAA": 1})
	b := newSliceNode(t, map[string]uint32{"AAAA": 1, "CCCC": 2, "GGGG": 3})
	drain(t, Intersect(a, b, CombinerMin))
	if !b.cancelled {
		t.Fatal("expected intersect to cancel the right side once the left was exhausted")
	}
}

func TestDispatcherAmortisesTwoOutputs(t *testing.T) {
	a := newSliceNode(t, map[string]uint32{"AAAA": 3, "ACGT": 1})
	b := newSliceNode(t, map[string]uint32{"ACGT": 2, "TTTT": 5})

	union := &memSink{}
	intersect := &memSink{}
	d := NewDispatcher(a, b, []*Listener{
		{Classes: map[Class]bool{ClassEqual: true, ClassALower: true, ClassBLower: true}, Combiner: CombinerSum, Sink: union},
		{Classes: map[Class]bool{ClassEqual: true}, Combiner: CombinerMin, Sink: intersect},
	})
	if !d.Run() {
		t.Fatal("Run reported failure")
	}

	gotUnion := toMap(union.recs)
	assertEqual(t, gotUnion, map[string]uint32{"AAAA": 3, "ACGT": 3, "TTTT": 5})

	gotIntersect := toMap(intersect.recs)
	assertEqual(t, gotIntersect, map[string]uint32{"ACGT": 1})
}

type memSink struct {
	recs []bundle.Record
}

func (m *memSink) Push(b *bundle.Bundle) bool {
	for !b.Empty() {
		m.recs = append(m.recs, b.Pop())
	}
	return true
}

func toMap(recs []bundle.Record) map[string]uint32 {
	out := map[string]uint32{}
	for _, r := range recs {
		out[r.Kmer.Decode(kmer.Canonical)] = r.Counter
	}
	return out
}

func assertEqual(t *testing.T, got, want map[string]uint32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	}
}
