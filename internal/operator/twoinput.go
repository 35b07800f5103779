package operator

import (
	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/kmer"
)

// op tags the four two-input set operations. The variant set is closed,
// so a tagged int replaces a virtual-dispatch class hierarchy.
type op int

const (
	opUnion op = iota
	opIntersect
	opKmersSubtract
	opCountersSubtract
)

// twoInputNode implements Node by streaming-merging two sorted inputs.
// It holds no goroutine of its own: each
// NextBundle call pulls just enough records from left/right to fill one
// output bundle, so the whole tree stays pull-driven from the root.
type twoInputNode struct {
	op       op
	combiner Combiner
	left     *cursor
	right    *cursor
	done     bool
}

func newTwoInputNode(o op, combiner Combiner, left, right Node) *twoInputNode {
	return &twoInputNode{op: o, combiner: combiner, left: newCursor(left), right: newCursor(right)}
}

// Union emits every k-mer present in either input, combining counters on
// matches with combiner (spec testable property S1).
func Union(left, right Node, combiner Combiner) Node {
	return newTwoInputNode(opUnion, combiner, left, right)
}

// Intersect emits only k-mers present in both inputs (spec S2).
func Intersect(left, right Node, combiner Combiner) Node {
	return newTwoInputNode(opIntersect, combiner, left, right)
}

// KmersSubtract emits every left k-mer absent from right, keeping the
// left counter unchanged; matched k-mers are dropped entirely (spec S3).
func KmersSubtract(left, right Node) Node {
	return newTwoInputNode(opKmersSubtract, CombinerNone, left, right)
}

// CountersSubtract emits every k-mer with counter max(0, left-right),
// dropping any k-mer whose combined counter is 0 (spec S4). Left-only
// k-mers pass through unchanged; right-only k-mers are dropped.
func CountersSubtract(left, right Node, combiner Combiner) Node {
	return newTwoInputNode(opCountersSubtract, combiner, left, right)
}

// keepsUnmatchedLeft reports whether an unmatched left record survives to
// the output (true for every op except Intersect).
func (n *twoInputNode) keepsUnmatchedLeft() bool { return n.op != opIntersect }

// keepsUnmatchedRight reports whether an unmatched right record survives
// to the output (true only for Union; the two subtract variants discard
// right-only k-mers, and Intersect discards everything once one side
// runs dry).
func (n *twoInputNode) keepsUnmatchedRight() bool { return n.op == opUnion }

// NextBundle runs the merge until a bundle fills or both inputs are
// exhausted.
func (n *twoInputNode) NextBundle() (*bundle.Bundle, bool) {
	if n.done {
		return nil, false
	}
	out := bundle.New(bundle.DefaultCapacity)
	for !out.Full() {
		switch {
		case !n.left.has && !n.right.has:
			n.done = true
			return finish(out)

		case !n.left.has:
			if n.op == opIntersect {
				n.done = true
				n.right.node.IgnoreRest()
				return finish(out)
			}
			if !n.keepsUnmatchedRight() {
				n.done = true
				return finish(out)
			}
			out.Append(n.right.rec)
			n.right.advance()

		case !n.right.has:
			if n.op == opIntersect {
				n.done = true
				n.left.node.IgnoreRest()
				return finish(out)
			}
			if !n.keepsUnmatchedLeft() {
				n.done = true
				return finish(out)
			}
			out.Append(n.left.rec)
			n.left.advance()

		default:
			cmp := kmer.Compare(&n.left.rec.Kmer, &n.right.rec.Kmer)
			switch {
			case cmp == 0:
				n.emitEqual(out, n.left.rec, n.right.rec)
				n.left.advance()
				n.right.advance()
			case cmp < 0:
				if n.keepsUnmatchedLeft() {
					out.Append(n.left.rec)
				}
				n.left.advance()
			default:
				if n.keepsUnmatchedRight() {
					out.Append(n.right.rec)
				}
				n.right.advance()
			}
		}
	}
	return out, true
}

func (n *twoInputNode) emitEqual(out *bundle.Bundle, a, b bundle.Record) {
	switch n.op {
	case opKmersSubtract:
		// both sides consumed, nothing emitted
	case opCountersSubtract:
		combined := n.combiner.Combine(a.Counter, b.Counter)
		if combined != 0 {
			out.Append(bundle.Record{Kmer: a.Kmer, Counter: combined})
		}
	default: // Union, Intersect
		out.Append(bundle.Record{Kmer: a.Kmer, Counter: n.combiner.Combine(a.Counter, b.Counter)})
	}
}

func finish(out *bundle.Bundle) (*bundle.Bundle, bool) {
	if out.Len() == 0 {
		return nil, false
	}
	return out, true
}

// IgnoreRest cancels both upstream inputs.
func (n *twoInputNode) IgnoreRest() {
	n.left.node.IgnoreRest()
	n.right.node.IgnoreRest()
}
