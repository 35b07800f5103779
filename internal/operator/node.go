// Package operator implements the set-algebra expression tree that
// composes k-mer streams into unions, intersections and subtractions.
// Every node -- reader or operator -- speaks the same
// Input capability: NextBundle returns the next filled run of records or
// reports end of stream, and IgnoreRest cancels all upstream activity.
// kmc1.Reader, kmc2.Reader and kff.Reader already satisfy Node without
// any adapter, since they were built against this exact shape.
package operator

import "github.com/kmerset/kmertools/internal/bundle"

// Node is the capability every leaf reader and internal operator node
// implements. The expression evaluator pulls bundles from the root node
// alone; everything beneath it is driven transitively by those pulls.
type Node interface {
	NextBundle() (*bundle.Bundle, bool)
	IgnoreRest()
}

// cursor adapts a Node's bundle stream into a single "current record" view,
// refilling from the next bundle on demand. This is the same adapter shape
// kmc2.Reader and kff.Reader use internally to merge child streams; here it
// drives the two-input operator merge instead.
type cursor struct {
	node Node
	cur  *bundle.Bundle
	rec  bundle.Record
	has  bool
}

func newCursor(n Node) *cursor {
	c := &cursor{node: n}
	c.advance()
	return c
}

func (c *cursor) advance() {
	for c.cur == nil || c.cur.Empty() {
		b, ok := c.node.NextBundle()
		if !ok {
			c.has = false
			return
		}
		c.cur = b
	}
	c.rec = c.cur.Pop()
	c.has = true
}
