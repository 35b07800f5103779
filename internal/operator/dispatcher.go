package operator

import (
	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/kmer"
)

// Class classifies one merge tick between two sorted inputs.
type Class int

const (
	ClassEqual Class = iota
	ClassALower
	ClassBLower
)

// Sink is the capability a dispatcher listener writes into: any of the
// kmc1/kmc2/kff Writers, or a dump/histogram sink, all push bundles and
// report a single terminal error via Finish.
type Sink interface {
	Push(b *bundle.Bundle) bool
}

// Listener registers one output against a subset of merge classes, each
// applying its own counter combiner. Several listeners sharing the same
// two inputs amortise a single merge pass instead of re-running it once
// per output.
type Listener struct {
	Classes  map[Class]bool
	Combiner Combiner
	Sink     Sink

	buf *bundle.Bundle
}

func (l *Listener) wants(c Class) bool { return l.Classes[c] }

func (l *Listener) emit(rec bundle.Record) bool {
	if l.buf == nil {
		l.buf = bundle.New(bundle.DefaultCapacity)
	}
	if l.buf.Full() {
		if !l.Sink.Push(l.buf) {
			return false
		}
		l.buf = bundle.New(bundle.DefaultCapacity)
	}
	l.buf.Append(rec)
	return true
}

func (l *Listener) flush() bool {
	if l.buf != nil && l.buf.Len() > 0 {
		ok := l.Sink.Push(l.buf)
		l.buf = nil
		return ok
	}
	return true
}

// Dispatcher runs a single merge scan over two inputs and fans each tick
// out to every interested listener.
type Dispatcher struct {
	left, right *cursor
	listeners   []*Listener
}

// NewDispatcher builds a dispatcher over left/right with the given
// listeners.
func NewDispatcher(left, right Node, listeners []*Listener) *Dispatcher {
	return &Dispatcher{left: newCursor(left), right: newCursor(right), listeners: listeners}
}

// Run drives the merge to completion, feeding every listener, and flushes
// each listener's trailing partial bundle at the end.
func (d *Dispatcher) Run() bool {
	for d.left.has || d.right.has {
		switch {
		case !d.left.has:
			d.dispatch(ClassBLower, bundle.Record{}, d.right.rec)
			d.right.advance()
		case !d.right.has:
			d.dispatch(ClassALower, d.left.rec, bundle.Record{})
			d.left.advance()
		default:
			cmp := kmer.Compare(&d.left.rec.Kmer, &d.right.rec.Kmer)
			switch {
			case cmp == 0:
				d.dispatch(ClassEqual, d.left.rec, d.right.rec)
				d.left.advance()
				d.right.advance()
			case cmp < 0:
				d.dispatch(ClassALower, d.left.rec, bundle.Record{})
				d.left.advance()
			default:
				d.dispatch(ClassBLower, bundle.Record{}, d.right.rec)
				d.right.advance()
			}
		}
	}
	ok := true
	for _, l := range d.listeners {
		if !l.flush() {
			ok = false
		}
	}
	return ok
}

func (d *Dispatcher) dispatch(class Class, a, b bundle.Record) {
	for _, l := range d.listeners {
		if !l.wants(class) {
			continue
		}
		var rec bundle.Record
		switch class {
		case ClassEqual:
			rec = bundle.Record{Kmer: a.Kmer, Counter: l.Combiner.Combine(a.Counter, b.Counter)}
		case ClassALower:
			rec = a
		case ClassBLower:
			rec = b
		}
		l.emit(rec)
	}
}
