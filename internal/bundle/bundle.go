// Package bundle implements the record batch and bounded queues that every
// producer/consumer pair in kmertools hands work off through: a Bundle is
// the unit of transfer between readers, operator nodes and writers, and
// Queue/ByteQueue are the blocking, cancellable channels that move them
// between goroutines: a buffered channel-of-slices pipeline, generalised
// into an explicit, poolable batch type instead of a raw Go slice.
package bundle

import "github.com/kmerset/kmertools/internal/kmer"

// DefaultCapacity is the default number of records per bundle.
const DefaultCapacity = 4096

// Record is one (k-mer, counter) pair as it flows through the pipeline.
type Record struct {
	Kmer    kmer.Kmer
	Counter uint32
}

// Bundle is a movable batch of records with independent insert and consume
// cursors. Records in [Head, Tail) are populated and in
// ascending k-mer order; the bundle is empty when Head==Tail and full when
// Tail==Cap.
type Bundle struct {
	Records []Record
	Head     int
	Tail     int
	Cap      int
}

// New allocates a bundle with the given capacity, ready for a producer to
// fill via Append.
func New(cap int) *Bundle {
	return &Bundle{Records: make([]Record, cap), Cap: cap}
}

// Reset clears a bundle for reuse by a producer, keeping its backing array.
// The pipeline stages in this module do not call it: each allocates a fresh
// bundle per batch with New.
func (b *Bundle) Reset() {
	b.Head = 0
	b.Tail = 0
}

// Empty reports whether the bundle has nothing left to consume.
func (b *Bundle) Empty() bool { return b.Head >= b.Tail }

// Full reports whether a producer has filled the bundle to capacity.
func (b *Bundle) Full() bool { return b.Tail >= b.Cap }

// Len returns the number of unconsumed records.
func (b *Bundle) Len() int { return b.Tail - b.Head }

// Append adds a record at the producer cursor. The caller must check Full
// first; Append on a full bundle panics, matching the "never silently drop
// data" failure policy.
func (b *Bundle) Append(r Record) {
	b.Records[b.Tail] = r
	b.Tail++
}

// Top returns the next unconsumed record without advancing the cursor.
func (b *Bundle) Top() *Record { return &b.Records[b.Head] }

// Advance moves the consume cursor past the current record.
func (b *Bundle) Advance() { b.Head++ }

// Pop returns the next unconsumed record and advances the cursor.
func (b *Bundle) Pop() Record {
	r := b.Records[b.Head]
	b.Head++
	return r
}
