package kff

import (
	"container/heap"
	"os"
	"sync"

	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/common"
	"github.com/kmerset/kmertools/internal/kmc2"
	"github.com/kmerset/kmertools/internal/kmer"
)

// sectionCursor decodes one raw data section's fixed-size records on
// demand, the KFF analogue of kmc2's binCursor -- except a KFF record
// already carries its full k-mer bytes, so there is no prefix
// reconstruction step. Minimizer ('m') sections listed by the index are not
// decoded: readRawSection rejects them as bad format, so Open fails on a
// file that contains one.
type sectionCursor struct {
	recs        []recordBytes
	k           int
	counterSize int
	pos         int
	cur         bundle.Record
	hasCur      bool
}

func newSectionCursor(recs []recordBytes, k, counterSize int) *sectionCursor {
	c := &sectionCursor{recs: recs, k: k, counterSize: counterSize}
	c.advance()
	return c
}

func (c *sectionCursor) advance() {
	if c.pos >= len(c.recs) {
		c.hasCur = false
		return
	}
	r := c.recs[c.pos]
	c.pos++
	var v kmer.Kmer
	v.Reset(c.k)
	copy(v.B[:kmer.ByteLen(c.k)], r.kmerBytes)
	counter := common.DecodeCounterBE(r.counterBytes, c.counterSize)
	c.cur = bundle.Record{Kmer: v, Counter: counter}
	c.hasCur = true
}

// sectionCursorHeap is the k-way merge heap over data sections, grounded on
// the same cursorHeap pattern kmc2.Reader uses for bins.
type sectionCursorHeap []*sectionCursor

func (h sectionCursorHeap) Len() int { return len(h) }
func (h sectionCursorHeap) Less(i, j int) bool {
	return kmer.Less(&h[i].cur.Kmer, &h[j].cur.Kmer)
}
func (h sectionCursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *sectionCursorHeap) Push(x any)   { *h = append(*h, x.(*sectionCursor)) }
func (h *sectionCursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ReaderOptions configures Open.
type ReaderOptions struct {
	Cutoff   common.CutoffRange
	Progress *common.ProgressReporter
	Name     string
	Threads  int
}

// Reader produces a globally sorted stream from a KFF file's data sections,
// tournament-merging them the same way kmc2.Reader merges bins: C child
// mergers over disjoint slices of sections feed a parent merger, reusing
// the same merge strategy across data sections instead of bins.
type Reader struct {
	k           int
	counterSize int
	total       int

	cutoff   common.CutoffRange
	progress *common.ProgressReporter
	name     string

	file *os.File
	data []byte

	childQueues []*bundle.Queue
	outQueue    *bundle.Queue

	wg sync.WaitGroup
}

// Open mmaps path, validates the global header, walks the footer/index
// chain to discover every raw/minimizer data section, checks they all
// share one k, and launches the tournament merge.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewError(common.KindFileIO, "kff.Open", path, err)
	}
	data, err := common.MmapFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if _, _, err := decodeGlobalHeader(data); err != nil {
		f.Close()
		common.MunmapFile(data)
		return nil, err
	}

	ft, err := decodeFooter(data)
	if err != nil {
		f.Close()
		common.MunmapFile(data)
		return nil, err
	}
	sections, err := walkIndex(data, ft.FirstIndex)
	if err != nil {
		f.Close()
		common.MunmapFile(data)
		return nil, err
	}
	if len(sections) == 0 {
		f.Close()
		common.MunmapFile(data)
		return nil, common.NewError(common.KindBadFormat, "kff.Open", path, nil)
	}
	k := sections[0].K
	counterSize := sections[0].CounterSize
	for _, s := range sections[1:] {
		if s.K != k || s.CounterSize != counterSize {
			f.Close()
			common.MunmapFile(data)
			return nil, common.NewError(common.KindUnsupported, "kff.Open", path, nil)
		}
	}

	cutoff := opts.Cutoff
	if cutoff == (common.CutoffRange{}) {
		cutoff = common.DefaultCutoff()
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = 4
	}
	childCount := kmc2.ChildThreads(threads)
	if childCount > len(sections) {
		childCount = len(sections)
	}
	if childCount < 1 {
		childCount = 1
	}

	total := 0
	allRecs := make([][]recordBytes, len(sections))
	for i, s := range sections {
		recs, err := readRawSection(data, s)
		if err != nil {
			f.Close()
			common.MunmapFile(data)
			return nil, err
		}
		allRecs[i] = recs
		total += len(recs)
	}

	r := &Reader{
		k: k, counterSize: counterSize, total: total,
		cutoff: cutoff, progress: opts.Progress, name: opts.Name,
		file: f, data: data,
		outQueue: bundle.NewQueue(4),
	}
	if r.progress != nil {
		r.progress.Register(r.name, int64(total))
	}

	binsPerChild := splitSections(len(sections), childCount)
	r.childQueues = make([]*bundle.Queue, childCount)
	start := 0
	for c := 0; c < childCount; c++ {
		q := bundle.NewQueue(4)
		r.childQueues[c] = q
		lo, hi := start, start+binsPerChild[c]
		start = hi
		r.wg.Add(1)
		go r.childMerger(allRecs[lo:hi], k, counterSize, q)
	}
	if childCount < 2 {
		r.outQueue = r.childQueues[0]
	} else {
		r.wg.Add(1)
		go r.parentMerger()
	}
	return r, nil
}

func splitSections(n, c int) []int {
	out := make([]int, c)
	base := n / c
	rem := n % c
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}

func (r *Reader) childMerger(sections [][]recordBytes, k, counterSize int, q *bundle.Queue) {
	defer r.wg.Done()
	defer q.Close()

	h := &sectionCursorHeap{}
	heap.Init(h)
	for _, recs := range sections {
		if len(recs) == 0 {
			continue
		}
		c := newSectionCursor(recs, k, counterSize)
		if c.hasCur {
			heap.Push(h, c)
		}
	}

	out := bundle.New(bundle.DefaultCapacity)
	for h.Len() > 0 {
		c := (*h)[0]
		rec := c.cur
		c.advance()
		if c.hasCur {
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
		if r.progress != nil {
			r.progress.Advance(r.name, 1)
		}
		if !r.cutoff.Contains(rec.Counter) {
			continue
		}
		if out.Full() {
			if !q.Push(out) {
				return
			}
			out = bundle.New(bundle.DefaultCapacity)
		}
		out.Append(rec)
	}
	if out.Len() > 0 {
		q.Push(out)
	}
}

// bundleCursor/bundleCursorHeap mirror kmc2's parent-merge adapter: a
// *bundle.Queue of sorted bundles exposed as a single "current record" so
// the parent merger runs the identical heap machinery over child streams.
type bundleCursor struct {
	q      *bundle.Queue
	cur    *bundle.Bundle
	curRec bundle.Record
	hasCur bool
}

func newBundleCursor(q *bundle.Queue) *bundleCursor {
	c := &bundleCursor{q: q}
	c.advance()
	return c
}

func (c *bundleCursor) advance() {
	for c.cur == nil || c.cur.Empty() {
		b, ok := c.q.Pop()
		if !ok {
			c.hasCur = false
			return
		}
		c.cur = b
	}
	c.curRec = c.cur.Pop()
	c.hasCur = true
}

type bundleCursorHeap []*bundleCursor

func (h bundleCursorHeap) Len() int { return len(h) }
func (h bundleCursorHeap) Less(i, j int) bool {
	return kmer.Less(&h[i].curRec.Kmer, &h[j].curRec.Kmer)
}
func (h bundleCursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *bundleCursorHeap) Push(x any)   { *h = append(*h, x.(*bundleCursor)) }
func (h *bundleCursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (r *Reader) parentMerger() {
	defer r.wg.Done()
	defer r.outQueue.Close()

	h := &bundleCursorHeap{}
	heap.Init(h)
	for _, cq := range r.childQueues {
		c := newBundleCursor(cq)
		if c.hasCur {
			heap.Push(h, c)
		}
	}

	out := bundle.New(bundle.DefaultCapacity)
	for h.Len() > 0 {
		c := (*h)[0]
		rec := c.curRec
		c.advance()
		if c.hasCur {
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
		if out.Full() {
			if !r.outQueue.Push(out) {
				return
			}
			out = bundle.New(bundle.DefaultCapacity)
		}
		out.Append(rec)
	}
	if out.Len() > 0 {
		r.outQueue.Push(out)
	}
}

// K returns the shared k-mer length across every data section.
func (r *Reader) K() int { return r.k }

// NextBundle returns the next run of records, or false at end of stream.
func (r *Reader) NextBundle() (*bundle.Bundle, bool) { return r.outQueue.Pop() }

// IgnoreRest cancels every in-flight queue.
func (r *Reader) IgnoreRest() {
	for _, q := range r.childQueues {
		q.Abort()
	}
	r.outQueue.Abort()
}

// Close joins every pipeline goroutine and releases the file mapping.
func (r *Reader) Close() error {
	r.wg.Wait()
	common.MunmapFile(r.data)
	return r.file.Close()
}
