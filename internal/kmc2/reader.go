package kmc2

import (
	"container/heap"
	"os"
	"sync"

	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/common"
	"github.com/kmerset/kmertools/internal/kmer"
)

// ChildThreads applies the reader's thread-count heuristic: given T total
// threads for the reader, it returns C, the number of child merger
// threads (the remaining T-C are available to the parent merger).
func ChildThreads(totalThreads int) int {
	switch {
	case totalThreads < 3:
		return 1 // parent elided; the single child IS the reader output
	case totalThreads == 3:
		return 2
	case totalThreads <= 5:
		return 3
	case totalThreads <= 8:
		return 4
	case totalThreads <= 10:
		return 5
	case totalThreads <= 13:
		return 6
	case totalThreads <= 16:
		return 7
	default:
		return 7 + (totalThreads-16+4)/5
	}
}

// binCursor decodes one bin's suffix records on demand from its mmap'd
// byte range, reconstructing each k-mer's prefix bits as it walks that
// bin's own LUT -- the same lock-step walk as kmc1.Reader.reconstructThread,
// scoped to a single bin.
type binCursor struct {
	data        []byte // this bin's suffix bytes, within the shared mmap
	lut         []uint64
	k           int
	prefixLen   int
	suffixBytes int
	counterSize int
	recordLen   int

	pos       int   // next unread record index
	total     int   // RecordCount
	curPrefix int
	cur       bundle.Record
	hasCur    bool
}

func newBinCursor(data []byte, lut []uint64, h Header, total uint64) *binCursor {
	c := &binCursor{
		data:        data,
		lut:         lut,
		k:           h.K,
		prefixLen:   h.PrefixLen,
		suffixBytes: kmer.ByteLen(h.suffixBases()),
		counterSize: h.CounterSize,
		recordLen:   kmer.ByteLen(h.suffixBases()) + h.CounterSize,
		total:       int(total),
	}
	c.advance()
	return c
}

// advance decodes the next record into c.cur, or clears hasCur at end.
func (c *binCursor) advance() {
	if c.pos >= c.total {
		c.hasCur = false
		return
	}
	numPrefixes := len(c.lut) - 1
	for c.curPrefix < numPrefixes-1 && int64(c.pos) >= int64(c.lut[c.curPrefix+1]) {
		c.curPrefix++
	}

	off := c.pos * c.recordLen
	var v kmer.Kmer
	v.Reset(c.k)
	v.SetSuffixBases(c.prefixLen, c.k-c.prefixLen, c.data[off:off+c.suffixBytes])
	v.SetPrefixBases(c.prefixLen, uint64(c.curPrefix))
	counter := common.DecodeCounterLE(c.data[off+c.suffixBytes:off+c.recordLen], c.counterSize)

	c.cur = bundle.Record{Kmer: v, Counter: counter}
	c.hasCur = true
	c.pos++
}

// cursorHeap is a classic k-way merge heap over bin cursors; the parent
// merger runs the same scheme over child streams with bundleCursorHeap.
type cursorHeap []*binCursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	return kmer.Less(&h[i].cur.Kmer, &h[j].cur.Kmer)
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)   { *h = append(*h, x.(*binCursor)) }
func (h *cursorHeap) Pop() any {
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
	Threads  int // total threads to devote to this reader; 0 defaults to 4
}

// Reader produces a globally sorted stream from a KMC2 database by
// tournament-merging its bins in two levels: C child mergers, each k-way
// merging a disjoint slice of bins, feeding a parent merger that k-way
// merges the C child streams.
type Reader struct {
	db *database

	cutoff   common.CutoffRange
	progress *common.ProgressReporter
	name     string

	suffixFile *os.File
	suffixData []byte

	childQueues []*bundle.Queue
	outQueue    *bundle.Queue

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// Open reads the header, bin map, per-bin LUTs and opens the suffix file,
// then starts childCount child merger goroutines plus one parent merger
// goroutine (elided when childCount < 2).
func Open(prefixPath, suffixPath string, opts ReaderOptions) (*Reader, error) {
	db, err := readPrefixFile(prefixPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(suffixPath)
	if err != nil {
		return nil, common.NewError(common.KindFileIO, "kmc2.Open", suffixPath, err)
	}
	if err := checkSuffixMagic(f, suffixPath); err != nil {
		f.Close()
		return nil, err
	}
	data, err := common.MmapFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	cutoff := opts.Cutoff
	if cutoff == (common.CutoffRange{}) {
		cutoff = common.DefaultCutoff()
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = 4
	}
	childCount := ChildThreads(threads)
	if childCount > db.Header.BinCount {
		childCount = db.Header.BinCount
	}
	if childCount < 1 {
		childCount = 1
	}

	r := &Reader{
		db:         db,
		cutoff:     cutoff,
		progress:   opts.Progress,
		name:       opts.Name,
		suffixFile: f,
		suffixData: data,
		outQueue:   bundle.NewQueue(4),
	}
	if r.progress != nil {
		r.progress.Register(r.name, int64(db.Header.Total))
	}

	binsPerChild := splitBins(db.Header.BinCount, childCount)

	r.childQueues = make([]*bundle.Queue, childCount)
	binStart := 0
	for c := 0; c < childCount; c++ {
		q := bundle.NewQueue(4)
		r.childQueues[c] = q
		lo, hi := binStart, binStart+binsPerChild[c]
		binStart = hi
		r.wg.Add(1)
		go r.childMerger(lo, hi, q)
	}

	if childCount < 2 {
		r.outQueue = r.childQueues[0]
	} else {
		r.wg.Add(1)
		go r.parentMerger()
	}

	return r, nil
}

// splitBins divides n bins as evenly as possible across c children.
func splitBins(n, c int) []int {
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

// childMerger k-way merges the suffix records of bins [lo,hi) into sorted
// bundles on q.
func (r *Reader) childMerger(lo, hi int, q *bundle.Queue) {
	defer r.wg.Done()
	defer q.Close()

	h := &cursorHeap{}
	heap.Init(h)
	for i := lo; i < hi; i++ {
		meta := r.db.Bins[i]
		if meta.RecordCount == 0 {
			continue
		}
		data := r.suffixData[4+meta.SuffixOffset:]
		c := newBinCursor(data, r.db.LUTs[i], r.db.Header, meta.RecordCount)
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

// bundleCursor adapts a *bundle.Queue of sorted bundles into the same
// "current record" shape binCursor exposes, so the parent merger can run
// the identical cursorHeap machinery over child streams instead of bins.
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

// parentMerger k-way merges the C child streams into the reader's final
// output queue.
func (r *Reader) parentMerger() {
	defer r.wg.Done()
	defer r.finalQueue().Close()

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
			if !r.finalQueue().Push(out) {
				return
			}
			out = bundle.New(bundle.DefaultCapacity)
		}
		out.Append(rec)
	}
	if out.Len() > 0 {
		r.finalQueue().Push(out)
	}
}

// finalQueue is the queue NextBundle reads from: outQueue when a parent
// merger runs, or the sole child's queue when childCount < 2.
func (r *Reader) finalQueue() *bundle.Queue { return r.outQueue }

// Header returns the database's header.
func (r *Reader) Header() Header { return r.db.Header }

// NextBundle returns the next run of records, or false at end of stream.
func (r *Reader) NextBundle() (*bundle.Bundle, bool) {
	return r.outQueue.Pop()
}

// IgnoreRest cancels every in-flight queue: child queues and, if present,
// the parent's output queue.
func (r *Reader) IgnoreRest() {
	for _, q := range r.childQueues {
		q.Abort()
	}
	r.outQueue.Abort()
}

// Close joins every pipeline goroutine and releases the suffix mapping.
func (r *Reader) Close() error {
	r.wg.Wait()
	common.MunmapFile(r.suffixData)
	return r.suffixFile.Close()
}
