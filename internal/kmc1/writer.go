package kmc1

import (
	"math"
	"os"
	"sync"

	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/common"
	"github.com/kmerset/kmertools/internal/kmer"
)

// suffixWriteBufferSize matches the reader's I/O buffer; the writer side
// hands the same size buffers to its dedicated suffix-writer thread,
// isolating I/O stalls from the compute path.
const suffixWriteBufferSize = 16 * 1024 * 1024

// WriterOptions configures NewWriter.
type WriterOptions struct {
	K           int
	CounterSize int
	PrefixLen   int // p; if 0 and ExpectedTotal > 0, ChoosePrefixLen picks it
	CutoffMin   uint32
	CutoffMax   uint32
	CounterMax  uint32 // counters are clamped to this value before the cutoff check (design note 1)
	Canonical   bool
	DBVersion   uint32

	ExpectedTotal uint64 // used by ChoosePrefixLen when PrefixLen==0
}

// maxPrefixLen bounds the search in ChoosePrefixLen. The LUT holds 4^p
// entries of 8 bytes each; even p=15 is already a 4^15*8 = 8GiB table, far
// past the point where a larger p could ever be cheaper than a smaller
// suffix file, so nothing above it is worth considering -- and it keeps
// 2^(2p) well clear of overflowing an int64, let alone a float64.
const maxPrefixLen = 15

// ChoosePrefixLen picks the p minimising total_kmers*(k-p)/4 + 2^(2p)*8,
// subject to (k-p)%4==0 and p<=min(k,maxPrefixLen). The cost is computed
// in float64; with p capped at maxPrefixLen, 2^(2p) is at most 2^30.
func ChoosePrefixLen(k int, totalKmers uint64) int {
	limit := k
	if limit > maxPrefixLen {
		limit = maxPrefixLen
	}
	best := 0
	bestCost := -1.0
	for p := 0; p <= limit; p++ {
		if (k-p)%4 != 0 {
			continue
		}
		suffixCost := float64(totalKmers) * float64(k-p) / 4
		lutCost := math.Exp2(float64(2*p)) * 8
		cost := suffixCost + lutCost
		if bestCost < 0 || cost < bestCost {
			bestCost = cost
			best = p
		}
	}
	return best
}

// Writer streams sorted (k-mer, counter) records out to a KMC1 database:
// a preparing thread consumes input bundles and appends packed suffix
// records while advancing a monotonic LUT cursor, handing full byte
// buffers to a dedicated suffix-writer thread.
type Writer struct {
	opts        WriterOptions
	suffixBytes int
	recordLen   int

	prefixPath string
	suffixPath string

	inQueue      *bundle.Queue
	writeQueue   *bundle.ByteQueue
	suffixFile   *os.File

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// NewWriter opens prefixPath/suffixPath for writing and starts the
// preparing and suffix-writer threads. Callers push sorted bundles to the
// returned Writer's Push method and call Finish when done.
func NewWriter(prefixPath, suffixPath string, opts WriterOptions) (*Writer, error) {
	if opts.PrefixLen == 0 && opts.ExpectedTotal > 0 {
		opts.PrefixLen = ChoosePrefixLen(opts.K, opts.ExpectedTotal)
	}
	if (opts.K-opts.PrefixLen)%4 != 0 {
		return nil, common.NewError(common.KindBadArgument, "kmc1.NewWriter", "", nil)
	}

	f, err := os.Create(suffixPath)
	if err != nil {
		return nil, common.NewError(common.KindFileIO, "kmc1.NewWriter", suffixPath, err)
	}
	if _, err := f.WriteString(common.KMCSuffixMagic); err != nil {
		f.Close()
		return nil, common.NewError(common.KindFileIO, "kmc1.NewWriter", suffixPath, err)
	}

	w := &Writer{
		opts:        opts,
		suffixBytes: kmer.ByteLen(opts.K - opts.PrefixLen),
		recordLen:   kmer.ByteLen(opts.K-opts.PrefixLen) + opts.CounterSize,
		prefixPath:  prefixPath,
		suffixPath:  suffixPath,
		suffixFile:  f,
		inQueue:     bundle.NewQueue(4),
		writeQueue:  bundle.NewByteQueue(4),
	}

	w.wg.Add(2)
	go w.suffixWriterThread()
	go w.preparingThread()
	return w, nil
}

// Push hands a sorted input bundle to the preparing thread. Returns false
// if the writer has been aborted.
func (w *Writer) Push(b *bundle.Bundle) bool {
	return w.inQueue.Push(b)
}

func (w *Writer) setErr(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

// Err returns the first error raised while writing, if any.
func (w *Writer) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// preparingThread consumes bundles, filters/clamps each record, appends
// packed suffix+counter bytes to a growing buffer, flushes full buffers to
// the suffix-writer thread, and maintains the monotonic LUT.
func (w *Writer) preparingThread() {
	defer w.wg.Done()

	numPrefixes := 1 << uint(2*w.opts.PrefixLen)
	lut := make([]uint64, numPrefixes+1)
	lutCursor := 0
	var total uint64

	chunkRecords := suffixWriteBufferSize / w.recordLen
	if chunkRecords < 1 {
		chunkRecords = 1
	}
	buf := make([]byte, 0, chunkRecords*w.recordLen)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		out := make([]byte, len(buf))
		copy(out, buf)
		if !w.writeQueue.Push(out) {
			return
		}
		buf = buf[:0]
	}

	for {
		b, ok := w.inQueue.Pop()
		if !ok {
			break
		}
		for !b.Empty() {
			rec := b.Pop()

			counter := rec.Counter
			if w.opts.CounterMax > 0 && counter > w.opts.CounterMax {
				counter = w.opts.CounterMax
			}
			if counter < w.opts.CutoffMin || counter > w.opts.CutoffMax {
				continue
			}

			prefix := int(rec.Kmer.PrefixValue(w.opts.PrefixLen))
			for lutCursor <= prefix {
				lut[lutCursor] = total
				lutCursor++
			}

			if len(buf)+w.recordLen > cap(buf) {
				flush()
			}

			suffixStart := len(buf)
			buf = buf[:suffixStart+w.suffixBytes]
			copy(buf[suffixStart:], rec.Kmer.SuffixBytes(w.opts.PrefixLen, w.opts.K-w.opts.PrefixLen))
			counterStart := len(buf)
			buf = buf[:counterStart+w.opts.CounterSize]
			common.EncodeCounterLE(buf[counterStart:counterStart+w.opts.CounterSize], counter, w.opts.CounterSize)

			total++
		}
	}
	flush()
	w.writeQueue.Close()

	for lutCursor <= numPrefixes {
		lut[lutCursor] = total
		lutCursor++
	}

	h := Header{
		K:           w.opts.K,
		CounterSize: w.opts.CounterSize,
		PrefixLen:   w.opts.PrefixLen,
		CutoffMin:   w.opts.CutoffMin,
		CutoffMax:   w.opts.CutoffMax,
		Total:       total,
		Canonical:   w.opts.Canonical,
		DBVersion:   w.opts.DBVersion,
	}
	if err := writePrefixFile(w.prefixPath, h, lut); err != nil {
		w.setErr(err)
	}
}

// suffixWriterThread drains the byte-buffer queue and writes to the
// suffix file, isolating I/O stalls from the preparing thread's compute
// path.
func (w *Writer) suffixWriterThread() {
	defer w.wg.Done()
	defer func() {
		if _, err := w.suffixFile.WriteString(common.KMCSuffixMagic); err != nil {
			w.setErr(common.NewError(common.KindFileIO, "kmc1.suffixWriterThread", w.suffixPath, err))
		}
		if err := w.suffixFile.Close(); err != nil {
			w.setErr(common.NewError(common.KindFileIO, "kmc1.suffixWriterThread", w.suffixPath, err))
		}
	}()

	for {
		buf, ok := w.writeQueue.Pop()
		if !ok {
			return
		}
		if _, err := w.suffixFile.Write(buf); err != nil {
			w.setErr(common.NewError(common.KindFileIO, "kmc1.suffixWriterThread", w.suffixPath, err))
			return
		}
	}
}

// Finish signals end of input and waits for both threads to complete,
// returning the first error encountered, if any.
func (w *Writer) Finish() error {
	w.inQueue.Close()
	w.wg.Wait()
	return w.Err()
}

// Abort cancels the writer: in-flight pushes and pops return immediately
// rather than completing the database.
func (w *Writer) Abort() {
	w.inQueue.Abort()
	w.writeQueue.Abort()
}
