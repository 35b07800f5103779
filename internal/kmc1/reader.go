package kmc1

import (
	"os"
	"sync"

	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/common"
	"github.com/kmerset/kmertools/internal/kmer"
)

// Default tuning constants for the three-thread pipeline.
const (
	suffixIOBufferSize = 16 * 1024 * 1024
	suffixIOQueueDepth = 4
	decodedQueueDepth  = 4
	outputQueueDepth   = 4
)

// ReaderOptions configures Open.
type ReaderOptions struct {
	Cutoff common.CutoffRange
	// Progress, if non-nil, is advanced once per decoded record under Name.
	Progress *common.ProgressReporter
	Name     string
}

// Reader produces a globally sorted (k-mer, counter) stream from a KMC1
// database, filtering counters into [cutoff_min, cutoff_max].
// It implements the reader "Input capability": NextBundle and IgnoreRest.
type Reader struct {
	header      Header
	lut         []uint64
	suffixBytes int
	counterSize int
	recordLen   int

	cutoff   common.CutoffRange
	progress *common.ProgressReporter
	name     string

	suffixPath string
	suffixFile *os.File

	ioQueue      *bundle.ByteQueue
	decodedQueue *bundle.Queue
	outQueue     *bundle.Queue

	wg sync.WaitGroup

	mmapOnce sync.Once
	mmapData []byte
	mmapErr  error

	errMu sync.Mutex
	err   error
}

// setErr records the first error raised by any pipeline thread.
func (r *Reader) setErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Err returns the first error raised by the reader's pipeline, if any.
func (r *Reader) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// Open reads the header and LUT from prefixPath, opens suffixPath and
// starts the three pipeline goroutines (I/O, decode, reconstruct).
func Open(prefixPath, suffixPath string, opts ReaderOptions) (*Reader, error) {
	h, lut, err := readPrefixFile(prefixPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(suffixPath)
	if err != nil {
		return nil, common.NewError(common.KindFileIO, "kmc1.Open", suffixPath, err)
	}
	if err := checkSuffixMagic(f, suffixPath); err != nil {
		f.Close()
		return nil, err
	}

	cutoff := opts.Cutoff
	if cutoff == (common.CutoffRange{}) {
		cutoff = common.DefaultCutoff()
	}

	r := &Reader{
		header:      h,
		lut:         lut,
		suffixBytes: kmer.ByteLen(h.suffixBases()),
		counterSize: h.CounterSize,
		recordLen:   kmer.ByteLen(h.suffixBases()) + h.CounterSize,
		cutoff:      cutoff,
		progress:    opts.Progress,
		name:        opts.Name,
		suffixPath:  suffixPath,
		suffixFile:  f,

		ioQueue:      bundle.NewByteQueue(suffixIOQueueDepth),
		decodedQueue: bundle.NewQueue(decodedQueueDepth),
		outQueue:     bundle.NewQueue(outputQueueDepth),
	}
	if r.progress != nil {
		r.progress.Register(r.name, int64(h.Total))
	}

	r.wg.Add(3)
	go r.ioThread()
	go r.decodeThread()
	go r.reconstructThread()
	return r, nil
}

// Header returns the database's header.
func (r *Reader) Header() Header { return r.header }

// ioThread reads suffixIOBufferSize-aligned chunks of the suffix record
// stream sequentially, never splitting a record across two buffers. It
// reads exactly Total records' worth of bytes (known from the header) so
// the trailing "KMCS" end marker is never mistaken for record data.
func (r *Reader) ioThread() {
	defer r.wg.Done()
	defer r.ioQueue.Close()

	chunkRecords := suffixIOBufferSize / r.recordLen
	if chunkRecords < 1 {
		chunkRecords = 1
	}
	chunkSize := chunkRecords * r.recordLen

	remaining := int64(r.header.Total) * int64(r.recordLen)
	for remaining > 0 {
		want := int64(chunkSize)
		if want > remaining {
			want = remaining
		}
		buf := make([]byte, want)
		n, err := readFull(r.suffixFile, buf)
		if int64(n) != want || err != nil {
			r.setErr(common.NewError(common.KindFileIO, "kmc1.ioThread", r.suffixPath, err))
			return
		}
		if !r.ioQueue.Push(buf) {
			return
		}
		remaining -= want
	}

	tail := make([]byte, 4)
	if n, err := readFull(r.suffixFile, tail); err != nil || n != 4 || string(tail) != common.KMCSuffixMagic {
		r.setErr(common.NewError(common.KindBadFormat, "kmc1.ioThread", r.suffixPath, err))
	}
}

// readFull reads until buf is filled, io.EOF, or a read error, reporting how
// much was actually read; ioThread treats anything short of len(buf) as a
// fatal I/O error.
func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errShortRead
		}
	}
	return total, nil
}

var errShortRead = common.NewError(common.KindFileIO, "kmc1.readFull", "", nil)

// decodeThread pops raw byte buffers and decodes packed suffix+counter
// records into bundles whose k-mers have only their suffix bases set; the
// prefix bases are filled in by reconstructThread once it knows which LUT
// bucket each record falls in.
func (r *Reader) decodeThread() {
	defer r.wg.Done()
	defer r.decodedQueue.Close()

	out := bundle.New(bundle.DefaultCapacity)
	for {
		buf, ok := r.ioQueue.Pop()
		if !ok {
			break
		}
		for off := 0; off+r.recordLen <= len(buf); off += r.recordLen {
			var v kmer.Kmer
			v.Reset(r.header.K)
			v.SetSuffixBases(r.header.PrefixLen, r.header.suffixBases(), buf[off:off+r.suffixBytes])
			counter := common.DecodeCounterLE(buf[off+r.suffixBytes:off+r.recordLen], r.counterSize)

			if out.Full() {
				if !r.decodedQueue.Push(out) {
					return
				}
				out = bundle.New(bundle.DefaultCapacity)
			}
			out.Append(bundle.Record{Kmer: v, Counter: counter})
		}
	}
	if out.Len() > 0 {
		r.decodedQueue.Push(out)
	}
}

// reconstructThread walks the prefix LUT in lock-step with the decoded
// record stream, setting each record's prefix bases and applying the
// cutoff filter.
func (r *Reader) reconstructThread() {
	defer r.wg.Done()
	defer r.outQueue.Close()

	numPrefixes := 0
	if len(r.lut) > 0 {
		numPrefixes = len(r.lut) - 1
	}
	curPrefix := 0
	consumed := int64(0)

	out := bundle.New(bundle.DefaultCapacity)
	for {
		in, ok := r.decodedQueue.Pop()
		if !ok {
			break
		}
		for !in.Empty() {
			rec := in.Pop()
			for curPrefix < numPrefixes-1 && consumed >= int64(r.lut[curPrefix+1]) {
				curPrefix++
			}
			rec.Kmer.SetPrefixBases(r.header.PrefixLen, uint64(curPrefix))
			consumed++

			if r.progress != nil {
				r.progress.Advance(r.name, 1)
			}
			if !r.cutoff.Contains(rec.Counter) {
				continue
			}

			if out.Full() {
				if !r.outQueue.Push(out) {
					return
				}
				out = bundle.New(bundle.DefaultCapacity)
			}
			out.Append(rec)
		}
	}
	if out.Len() > 0 {
		r.outQueue.Push(out)
	}
}

// NextBundle returns the next run of records, or false once the stream is
// exhausted.
func (r *Reader) NextBundle() (*bundle.Bundle, bool) {
	b, ok := r.outQueue.Pop()
	return b, ok
}

// IgnoreRest cancels all in-flight work: every queue's blocked and future
// Push/Pop calls return immediately.
func (r *Reader) IgnoreRest() {
	r.ioQueue.Abort()
	r.decodedQueue.Abort()
	r.outQueue.Abort()
}

// Close joins all three pipeline goroutines and releases the suffix file
// handle. Safe to call after IgnoreRest or after the stream has ended
// naturally.
func (r *Reader) Close() error {
	r.wg.Wait()
	if r.mmapData != nil {
		common.MunmapFile(r.mmapData)
	}
	return r.suffixFile.Close()
}
