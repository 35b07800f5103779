package kff

import (
	"io"
	"os"
	"sync"

	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/common"
	"github.com/kmerset/kmertools/internal/kmer"
)

const writeBufferSize = 16 * 1024 * 1024

// WriterOptions configures NewWriter.
type WriterOptions struct {
	K           int
	CounterSize int
	CutoffMin   uint32
	CutoffMax   uint32
	CounterMax  uint32
	MaxInBlock  uint64
	Canonical   bool
}

// Writer appends a single raw data section to a KFF file: header, one
// variable section scoping it, the raw section itself, one index section
// pointing back at both, and a footer. The raw section's block
// count is unknown until every record has been streamed, so NewWriter
// reserves an 8-byte placeholder at the section's count field and Finish
// seeks back to patch it once the true count is known -- the usual
// reserve-then-backpatch shape for a streamed, length-prefixed section
// whose length isn't known until the stream ends.
type Writer struct {
	opts WriterOptions
	f    *os.File

	sectionTagPos int64 // offset of the raw section's 'r' tag
	varSectionPos int64 // offset of the scoping variable section

	inQueue *bundle.Queue
	wg      sync.WaitGroup

	errMu sync.Mutex
	err   error
	count uint64
}

// NewWriter creates path and writes the global header plus the scoping
// variable section and raw section's placeholder count.
func NewWriter(path string, opts WriterOptions) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, common.NewError(common.KindFileIO, "kff.NewWriter", path, err)
	}

	// Four 2-bit codes packed A<<6|C<<4|G<<2|T, matching kmer.Canonical
	// (A=0,C=1,G=2,T=3): 00_01_10_11 = 0x1B.
	const canonicalEncoding = byte(0x1B)
	encoding := canonicalEncoding
	gh := encodeGlobalHeader(GlobalHeader{VersionMajor: 1, VersionMinor: 0, Encoding: encoding, AllUnique: true, Canonical: opts.Canonical})
	if _, err := f.Write(gh); err != nil {
		f.Close()
		return nil, common.NewError(common.KindFileIO, "kff.NewWriter", path, err)
	}

	varPos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, common.NewError(common.KindFileIO, "kff.NewWriter", path, err)
	}
	maxInBlock := opts.MaxInBlock
	if maxInBlock == 0 {
		maxInBlock = 1 << 20
	}
	vs := encodeVariableSection([]variable{
		{Name: varK, Value: uint64(opts.K)},
		{Name: varDataSize, Value: uint64(opts.CounterSize)},
		{Name: varMaxInBlock, Value: maxInBlock},
		{Name: varOrdered, Value: 1},
	})
	if _, err := f.Write(vs); err != nil {
		f.Close()
		return nil, common.NewError(common.KindFileIO, "kff.NewWriter", path, err)
	}

	tagPos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, common.NewError(common.KindFileIO, "kff.NewWriter", path, err)
	}
	placeholder := make([]byte, 1+8)
	placeholder[0] = common.KFFSectionRaw
	if _, err := f.Write(placeholder); err != nil {
		f.Close()
		return nil, common.NewError(common.KindFileIO, "kff.NewWriter", path, err)
	}

	w := &Writer{
		opts:          opts,
		f:             f,
		sectionTagPos: tagPos,
		varSectionPos: varPos,
		inQueue:       bundle.NewQueue(4),
	}
	w.wg.Add(1)
	go w.writerThread()
	return w, nil
}

// Push hands a sorted input bundle to the writer.
func (w *Writer) Push(b *bundle.Bundle) bool { return w.inQueue.Push(b) }

func (w *Writer) setErr(err error) {
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
}

func (w *Writer) writerThread() {
	defer w.wg.Done()
	kmerLen := kmer.ByteLen(w.opts.K)
	recordLen := kmerLen + w.opts.CounterSize
	buf := make([]byte, 0, writeBufferSize)
	counterBuf := make([]byte, w.opts.CounterSize)

	flush := func() bool {
		if len(buf) == 0 {
			return true
		}
		if _, err := w.f.Write(buf); err != nil {
			w.setErr(common.NewError(common.KindFileIO, "kff.writerThread", w.f.Name(), err))
			return false
		}
		buf = buf[:0]
		return true
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

			if len(buf)+recordLen > cap(buf) {
				if !flush() {
					return
				}
			}
			buf = append(buf, rec.Kmer.B[:kmerLen]...)
			common.EncodeCounterBE(counterBuf, counter, w.opts.CounterSize)
			buf = append(buf, counterBuf...)
			w.count++
		}
	}
	flush()
}

// Finish waits for all input to be consumed, backpatches the raw
// section's block count, and appends the index section and footer.
func (w *Writer) Finish() error {
	w.inQueue.Close()
	w.wg.Wait()
	if w.err != nil {
		w.f.Close()
		return w.err
	}

	countBuf := make([]byte, 8)
	common.KFFEndian.PutUint64(countBuf, w.count)
	if _, err := w.f.WriteAt(countBuf, w.sectionTagPos+1); err != nil {
		w.f.Close()
		return common.NewError(common.KindFileIO, "kff.Finish", w.f.Name(), err)
	}

	indexPos, err := w.f.Seek(0, io.SeekEnd)
	if err != nil {
		w.f.Close()
		return common.NewError(common.KindFileIO, "kff.Finish", w.f.Name(), err)
	}
	idx := encodeIndexSection(indexPos, []indexEntry{
		{Type: common.KFFSectionVariable, Offset: w.varSectionPos},
		{Type: common.KFFSectionRaw, Offset: w.sectionTagPos},
	}, 0)
	if _, err := w.f.Write(idx); err != nil {
		w.f.Close()
		return common.NewError(common.KindFileIO, "kff.Finish", w.f.Name(), err)
	}

	ft := encodeFooter(footer{FirstIndex: indexPos})
	if _, err := w.f.Write(ft); err != nil {
		w.f.Close()
		return common.NewError(common.KindFileIO, "kff.Finish", w.f.Name(), err)
	}

	return w.f.Close()
}

// Abort cancels the writer; the partially written file is left on disk.
func (w *Writer) Abort() { w.inQueue.Abort() }
