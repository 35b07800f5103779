// Package sink implements the two text sinks driven directly by a Bundle
// stream: DumpWriter (one k-mer/counter pair per line) and HistogramWriter
// (counter -> count). Both buffer their output (bufio around an *os.File)
// and follow KMC's dump_writer.h / histogram_writer.h for exact field
// semantics.
package sink

import (
	"bufio"
	"os"
	"strconv"

	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/common"
	"github.com/kmerset/kmertools/internal/kmer"
)

// dumpBufferSize is a large output buffer; bufio.Writer handles the
// flush bookkeeping that KMC's own OVERHEAD_SIZE constant managed by hand.
const dumpBufferSize = 16 * 1024 * 1024

// DumpWriter writes "<kmer>\t<counter>\n" lines for every record whose raw
// counter is within [CutoffMin,CutoffMax], then clamps the written counter
// to CounterMax.
type DumpWriter struct {
	f        *os.File
	w        *bufio.Writer
	encoding kmer.Encoding

	cutoff     common.CutoffRange
	counterMax uint32

	err error
}

// NewDumpWriter creates path and prepares it to receive bundles.
func NewDumpWriter(path string, encoding kmer.Encoding, cutoff common.CutoffRange, counterMax uint32) (*DumpWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, common.NewError(common.KindFileIO, "sink.NewDumpWriter", path, err)
	}
	return &DumpWriter{
		f:          f,
		w:          bufio.NewWriterSize(f, dumpBufferSize),
		encoding:   encoding,
		cutoff:     cutoff,
		counterMax: counterMax,
	}, nil
}

// Push writes every record in b that survives the cutoff filter. It always
// drains b, even after recording a write error, so callers can keep
// popping without checking the return value mid-bundle; the return value
// only tells the caller whether it is safe to keep pushing further
// bundles.
func (w *DumpWriter) Push(b *bundle.Bundle) bool {
	for !b.Empty() {
		rec := b.Pop()
		if w.err != nil {
			continue
		}
		if !w.cutoff.Contains(rec.Counter) {
			continue
		}
		counter := rec.Counter
		if w.counterMax > 0 && counter > w.counterMax {
			counter = w.counterMax
		}
		if _, err := w.w.WriteString(rec.Kmer.Decode(w.encoding)); err != nil {
			w.err = common.NewError(common.KindFileIO, "sink.DumpWriter.Push", w.f.Name(), err)
			continue
		}
		if err := w.w.WriteByte('\t'); err != nil {
			w.err = common.NewError(common.KindFileIO, "sink.DumpWriter.Push", w.f.Name(), err)
			continue
		}
		if _, err := w.w.WriteString(strconv.FormatUint(uint64(counter), 10)); err != nil {
			w.err = common.NewError(common.KindFileIO, "sink.DumpWriter.Push", w.f.Name(), err)
			continue
		}
		if err := w.w.WriteByte('\n'); err != nil {
			w.err = common.NewError(common.KindFileIO, "sink.DumpWriter.Push", w.f.Name(), err)
		}
	}
	return w.err == nil
}

// Finish flushes the buffer and closes the file.
func (w *DumpWriter) Finish() error {
	if w.err != nil {
		w.f.Close()
		return w.err
	}
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return common.NewError(common.KindFileIO, "sink.DumpWriter.Finish", w.f.Name(), err)
	}
	return w.f.Close()
}
