package sink

import (
	"bufio"
	"os"
	"strconv"

	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/common"
)

// HistogramWriter accumulates counter -> count in a vector sized
// cutoff_max+1 and, on Finish, writes one "<counter>\t<count>\n" line per
// counter in [cutoff_min, cutoff_max], unconditionally -- including zero
// counts, matching the original's unconditional range loop.
type HistogramWriter struct {
	path   string
	cutoff common.CutoffRange
	counts []uint64
}

// NewHistogramWriter allocates the counter vector. path is only opened at
// Finish, since nothing needs to be written until every bundle has been
// seen. A histogram output requires an explicit, bounded cutoff_max: the
// counter vector is sized cutoff_max+1, so the unbounded default cutoff
// is rejected rather than silently
// allocating billions of counters.
func NewHistogramWriter(path string, cutoff common.CutoffRange) (*HistogramWriter, error) {
	if cutoff.Max == ^uint32(0) {
		return nil, common.NewError(common.KindBadArgument, "sink.NewHistogramWriter", path, nil)
	}
	return &HistogramWriter{path: path, cutoff: cutoff, counts: make([]uint64, cutoff.Max+1)}, nil
}

// Push tallies every record in b whose counter falls within range.
func (w *HistogramWriter) Push(b *bundle.Bundle) bool {
	for !b.Empty() {
		rec := b.Pop()
		if w.cutoff.Contains(rec.Counter) {
			w.counts[rec.Counter]++
		}
	}
	return true
}

// Finish writes the histogram file.
func (w *HistogramWriter) Finish() error {
	f, err := os.Create(w.path)
	if err != nil {
		return common.NewError(common.KindFileIO, "sink.HistogramWriter.Finish", w.path, err)
	}
	bw := bufio.NewWriter(f)
	for c := w.cutoff.Min; c <= w.cutoff.Max; c++ {
		if _, err := bw.WriteString(strconv.FormatUint(uint64(c), 10)); err != nil {
			f.Close()
			return common.NewError(common.KindFileIO, "sink.HistogramWriter.Finish", w.path, err)
		}
		if err := bw.WriteByte('\t'); err != nil {
			f.Close()
			return common.NewError(common.KindFileIO, "sink.HistogramWriter.Finish", w.path, err)
		}
		if _, err := bw.WriteString(strconv.FormatUint(w.counts[c], 10)); err != nil {
			f.Close()
			return common.NewError(common.KindFileIO, "sink.HistogramWriter.Finish", w.path, err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			f.Close()
			return common.NewError(common.KindFileIO, "sink.HistogramWriter.Finish", w.path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return common.NewError(common.KindFileIO, "sink.HistogramWriter.Finish", w.path, err)
	}
	return f.Close()
}
