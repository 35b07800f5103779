// Package kmc1 implements the reader and writer for the KMC1 on-disk
// k-mer database format: a prefix file (magic-framed LUT plus footer
// header) and a suffix file (magic-framed record stream). The pipeline
// shape -- a sequential I/O thread handing fixed buffers to a decoder
// thread, itself feeding a bounded output queue -- splits the work the
// same way an external merge sort does: one goroutine streams bytes off
// disk, another decodes them into typed records.
package kmc1

import (
	"github.com/kmerset/kmertools/internal/common"
)

// headerSize is the length in bytes of the fixed footer header written at
// the tail of a prefix file.
const headerSize = 56

// Header carries every field needed to interpret or rebuild a KMC1
// database.
type Header struct {
	K             int
	Mode          uint32 // quality/counters mode; always 0 (spec non-goal: no quality counters)
	CounterSize   int    // bytes per on-disk counter, 0..4
	PrefixLen     int    // p, lut_prefix_len, in bases
	SignatureLen  int    // m, KMC2 bin signature length; 0 for a plain KMC1 database
	CutoffMin     uint32
	CutoffMax     uint32 // max_count; written to both the low and high 32-bit fields (design note 2)
	Total         uint64
	Canonical     bool
	DBVersion     uint32
	FormatVersion uint32
}

// suffixBases returns k-p, the number of bases stored per suffix record.
func (h Header) suffixBases() int { return h.K - h.PrefixLen }

// validate checks the header invariants decodeHeader enforces at load time
// ("(k-p) % 4 == 0" is required so suffix records are byte aligned; p itself
// need not be). NewWriter checks the same (k-p) % 4 rule on its own options.
func (h Header) validate() error {
	if h.K <= 0 || h.K > 256 {
		return common.NewError(common.KindBadFormat, "kmc1.Header.validate", "", nil)
	}
	if h.CounterSize < 0 || h.CounterSize > 4 {
		return common.NewError(common.KindBadFormat, "kmc1.Header.validate", "", nil)
	}
	if h.PrefixLen < 0 || h.PrefixLen > h.K {
		return common.NewError(common.KindBadFormat, "kmc1.Header.validate", "", nil)
	}
	if h.suffixBases()%4 != 0 {
		return common.NewError(common.KindBadFormat, "kmc1.Header.validate", "", nil)
	}
	return nil
}

// encodeHeader serialises h into the fixed 56-byte footer layout,
// little-endian throughout.
func encodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	e := common.KMCEndian
	e.PutUint32(buf[0:4], uint32(h.K))
	e.PutUint32(buf[4:8], h.Mode)
	e.PutUint32(buf[8:12], uint32(h.CounterSize))
	e.PutUint32(buf[12:16], uint32(h.PrefixLen))
	e.PutUint32(buf[16:20], uint32(h.SignatureLen))
	e.PutUint32(buf[20:24], h.CutoffMin)
	e.PutUint32(buf[24:28], h.CutoffMax) // low 32 bits
	e.PutUint32(buf[28:32], 0)           // high 32 bits, always populated (design note 2)
	e.PutUint64(buf[32:40], h.Total)
	canon := uint32(0)
	if h.Canonical {
		canon = 1
	}
	e.PutUint32(buf[40:44], canon)
	e.PutUint32(buf[44:48], h.FormatVersion)
	// buf[48:56] reserved, left zero.
	return buf
}

// decodeHeader is the inverse of encodeHeader.
func decodeHeader(buf []byte) (Header, error) {
	if len(buf) != headerSize {
		return Header{}, common.NewError(common.KindBadFormat, "kmc1.decodeHeader", "", nil)
	}
	e := common.KMCEndian
	h := Header{
		K:            int(e.Uint32(buf[0:4])),
		Mode:         e.Uint32(buf[4:8]),
		CounterSize:  int(e.Uint32(buf[8:12])),
		PrefixLen:    int(e.Uint32(buf[12:16])),
		SignatureLen: int(e.Uint32(buf[16:20])),
		CutoffMin:    e.Uint32(buf[20:24]),
		CutoffMax:    e.Uint32(buf[24:28]), // low 32 bits; high (buf[28:32]) ignored, spec note 2
		Total:        e.Uint64(buf[32:40]),
		Canonical:    e.Uint32(buf[40:44]) != 0,
		FormatVersion: e.Uint32(buf[44:48]),
	}
	if err := h.validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}
