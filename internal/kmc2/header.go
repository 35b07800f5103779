// Package kmc2 implements the bin-partitioned KMC2 on-disk k-mer database
// format: a top-level signature->bin map selects one of N per-bin LUTs,
// each laid out exactly like a KMC1 database; exposing that as a single
// sorted stream requires a double-level tournament merge (child mergers
// per group of bins, one parent merger over the children). The heap-based
// k-way merge and producer/consumer split follow the same heap-based
// external-merge shape any bounded-memory k-way sort uses: a manual
// container/heap.Interface over per-bin cursors.
package kmc2

import "github.com/kmerset/kmertools/internal/common"

// headerSize is the size in bytes of the fixed KMC2 footer header.
const headerSize = 64

// Header describes a KMC2 database: like kmc1.Header, plus the bin
// partitioning parameters.
type Header struct {
	K             int
	CounterSize   int
	PrefixLen     int // p, local LUT prefix length shared by every bin
	SignatureLen  int // m, minimiser length used to compute each k-mer's signature
	BinCount      int
	CutoffMin     uint32
	CutoffMax     uint32
	Total         uint64
	Canonical     bool
	DBVersion     uint32
	FormatVersion uint32
}

func (h Header) suffixBases() int { return h.K - h.PrefixLen }

func (h Header) validate() error {
	if h.K <= 0 || h.K > 256 {
		return common.NewError(common.KindBadFormat, "kmc2.Header.validate", "", nil)
	}
	if h.suffixBases()%4 != 0 {
		return common.NewError(common.KindBadFormat, "kmc2.Header.validate", "", nil)
	}
	if h.SignatureLen < 0 || h.SignatureLen > h.K {
		return common.NewError(common.KindBadFormat, "kmc2.Header.validate", "", nil)
	}
	if h.BinCount <= 0 {
		return common.NewError(common.KindBadFormat, "kmc2.Header.validate", "", nil)
	}
	return nil
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	e := common.KMCEndian
	e.PutUint32(buf[0:4], uint32(h.K))
	e.PutUint32(buf[4:8], uint32(h.CounterSize))
	e.PutUint32(buf[8:12], uint32(h.PrefixLen))
	e.PutUint32(buf[12:16], uint32(h.SignatureLen))
	e.PutUint32(buf[16:20], uint32(h.BinCount))
	e.PutUint32(buf[20:24], h.CutoffMin)
	e.PutUint32(buf[24:28], h.CutoffMax)
	e.PutUint32(buf[28:32], 0) // high 32 bits of max_count, always populated (design note 2)
	e.PutUint64(buf[32:40], h.Total)
	canon := uint32(0)
	if h.Canonical {
		canon = 1
	}
	e.PutUint32(buf[40:44], canon)
	e.PutUint32(buf[44:48], h.FormatVersion)
	// buf[48:64] reserved.
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) != headerSize {
		return Header{}, common.NewError(common.KindBadFormat, "kmc2.decodeHeader", "", nil)
	}
	e := common.KMCEndian
	h := Header{
		K:             int(e.Uint32(buf[0:4])),
		CounterSize:   int(e.Uint32(buf[4:8])),
		PrefixLen:     int(e.Uint32(buf[8:12])),
		SignatureLen:  int(e.Uint32(buf[12:16])),
		BinCount:      int(e.Uint32(buf[16:20])),
		CutoffMin:     e.Uint32(buf[20:24]),
		CutoffMax:     e.Uint32(buf[24:28]),
		Total:         e.Uint64(buf[32:40]),
		Canonical:     e.Uint32(buf[40:44]) != 0,
		FormatVersion: e.Uint32(buf[44:48]),
	}
	if err := h.validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}
