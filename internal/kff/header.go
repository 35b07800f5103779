// Package kff implements the reader and writer for the KFF block-structured
// k-mer container format: a global header, a sequence of sections tagged
// 'v' (variable), 'r' (raw), 'm' (minimiser) or 'i' (index), and a footer
// that restates selected variables. Every integer on disk is big-endian,
// unlike the little-endian KMC1/KMC2 formats.
//
// The index-section walk and tournament merge over data sections reuse
// the same cursorHeap-style k-way merge the kmc2 reader uses across bins.
package kff

import (
	"github.com/kmerset/kmertools/internal/common"
)

// GlobalHeader is the fixed-layout preamble written once per file.
type GlobalHeader struct {
	VersionMajor byte
	VersionMinor byte
	Encoding     byte // four 2-bit codes packed, A<<6|C<<4|G<<2|T
	AllUnique    bool // must be true
	Canonical    bool
	FreeBlock    []byte
}

func encodeGlobalHeader(h GlobalHeader) []byte {
	buf := make([]byte, 0, 3+1+1+4+len(h.FreeBlock))
	buf = append(buf, []byte(common.KFFMagic)...)
	buf = append(buf, h.VersionMajor, h.VersionMinor, h.Encoding)
	buf = append(buf, boolByte(h.AllUnique), boolByte(h.Canonical))
	lenBuf := make([]byte, 4)
	common.KFFEndian.PutUint32(lenBuf, uint32(len(h.FreeBlock)))
	buf = append(buf, lenBuf...)
	buf = append(buf, h.FreeBlock...)
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// decodeGlobalHeader reads the global header starting at data[0] and
// returns it plus the byte offset of the first section.
func decodeGlobalHeader(data []byte) (GlobalHeader, int, error) {
	if len(data) < 3+1+1+1+1+1+4 {
		return GlobalHeader{}, 0, common.NewError(common.KindBadFormat, "kff.decodeGlobalHeader", "", nil)
	}
	if string(data[:3]) != common.KFFMagic {
		return GlobalHeader{}, 0, common.NewError(common.KindBadFormat, "kff.decodeGlobalHeader", "", nil)
	}
	h := GlobalHeader{
		VersionMajor: data[3],
		VersionMinor: data[4],
		Encoding:     data[5],
		AllUnique:    data[6] != 0,
		Canonical:    data[7] != 0,
	}
	if !h.AllUnique {
		return GlobalHeader{}, 0, common.NewError(common.KindBadFormat, "kff.decodeGlobalHeader", "", nil)
	}
	freeLen := common.KFFEndian.Uint32(data[8:12])
	off := 12 + int(freeLen)
	if off > len(data) {
		return GlobalHeader{}, 0, common.NewError(common.KindBadFormat, "kff.decodeGlobalHeader", "", nil)
	}
	h.FreeBlock = data[12:off]
	return h, off, nil
}
