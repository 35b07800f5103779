package kmc2

import "github.com/kmerset/kmertools/internal/kmer"

// Signature computes the lexicographically smallest length-m substring
// ("minimiser") of v under plain 2-bit-code ordering, returned as a value
// in [0, 4^m).
func Signature(v *kmer.Kmer, m int) uint64 {
	if m <= 0 || m > v.K {
		return 0
	}
	best := ^uint64(0)
	for start := 0; start+m <= v.K; start++ {
		var s uint64
		for i := 0; i < m; i++ {
			s = (s << 2) | uint64(v.BaseCode(start+i))
		}
		if s < best {
			best = s
		}
	}
	return best
}

// BinMap assigns each signature value to a bin index. It is a flat
// array-indexed lookup table, not a minimal perfect hash: signature space
// is only 4^m entries and m is small (typically <= 12 in practice), so a
// direct array is both simpler and faster than a constructed hash, and
// needs no external library to build or query.
type BinMap struct {
	SignatureLen int
	Bins         []uint32 // length 4^SignatureLen
}

// NewBinMap builds a map of the given signature length with signature i
// assigned to bin i mod binCount.
func NewBinMap(signatureLen, binCount int) *BinMap {
	n := uint64(1) << uint(2*signatureLen)
	bins := make([]uint32, n)
	for i := range bins {
		bins[i] = uint32(uint64(i) % uint64(binCount))
	}
	return &BinMap{SignatureLen: signatureLen, Bins: bins}
}

// BinOf returns the bin a k-mer belongs to.
func (m *BinMap) BinOf(v *kmer.Kmer) uint32 {
	sig := Signature(v, m.SignatureLen)
	return m.Bins[sig]
}

func encodeBinMap(m *BinMap) []byte {
	buf := make([]byte, len(m.Bins)*4)
	for i, b := range m.Bins {
		for j := 0; j < 4; j++ {
			buf[i*4+j] = byte(b >> (8 * uint(j)))
		}
	}
	return buf
}

func decodeBinMap(signatureLen int, buf []byte) *BinMap {
	n := len(buf) / 4
	bins := make([]uint32, n)
	for i := 0; i < n; i++ {
		var v uint32
		for j := 0; j < 4; j++ {
			v |= uint32(buf[i*4+j]) << (8 * uint(j))
		}
		bins[i] = v
	}
	return &BinMap{SignatureLen: signatureLen, Bins: bins}
}
