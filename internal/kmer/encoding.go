package kmer

import "github.com/kmerset/kmertools/internal/common"

// Encoding maps the four DNA symbols A, C, G, T to 2-bit codes 0..3. KMC
// databases are free to choose any of the 24 permutations; the code itself
// never assumes the canonical mapping except where Canonical is used
// explicitly.
type Encoding [4]byte

// Canonical is the A=0, C=1, G=2, T=3 mapping used when a database does not
// record a different one.
var Canonical = Encoding{0, 1, 2, 3}

var symbols = [4]byte{'A', 'C', 'G', 'T'}

// Code returns the 2-bit code e assigns to symbol s (one of A,C,G,T, upper
// or lower case). ok is false for any other byte.
func (e Encoding) Code(s byte) (byte, bool) {
	switch s {
	case 'A', 'a':
		return e[0], true
	case 'C', 'c':
		return e[1], true
	case 'G', 'g':
		return e[2], true
	case 'T', 't':
		return e[3], true
	default:
		return 0, false
	}
}

// Symbol returns the upper-case DNA base that e maps code to. code must be
// in [0,3].
func (e Encoding) Symbol(code byte) byte {
	for sym := 0; sym < 4; sym++ {
		if e[sym] == code {
			return symbols[sym]
		}
	}
	return '?'
}

// Encode packs a DNA sequence into a new Kmer with K = len(seq) using enc.
// It returns an error of kind common.KindBadArgument if seq contains a
// non-ACGT byte or is longer than MaxK.
func Encode(seq string, enc Encoding) (Kmer, error) {
	var v Kmer
	if len(seq) > MaxK {
		return v, common.NewError(common.KindBadArgument, "kmer.Encode", "", nil)
	}
	v.Reset(len(seq))
	for i := 0; i < len(seq); i++ {
		code, ok := enc.Code(seq[i])
		if !ok {
			return v, common.NewError(common.KindBadArgument, "kmer.Encode", "", nil)
		}
		v.SetBaseCode(i, code)
	}
	return v, nil
}

// Decode unpacks v back into an upper-case DNA string using enc.
func (v *Kmer) Decode(enc Encoding) string {
	out := make([]byte, v.K)
	for i := 0; i < v.K; i++ {
		out[i] = enc.Symbol(v.BaseCode(i))
	}
	return string(out)
}
