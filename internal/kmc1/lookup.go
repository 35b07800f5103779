package kmc1

import (
	"os"

	"github.com/kmerset/kmertools/internal/common"
	"github.com/kmerset/kmertools/internal/kmer"
)

// Lookup performs a random-access point query for a single k-mer, bypassing
// the streaming pipeline entirely (supplemented feature, grounded on
// original_source's check_kmer.h: KMC ships a small utility that answers
// "is this one k-mer present, and with what count" without scanning the
// whole database). The suffix file is mapped lazily on first use and kept
// mapped for the Reader's lifetime.
func (r *Reader) Lookup(target kmer.Kmer) (uint32, bool, error) {
	if target.K != r.header.K {
		return 0, false, common.NewError(common.KindBadArgument, "kmc1.Reader.Lookup", "", nil)
	}

	r.mmapOnce.Do(func() {
		f, err := os.Open(r.suffixPath)
		if err != nil {
			r.mmapErr = common.NewError(common.KindFileIO, "kmc1.Reader.Lookup", r.suffixPath, err)
			return
		}
		defer f.Close()
		r.mmapData, r.mmapErr = common.MmapFile(f)
	})
	if r.mmapErr != nil {
		return 0, false, r.mmapErr
	}

	prefix := int(target.PrefixValue(r.header.PrefixLen))
	if prefix+1 >= len(r.lut) {
		return 0, false, common.NewError(common.KindInternal, "kmc1.Reader.Lookup", "", nil)
	}
	lo := r.lut[prefix]
	hi := r.lut[prefix+1]

	// Records within a bucket are in ascending suffix order, so a binary
	// search over the packed records locates the match in O(log n).
	loIdx, hiIdx := lo, hi
	for loIdx < hiIdx {
		mid := loIdx + (hiIdx-loIdx)/2
		off := 4 + int64(mid)*int64(r.recordLen)
		rec := r.mmapData[off : off+int64(r.suffixBytes)]

		var candidate kmer.Kmer
		candidate.Reset(r.header.K)
		candidate.SetPrefixBases(r.header.PrefixLen, uint64(prefix))
		candidate.SetSuffixBases(r.header.PrefixLen, r.header.suffixBases(), rec)

		cmp := kmer.Compare(&candidate, &target)
		switch {
		case cmp < 0:
			loIdx = mid + 1
		case cmp > 0:
			hiIdx = mid
		default:
			counterOff := off + int64(r.suffixBytes)
			counter := common.DecodeCounterLE(r.mmapData[counterOff:counterOff+int64(r.counterSize)], r.counterSize)
			return counter, true, nil
		}
	}
	return 0, false, nil
}
