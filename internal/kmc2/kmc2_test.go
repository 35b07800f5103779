package kmc2

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/kmerset/kmertools/internal/bundle"
	"github.com/kmerset/kmertools/internal/common"
	"github.com/kmerset/kmertools/internal/kmer"
)

func encodeT(t *testing.T, seq string) kmer.Kmer {
	t.Helper()
	v, err := kmer.Encode(seq, kmer.Canonical)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func sortedRecords(t *testing.T, seqs map[string]uint32) []bundle.Record {
	t.Helper()
	keys := make([]string, 0, len(seqs))
	for k := range seqs {
		keys = append(keys, k)
	}
	sort.Strings(keys) // lexicographic string order matches Canonical 2-bit ordering for A<C<G<T
	out := make([]bundle.Record, len(keys))
	for i, s := range keys {
		out[i] = bundle.Record{Kmer: encodeT(t, s), Counter: seqs[s]}
	}
	return out
}

func writeAndRead(t *testing.T, recs []bundle.Record, k, counterSize, prefixLen, sigLen, binCount int) []bundle.Record {
	t.Helper()
	dir := t.TempDir()
	prefixPath := filepath.Join(dir, "db.kmc_pre")
	suffixPath := filepath.Join(dir, "db.kmc_suf")

	w, err := NewWriter(prefixPath, suffixPath, WriterOptions{
		K: k, CounterSize: counterSize, PrefixLen: prefixLen,
		SignatureLen: sigLen, BinCount: binCount,
		CutoffMin: 1, CutoffMax: ^uint32(0), Canonical: true,
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	b := bundle.New(bundle.DefaultCapacity)
	for _, r := range recs {
		b.Append(r)
	}
	w.Push(b)
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := Open(prefixPath, suffixPath, ReaderOptions{Cutoff: common.DefaultCutoff(), Threads: 6})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var out []bundle.Record
	for {
		bn, ok := r.NextBundle()
		if !ok {
			break
		}
		for !bn.Empty() {
			out = append(out, bn.Pop())
		}
	}
	return out
}

func TestKMC2GlobalSortAndUniqueness(t *testing.T) {
	recs := sortedRecords(t, map[string]uint32{
		"AAAAAAAA": 1, "AAAACCCC": 2, "AAAAGGGG": 3, "AAAATTTT": 4,
		"CCCCAAAA": 5, "CCCCCCCC": 6, "GGGGAAAA": 7, "TTTTTTTT": 8,
	})
	got := writeAndRead(t, recs, 8, 4, 4, 2, 4)

	if len(got) != len(recs) {
		t.Fatalf("got %d records, want %d", len(got), len(recs))
	}
	seen := map[string]bool{}
	for i := range got {
		if i > 0 && !kmer.Less(&got[i-1].Kmer, &got[i].Kmer) {
			t.Fatalf("output not strictly ascending at index %d", i)
		}
		seq := got[i].Kmer.Decode(kmer.Canonical)
		if seen[seq] {
			t.Fatalf("duplicate k-mer %s in output", seq)
		}
		seen[seq] = true
	}
	for _, r := range recs {
		if !seen[r.Kmer.Decode(kmer.Canonical)] {
			t.Fatalf("missing k-mer %s from output", r.Kmer.Decode(kmer.Canonical))
		}
	}
}

func TestKMC2CountersPreserved(t *testing.T) {
	recs := sortedRecords(t, map[string]uint32{
		"AAAAAAAA": 11, "TTTTTTTT": 22,
	})
	got := writeAndRead(t, recs, 8, 4, 4, 2, 2)
	counters := map[string]uint32{}
	for _, r := range got {
		counters[r.Kmer.Decode(kmer.Canonical)] = r.Counter
	}
	if counters["AAAAAAAA"] != 11 || counters["TTTTTTTT"] != 22 {
		t.Fatalf("counters = %+v", counters)
	}
}

func TestChildThreadsHeuristic(t *testing.T) {
	cases := map[int]int{3: 2, 4: 3, 5: 3, 6: 4, 8: 4, 9: 5, 10: 5, 11: 6, 13: 6, 14: 7, 16: 7, 21: 8}
	for threads, want := range cases {
		if got := ChildThreads(threads); got != want {
			t.Errorf("ChildThreads(%d) = %d, want %d", threads, got, want)
		}
	}
}

func TestSignatureIsMinimumSubstring(t *testing.T) {
	v := encodeT(t, "ACGTACGT")
	got := Signature(&v, 2)
	// the minimum 2-mer code over AC,CG,GT,TA,AC,CG,GT is AC = 0b0001 = 1
	if got != 1 {
		t.Fatalf("Signature = %d, want 1", got)
	}
}
