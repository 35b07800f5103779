package kmc1

import (
	"path/filepath"
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

func writeDatabase(t *testing.T, dir string, k, counterSize, prefixLen int, records []bundle.Record) (string, string) {
	t.Helper()
	prefixPath := filepath.Join(dir, "db.kmc_pre")
	suffixPath := filepath.Join(dir, "db.kmc_suf")

	w, err := NewWriter(prefixPath, suffixPath, WriterOptions{
		K:           k,
		CounterSize: counterSize,
		PrefixLen:   prefixLen,
		CutoffMin:   1,
		CutoffMax:   ^uint32(0),
		Canonical:   true,
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	b := bundle.New(bundle.DefaultCapacity)
	for _, r := range records {
		b.Append(r)
	}
	w.Push(b)
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return prefixPath, suffixPath
}

func readAll(t *testing.T, prefixPath, suffixPath string) []bundle.Record {
	t.Helper()
	r, err := Open(prefixPath, suffixPath, ReaderOptions{Cutoff: common.DefaultCutoff()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var out []bundle.Record
	for {
		b, ok := r.NextBundle()
		if !ok {
			break
		}
		for !b.Empty() {
			out = append(out, b.Pop())
		}
	}
	if err := r.Err(); err != nil {
		t.Fatalf("reader error: %v", err)
	}
	return out
}

func TestRoundTripByteAlignedPrefix(t *testing.T) {
	dir := t.TempDir()
	recs := []bundle.Record{
		{Kmer: encodeT(t, "AAAA"), Counter: 3},
		{Kmer: encodeT(t, "AAAC"), Counter: 1},
		{Kmer: encodeT(t, "ACGT"), Counter: 7},
		{Kmer: encodeT(t, "TTTT"), Counter: 2},
	}
	prefixPath, suffixPath := writeDatabase(t, dir, 4, 4, 4, recs)
	got := readAll(t, prefixPath, suffixPath)

	if len(got) != len(recs) {
		t.Fatalf("got %d records, want %d", len(got), len(recs))
	}
	for i, r := range got {
		if !kmer.Equal(&r.Kmer, &recs[i].Kmer) || r.Counter != recs[i].Counter {
			t.Errorf("record %d = (%s,%d), want (%s,%d)", i,
				r.Kmer.Decode(kmer.Canonical), r.Counter,
				recs[i].Kmer.Decode(kmer.Canonical), recs[i].Counter)
		}
	}
}

func TestRoundTripNonByteAlignedPrefix(t *testing.T) {
	dir := t.TempDir()
	// k=6, p=2: the 2-base prefix ends mid-byte, and (k-p)=4 still
	// satisfies the (k-p)%4==0 invariant.
	recs := []bundle.Record{
		{Kmer: encodeT(t, "AAAAAA"), Counter: 1},
		{Kmer: encodeT(t, "AAACGT"), Counter: 5},
		{Kmer: encodeT(t, "CCACGT"), Counter: 9},
		{Kmer: encodeT(t, "TTTTTT"), Counter: 2},
	}
	prefixPath, suffixPath := writeDatabase(t, dir, 6, 4, 2, recs)
	got := readAll(t, prefixPath, suffixPath)

	if len(got) != len(recs) {
		t.Fatalf("got %d records, want %d", len(got), len(recs))
	}
	for i, r := range got {
		if !kmer.Equal(&r.Kmer, &recs[i].Kmer) || r.Counter != recs[i].Counter {
			t.Errorf("record %d = (%s,%d), want (%s,%d)", i,
				r.Kmer.Decode(kmer.Canonical), r.Counter,
				recs[i].Kmer.Decode(kmer.Canonical), recs[i].Counter)
		}
	}
}

func TestCutoffFilterOnRead(t *testing.T) {
	dir := t.TempDir()
	recs := []bundle.Record{
		{Kmer: encodeT(t, "AAAA"), Counter: 1},
		{Kmer: encodeT(t, "ACGT"), Counter: 5},
	}
	prefixPath, suffixPath := writeDatabase(t, dir, 4, 4, 4, recs)

	r, err := Open(prefixPath, suffixPath, ReaderOptions{Cutoff: common.CutoffRange{Min: 2, Max: ^uint32(0)}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var got []bundle.Record
	for {
		b, ok := r.NextBundle()
		if !ok {
			break
		}
		for !b.Empty() {
			got = append(got, b.Pop())
		}
	}
	if len(got) != 1 || got[0].Counter != 5 {
		t.Fatalf("got %+v, want single record with counter 5", got)
	}
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	recs := []bundle.Record{
		{Kmer: encodeT(t, "AAAA"), Counter: 3},
		{Kmer: encodeT(t, "ACGT"), Counter: 7},
		{Kmer: encodeT(t, "TTTT"), Counter: 2},
	}
	prefixPath, suffixPath := writeDatabase(t, dir, 4, 4, 4, recs)

	r, err := Open(prefixPath, suffixPath, ReaderOptions{Cutoff: common.DefaultCutoff()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	for {
		b, ok := r.NextBundle()
		if !ok {
			break
		}
		b.Head = b.Tail
	}

	counter, found, err := r.Lookup(encodeT(t, "ACGT"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found || counter != 7 {
		t.Fatalf("Lookup(ACGT) = %d, %v, want 7, true", counter, found)
	}

	_, found, err = r.Lookup(encodeT(t, "CCCC"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found {
		t.Fatalf("Lookup(CCCC) should report not found")
	}
}

func TestChoosePrefixLenSatisfiesAlignment(t *testing.T) {
	for k := 1; k <= 32; k++ {
		p := ChoosePrefixLen(k, 1000)
		if (k-p)%4 != 0 {
			t.Errorf("ChoosePrefixLen(%d) = %d, violates (k-p)%%4==0", k, p)
		}
	}
}
