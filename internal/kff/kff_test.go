package kff

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

func writeAndRead(t *testing.T, seqs map[string]uint32, k, counterSize int) []bundle.Record {
	t.Helper()
	keys := make([]string, 0, len(seqs))
	for s := range seqs {
		keys = append(keys, s)
	}
	sort.Strings(keys)

	dir := t.TempDir()
	path := filepath.Join(dir, "db.kff")
	w, err := NewWriter(path, WriterOptions{
		K: k, CounterSize: counterSize, CutoffMin: 1, CutoffMax: ^uint32(0), Canonical: true,
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	b := bundle.New(bundle.DefaultCapacity)
	for _, s := range keys {
		b.Append(bundle.Record{Kmer: encodeT(t, s), Counter: seqs[s]})
	}
	w.Push(b)
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := Open(path, ReaderOptions{Cutoff: common.DefaultCutoff(), Threads: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.K() != k {
		t.Fatalf("K() = %d, want %d", r.K(), k)
	}

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

func TestRoundTripOrderAndCounters(t *testing.T) {
	seqs := map[string]uint32{
		"AAAAAAAA": 1, "AAAACCCC": 2, "CCCCCCCC": 3, "GGGGGGGG": 4, "TTTTTTTT": 5,
	}
	got := writeAndRead(t, seqs, 8, 4)
	if len(got) != len(seqs) {
		t.Fatalf("got %d records, want %d", len(got), len(seqs))
	}
	for i := range got {
		if i > 0 && !kmer.Less(&got[i-1].Kmer, &got[i].Kmer) {
			t.Fatalf("output not strictly ascending at index %d", i)
		}
	}
	counters := map[string]uint32{}
	for _, r := range got {
		counters[r.Kmer.Decode(kmer.Canonical)] = r.Counter
	}
	for seq, want := range seqs {
		if counters[seq] != want {
			t.Fatalf("counter for %s = %d, want %d", seq, counters[seq], want)
		}
	}
}

func TestCutoffFilterOnRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.kff")
	w, err := NewWriter(path, WriterOptions{K: 4, CounterSize: 2, CutoffMin: 1, CutoffMax: ^uint32(0), Canonical: true})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	b := bundle.New(bundle.DefaultCapacity)
	b.Append(bundle.Record{Kmer: encodeT(t, "AAAA"), Counter: 1})
	b.Append(bundle.Record{Kmer: encodeT(t, "CCCC"), Counter: 10})
	w.Push(b)
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := Open(path, ReaderOptions{Cutoff: common.CutoffRange{Min: 5, Max: 100}})
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
	if len(out) != 1 || out[0].Counter != 10 {
		t.Fatalf("got %+v, want single record with counter 10", out)
	}
}

func TestEmptyDatabaseYieldsNoRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.kff")
	w, err := NewWriter(path, WriterOptions{K: 4, CounterSize: 1, CutoffMin: 1, CutoffMax: ^uint32(0)})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	r, err := Open(path, ReaderOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if _, ok := r.NextBundle(); ok {
		t.Fatal("expected no bundles from an empty database")
	}
}
