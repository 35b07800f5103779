package sink

import (
	"os"
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

func TestDumpWriterCutoffAndClamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.txt")
	w, err := NewDumpWriter(path, kmer.Canonical, common.CutoffRange{Min: 2, Max: 100}, 5)
	if err != nil {
		t.Fatalf("NewDumpWriter: %v", err)
	}
	b := bundle.New(bundle.DefaultCapacity)
	b.Append(bundle.Record{Kmer: encodeT(t, "AAAA"), Counter: 1})  // below cutoff, dropped
	b.Append(bundle.Record{Kmer: encodeT(t, "ACGT"), Counter: 5})  // kept as-is
	b.Append(bundle.Record{Kmer: encodeT(t, "TTTT"), Counter: 50}) // clamped to 5
	if !w.Push(b) {
		t.Fatal("Push failed")
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "ACGT\t5\nTTTT\t5\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHistogramWriterS6(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hist.txt")
	w, err := NewHistogramWriter(path, common.CutoffRange{Min: 1, Max: 3})
	if err != nil {
		t.Fatalf("NewHistogramWriter: %v", err)
	}
	b := bundle.New(bundle.DefaultCapacity)
	for _, seq := range []string{"AAAA", "CCCC"} {
		b.Append(bundle.Record{Kmer: encodeT(t, seq), Counter: 1})
	}
	b.Append(bundle.Record{Kmer: encodeT(t, "GGGG"), Counter: 2})
	b.Append(bundle.Record{Kmer: encodeT(t, "TTTT"), Counter: 3})
	w.Push(b)
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "1\t2\n2\t1\n3\t1\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHistogramWriterRejectsUnboundedCutoff(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hist.txt")
	if _, err := NewHistogramWriter(path, common.DefaultCutoff()); err == nil {
		t.Fatal("expected an error for an unbounded cutoff_max")
	}
}
