package kmer

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []string{"A", "ACGT", "ACGTACGTAC", "TTTTTTTTTTTTTTTT", "GATTACA"}
	for _, seq := range cases {
		v, err := Encode(seq, Canonical)
		if err != nil {
			t.Fatalf("Encode(%q): %v", seq, err)
		}
		if v.K != len(seq) {
			t.Fatalf("Encode(%q): K = %d, want %d", seq, v.K, len(seq))
		}
		got := v.Decode(Canonical)
		if got != seq {
			t.Fatalf("Decode(Encode(%q)) = %q", seq, got)
		}
	}
}

func TestEncodeRejectsBadSymbol(t *testing.T) {
	if _, err := Encode("ACGN", Canonical); err == nil {
		t.Fatalf("expected error for N symbol")
	}
}

func TestByteLen(t *testing.T) {
	for k, want := range map[int]int{1: 1, 4: 1, 5: 2, 32: 8, 33: 9, 256: 64} {
		if got := ByteLen(k); got != want {
			t.Errorf("ByteLen(%d) = %d, want %d", k, got, want)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	a, _ := Encode("AAAA", Canonical)
	b, _ := Encode("AAAC", Canonical)
	c, _ := Encode("AAAC", Canonical)
	if !Less(&a, &b) {
		t.Fatalf("expected AAAA < AAAC")
	}
	if !Equal(&b, &c) {
		t.Fatalf("expected AAAC == AAAC")
	}
	if Compare(&b, &a) <= 0 {
		t.Fatalf("expected AAAC > AAAA")
	}
}

func TestPrefixSuffixComposition(t *testing.T) {
	full, err := Encode("ACGTACGT", Canonical)
	if err != nil {
		t.Fatal(err)
	}

	const prefixBases = 3 // deliberately not byte-aligned
	prefixVal := full.PrefixValue(prefixBases)

	suffixBases := full.K - prefixBases
	suffixBytes := make([]byte, ByteLen(suffixBases))
	for i := 0; i < suffixBases; i++ {
		code := full.BaseCode(prefixBases + i)
		byteIdx := i / 4
		shift := uint(6 - 2*(i%4))
		suffixBytes[byteIdx] |= code << shift
	}

	var rebuilt Kmer
	rebuilt.Reset(full.K)
	rebuilt.SetPrefixBases(prefixBases, prefixVal)
	rebuilt.SetSuffixBases(prefixBases, suffixBases, suffixBytes)

	if !Equal(&full, &rebuilt) {
		t.Fatalf("rebuilt %q != original %q", rebuilt.Decode(Canonical), full.Decode(Canonical))
	}
}

func TestIncrementAtOffset(t *testing.T) {
	v, _ := Encode("AAAA", Canonical) // all-zero bytes
	v.IncrementAtOffset(0)
	if v.B[0] != 1 {
		t.Fatalf("IncrementAtOffset: B[0] = %d, want 1", v.B[0])
	}

	v2 := Kmer{K: 16}
	v2.B[0] = 0xFF
	v2.B[1] = 0xFF
	v2.IncrementAtOffset(1)
	if v2.B[0] != 0 || v2.B[1] != 0 {
		t.Fatalf("IncrementAtOffset carry failed: %x %x", v2.B[0], v2.B[1])
	}
}
