package bundle

import (
	"sync"
	"testing"
	"time"

	"github.com/kmerset/kmertools/internal/kmer"
)

func mustKmer(t *testing.T, seq string) kmer.Kmer {
	t.Helper()
	v, err := kmer.Encode(seq, kmer.Canonical)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestBundleAppendPop(t *testing.T) {
	b := New(2)
	if !b.Empty() || b.Full() {
		t.Fatalf("new bundle should be empty and not full")
	}
	b.Append(Record{Kmer: mustKmer(t, "AAAA"), Counter: 1})
	b.Append(Record{Kmer: mustKmer(t, "ACGT"), Counter: 2})
	if !b.Full() {
		t.Fatalf("expected bundle to be full after 2 appends of cap 2")
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	r := b.Pop()
	if r.Counter != 1 {
		t.Fatalf("first pop counter = %d, want 1", r.Counter)
	}
	r = b.Pop()
	if r.Counter != 2 {
		t.Fatalf("second pop counter = %d, want 2", r.Counter)
	}
	if !b.Empty() {
		t.Fatalf("expected empty after draining all records")
	}
}

func TestQueuePushPopClose(t *testing.T) {
	q := NewQueue(1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b := New(4)
		b.Append(Record{Counter: 42})
		if !q.Push(b) {
			t.Error("Push should succeed before Close")
		}
		q.Close()
	}()

	got, ok := q.Pop()
	if !ok || got.Records[0].Counter != 42 {
		t.Fatalf("Pop = %v, %v; want bundle with counter 42", got, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("Pop after Close+drain should report ok=false")
	}
	wg.Wait()
}

func TestQueueAbortUnblocksPop(t *testing.T) {
	q := NewQueue(0)
	done := make(chan struct{})
	go func() {
		if _, ok := q.Pop(); ok {
			t.Error("Pop after Abort should report ok=false")
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Abort()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Abort")
	}
	if !q.Aborted() {
		t.Fatalf("Aborted() should report true")
	}
}

func TestQueueAbortUnblocksPush(t *testing.T) {
	q := NewQueue(0)
	done := make(chan struct{})
	go func() {
		b := New(1)
		if q.Push(b) {
			t.Error("Push after Abort should report false")
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Abort()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after Abort")
	}
}

func TestByteQueueCloseAndAbort(t *testing.T) {
	q := NewByteQueue(1)
	if !q.Push([]byte("abc")) {
		t.Fatal("Push should succeed")
	}
	q.Close()
	buf, ok := q.Pop()
	if !ok || string(buf) != "abc" {
		t.Fatalf("Pop = %q, %v", buf, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop after drain should report false")
	}

	q2 := NewByteQueue(0)
	q2.Abort()
	if q2.Push([]byte("x")) {
		t.Fatal("Push after Abort should report false")
	}
}
