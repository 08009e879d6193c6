package merger

import (
	"bytes"
	"math/rand"
	"testing"
)

// TestOrderPreservedForAnyPermutation checks that for any permutation of
// (i, random_bytes(i)) the output equals the bytes written in ascending
// index order, and the stream reports fully buffered.
func TestOrderPreservedForAnyPermutation(t *testing.T) {
	const n = 25
	rng := rand.New(rand.NewSource(1))

	chunks := make([][]byte, n)
	for i := range chunks {
		size := 1 + rng.Intn(50)
		b := make([]byte, size)
		rng.Read(b)
		chunks[i] = b
	}

	order := rng.Perm(n)

	var out bytes.Buffer
	m := New(n, &out)
	for _, i := range order {
		if err := m.Write(i, chunks[i]); err != nil {
			t.Fatalf("write(%d): %v", i, err)
		}
	}
	if err := m.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if !m.Buffered() {
		t.Fatalf("expected Buffered() == true after full drain")
	}

	var want bytes.Buffer
	for i := 0; i < n; i++ {
		want.Write(chunks[i])
	}
	if !bytes.Equal(out.Bytes(), want.Bytes()) {
		t.Fatalf("output mismatch: got %d bytes, want %d bytes", out.Len(), want.Len())
	}
}

// TestSafetyInvariantsHoldAfterAnyPrefix checks that after any prefix of
// operations, stored >= flushed and next_write <= N.
func TestSafetyInvariantsHoldAfterAnyPrefix(t *testing.T) {
	const n = 10
	rng := rand.New(rand.NewSource(2))
	order := rng.Perm(n)

	var out bytes.Buffer
	m := New(n, &out)

	for k, i := range order {
		b := []byte{byte(i), byte(i + 1)}
		if err := m.Write(i, b); err != nil {
			t.Fatalf("write(%d): %v", i, err)
		}
		if m.Stored() < m.Flushed() {
			t.Fatalf("after %d writes: stored %d < flushed %d", k+1, m.Stored(), m.Flushed())
		}
		if m.Position() > n {
			t.Fatalf("after %d writes: next_write %d > n %d", k+1, m.Position(), n)
		}
	}
}

func TestWriteOutOfOrderBuffersUntilContiguous(t *testing.T) {
	var out bytes.Buffer
	m := New(3, &out)

	if err := m.Write(1, []byte("b")); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Fatalf("segment 1 should be buffered, not written yet")
	}
	if m.Buffered() {
		t.Fatalf("stream should not be complete yet")
	}

	if err := m.Write(0, []byte("a")); err != nil {
		t.Fatal(err)
	}
	if out.String() != "ab" {
		t.Fatalf("got %q, want %q", out.String(), "ab")
	}

	if err := m.Write(2, []byte("c")); err != nil {
		t.Fatal(err)
	}
	if out.String() != "abc" {
		t.Fatalf("got %q, want %q", out.String(), "abc")
	}
	if !m.Buffered() {
		t.Fatalf("expected stream complete")
	}
}

func TestEstimateExtrapolatesFromIndexedAverage(t *testing.T) {
	var out bytes.Buffer
	m := New(4, &out)
	_ = m.Write(0, []byte("aaaa"))
	if got, want := m.Estimate(), int64(16); got != want {
		t.Fatalf("estimate = %d, want %d", got, want)
	}
}
