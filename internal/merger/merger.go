// Package merger implements an order-preserving buffered writer: segments
// may arrive in any order from a parallel scheduler, but bytes must land in
// the output sink in strictly ascending segment-index order with no gaps.
package merger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Sink is the destination a Merger writes ordered bytes to.
type Sink interface {
	io.Writer
}

// Merger accepts (index, bytes) writes for 0 <= index < N arriving in any
// order and writes them to its Sink in ascending index order.
type Merger struct {
	mu sync.Mutex

	n          int
	nextWrite  int
	buffered   map[int][]byte
	sink       Sink
	storedBytes   int64
	flushedBytes  int64
	indexed       int64
}

// New creates a Merger for exactly n segments, writing to sink.
func New(n int, sink Sink) *Merger {
	return &Merger{n: n, buffered: make(map[int][]byte), sink: sink}
}

// NewFile creates a Merger that writes sequentially to a newly created file
// at path — the "single-file" sink mode.
func NewFile(n int, path string) (*Merger, *os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("merger: creating output file: %w", err)
	}
	return New(n, f), f, nil
}

// Write accepts the bytes for segment index i. If i is the next index the
// merger is waiting for, it is written immediately and the merger then
// drains every subsequent index already buffered. Otherwise the bytes are
// parked until their turn comes.
func (m *Merger) Write(i int, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i == m.nextWrite {
		if err := m.writeNow(buf); err != nil {
			return err
		}
		m.nextWrite++
		m.indexed++
		return m.drainLocked()
	}

	cp := make([]byte, len(buf))
	copy(cp, buf)
	m.buffered[i] = cp
	m.storedBytes += int64(len(buf))
	m.indexed++
	return nil
}

func (m *Merger) writeNow(buf []byte) error {
	if _, err := m.sink.Write(buf); err != nil {
		return fmt.Errorf("merger: writing segment: %w", err)
	}
	size := int64(len(buf))
	m.storedBytes += size
	m.flushedBytes += size
	return nil
}

// Flush drains every buffered index starting at the current write cursor,
// for as long as a contiguous run exists.
func (m *Merger) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drainLocked()
}

func (m *Merger) drainLocked() error {
	for m.nextWrite < m.n {
		buf, ok := m.buffered[m.nextWrite]
		if !ok {
			break
		}
		if err := m.writeNow(buf); err != nil {
			return err
		}
		delete(m.buffered, m.nextWrite)
		m.nextWrite++
	}
	return nil
}

// Position returns the next index this merger is waiting to write.
func (m *Merger) Position() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextWrite
}

// Buffered reports whether the stream is fully drained: every index has
// been written and nothing remains parked.
func (m *Merger) Buffered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffered) == 0 && m.nextWrite >= m.n
}

// Stored returns the total number of bytes accepted so far (written or
// still buffered).
func (m *Merger) Stored() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storedBytes
}

// Flushed returns the number of bytes actually written to the sink so far.
func (m *Merger) Flushed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushedBytes
}

// Estimate extrapolates the total output size as (stored / indexed) * N.
func (m *Merger) Estimate() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexed == 0 {
		return 0
	}
	return (m.storedBytes / m.indexed) * int64(m.n)
}
