// Package scheduler downloads one stream's segments with a fixed worker
// pool, feeding results into an internal/merger.Merger in whatever order
// they complete while the merger serializes them back into index order.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mohaanymo/veld/internal/merger"
	"github.com/mohaanymo/veld/internal/playlist"
	"github.com/mohaanymo/veld/internal/verr"
)

// DefaultWorkers is the worker pool size used when none is configured.
const DefaultWorkers = 5

// MaxWorkers is the upper bound on pool size.
const MaxWorkers = 16

// ProgressUpdate reports one segment's outcome to the caller's progress UI.
type ProgressUpdate struct {
	StreamID     string
	SegmentIndex int
	BytesLoaded  int64
	Completed    bool
	Err          error
}

// KeyFetcher resolves a segment's key into raw key bytes, called once per
// key change (not once per segment) by the scheduling loop.
type KeyFetcher func(ctx context.Context, key *playlist.Key) ([]byte, error)

// DecryptFunc decrypts one segment's body given its resolved key bytes and
// the (possibly nil) init-segment bytes the track's segments share, so a
// CENC DecryptFunc can open a keyed session from mapBytes once and apply it
// to every body. A nil DecryptFunc or nil keyBytes means the segment is
// plaintext.
type DecryptFunc func(seg *playlist.Segment, keyBytes []byte, mapBytes []byte, body []byte) ([]byte, error)

// Scheduler downloads a single MediaPlaylist's segments.
type Scheduler struct {
	Client      *http.Client
	Workers     int
	Retries     int
	Progress    chan<- ProgressUpdate
	KeyFetcher  KeyFetcher
	DecryptFunc DecryptFunc
}

// New returns a Scheduler with the standard defaults (5 workers, 15 retries).
func New(client *http.Client, progress chan<- ProgressUpdate) *Scheduler {
	return &Scheduler{
		Client:   client,
		Workers:  DefaultWorkers,
		Retries:  15,
		Progress: progress,
	}
}

type segmentTask struct {
	seg      *playlist.Segment
	mapBytes []byte
	keyBytes []byte
}

// DownloadStream downloads every segment of stream into sink, in parallel
// up to s.Workers at a time, failing the whole stream if any segment
// ultimately fails after retries (no partial-success tolerance).
func (s *Scheduler) DownloadStream(ctx context.Context, stream *playlist.MediaPlaylist, sink merger.Sink) error {
	n := len(stream.Segments)
	if n == 0 {
		return fmt.Errorf("scheduler: stream %s has no segments", stream.ID)
	}

	// The init segment (if any) is written to sink exactly once, ahead of
	// every media segment, rather than re-attached to each one: segments
	// all reference the same init map, and a muxable output file needs
	// exactly one moov/ftyp, not one per fragment.
	mapCache := map[string][]byte{}
	if first := stream.Segments[0]; first.Map != nil {
		mapBytes, err := s.fetchMap(ctx, first.Map)
		if err != nil {
			return err
		}
		if _, err := sink.Write(mapBytes); err != nil {
			return fmt.Errorf("scheduler: writing init segment: %w", err)
		}
		mapCache[first.Map.URI] = mapBytes
	}

	m := merger.New(n, sink)

	workers := s.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan segmentTask, workers*2)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once
	setErr := func(err error) { errOnce.Do(func() { firstErr = err }) }

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				if err := s.runTask(ctx, stream.ID, t, m); err != nil {
					setErr(err)
					cancel()
					return
				}
			}
		}()
	}

	// Main thread: resolve Map/Key ahead of dispatch, inheriting the
	// previous segment's map/key until the manifest replaces it, fetching
	// key bytes only once per key change and caching init-map bytes once
	// per distinct map.
	var lastKey *playlist.Key
	var lastKeyBytes []byte

dispatch:
	for _, seg := range stream.Segments {
		var mapBytes []byte
		if seg.Map != nil {
			cached, ok := mapCache[seg.Map.URI]
			if !ok {
				data, err := s.fetchMap(ctx, seg.Map)
				if err != nil {
					cancel()
					setErr(err)
					break dispatch
				}
				mapCache[seg.Map.URI] = data
				cached = data
			}
			mapBytes = cached
		}

		var keyBytes []byte
		if seg.Key != nil {
			if seg.Key != lastKey {
				kb, err := s.resolveKey(ctx, seg.Key)
				if err != nil {
					cancel()
					setErr(err)
					break dispatch
				}
				lastKey = seg.Key
				lastKeyBytes = kb
			}
			keyBytes = lastKeyBytes
		}

		select {
		case tasks <- segmentTask{seg: seg, mapBytes: mapBytes, keyBytes: keyBytes}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := m.Flush(); err != nil {
		return fmt.Errorf("scheduler: final flush: %w", err)
	}
	if !m.Buffered() {
		return fmt.Errorf("scheduler: stream %s incomplete: %d/%d segments written", stream.ID, m.Position(), n)
	}
	return nil
}

func (s *Scheduler) resolveKey(ctx context.Context, key *playlist.Key) ([]byte, error) {
	if s.KeyFetcher == nil {
		return nil, nil
	}
	return s.KeyFetcher(ctx, key)
}

func (s *Scheduler) fetchMap(ctx context.Context, m *playlist.InitMap) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URI, nil)
	if err != nil {
		return nil, err
	}
	if m.Range != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", m.Range.Start, m.Range.End))
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scheduler: fetching init map %s: %w", m.URI, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("scheduler: init map %s returned status %d", m.URI, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *Scheduler) runTask(ctx context.Context, streamID string, t segmentTask, m *merger.Merger) error {
	retries := s.Retries
	if retries <= 0 {
		retries = 15
	}

	var lastErr error
	var body []byte

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(min(attempt-1, 6))) * 250 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		data, err := s.doRequest(ctx, t.seg)
		if err == nil {
			body = data
			lastErr = nil
			break
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
	}

	if lastErr != nil {
		netErr := &verr.NetworkError{URL: t.seg.URI, Transient: isTransient(lastErr), Err: lastErr}
		s.sendProgress(streamID, t.seg.Index, 0, netErr)
		return fmt.Errorf("scheduler: segment %d: %w", t.seg.Index, netErr)
	}

	out := body
	if s.DecryptFunc != nil && t.keyBytes != nil {
		decrypted, err := s.DecryptFunc(t.seg, t.keyBytes, t.mapBytes, body)
		if err != nil {
			decErr := &verr.DecryptionError{KID: t.seg.Key.DefaultKID, Err: err}
			s.sendProgress(streamID, t.seg.Index, 0, decErr)
			return fmt.Errorf("scheduler: decrypting segment %d: %w", t.seg.Index, decErr)
		}
		out = decrypted
	}

	if err := m.Write(t.seg.Index, out); err != nil {
		s.sendProgress(streamID, t.seg.Index, 0, err)
		return fmt.Errorf("scheduler: writing segment %d: %w", t.seg.Index, err)
	}
	if err := m.Flush(); err != nil {
		return fmt.Errorf("scheduler: flush after segment %d: %w", t.seg.Index, err)
	}

	s.sendProgress(streamID, t.seg.Index, int64(len(out)), nil)
	return nil
}

func (s *Scheduler) doRequest(ctx context.Context, seg *playlist.Segment) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seg.URI, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if seg.Range != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", seg.Range.Start, seg.Range.End))
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, httpStatusError{resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

type httpStatusError struct{ code int }

func (e httpStatusError) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

// isTransient reports whether err is worth retrying: network-level errors
// (timeouts, connection resets) or one of the retryable HTTP statuses
// (408, 429, 503, 504). Any other 4xx/5xx fails fast.
func isTransient(err error) bool {
	if se, ok := err.(httpStatusError); ok {
		switch se.code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	// network errors (context deadline, connection refused/reset, DNS) have
	// no distinguished type from net/http's client — treat anything that
	// isn't a classified HTTP status as transient and retryable.
	return true
}

func (s *Scheduler) sendProgress(streamID string, index int, bytes int64, err error) {
	if s.Progress == nil {
		return
	}
	select {
	case s.Progress <- ProgressUpdate{StreamID: streamID, SegmentIndex: index, BytesLoaded: bytes, Completed: err == nil, Err: err}:
	default:
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
