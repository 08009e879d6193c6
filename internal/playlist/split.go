package playlist

import (
	"context"
	"fmt"
	"net/http"
)

// ChunkSize is the fixed byte-range chunk size used to split a single,
// unranged segment stream ahead of scheduling.
const ChunkSize = 5 * 1024 * 1024 // 5 MiB

// SplitSingleSegment replaces m.Segments (when it has exactly one,
// range-less segment) with one entry per 5 MiB chunk of the resource's
// total content length, discovered via an HTTP HEAD request.
func SplitSingleSegment(ctx context.Context, client *http.Client, m *MediaPlaylist) error {
	if len(m.Segments) != 1 || m.Segments[0].Range != nil {
		return nil
	}
	original := m.Segments[0]

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, original.URI, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("playlist: HEAD %s: %w", original.URI, err)
	}
	resp.Body.Close()

	length := resp.ContentLength
	if length <= 0 {
		// Nothing to split; keep the single segment as-is.
		return nil
	}

	chunks := (length + ChunkSize - 1) / ChunkSize
	segments := make([]*Segment, 0, chunks)
	for i := int64(0); i < chunks; i++ {
		start := i * ChunkSize
		end := start + ChunkSize - 1
		if end > length-1 {
			end = length - 1
		}
		segments = append(segments, &Segment{
			Index:    int(i),
			URI:      original.URI,
			Duration: original.Duration / float64(chunks),
			Range:    &ByteRange{Start: start, End: end},
			Map:      original.Map,
			Key:      original.Key,
		})
	}
	m.Segments = segments
	return nil
}
