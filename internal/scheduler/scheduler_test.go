package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mohaanymo/veld/internal/playlist"
)

func newTestStream(srv *httptest.Server, n int) *playlist.MediaPlaylist {
	mp := &playlist.MediaPlaylist{ID: "v0"}
	for i := 0; i < n; i++ {
		mp.Segments = append(mp.Segments, &playlist.Segment{
			Index: i,
			URI:   fmt.Sprintf("%s/seg/%d", srv.URL, i),
		})
	}
	return mp
}

func TestDownloadStreamWritesSegmentsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var idx int
		fmt.Sscanf(r.URL.Path, "/seg/%d", &idx)
		fmt.Fprintf(w, "seg%d", idx)
	}))
	defer srv.Close()

	stream := newTestStream(srv, 10)
	var sink bytes.Buffer
	s := New(srv.Client(), nil)
	s.Workers = 4

	if err := s.DownloadStream(context.Background(), stream, &sink); err != nil {
		t.Fatalf("DownloadStream: %v", err)
	}

	want := ""
	for i := 0; i < 10; i++ {
		want += fmt.Sprintf("seg%d", i)
	}
	if sink.String() != want {
		t.Fatalf("got %q, want %q (out-of-order or missing write)", sink.String(), want)
	}
}

func TestDownloadStreamFailsFastOnNon404Error(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	stream := newTestStream(srv, 3)
	var sink bytes.Buffer
	s := New(srv.Client(), nil)
	s.Retries = 5

	err := s.DownloadStream(context.Background(), stream, &sink)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	// 403 is not in the transient retry list, so each failing segment should
	// only be attempted once before the pool cancels the rest.
	if got := atomic.LoadInt64(&hits); got > 3 {
		t.Fatalf("got %d requests, want at most 3 (no retry on 403)", got)
	}
}

func TestDownloadStreamRetriesTransientStatus(t *testing.T) {
	var attempts int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	stream := newTestStream(srv, 1)
	var sink bytes.Buffer
	s := New(srv.Client(), nil)
	s.Retries = 5

	if err := s.DownloadStream(context.Background(), stream, &sink); err != nil {
		t.Fatalf("DownloadStream: %v", err)
	}
	if sink.String() != "ok" {
		t.Fatalf("got %q, want %q", sink.String(), "ok")
	}
	if atomic.LoadInt64(&attempts) < 3 {
		t.Fatalf("got %d attempts, want at least 3 (503 should retry)", attempts)
	}
}

func TestDownloadStreamNoSegmentsErrors(t *testing.T) {
	s := New(http.DefaultClient, nil)
	var sink bytes.Buffer
	err := s.DownloadStream(context.Background(), &playlist.MediaPlaylist{ID: "empty"}, &sink)
	if err == nil {
		t.Fatal("expected error for stream with no segments")
	}
}

func TestFetchMapAndKeyResolvedOncePerChange(t *testing.T) {
	var mapHits, keyHits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/init.mp4":
			atomic.AddInt64(&mapHits, 1)
			fmt.Fprint(w, "INIT")
		default:
			var idx int
			fmt.Sscanf(r.URL.Path, "/seg/%d", &idx)
			fmt.Fprintf(w, "S%d", idx)
		}
	}))
	defer srv.Close()

	key := &playlist.Key{Method: "AES-128", URI: srv.URL + "/key"}
	mp := &playlist.MediaPlaylist{ID: "v0"}
	for i := 0; i < 4; i++ {
		mp.Segments = append(mp.Segments, &playlist.Segment{
			Index: i,
			URI:   fmt.Sprintf("%s/seg/%d", srv.URL, i),
			Map:   &playlist.InitMap{URI: srv.URL + "/init.mp4"},
			Key:   key,
		})
	}

	s := New(srv.Client(), nil)
	s.KeyFetcher = func(ctx context.Context, k *playlist.Key) ([]byte, error) {
		atomic.AddInt64(&keyHits, 1)
		return []byte("KEYBYTES"), nil
	}
	s.DecryptFunc = func(seg *playlist.Segment, keyBytes []byte, mapBytes []byte, body []byte) ([]byte, error) {
		return body, nil
	}

	var sink bytes.Buffer
	if err := s.DownloadStream(context.Background(), mp, &sink); err != nil {
		t.Fatalf("DownloadStream: %v", err)
	}
	if got := atomic.LoadInt64(&mapHits); got != 1 {
		t.Fatalf("init map fetched %d times, want 1 (cached across segments)", got)
	}
	if got := atomic.LoadInt64(&keyHits); got != 1 {
		t.Fatalf("key resolved %d times, want 1 (same key across all segments)", got)
	}
}
