package veld

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mohaanymo/veld/internal/config"
	"github.com/mohaanymo/veld/internal/playlist"
	"github.com/mohaanymo/veld/internal/scheduler"
)

func TestNewAppliesOptions(t *testing.T) {
	d, err := New(
		WithURL("https://example.com/master.m3u8"),
		WithFileName("out.mp4"),
		WithThreads(9),
		WithQuality("1080p"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if d.cfg.BaseURL != "https://example.com/master.m3u8" {
		t.Errorf("BaseURL = %q", d.cfg.BaseURL)
	}
	if d.cfg.Threads != 9 {
		t.Errorf("Threads = %d, want 9", d.cfg.Threads)
	}
}

func TestNewRejectsMissingURL(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("expected error for missing URL")
	}
}

func TestParseKeySetColonPairs(t *testing.T) {
	kid := "00112233445566778899aabbccddeeff"[:32]
	key := "ffeeddccbbaa99887766554433221100"
	ks, err := parseKeySet([]string{kid + ":" + key}, "")
	if err != nil {
		t.Fatalf("parseKeySet: %v", err)
	}
	if len(ks) != 1 {
		t.Fatalf("got %d keys, want 1", len(ks))
	}
}

func TestParseKeySetRawFileNeedsDefaultKID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	if err := os.WriteFile(path, make([]byte, 16), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := parseKeySet([]string{path}, ""); err == nil {
		t.Fatal("expected error when no default KID is available to pair a raw key file with")
	}
}

func TestParseKeySetRawFileWrongSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	if err := os.WriteFile(path, make([]byte, 10), 0644); err != nil {
		t.Fatal(err)
	}
	kid := "00112233445566778899aabbccddeeff"
	if _, err := parseKeySet([]string{path}, kid); err == nil {
		t.Fatal("expected error for a key file that isn't exactly 16 bytes")
	}
}

func TestResolveIVPrefersSegmentKeyIV(t *testing.T) {
	seg := &playlist.Segment{Index: 5, Key: &playlist.Key{IV: "0x000102030405060708090a0b0c0d0e0f"}}
	iv, err := resolveIV(seg)
	if err != nil {
		t.Fatalf("resolveIV: %v", err)
	}
	if len(iv) != 16 {
		t.Fatalf("got %d byte IV, want 16", len(iv))
	}
}

func TestResolveIVFallsBackToSequenceNumber(t *testing.T) {
	seg := &playlist.Segment{Index: 7}
	iv, err := resolveIV(seg)
	if err != nil {
		t.Fatalf("resolveIV: %v", err)
	}
	want := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 7}
	if string(iv) != string(want) {
		t.Fatalf("got %x, want %x", iv, want)
	}
}

func TestIsBoxedWebVTT(t *testing.T) {
	boxed := &playlist.MediaPlaylist{
		MediaType: playlist.MediaSubtitles,
		Codecs:    "wvtt",
		Segments:  []*playlist.Segment{{Map: &playlist.InitMap{URI: "init.mp4"}}},
	}
	if !isBoxedWebVTT(boxed) {
		t.Error("expected wvtt-in-mp4 stream to be detected as boxed WebVTT")
	}

	plain := &playlist.MediaPlaylist{
		MediaType: playlist.MediaSubtitles,
		Segments:  []*playlist.Segment{{URI: "sub.vtt"}},
	}
	if isBoxedWebVTT(plain) {
		t.Error("plain-text subtitle stream should not be treated as boxed WebVTT")
	}

	stpp := &playlist.MediaPlaylist{
		MediaType: playlist.MediaSubtitles,
		Codecs:    "stpp",
		Segments:  []*playlist.Segment{{Map: &playlist.InitMap{URI: "init.mp4"}}},
	}
	if isBoxedWebVTT(stpp) {
		t.Error("stpp (mp4-boxed TTML) should pass through, not go through the wvtt extractor")
	}
}

func TestBuildCryptoNoDecryptSkipsEncryption(t *testing.T) {
	d := &Downloader{cfg: &config.Config{NoDecrypt: true}}
	stream := &playlist.MediaPlaylist{
		Segments: []*playlist.Segment{{Key: &playlist.Key{Method: playlist.KeyAES128}}},
	}
	kf, df, err := d.buildCrypto(t.Context(), stream)
	if err != nil || kf != nil || df != nil {
		t.Fatalf("got (%v, %v, %v), want (nil, nil, nil) when NoDecrypt is set", kf, df, err)
	}
}

func TestBuildCryptoUnencryptedStreamIsNoop(t *testing.T) {
	d := &Downloader{cfg: &config.Config{}}
	stream := &playlist.MediaPlaylist{
		Segments: []*playlist.Segment{{URI: "seg0.ts"}},
	}
	kf, df, err := d.buildCrypto(t.Context(), stream)
	if err != nil || kf != nil || df != nil {
		t.Fatalf("got (%v, %v, %v), want (nil, nil, nil) for a stream with no key at all", kf, df, err)
	}
}

func TestBuildCryptoAES128ReturnsFetcherAndDecrypter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 16))
	}))
	defer srv.Close()

	d := &Downloader{cfg: &config.Config{}, client: srv.Client()}
	stream := &playlist.MediaPlaylist{
		Segments: []*playlist.Segment{{Key: &playlist.Key{Method: playlist.KeyAES128, URI: srv.URL}}},
	}
	kf, df, err := d.buildCrypto(t.Context(), stream)
	if err != nil {
		t.Fatalf("buildCrypto: %v", err)
	}
	if kf == nil || df == nil {
		t.Fatal("expected a non-nil KeyFetcher/DecryptFunc pair for AES-128")
	}
}

func TestBuildCryptoMp4DecryptWithoutKeysErrors(t *testing.T) {
	d := &Downloader{cfg: &config.Config{}, client: http.DefaultClient}
	stream := &playlist.MediaPlaylist{
		Segments: []*playlist.Segment{{Key: &playlist.Key{Method: playlist.KeyMp4Decrypt, DefaultKID: "00112233445566778899aabbccddeeff"}}},
	}
	_, _, err := d.buildCrypto(t.Context(), stream)
	if err == nil {
		t.Fatal("expected an error naming the missing --key when no keys are configured")
	}
}

func TestBuildCryptoMp4DecryptWithKeys(t *testing.T) {
	kid := "00112233445566778899aabbccddeeff"
	key := "ffeeddccbbaa99887766554433221100"
	d := &Downloader{cfg: &config.Config{Keys: []string{kid + ":" + key}}, client: http.DefaultClient}
	stream := &playlist.MediaPlaylist{
		Segments: []*playlist.Segment{{Key: &playlist.Key{Method: playlist.KeyMp4Decrypt, DefaultKID: kid}}},
	}
	kf, df, err := d.buildCrypto(t.Context(), stream)
	if err != nil {
		t.Fatalf("buildCrypto: %v", err)
	}
	if kf == nil || df == nil {
		t.Fatal("expected a non-nil KeyFetcher/DecryptFunc pair once keys are configured")
	}
}

func TestBuildCryptoSampleAESIsUnsupported(t *testing.T) {
	d := &Downloader{cfg: &config.Config{}, client: http.DefaultClient}
	stream := &playlist.MediaPlaylist{
		Segments: []*playlist.Segment{{Key: &playlist.Key{Method: playlist.KeySampleAES, DefaultKID: "00112233445566778899aabbccddeeff"}}},
	}
	kf, df, err := d.buildCrypto(t.Context(), stream)
	if err == nil {
		t.Fatal("expected plain METHOD=SAMPLE-AES to return an unsupported-key-method error, not be routed through CENC")
	}
	if kf != nil || df != nil {
		t.Fatalf("got (%v, %v), want (nil, nil) alongside the error", kf, df)
	}
}

func TestStreamAlreadyFlushedRequiresMatchingSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "v0.m4s")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	cp := scheduler.NewCheckpoint("https://example.com/master.m3u8", dir)
	if streamAlreadyFlushed(cp, "v0", path) {
		t.Error("a stream with no recorded checkpoint entry should never be treated as resumable")
	}

	cp.UpdateStream("v0", int64(len("hello")))
	if !streamAlreadyFlushed(cp, "v0", path) {
		t.Error("expected the stream to be treated as already flushed once its size matches the checkpoint")
	}

	cp.UpdateStream("v0", 999)
	if streamAlreadyFlushed(cp, "v0", path) {
		t.Error("a size mismatch against the checkpoint should force a redownload")
	}
}

func TestTmpDirNameIsStableAndDistinct(t *testing.T) {
	a := tmpDirName("/out/video.mp4")
	b := tmpDirName("/out/video.mp4")
	c := tmpDirName("/out/other.mp4")
	if a != b {
		t.Error("tmpDirName should be deterministic for the same output path")
	}
	if a == c {
		t.Error("tmpDirName should differ for different output paths")
	}
}
