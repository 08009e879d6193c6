// Package veld provides a high-performance HLS/DASH media downloader.
//
// Basic usage:
//
//	d, err := veld.New(
//		veld.WithURL("https://example.com/video.m3u8"),
//		veld.WithFileName("video.mp4"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close()
//
//	if err := d.Parse(ctx); err != nil {
//		log.Fatal(err)
//	}
//	if err := d.SelectTracks(); err != nil {
//		log.Fatal(err)
//	}
//	if err := d.Download(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Or use the convenience function:
//
//	err := veld.DownloadURL(ctx, "https://example.com/video.m3u8", "video.mp4")
package veld

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mohaanymo/veld/internal/cenc"
	"github.com/mohaanymo/veld/internal/config"
	"github.com/mohaanymo/veld/internal/discover"
	"github.com/mohaanymo/veld/internal/httpclient"
	"github.com/mohaanymo/veld/internal/logging"
	"github.com/mohaanymo/veld/internal/merger"
	"github.com/mohaanymo/veld/internal/mux"
	"github.com/mohaanymo/veld/internal/playlist"
	"github.com/mohaanymo/veld/internal/playlist/dash"
	"github.com/mohaanymo/veld/internal/playlist/hls"
	"github.com/mohaanymo/veld/internal/pssh"
	"github.com/mohaanymo/veld/internal/scheduler"
	"github.com/mohaanymo/veld/internal/selector"
	"github.com/mohaanymo/veld/internal/subtitle"
	"github.com/mohaanymo/veld/internal/verr"

	zlog "github.com/rs/zerolog"
)

// Downloader is the main API for downloading media streams.
type Downloader struct {
	cfg        *config.Config
	client     *http.Client
	master     *playlist.MasterPlaylist
	selected   []*playlist.MediaPlaylist
	progressCh chan scheduler.ProgressUpdate
}

// Option configures the downloader.
type Option func(*config.Config)

// New creates a new Downloader with the given options.
func New(opts ...Option) (*Downloader, error) {
	cfg := config.New()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := httpclient.NewWithRateLimit(httpclient.Config{
		Timeout:             cfg.Timeout,
		Headers:             cfg.Headers,
		UserAgent:           cfg.UserAgent,
		Cookie:              cfg.Cookies,
		Proxy:               cfg.Proxy,
		NoCertificateChecks: cfg.NoCertificateChecks,
	}, cfg.MaxBandwidth)

	return &Downloader{
		cfg:        cfg,
		client:     client,
		progressCh: make(chan scheduler.ProgressUpdate, 128),
	}, nil
}

// WithURL sets the stream (or page) URL to download from (required).
func WithURL(url string) Option {
	return func(c *config.Config) {
		c.BaseURL = url
	}
}

// WithFileName sets the output file name.
func WithFileName(filename string) Option {
	return func(c *config.Config) {
		c.Output = filename
	}
}

// WithDir sets the output directory.
func WithDir(dir string) Option {
	return func(c *config.Config) {
		c.Directory = dir
	}
}

// WithThreads sets the number of concurrent segment downloads per stream
// (1..16, default 5).
func WithThreads(n int) Option {
	return func(c *config.Config) {
		c.Threads = n
	}
}

// WithFormat sets the output format: "mp4", "mkv", or "ts" (default "mp4").
func WithFormat(format string) Option {
	return func(c *config.Config) {
		c.Format = format
	}
}

// WithHeaders sets custom HTTP headers for requests.
func WithHeaders(headers map[string]string) Option {
	return func(c *config.Config) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		for k, v := range headers {
			c.Headers[k] = v
		}
	}
}

// WithHeader adds a single HTTP header.
func WithHeader(key, value string) Option {
	return func(c *config.Config) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		c.Headers[key] = value
	}
}

// WithCookies sets the Cookie header sent on every request.
func WithCookies(cookies string) Option {
	return func(c *config.Config) {
		c.Cookies = cookies
	}
}

// WithTrackSelector sets a raw selector expression ("best", "1080p",
// "v:1080p+a:en", "all"), overriding WithQuality/WithPreferAudioLang for
// callers that want the richer expression syntax instead.
func WithTrackSelector(expr string) Option {
	return func(c *config.Config) {
		c.SelectExpr = expr
	}
}

// WithQuality sets the --quality-style constraint ("highest", "lowest",
// "1080p", "1920x1080", ...).
func WithQuality(quality string) Option {
	return func(c *config.Config) {
		c.Quality = quality
	}
}

// WithDecryptionKeys sets decryption keys, each either a "KID:KEY" pair
// (32 hex chars each) or a path to a 16-byte raw key file.
func WithDecryptionKeys(keys []string) Option {
	return func(c *config.Config) {
		c.Keys = keys
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(c *config.Config) {
		c.Verbose = verbose
	}
}

// WithParallelTracks is retained for API compatibility; stream downloads
// are always sequential per spec (one DownloadStream call per selected
// stream), so this option has no effect and records nothing.
func WithParallelTracks(parallel bool) Option {
	return func(c *config.Config) {}
}

// WithMaxBandwidth sets maximum download speed in bytes per second.
// Set to 0 for unlimited (default).
func WithMaxBandwidth(bytesPerSec int64) Option {
	return func(c *config.Config) {
		c.MaxBandwidth = bytesPerSec
	}
}

// WithRawPrompts selects the numbered raw-index prompt for track and
// manifest-URL selection instead of the default non-interactive behavior.
func WithRawPrompts(raw bool) Option {
	return func(c *config.Config) {
		c.RawPrompts = raw
	}
}

// WithModernPrompts(true) clears RawPrompts and SkipPrompts, which leaves
// the non-interactive default prompt mode; promptMode never yields
// ModeModern, so no Downloader option selects the TUI picker.
func WithModernPrompts(modern bool) Option {
	return func(c *config.Config) {
		if modern {
			c.RawPrompts = false
			c.SkipPrompts = false
		}
	}
}

// Parse fetches and parses the manifest from the configured URL, scraping
// an embedding page for a manifest link first if the URL itself doesn't
// look like a manifest.
// Must be called before Tracks(), SelectTracks(), or Download().
func (d *Downloader) Parse(ctx context.Context) error {
	uri := d.cfg.BaseURL

	dashParser := dash.New(d.client)
	hlsParser := hls.New(d.client)

	if !dashParser.CanParse(uri) && !hlsParser.CanParse(uri) && !discover.IsManifestURL(uri) {
		found, err := discover.FindManifestURLs(ctx, d.client, uri)
		if err != nil {
			return &verr.ManifestError{URL: uri, Err: err}
		}
		chosen, err := discover.ChooseManifestURL(found, d.promptMode(), os.Stdin, os.Stdout)
		if err != nil {
			return &verr.ManifestError{URL: uri, Err: err}
		}
		uri = chosen
	}

	var master *playlist.MasterPlaylist
	var err error
	switch {
	case dashParser.CanParse(uri):
		master, err = dashParser.Parse(ctx, uri)
	case hlsParser.CanParse(uri):
		master, err = hlsParser.Parse(ctx, uri)
	default:
		return &verr.ManifestError{URL: uri, Err: fmt.Errorf("unrecognized manifest type")}
	}
	if err != nil {
		return &verr.ManifestError{URL: uri, Err: err}
	}

	d.master = master
	return nil
}

// Tracks returns all available tracks after parsing.
// Returns nil if Parse() hasn't been called.
func (d *Downloader) Tracks() []*Track {
	if d.master == nil {
		return nil
	}
	tracks := make([]*Track, len(d.master.Streams))
	for i, s := range d.master.Streams {
		tracks[i] = &Track{internal: s}
	}
	return tracks
}

// promptMode maps the config's prompt flags onto the shared
// none/raw/modern interaction-mode switch used by both track selection
// and manifest-URL discovery. The library default is non-interactive
// (ModeNone): embedding callers that want prompting opt in explicitly.
func (d *Downloader) promptMode() selector.Mode {
	switch {
	case d.cfg.RawPrompts:
		return selector.ModeRaw
	case d.cfg.SkipPrompts:
		return selector.ModeNone
	default:
		return selector.ModeNone
	}
}

// SelectTracks selects tracks based on the configured selector (or quality
// constraint, if no raw selector expression was set).
func (d *Downloader) SelectTracks() error {
	if d.master == nil {
		return fmt.Errorf("manifest not parsed, call Parse() first")
	}

	spec, err := d.selectorSpec()
	if err != nil {
		return err
	}

	log := selectorLogAdapter{logging.WithComponent("selector")}
	selected, err := selector.Resolve(d.master.Streams, spec, d.promptMode(), os.Stdin, os.Stdout, log)
	if err != nil {
		return err
	}
	d.selected = selected
	return nil
}

func (d *Downloader) selectorSpec() (selector.Spec, error) {
	if d.cfg.SelectExpr != "" {
		return selector.ParseExpression(d.cfg.SelectExpr), nil
	}

	video, err := selector.ParseQualityFlag(d.cfg.Quality)
	if err != nil {
		return selector.Spec{}, err
	}

	spec := selector.Spec{Video: video}
	if d.cfg.PreferAudioLang != "" {
		spec.Audio.Languages = []string{d.cfg.PreferAudioLang}
	}
	if d.cfg.PreferSubsLang != "" {
		spec.Subtitle.Languages = []string{d.cfg.PreferSubsLang}
	} else {
		spec.Subtitle.Skip = true
	}
	return spec, nil
}

// selectorLogAdapter satisfies internal/selector.Logger with a
// structured zerolog.Logger.
type selectorLogAdapter struct{ log zlog.Logger }

func (a selectorLogAdapter) Info(msg string, kv ...any) {
	e := a.log.Info()
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

// SetSelectedTracks allows manual track selection.
// Pass tracks obtained from Tracks().
func (d *Downloader) SetSelectedTracks(tracks []*Track) {
	internal := make([]*playlist.MediaPlaylist, len(tracks))
	for i, t := range tracks {
		internal[i] = t.internal
	}
	d.selected = internal
}

// SelectedTracks returns the currently selected tracks.
func (d *Downloader) SelectedTracks() []*Track {
	if d.selected == nil {
		return nil
	}
	tracks := make([]*Track, len(d.selected))
	for i, s := range d.selected {
		tracks[i] = &Track{internal: s}
	}
	return tracks
}

// Download starts the download process: one scheduler.DownloadStream call
// per selected stream in sequence, each writing into its own temp file,
// followed by an internal/mux packaging pass unless NoMerge is set.
// Blocks until complete or context is canceled.
//
// A stream already fully flushed in a prior run (per the on-disk
// scheduler.Checkpoint for this same manifest URL and output path) is
// reused as-is rather than redownloaded, so a killed or crashed process can
// resume at stream granularity instead of starting over from nothing.
func (d *Downloader) Download(ctx context.Context) error {
	if d.master == nil {
		return fmt.Errorf("manifest not parsed, call Parse() first")
	}
	if len(d.selected) == 0 {
		return fmt.Errorf("no tracks selected, call SelectTracks() first")
	}
	defer close(d.progressCh)

	tmpDir := filepath.Join(d.cfg.Directory, ".veld-tmp-"+tmpDirName(d.outputPath()))
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return &verr.IOError{Path: tmpDir, Err: err}
	}

	cpPath := scheduler.CheckpointPath(d.outputPath())
	cp, err := scheduler.LoadCheckpoint(cpPath)
	if err != nil {
		return &verr.IOError{Path: cpPath, Err: err}
	}
	if cp == nil || !cp.Matches(d.cfg.BaseURL) {
		cp = scheduler.NewCheckpoint(d.cfg.BaseURL, d.cfg.Directory)
	}

	inputs := make([]mux.Input, 0, len(d.selected))
	for _, stream := range d.selected {
		if isBoxedWebVTT(stream) {
			path := filepath.Join(tmpDir, stream.ID+".vtt")
			if err := d.extractWebVTTSubtitle(ctx, stream, path); err != nil {
				return err
			}
			inputs = append(inputs, mux.Input{Stream: stream, Path: path})
			continue
		}
		if stream.MediaType == playlist.MediaSubtitles && stream.Segments[0].Map == nil {
			stream.SetExtension("vtt")
		}

		path := filepath.Join(tmpDir, stream.ID+"."+stream.Extension(d.master.PlaylistType))

		if streamAlreadyFlushed(cp, stream.ID, path) {
			inputs = append(inputs, mux.Input{Stream: stream, Path: path})
			continue
		}

		sink, f, err := merger.NewFile(len(stream.Segments), path)
		if err != nil {
			return &verr.IOError{Path: path, Err: err}
		}

		keyFetcher, decryptFunc, err := d.buildCrypto(ctx, stream)
		if err != nil {
			f.Close()
			return err
		}

		sched := &scheduler.Scheduler{
			Client:      d.client,
			Workers:     d.cfg.Threads,
			Retries:     d.cfg.RetryCount,
			Progress:    d.progressCh,
			KeyFetcher:  keyFetcher,
			DecryptFunc: decryptFunc,
		}

		downloadErr := sched.DownloadStream(ctx, stream, sink)
		f.Close()
		if downloadErr != nil {
			return downloadErr
		}

		if info, statErr := os.Stat(path); statErr == nil {
			cp.UpdateStream(stream.ID, info.Size())
			_ = cp.Save(cpPath)
		}

		inputs = append(inputs, mux.Input{Stream: stream, Path: path})
	}

	if d.cfg.NoMerge {
		_ = cp.Delete(cpPath)
		return nil
	}

	opts := mux.Options{Verbose: d.cfg.Verbose}
	if err := mux.Mux(ctx, opts, inputs, d.outputPath()); err != nil {
		return err
	}
	_ = cp.Delete(cpPath)
	return nil
}

// streamAlreadyFlushed reports whether cp records streamID as fully
// written in a prior run and the file at path still matches that size,
// meaning the stream can be reused instead of redownloaded.
func streamAlreadyFlushed(cp *scheduler.Checkpoint, streamID, path string) bool {
	want := cp.ResumeOffset(streamID)
	if want == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() == want
}

// tmpDirName derives a stable (non-random) temp directory suffix from the
// configured output path, so that resuming the same download in a later
// process reuses the same per-stream file paths a checkpoint refers to.
func tmpDirName(outputPath string) string {
	h := fnv.New64a()
	io.WriteString(h, outputPath)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Downloader) outputPath() string {
	name := d.cfg.Output
	if name == "" {
		name = "output." + d.cfg.Format
	}
	if d.cfg.Directory == "" {
		return name
	}
	return filepath.Join(d.cfg.Directory, name)
}

// buildCrypto resolves the KeyFetcher/DecryptFunc pair for stream,
// dispatching on the decryption method its segments' keys carry: HLS
// AES-128 (segment-level CBC with the key URI fetched over HTTP) or
// CENC/mp4-decrypt (subsample decryption keyed by KID, parsed once from
// the stream's init segment and cached per stream).
func (d *Downloader) buildCrypto(ctx context.Context, stream *playlist.MediaPlaylist) (scheduler.KeyFetcher, scheduler.DecryptFunc, error) {
	if d.cfg.NoDecrypt || !stream.IsEncrypted() {
		return nil, nil, nil
	}

	var method playlist.KeyMethod
	for _, seg := range stream.Segments {
		if seg.Key != nil && seg.Key.Method != playlist.KeyNone {
			method = seg.Key.Method
			break
		}
	}

	switch method {
	case playlist.KeyAES128:
		fetcher := cenc.NewHLSKeyFetcher(d.client, d.cfg.Headers)
		keyFetch := func(ctx context.Context, key *playlist.Key) ([]byte, error) {
			return fetcher.FetchKey(ctx, key.URI)
		}
		decrypt := func(seg *playlist.Segment, keyBytes []byte, mapBytes []byte, body []byte) ([]byte, error) {
			iv, err := resolveIV(seg)
			if err != nil {
				return nil, err
			}
			return cenc.DecryptAES128CBC(body, keyBytes, iv)
		}
		return keyFetch, decrypt, nil

	case playlist.KeySampleAES:
		// Plain METHOD=SAMPLE-AES is Apple's proprietary scheme (distinct
		// from the SAMPLE-AES-CTR/SAMPLE-AES-CENC variants, which parse as
		// KeyMp4Decrypt instead) and uses a different ciphertext layout
		// than CENC subsample decryption, so it can't be routed through
		// the mp4-decrypt path below.
		return nil, nil, &verr.DecryptionError{KID: stream.DefaultKID(), Err: fmt.Errorf("unsupported key method SAMPLE-AES")}

	case playlist.KeyMp4Decrypt:
		keys, err := d.resolveCENCKeySet(ctx, stream)
		if err != nil {
			return nil, nil, &verr.DecryptionError{KID: stream.DefaultKID(), Err: err}
		}

		var mu sync.Mutex
		var session *cenc.Session

		keyFetch := func(ctx context.Context, key *playlist.Key) ([]byte, error) {
			return []byte{1}, nil
		}
		decrypt := func(seg *playlist.Segment, _ []byte, mapBytes []byte, body []byte) ([]byte, error) {
			mu.Lock()
			sess := session
			mu.Unlock()
			if sess == nil {
				var err error
				sess, err = cenc.OpenSession(mapBytes, keys)
				if err != nil {
					return nil, err
				}
				mu.Lock()
				session = sess
				mu.Unlock()
			}
			return sess.DecryptFragment(body)
		}
		return keyFetch, decrypt, nil

	default:
		return nil, nil, nil
	}
}

// resolveCENCKeySet builds the stream's KeySet from --key, falling back to
// a helpful error naming the key IDs internal/pssh found in the stream's
// init segment when no keys were supplied at all.
func (d *Downloader) resolveCENCKeySet(ctx context.Context, stream *playlist.MediaPlaylist) (cenc.KeySet, error) {
	if len(d.cfg.Keys) == 0 {
		return nil, d.missingKeyError(ctx, stream)
	}
	return parseKeySet(d.cfg.Keys, stream.DefaultKID())
}

// missingKeyError scans the stream's init segment for pssh boxes so the
// resulting error names the key IDs and DRM systems the operator actually
// needs to supply via --key, rather than a bare "no key" message.
func (d *Downloader) missingKeyError(ctx context.Context, stream *playlist.MediaPlaylist) error {
	base := fmt.Errorf("veld: encrypted stream requires --key KID:KEY or a raw key file")

	var mapURI string
	var mapRange *playlist.ByteRange
	for _, seg := range stream.Segments {
		if seg.Map != nil {
			mapURI, mapRange = seg.Map.URI, seg.Map.Range
			break
		}
	}
	if mapURI == "" {
		return base
	}

	data, err := fetchRange(ctx, d.client, mapURI, mapRange)
	if err != nil {
		return base
	}
	scan, err := pssh.Scan(data)
	if err != nil || len(scan.KeyIDs) == 0 {
		return base
	}

	kids := make([]string, len(scan.KeyIDs))
	for i, k := range scan.KeyIDs {
		kids[i] = fmt.Sprintf("%s (%s)", k.UUID(), k.System)
	}
	return fmt.Errorf("%w; found key ID(s) in init segment: %s", base, strings.Join(kids, ", "))
}

// fetchRange fetches uri, applying an HTTP Range header when byteRange is
// set, mirroring internal/scheduler's own init-segment fetch.
func fetchRange(ctx context.Context, client *http.Client, uri string, byteRange *playlist.ByteRange) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if byteRange != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", byteRange.Start, byteRange.End))
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func resolveIV(seg *playlist.Segment) ([]byte, error) {
	if seg.Key != nil && seg.Key.IV != "" {
		return cenc.ParseIV(seg.Key.IV)
	}
	return cenc.SegmentIV(int64(seg.Index)), nil
}

// parseKeySet turns the configured --key values into a cenc.KeySet: entries
// containing a colon are taken as "KID:KEY" pairs, everything else is
// treated as a path to a 16-byte raw key file paired with defaultKID.
func parseKeySet(keys []string, defaultKID string) (cenc.KeySet, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("veld: encrypted stream requires --key KID:KEY or a raw key file")
	}

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.Contains(k, ":") {
			pairs = append(pairs, k)
			continue
		}
		raw, err := os.ReadFile(k)
		if err != nil {
			return nil, fmt.Errorf("reading key file %s: %w", k, err)
		}
		if len(raw) != 16 {
			return nil, fmt.Errorf("key file %s must contain exactly 16 bytes, got %d", k, len(raw))
		}
		if defaultKID == "" {
			return nil, fmt.Errorf("raw key file %s needs a manifest-derived KID to pair with", k)
		}
		pairs = append(pairs, defaultKID+":"+hex.EncodeToString(raw))
	}
	return cenc.ParseKeySet(strings.Join(pairs, ";"))
}

// isBoxedWebVTT reports whether stream carries WebVTT cues wrapped in
// fragmented-mp4 boxes (wvtt), which ffmpeg cannot demux directly and so
// needs internal/subtitle to unpack into a plain .vtt file first. Plain
// WebVTT text and stpp (mp4-boxed TTML, which ffmpeg's mov demuxer reads
// natively) both pass straight through the normal download path.
func isBoxedWebVTT(stream *playlist.MediaPlaylist) bool {
	return stream.MediaType == playlist.MediaSubtitles &&
		len(stream.Segments) > 0 &&
		stream.Segments[0].Map != nil &&
		strings.Contains(stream.Codecs, "wvtt")
}

// extractWebVTTSubtitle fetches stream's init segment and every media
// segment directly (bypassing internal/scheduler/internal/merger, since
// wvtt fragments must be decoded rather than concatenated), decodes cues
// with internal/subtitle, and writes the result as a plain .vtt file at
// path.
func (d *Downloader) extractWebVTTSubtitle(ctx context.Context, stream *playlist.MediaPlaylist, path string) error {
	first := stream.Segments[0]
	initData, err := fetchRange(ctx, d.client, first.Map.URI, first.Map.Range)
	if err != nil {
		return fmt.Errorf("veld: fetching subtitle init segment: %w", err)
	}
	parser, err := subtitle.ParseVTTInit(initData)
	if err != nil {
		return fmt.Errorf("veld: parsing subtitle init segment: %w", err)
	}

	subs := &subtitle.Subtitles{}
	for _, seg := range stream.Segments {
		body, err := fetchRange(ctx, d.client, seg.URI, seg.Range)
		if err != nil {
			return &verr.NetworkError{URL: seg.URI, Err: err}
		}
		cues, err := parser.ParseMedia(body, 0)
		if err != nil {
			return fmt.Errorf("veld: parsing subtitle segment %d: %w", seg.Index, err)
		}
		subs.Append(cues.Cues...)
		d.sendProgress(stream.ID, seg.Index, len(body))
	}

	f, err := os.Create(path)
	if err != nil {
		return &verr.IOError{Path: path, Err: err}
	}
	defer f.Close()
	if err := subtitle.WriteVTT(f, subs); err != nil {
		return &verr.IOError{Path: path, Err: err}
	}
	return nil
}

func (d *Downloader) sendProgress(streamID string, index int, bytesLoaded int) {
	select {
	case d.progressCh <- scheduler.ProgressUpdate{StreamID: streamID, SegmentIndex: index, BytesLoaded: int64(bytesLoaded), Completed: true}:
	default:
	}
}

// Manifest returns the normalized manifest produced by Parse(), for
// callers (cmd/veld's --parse dump, internal/tui) that need the full
// internal/playlist model rather than the public Track wrapper.
// Returns nil if Parse() hasn't been called.
func (d *Downloader) Manifest() *playlist.MasterPlaylist {
	return d.master
}

// SelectedStreams returns the internal/playlist representation of the
// currently selected tracks, for driving internal/tui directly.
func (d *Downloader) SelectedStreams() []*playlist.MediaPlaylist {
	return d.selected
}

// ProgressStream returns the scheduler's raw progress channel, for
// callers (cmd/veld's TUI) that want internal/scheduler.ProgressUpdate
// values directly instead of the public ProgressUpdate conversion
// Progress() performs. The channel is closed when Download() completes.
func (d *Downloader) ProgressStream() <-chan scheduler.ProgressUpdate {
	return d.progressCh
}

// Progress returns a channel for receiving download progress updates.
// The channel is closed when the download completes.
func (d *Downloader) Progress() <-chan ProgressUpdate {
	ch := make(chan ProgressUpdate, 128)
	go func() {
		defer close(ch)
		for p := range d.progressCh {
			ch <- ProgressUpdate{
				SegmentIndex: p.SegmentIndex,
				TrackID:      p.StreamID,
				BytesLoaded:  p.BytesLoaded,
				Completed:    p.Completed,
				Error:        p.Err,
			}
		}
	}()
	return ch
}

// Close releases resources held by the downloader.
// Always call Close() when done, preferably with defer.
func (d *Downloader) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// ManifestType returns the type of manifest ("hls" or "dash").
// Returns empty string if Parse() hasn't been called.
func (d *Downloader) ManifestType() string {
	if d.master == nil {
		return ""
	}
	return string(d.master.PlaylistType)
}

// DownloadURL is a convenience function for simple downloads.
// It parses the manifest, selects tracks (using "best" or configured
// selector), and downloads to the specified output path.
func DownloadURL(ctx context.Context, url, filename string, opts ...Option) error {
	allOpts := append([]Option{
		WithURL(url),
		WithFileName(filename),
		WithQuality("highest"),
	}, opts...)

	d, err := New(allOpts...)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Parse(ctx); err != nil {
		return err
	}

	if err := d.SelectTracks(); err != nil {
		return err
	}

	return d.Download(ctx)
}
