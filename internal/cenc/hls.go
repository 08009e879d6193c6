package cenc

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// HLSKeyFetcher fetches and caches AES-128 keys referenced by EXT-X-KEY:URI.
type HLSKeyFetcher struct {
	client  *http.Client
	headers map[string]string

	mu    sync.Mutex
	cache map[string][]byte
}

// NewHLSKeyFetcher returns a fetcher using client for GET requests, with
// extra headers applied to every key request.
func NewHLSKeyFetcher(client *http.Client, headers map[string]string) *HLSKeyFetcher {
	return &HLSKeyFetcher{client: client, headers: headers, cache: make(map[string][]byte)}
}

// FetchKey retrieves (and caches) the 16-byte key at uri.
func (f *HLSKeyFetcher) FetchKey(ctx context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	if k, ok := f.cache[uri]; ok {
		f.mu.Unlock()
		return k, nil
	}
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hls: fetching key %s: %w", uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hls: key fetch %s returned status %d", uri, resp.StatusCode)
	}
	key, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("hls: key %s must be 16 bytes, got %d", uri, len(key))
	}

	f.mu.Lock()
	f.cache[uri] = key
	f.mu.Unlock()
	return key, nil
}

// ParseIV hex-decodes an EXT-X-KEY IV attribute (with or without the
// optional "0x" prefix), left-padding to 16 bytes. The IV string is always
// treated as hex, never as raw ASCII bytes (see DESIGN.md open-question
// resolution).
func ParseIV(ivStr string) ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(ivStr, "0x"), "0X")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hls: invalid IV %q: %w", ivStr, err)
	}
	if len(decoded) > 16 {
		return nil, fmt.Errorf("hls: IV %q longer than 16 bytes", ivStr)
	}
	iv := make([]byte, 16)
	copy(iv[16-len(decoded):], decoded)
	return iv, nil
}

// SegmentIV derives the implicit IV from an HLS media-sequence number when
// no explicit IV attribute is present: big-endian 16-byte encoding of the
// absolute sequence number.
func SegmentIV(sequenceNumber int64) []byte {
	iv := make([]byte, 16)
	v := uint64(sequenceNumber)
	for i := 15; i >= 8; i-- {
		iv[i] = byte(v)
		v >>= 8
	}
	return iv
}

// DecryptAES128CBC decrypts data (a whole HLS segment body) with the given
// 16-byte key/iv and removes PKCS#7 padding.
func DecryptAES128CBC(data, key, iv []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("hls: ciphertext length %d not a multiple of block size", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	mode := cipher.NewCBCDecrypter(block, iv)
	out := make([]byte, len(data))
	mode.CryptBlocks(out, data)
	return pkcs7Unpad(out)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, fmt.Errorf("hls: invalid PKCS#7 padding")
	}
	if !bytes.Equal(data[len(data)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, fmt.Errorf("hls: invalid PKCS#7 padding bytes")
	}
	return data[:len(data)-padLen], nil
}
