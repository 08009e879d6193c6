package cenc

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestSegmentIVBigEndianEncoding(t *testing.T) {
	cases := []struct {
		seq  int64
		want string
	}{
		{0, hex.EncodeToString(make([]byte, 16))},
		{1, hex.EncodeToString(append(make([]byte, 15), 1))},
		{100, hex.EncodeToString(append(make([]byte, 15), 100))},
	}
	for _, c := range cases {
		got := hex.EncodeToString(SegmentIV(c.seq))
		if got != c.want {
			t.Errorf("SegmentIV(%d) = %s, want %s", c.seq, got, c.want)
		}
	}
}

// TestHLSIVDerivationImplicit checks that for EXT-X-KEY without IV, segment
// k with media-sequence base M decrypts correctly iff the IV is
// big-endian(M+k).
func TestHLSIVDerivationImplicit(t *testing.T) {
	key := []byte("0123456789abcdef")
	const base = 100
	plaintexts := [][]byte{
		[]byte("segment number one!"),
		[]byte("segment number two!"),
		[]byte("segment number three"),
	}

	for k, plain := range plaintexts {
		iv := SegmentIV(base + int64(k))
		padded := pkcs7Pad(plain)
		ciphertext := encryptCBCReference(t, key, iv, padded)

		decrypted, err := DecryptAES128CBC(ciphertext, key, iv)
		if err != nil {
			t.Fatalf("segment %d: decrypt failed: %v", k, err)
		}
		if !bytes.Equal(decrypted, plain) {
			t.Fatalf("segment %d: got %q, want %q", k, decrypted, plain)
		}
	}
}

func TestParseIVHexNotASCII(t *testing.T) {
	iv, err := ParseIV("0x00000000000000000000000000000001")
	if err != nil {
		t.Fatal(err)
	}
	want, _ := hex.DecodeString("00000000000000000000000000000001")
	if !bytes.Equal(iv, want) {
		t.Fatalf("ParseIV did not hex-decode correctly: got %x", iv)
	}
}

func pkcs7Pad(data []byte) []byte {
	padLen := 16 - len(data)%16
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}
