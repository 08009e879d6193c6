package cenc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"testing"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

// encryptReference produces ciphertext for a given scheme using only
// stdlib primitives, independent of the Cipher type under test, so the
// round-trip test has an oracle that isn't just "decrypt(encrypt(x))==x"
// against itself.
func encryptCTRReference(t *testing.T, key, iv, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(plaintext))
	stream.XORKeyStream(out, plaintext)
	return out
}

func encryptCBCReference(t *testing.T, key, iv, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(plaintext))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(out, plaintext)
	return out
}

func TestCencCTRRoundTrip(t *testing.T) {
	key := randomBytes(t, 16)
	iv := randomBytes(t, 16)
	plaintext := randomBytes(t, 64)

	ciphertext := encryptCTRReference(t, key, iv, plaintext)

	c, err := New(SchemeCenc, key, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetIV(iv); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(ciphertext))
	c.ProcessBuffer(ciphertext, out)

	if !bytes.Equal(out, plaintext) {
		t.Fatalf("cenc round-trip mismatch")
	}
}

func TestCbc1RoundTripFullBlocksOnly(t *testing.T) {
	key := randomBytes(t, 16)
	iv := randomBytes(t, 16)
	plaintext := randomBytes(t, 48) // exactly 3 blocks

	ciphertext := encryptCBCReference(t, key, iv, plaintext)

	c, err := New(SchemeCbc1, key, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetIV(iv); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(ciphertext))
	c.ProcessBuffer(ciphertext, out)

	if !bytes.Equal(out, plaintext) {
		t.Fatalf("cbc1 round-trip mismatch")
	}
}

func TestCbc1PassesThroughTrailingPartialBlock(t *testing.T) {
	key := randomBytes(t, 16)
	iv := randomBytes(t, 16)
	fullBlock := randomBytes(t, 16)
	trailing := randomBytes(t, 5)

	ciphertextBlock := encryptCBCReference(t, key, iv, fullBlock)
	input := append(append([]byte{}, ciphertextBlock...), trailing...)

	c, err := New(SchemeCbc1, key, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetIV(iv); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(input))
	c.ProcessBuffer(input, out)

	if !bytes.Equal(out[:16], fullBlock) {
		t.Fatalf("decrypted block mismatch")
	}
	if !bytes.Equal(out[16:], trailing) {
		t.Fatalf("trailing bytes should pass through unmodified")
	}
}

// TestCensPatternTouchesExpectedFraction checks the cens scheme's pattern
// behavior: with (crypt=1, skip=9) 16-byte blocks, exactly 10% of blocks in
// a large buffer are touched (decrypted) and 90% pass through unchanged.
func TestCensPatternTouchesExpectedFraction(t *testing.T) {
	key := randomBytes(t, 16)
	iv := randomBytes(t, 16)

	const blocks = 100
	plaintext := randomBytes(t, blocks*16)

	// Build the "ciphertext" by encrypting only the crypt blocks (1 in 10)
	// with CTR, using process_pattern semantics replicated here as the
	// oracle: block 0 encrypted, blocks 1-9 plain, block 10 encrypted, etc.
	ciphertext := make([]byte, len(plaintext))
	copy(ciphertext, plaintext)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	stream := cipher.NewCTR(block, iv)
	for i := 0; i < blocks; i += 10 {
		end := i + 1
		if end > blocks {
			end = blocks
		}
		stream.XORKeyStream(ciphertext[i*16:end*16], plaintext[i*16:end*16])
	}

	c, err := New(SchemeCens, key, 1, 9)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetIV(iv); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, len(ciphertext))
	c.ProcessBuffer(ciphertext, out)

	if !bytes.Equal(out, plaintext) {
		t.Fatalf("cens pattern round-trip mismatch")
	}

	touched := 0
	for i := 0; i < blocks; i++ {
		if !bytes.Equal(ciphertext[i*16:(i+1)*16], plaintext[i*16:(i+1)*16]) {
			touched++
		}
	}
	if touched != blocks/10 {
		t.Fatalf("expected %d touched blocks (10%%), got %d", blocks/10, touched)
	}
}

func TestSchemeFromFourCC(t *testing.T) {
	cases := map[string]Scheme{
		"cenc": SchemeCenc,
		"cens": SchemeCens,
		"cbc1": SchemeCbc1,
		"cbcs": SchemeCbcs,
		"xxxx": SchemeNone,
	}
	for fourcc, want := range cases {
		if got := SchemeFromFourCC(fourcc); got != want {
			t.Errorf("SchemeFromFourCC(%q) = %v, want %v", fourcc, got, want)
		}
	}
}
