// Package cenc implements AES-128 ciphers for the four Common Encryption
// schemes (cenc, cens, cbc1, cbcs) and the CENC decryptor that drives them
// from fragmented-MP4 metadata.
package cenc

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// Scheme identifies one of the four CENC protection schemes by its
// scheme_type fourcc, as carried in the init segment's schm box.
type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeCenc
	SchemeCens
	SchemeCbc1
	SchemeCbcs
)

// SchemeFromFourCC maps a schm scheme_type string to a Scheme.
func SchemeFromFourCC(fourcc string) Scheme {
	switch fourcc {
	case "cenc":
		return SchemeCenc
	case "cens":
		return SchemeCens
	case "cbc1":
		return SchemeCbc1
	case "cbcs":
		return SchemeCbcs
	default:
		return SchemeNone
	}
}

// Cipher is a per-sample decryption context. It is constructed fresh for
// every sample (never reused as a long-lived field) so the CTR-reset rule
// cannot be violated: the caller is always holding an owned value whose
// lifetime is exactly one sample's worth of decryption.
type Cipher struct {
	scheme       Scheme
	key          [16]byte
	iv           [16]byte
	cryptBlocks  uint8
	skipBlocks   uint8
	stream       cipher.Stream // CTR keystream, lazily built, reset by SetIV
	block        cipher.Block  // AES-128 ECB block cipher, for CBC modes
}

// New constructs a Cipher for the given scheme, 16-byte key, and pattern
// parameters (ignored outside cens/cbcs).
func New(scheme Scheme, key []byte, cryptBlocks, skipBlocks uint8) (*Cipher, error) {
	if scheme == SchemeNone {
		return &Cipher{scheme: SchemeNone}, nil
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("cenc: key must be 16 bytes, got %d", len(key))
	}
	c := &Cipher{scheme: scheme, cryptBlocks: cryptBlocks, skipBlocks: skipBlocks}
	copy(c.key[:], key)
	if scheme == SchemeCbc1 || scheme == SchemeCbcs {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		c.block = block
	}
	return c, nil
}

// IsCBCMode reports whether the scheme is cbc1 or cbcs.
func (c *Cipher) IsCBCMode() bool {
	return c.scheme == SchemeCbc1 || c.scheme == SchemeCbcs
}

// IsCBCS reports whether the scheme is cbcs specifically.
func (c *Cipher) IsCBCS() bool {
	return c.scheme == SchemeCbcs
}

// SetIV installs the IV for the next ProcessBuffer call(s). For CTR schemes
// (cenc/cens) this rebuilds the keystream from scratch, matching the source
// semantics where set_iv always constructs a new CTR cipher. For CBC schemes
// the IV is simply stored/chained.
func (c *Cipher) SetIV(iv []byte) error {
	switch c.scheme {
	case SchemeNone:
		return nil
	case SchemeCenc, SchemeCens:
		var padded [16]byte
		n := len(iv)
		if n > 16 {
			n = 16
		}
		copy(padded[:n], iv[:n])
		c.iv = padded
		block, err := aes.NewCipher(c.key[:])
		if err != nil {
			return err
		}
		c.stream = cipher.NewCTR(block, c.iv[:])
		return nil
	case SchemeCbc1, SchemeCbcs:
		if len(iv) != 16 {
			return fmt.Errorf("cenc: cbc iv must be 16 bytes, got %d", len(iv))
		}
		copy(c.iv[:], iv)
		return nil
	}
	return nil
}

// ProcessBuffer decrypts input into output (len(output) must be >=
// len(input)) according to the configured scheme and pattern.
func (c *Cipher) ProcessBuffer(input []byte, output []byte) {
	switch c.scheme {
	case SchemeNone:
		copy(output, input)
	case SchemeCenc:
		c.applyCTR(input, output)
	case SchemeCens:
		processPattern(input, output, int(c.cryptBlocks)*16, int(c.skipBlocks)*16,
			c.applyCTR, copyPassthrough)
	case SchemeCbc1:
		c.applyCBC(input, output)
	case SchemeCbcs:
		processPattern(input, output, int(c.cryptBlocks)*16, int(c.skipBlocks)*16,
			c.applyCBCChained, copyPassthrough)
	}
}

func (c *Cipher) applyCTR(input, output []byte) {
	copy(output, input)
	if c.stream == nil {
		block, _ := aes.NewCipher(c.key[:])
		c.stream = cipher.NewCTR(block, c.iv[:])
	}
	c.stream.XORKeyStream(output[:len(input)], output[:len(input)])
}

// applyCBC decrypts only full 16-byte blocks of input, chaining the IV
// across calls; any trailing partial-block bytes are copied to output
// unmodified.
func (c *Cipher) applyCBC(input, output []byte) {
	blockCount := len(input) / 16
	if blockCount == 0 {
		return
	}
	prev := c.iv
	for i := 0; i < blockCount; i++ {
		start, end := i*16, (i+1)*16
		var ciphertext [16]byte
		copy(ciphertext[:], input[start:end])
		var plain [16]byte
		c.block.Decrypt(plain[:], ciphertext[:])
		for j := 0; j < 16; j++ {
			output[start+j] = plain[j] ^ prev[j]
		}
		prev = ciphertext
	}
	c.iv = prev
	partial := blockCount * 16
	if partial < len(input) {
		copy(output[partial:len(input)], input[partial:])
	}
}

// applyCBCChained is the cbcs pattern's per-crypt-run encrypt function: it
// decrypts only the floor-16 portion of the run and carries the last
// ciphertext block forward as the IV for the next run.
func (c *Cipher) applyCBCChained(input, output []byte) {
	blocks := (len(input) / 16) * 16
	if blocks > 0 {
		c.applyCBCRun(input[:blocks], output[:blocks])
	}
	if blocks < len(input) {
		copy(output[blocks:len(input)], input[blocks:])
	}
}

func (c *Cipher) applyCBCRun(input, output []byte) {
	blockCount := len(input) / 16
	prev := c.iv
	for i := 0; i < blockCount; i++ {
		start, end := i*16, (i+1)*16
		var ciphertext [16]byte
		copy(ciphertext[:], input[start:end])
		var plain [16]byte
		c.block.Decrypt(plain[:], ciphertext[:])
		for j := 0; j < 16; j++ {
			output[start+j] = plain[j] ^ prev[j]
		}
		prev = ciphertext
	}
	c.iv = prev
}

func copyPassthrough(input, output []byte) {
	copy(output, input)
}

// processPattern alternates encryptFn over up to cryptSize bytes then copyFn
// over up to skipSize bytes until input is exhausted. cryptSize==skipSize==0
// means "encrypt everything".
func processPattern(input, output []byte, cryptSize, skipSize int, encryptFn, copyFn func(in, out []byte)) {
	if cryptSize == 0 && skipSize == 0 {
		encryptFn(input, output)
		return
	}

	offset := 0
	for offset < len(input) {
		toEncrypt := min(len(input)-offset, cryptSize)
		if toEncrypt > 0 {
			encryptFn(input[offset:offset+toEncrypt], output[offset:offset+toEncrypt])
			offset += toEncrypt
		}
		if offset >= len(input) {
			break
		}
		toSkip := min(len(input)-offset, skipSize)
		if toSkip > 0 {
			copyFn(input[offset:offset+toSkip], output[offset:offset+toSkip])
			offset += toSkip
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
