package cenc

import (
	"fmt"

	"github.com/mohaanymo/veld/internal/mp4"
)

// SingleSampleDecrypter decrypts one sample's worth of data, dispatching to
// full-sample, full-block, or subsample-walking decryption depending on
// what the sample's SampleInfo describes.
type SingleSampleDecrypter struct {
	scheme      Scheme
	key         []byte
	cryptBlocks uint8
	skipBlocks  uint8
}

// NewSingleSampleDecrypter validates the key and returns a decrypter for
// one scheme/key/pattern combination, reused across every sample of a
// fragment (a fresh Cipher is still constructed per DecryptSample call).
func NewSingleSampleDecrypter(scheme Scheme, key []byte, cryptBlocks, skipBlocks uint8) (*SingleSampleDecrypter, error) {
	if scheme != SchemeNone && len(key) != 16 {
		return nil, fmt.Errorf("cenc: key must be 16 bytes, got %d", len(key))
	}
	return &SingleSampleDecrypter{scheme: scheme, key: key, cryptBlocks: cryptBlocks, skipBlocks: skipBlocks}, nil
}

// DecryptSampleData decrypts dataIn (one full sample's bytes) using iv and,
// if present, the sample's subsample map.
func (d *SingleSampleDecrypter) DecryptSampleData(dataIn []byte, iv []byte, subsamples []mp4.SubsampleEntry) ([]byte, error) {
	if d.scheme == SchemeNone {
		out := make([]byte, len(dataIn))
		copy(out, dataIn)
		return out, nil
	}

	c, err := New(d.scheme, d.key, d.cryptBlocks, d.skipBlocks)
	if err != nil {
		return nil, err
	}
	if err := c.SetIV(iv); err != nil {
		return nil, err
	}

	dataOut := make([]byte, len(dataIn))

	switch {
	case len(subsamples) > 0:
		if err := d.decryptSubsamples(c, dataIn, dataOut, iv, subsamples); err != nil {
			return nil, err
		}
	case c.IsCBCMode():
		d.decryptFullBlocks(c, dataIn, dataOut)
	default:
		c.ProcessBuffer(dataIn, dataOut)
	}

	return dataOut, nil
}

// resetsIVPerSubsample reports whether the cipher mode re-initializes its
// keystream/IV at the start of every encrypted subsample run (true for the
// CTR-family cenc/cens schemes; cbc1/cbcs chain across subsamples instead).
func resetsIVPerSubsample(scheme Scheme) bool {
	return scheme == SchemeCenc || scheme == SchemeCens
}

func (d *SingleSampleDecrypter) decryptSubsamples(c *Cipher, dataIn, dataOut []byte, iv []byte, subsamples []mp4.SubsampleEntry) error {
	inOffset, outOffset := 0, 0

	for _, sub := range subsamples {
		clearSize := int(sub.BytesOfClearData)
		encSize := int(sub.BytesOfEncryptedData)

		if inOffset+clearSize+encSize > len(dataIn) {
			remaining := dataIn[inOffset:]
			remainingOut := dataOut[outOffset:]
			if c.IsCBCMode() && len(remaining) >= 16 {
				_ = c.SetIV(iv)
				c.ProcessBuffer(remaining, remainingOut[:len(remaining)])
			} else {
				copy(remainingOut, remaining)
			}
			return nil
		}

		if clearSize > 0 {
			copy(dataOut[outOffset:outOffset+clearSize], dataIn[inOffset:inOffset+clearSize])
		}
		if encSize > 0 {
			if resetsIVPerSubsample(d.scheme) {
				if err := c.SetIV(iv); err != nil {
					return err
				}
			}
			c.ProcessBuffer(
				dataIn[inOffset+clearSize:inOffset+clearSize+encSize],
				dataOut[outOffset+clearSize:outOffset+clearSize+encSize],
			)
		}

		inOffset += clearSize + encSize
		outOffset += clearSize + encSize
	}

	if inOffset < len(dataIn) {
		copy(dataOut[outOffset:], dataIn[inOffset:])
	}
	return nil
}

func (d *SingleSampleDecrypter) decryptFullBlocks(c *Cipher, dataIn, dataOut []byte) {
	blockCount := len(dataIn) / 16
	if blockCount == 0 {
		copy(dataOut, dataIn)
		return
	}
	encSize := blockCount * 16
	c.ProcessBuffer(dataIn[:encSize], dataOut[:encSize])
	if encSize < len(dataIn) {
		copy(dataOut[encSize:], dataIn[encSize:])
	}
}
