package cenc

import (
	"encoding/hex"
	"fmt"

	"github.com/mohaanymo/veld/internal/mp4"
)

// KeySet maps a 16-byte KID to its 16-byte key, supporting the
// "--key KID:KEY[;KID:KEY...]" multi-KID form.
type KeySet map[[16]byte][]byte

// ParseKeySet parses "kidhex:keyhex[;kidhex:keyhex...]" into a KeySet.
func ParseKeySet(s string) (KeySet, error) {
	ks := KeySet{}
	pairs := splitSemicolon(s)
	for _, p := range pairs {
		kidHex, keyHex, ok := splitColon(p)
		if !ok {
			return nil, fmt.Errorf("cenc: malformed key pair %q, expected KID:KEY", p)
		}
		kid, err := hex.DecodeString(kidHex)
		if err != nil || len(kid) != 16 {
			return nil, fmt.Errorf("cenc: KID %q must be 32 hex chars", kidHex)
		}
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 16 {
			return nil, fmt.Errorf("cenc: KEY %q must be 32 hex chars", keyHex)
		}
		var kidArr [16]byte
		copy(kidArr[:], kid)
		ks[kidArr] = key
	}
	return ks, nil
}

func splitSemicolon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ';' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func splitColon(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// Session is opened once per init segment and reused to decrypt every
// fragment of that track.
type Session struct {
	scheme Scheme
	tenc   *mp4.TENCBox
	keys   KeySet
}

// OpenSession walks an init segment's moov > trak > mdia > minf > stbl >
// stsd > enc{v,a} > sinf tree, recording schm.scheme_type and tenc.
func OpenSession(initData []byte, keys KeySet) (*Session, error) {
	s := &Session{keys: keys}

	p := mp4.NewParser().
		BaseBox("moov", mp4.Children).
		BaseBox("trak", mp4.Children).
		BaseBox("mdia", mp4.Children).
		BaseBox("minf", mp4.Children).
		BaseBox("stbl", mp4.Children).
		FullBox("stsd", mp4.SampleDescription).
		BaseBox("encv", mp4.VisualSampleEntry).
		BaseBox("enca", mp4.AudioSampleEntry).
		BaseBox("sinf", mp4.Children).
		FullBox("schm", func(box *mp4.ParsedBox) error {
			schm, err := mp4.ParseSCHM(box.Reader)
			if err != nil {
				return err
			}
			s.scheme = SchemeFromFourCC(mp4.SchemeTypeFourCC(schm.SchemeType))
			return nil
		}).
		FullBox("tenc", func(box *mp4.ParsedBox) error {
			tenc, err := mp4.ParseTENC(box.Reader, *box.Version)
			if err != nil {
				return err
			}
			s.tenc = tenc
			return nil
		})

	if err := p.Parse(initData, true, true); err != nil {
		return nil, fmt.Errorf("cenc: parsing init segment: %w", err)
	}
	if s.tenc == nil {
		return nil, fmt.Errorf("cenc: no tenc box found in init segment")
	}
	return s, nil
}

// fragmentMeta accumulates what DecryptFragment needs from one moof.
type fragmentMeta struct {
	moofStart uint64
	trun      *mp4.TRUNBox
	senc      []mp4.SENCSample
	ivSize    uint8
}

// DecryptFragment decrypts a copy of segmentData and returns it, leaving
// segmentData itself unmodified, using this session's scheme/tenc plus the
// fragment's own moof/traf/trun/senc metadata.
func (s *Session) DecryptFragment(segmentData []byte) ([]byte, error) {
	out := make([]byte, len(segmentData))
	copy(out, segmentData)

	var metas []*fragmentMeta

	p := mp4.NewParser().
		BaseBox("moof", func(box *mp4.ParsedBox) error {
			m := &fragmentMeta{moofStart: box.Start, ivSize: s.tenc.DefaultPerSampleIVSize}
			metas = append(metas, m)
			childParser := mp4.NewParser().
				BaseBox("traf", mp4.Children).
				FullBox("tfhd", func(*mp4.ParsedBox) error { return nil }).
				FullBox("tfdt", func(*mp4.ParsedBox) error { return nil }).
				FullBox("trun", func(inner *mp4.ParsedBox) error {
					trun, err := mp4.ParseTRUN(inner.Reader, *inner.Version, *inner.Flags)
					if err != nil {
						return err
					}
					m.trun = trun
					return nil
				}).
				FullBox("senc", func(inner *mp4.ParsedBox) error {
					senc, err := mp4.ParseSENC(inner.Reader, *inner.Flags, m.ivSize)
					if err != nil {
						return err
					}
					m.senc = senc
					return nil
				})
			return childParser.Parse(box.Reader.Rest(), box.PartialOkay, box.StopOnPartial)
		})

	if err := p.Parse(segmentData, false, false); err != nil {
		return nil, fmt.Errorf("cenc: parsing fragment: %w", err)
	}

	for _, m := range metas {
		if m.trun == nil || len(m.senc) == 0 {
			continue
		}
		if err := s.decryptOneMoof(out, m); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (s *Session) decryptOneMoof(out []byte, m *fragmentMeta) error {
	key, ok := s.keys[s.tenc.DefaultKID]
	if !ok {
		return fmt.Errorf("cenc: no key supplied for kid %s", hex.EncodeToString(s.tenc.DefaultKID[:]))
	}

	decrypter, err := NewSingleSampleDecrypter(s.scheme, key, s.tenc.DefaultCryptByteBlock, s.tenc.DefaultSkipByteBlock)
	if err != nil {
		return err
	}

	infoTable := NewSampleInfoTable(m.senc)

	var dataOffset int64
	if m.trun.DataOffset != nil {
		dataOffset = int64(*m.trun.DataOffset)
	}
	offset := int64(m.moofStart) + dataOffset

	n := len(m.trun.Samples)
	if infoTable.Len() < n {
		n = infoTable.Len()
	}

	for i := 0; i < n; i++ {
		sample := m.trun.Samples[i]
		sampleSize := int64(0)
		if sample.SampleSize != nil {
			sampleSize = int64(*sample.SampleSize)
		}
		if sampleSize == 0 {
			continue
		}

		start := offset
		end := offset + sampleSize
		if start < 0 || end > int64(len(out)) {
			return fmt.Errorf("cenc: sample %d range [%d,%d) outside buffer of length %d", i, start, end, len(out))
		}

		info, err := infoTable.Get(i)
		if err != nil {
			return err
		}
		iv := info.IV
		if iv == nil {
			iv = s.tenc.DefaultConstantIV
		}

		decrypted, err := decrypter.DecryptSampleData(out[start:end], iv, info.Subsamples)
		if err != nil {
			return fmt.Errorf("cenc: decrypting sample %d: %w", i, err)
		}
		copy(out[start:end], decrypted)

		offset = end
	}
	return nil
}
