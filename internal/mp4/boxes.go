package mp4

import (
	"fmt"
	"unicode/utf16"
)

// TFHDBox is the track fragment header box.
type TFHDBox struct {
	TrackID             uint32
	DefaultSampleDuration *uint32
	DefaultSampleSize     *uint32
	BaseDataOffset        *uint64
}

const (
	tfhdBaseDataOffsetPresent        = 0x000001
	tfhdSampleDescriptionIndexPresent = 0x000002
	tfhdDefaultSampleDurationPresent = 0x000008
	tfhdDefaultSampleSizePresent     = 0x000010
)

// ParseTFHD decodes a tfhd box payload.
func ParseTFHD(r *Reader, flags uint32) (*TFHDBox, error) {
	trackID, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("tfhd track id: %w", err)
	}
	b := &TFHDBox{TrackID: trackID}

	if flags&tfhdBaseDataOffsetPresent != 0 {
		v, err := r.ReadU64()
		if err != nil {
			return nil, fmt.Errorf("tfhd base data offset: %w", err)
		}
		b.BaseDataOffset = &v
	}
	if flags&tfhdSampleDescriptionIndexPresent != 0 {
		if err := r.Skip(4); err != nil {
			return nil, fmt.Errorf("tfhd sample description index: %w", err)
		}
	}
	if flags&tfhdDefaultSampleDurationPresent != 0 {
		v, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("tfhd default sample duration: %w", err)
		}
		b.DefaultSampleDuration = &v
	}
	if flags&tfhdDefaultSampleSizePresent != 0 {
		v, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("tfhd default sample size: %w", err)
		}
		b.DefaultSampleSize = &v
	}
	return b, nil
}

// TFDTBox is the track fragment decode time box.
type TFDTBox struct {
	BaseMediaDecodeTime uint64
}

// ParseTFDT decodes a tfdt box payload.
func ParseTFDT(r *Reader, version uint8) (*TFDTBox, error) {
	if version == 1 {
		v, err := r.ReadU64()
		if err != nil {
			return nil, fmt.Errorf("tfdt base media decode time (u64): %w", err)
		}
		return &TFDTBox{BaseMediaDecodeTime: v}, nil
	}
	v, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("tfdt base media decode time (u32): %w", err)
	}
	return &TFDTBox{BaseMediaDecodeTime: uint64(v)}, nil
}

// MDHDBox is the media header box.
type MDHDBox struct {
	Timescale uint32
	Language  string
}

// ParseMDHD decodes an mdhd box payload.
func ParseMDHD(r *Reader, version uint8) (*MDHDBox, error) {
	if version == 1 {
		if err := r.Skip(16); err != nil {
			return nil, err
		}
	} else {
		if err := r.Skip(8); err != nil {
			return nil, err
		}
	}
	timescale, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("mdhd timescale: %w", err)
	}
	durationSize := 4
	if version == 1 {
		durationSize = 8
	}
	if err := r.Skip(durationSize); err != nil {
		return nil, err
	}
	lang, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("mdhd language: %w", err)
	}
	// ISO-639-2/T packed as three 5-bit fields, each offset from 0x60.
	runes := []rune{
		rune((lang>>10)&0x1f) + 0x60,
		rune((lang>>5)&0x1f) + 0x60,
		rune(lang&0x1f) + 0x60,
	}
	_ = utf16.Encode(runes) // language is already plain runes here; kept for parity with the box's packed-utf16 origin
	return &MDHDBox{Timescale: timescale, Language: string(runes)}, nil
}

// TRUNSample is one sample entry of a trun box.
type TRUNSample struct {
	SampleDuration              *uint32
	SampleSize                  *uint32
	SampleCompositionTimeOffset *int32
}

// TRUNBox is the track fragment run box.
type TRUNBox struct {
	DataOffset *int32
	Samples    []TRUNSample
}

const (
	trunDataOffsetPresent            = 0x000001
	trunFirstSampleFlagsPresent      = 0x000004
	trunSampleDurationPresent        = 0x000100
	trunSampleSizePresent            = 0x000200
	trunSampleFlagsPresent           = 0x000400
	trunSampleCompositionOffsetPresent = 0x000800
)

// ParseTRUN decodes a trun box payload.
func ParseTRUN(r *Reader, version uint8, flags uint32) (*TRUNBox, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("trun sample count: %w", err)
	}
	b := &TRUNBox{}

	if flags&trunDataOffsetPresent != 0 {
		v, err := r.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("trun data offset: %w", err)
		}
		b.DataOffset = &v
	}
	if flags&trunFirstSampleFlagsPresent != 0 {
		if err := r.Skip(4); err != nil {
			return nil, err
		}
	}

	b.Samples = make([]TRUNSample, 0, count)
	for i := uint32(0); i < count; i++ {
		var s TRUNSample
		if flags&trunSampleDurationPresent != 0 {
			v, err := r.ReadU32()
			if err != nil {
				return nil, fmt.Errorf("trun sample duration: %w", err)
			}
			s.SampleDuration = &v
		}
		if flags&trunSampleSizePresent != 0 {
			v, err := r.ReadU32()
			if err != nil {
				return nil, fmt.Errorf("trun sample size: %w", err)
			}
			s.SampleSize = &v
		}
		if flags&trunSampleFlagsPresent != 0 {
			if err := r.Skip(4); err != nil {
				return nil, err
			}
		}
		if flags&trunSampleCompositionOffsetPresent != 0 {
			if version == 0 {
				v, err := r.ReadU32()
				if err != nil {
					return nil, fmt.Errorf("trun sample composition offset (u32): %w", err)
				}
				sv := int32(v)
				s.SampleCompositionTimeOffset = &sv
			} else {
				v, err := r.ReadI32()
				if err != nil {
					return nil, fmt.Errorf("trun sample composition offset (i32): %w", err)
				}
				s.SampleCompositionTimeOffset = &v
			}
		}
		b.Samples = append(b.Samples, s)
	}
	return b, nil
}

// SCHMBox identifies the protection scheme (cenc/cens/cbc1/cbcs).
type SCHMBox struct {
	SchemeType    uint32
	SchemeVersion uint32
}

// ParseSCHM decodes a schm box payload.
func ParseSCHM(r *Reader) (*SCHMBox, error) {
	typ, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("schm scheme type: %w", err)
	}
	ver, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("schm scheme version: %w", err)
	}
	return &SCHMBox{SchemeType: typ, SchemeVersion: ver}, nil
}

// SchemeTypeFourCC renders a schm scheme_type as its 4-character string
// ("cenc", "cens", "cbc1", "cbcs").
func SchemeTypeFourCC(schemeType uint32) string {
	return uint32ToFourcc(schemeType)
}

// TENCBox carries the default per-track protection parameters.
type TENCBox struct {
	DefaultCryptByteBlock uint8
	DefaultSkipByteBlock  uint8
	DefaultIsProtected    uint8
	DefaultPerSampleIVSize uint8
	DefaultKID            [16]byte
	DefaultConstantIV     []byte
}

// ParseTENC decodes a tenc box payload.
func ParseTENC(r *Reader, version uint8) (*TENCBox, error) {
	b := &TENCBox{}
	if _, err := r.ReadU8(); err != nil { // reserved
		return nil, err
	}
	if version == 0 {
		if _, err := r.ReadU8(); err != nil { // reserved
			return nil, err
		}
	} else {
		byte2, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		b.DefaultCryptByteBlock = byte2 >> 4
		b.DefaultSkipByteBlock = byte2 & 0x0f
	}
	isProtected, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	b.DefaultIsProtected = isProtected
	ivSize, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	b.DefaultPerSampleIVSize = ivSize
	kid, err := r.ReadBytes(16)
	if err != nil {
		return nil, fmt.Errorf("tenc default kid: %w", err)
	}
	copy(b.DefaultKID[:], kid)

	if isProtected == 1 && ivSize == 0 {
		constSize, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		iv, err := r.ReadBytes(int(constSize))
		if err != nil {
			return nil, fmt.Errorf("tenc constant iv: %w", err)
		}
		b.DefaultConstantIV = iv
	}
	return b, nil
}

// SENCSample is one entry of a senc box's sample table.
type SENCSample struct {
	IV         []byte
	Subsamples []SubsampleEntry
}

// SubsampleEntry is a (clear, encrypted) byte-count pair.
type SubsampleEntry struct {
	BytesOfClearData     uint16
	BytesOfEncryptedData uint32
}

// ParseSENC decodes a senc box payload given the per-sample IV size (from
// tenc) and whether the senc flags indicate subsample info is present
// (flags & 0x000002).
func ParseSENC(r *Reader, flags uint32, ivSize uint8) ([]SENCSample, error) {
	hasSubsamples := flags&0x000002 != 0
	count, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("senc sample count: %w", err)
	}
	samples := make([]SENCSample, 0, count)
	for i := uint32(0); i < count; i++ {
		var s SENCSample
		if ivSize > 0 {
			iv, err := r.ReadBytes(int(ivSize))
			if err != nil {
				return nil, fmt.Errorf("senc sample iv: %w", err)
			}
			s.IV = append([]byte(nil), iv...)
		}
		if hasSubsamples {
			subCount, err := r.ReadU16()
			if err != nil {
				return nil, fmt.Errorf("senc subsample count: %w", err)
			}
			subs := make([]SubsampleEntry, 0, subCount)
			for j := uint16(0); j < subCount; j++ {
				clear, err := r.ReadU16()
				if err != nil {
					return nil, err
				}
				enc, err := r.ReadU32()
				if err != nil {
					return nil, err
				}
				subs = append(subs, SubsampleEntry{BytesOfClearData: clear, BytesOfEncryptedData: enc})
			}
			s.Subsamples = subs
		}
		samples = append(samples, s)
	}
	return samples, nil
}
